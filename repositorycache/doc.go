// Package repositorycache keeps query caches consistent with writes made
// through a go-repository-bun repository.
//
// # Overview
//
// FlushingRepository wraps a repository. Reads pass through unchanged. After
// every successful write (Create, Update, Upsert, Delete and their Many and
// Tx variants) it flushes the query cache of the model type T, the same way
// querycache.Builder.Flush does:
//
//	base := repository.NewRepository[*User](db, handlers)
//	users := repositorycache.New[*User](base, factory)
//
//	// cached read through the query builder
//	active, _ := querycache.NewSelect[User](factory).Where("active = ?", true).CacheFor(time.Hour).Get(ctx)
//
//	// the write flushes the users group, so the next read hits the database
//	_, _ = users.Create(ctx, &User{Name: "ana", Active: true})
//
// # Tags
//
// By default a write flushes the base tags of T. WithTagsFunc replaces them
// with tags computed from the written records, and WithCacheTags adds tags
// carried on the context:
//
//	users := repositorycache.New[*User](base, factory,
//		repositorycache.WithTagsFunc(func(u *User) []string {
//			return []string{"users", fmt.Sprintf("team:%d", u.TeamID)}
//		}),
//	)
//	ctx = repositorycache.WithCacheTags(ctx, "dashboard")
//
// Criteria based writes (DeleteMany, DeleteWhere) have no records, so they
// flush the context tags. With no context tags they fall back to the base
// tags of T.
//
// # Failures
//
// A flush runs after the write has been committed by the base repository.
// Flush errors are logged and the write result is returned unchanged.
// WithoutFlushOnWrite disables flushing entirely.
package repositorycache
