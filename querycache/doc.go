// Package querycache caches the results of read queries built with bun.
//
// # Overview
//
// A Builder wraps a bun.SelectQuery for one model type. When a terminal
// method (Get, First, Find, Count, Exists) runs, the QueryCache derives a key
// from the connection name, the method, an optional id, the rendered SQL and
// the bound values, then serves the result from a cache.Store or runs the
// query and stores it.
//
//	stores := cache.NewManager(cache.DriverMemory).Register(cache.DriverMemory, mem)
//	qc := querycache.New(stores)
//	f := querycache.NewFactory(db, qc, querycache.WithConnectionName("main"))
//
//	users, err := querycache.NewSelect[User](f).
//		Where("active = ?", true).
//		CacheFor(time.Minute).
//		Get(ctx)
//
// # Keys
//
// Keys are the hex SHA-256 digest of the plain key unless WithPlainKey is set,
// prefixed with the cache prefix ("query" by default). Count keys leave the SQL
// slot empty and carry the rendered query in the appends slot instead, so
// predicates added through Query are part of the key too.
//
// # Invalidation
//
// Every flush-tracked key is added to a group named after the prefix and the
// first base tag, so writes to a model can drop all of its cached queries with
// Flush. Stores that support tags (redis) also record the key under the query
// tags and base tags; Flush then removes each tag before pulling the group.
// Entries cached with CacheForNotFlush sit in their own key namespace and are
// never tracked, so they survive a Flush and expire on their TTL.
//
// # Model settings
//
// Models configure caching by implementing Configurer (static Settings),
// OverrideProvider (per query callbacks that win over Settings) and
// BaseTagger. Without a BaseTagger the base tag is the model's table name.
//
// # Concurrency
//
// Population is not coordinated: concurrent misses on the same key all run
// the query and the last write wins. Group registration has the same
// read-modify-write race described in package cachegroup.
package querycache
