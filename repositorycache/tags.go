package repositorycache

import (
	"context"
)

type cacheTagsContextKey struct{}

// WithCacheTags attaches cache tags to the context. A FlushingRepository
// flushes them, next to the record tags, after a write made with ctx.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	existing := cacheTagsFromContext(ctx)
	combined := append(existing, tags...)
	combined = dedupeStrings(combined)
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

func cacheTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

// dedupeStrings drops empty and repeated tags, keeping first-seen order.
func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
