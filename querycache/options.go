package querycache

import "time"

const (
	// DefaultPrefix is prepended to every generated cache key.
	DefaultPrefix = "query"

	// GroupKeyName is the constant part of every invalidation group key.
	GroupKeyName = "query_groups"

	// NotFlushPrefix moves not-flush entries into their own key namespace.
	NotFlushPrefix = "not_flush_"

	// Forever caches a query without expiry.
	Forever time.Duration = -1

	// DefaultGlobalTTL is the lifetime used when the global query cache is switched on.
	DefaultGlobalTTL = 24 * time.Hour
)

// Options is the per-query cache state a caller configures before execution.
type Options struct {
	// TTL is > 0 for a bounded lifetime and < 0 (Forever) for no expiry.
	// Zero means unset: the query is not cached.
	TTL time.Duration

	// Avoid sends the query straight to the database, bypassing the cache.
	Avoid bool

	// NotFlush caches the entry outside of group and tag invalidation.
	NotFlush bool

	Tags     []string
	BaseTags []string

	// Driver names the store; empty selects the manager default.
	Driver string

	Prefix   string
	PlainKey bool
}

// prefix returns the configured key prefix or DefaultPrefix.
func (o Options) prefix() string {
	if o.Prefix == "" {
		return DefaultPrefix
	}
	return o.Prefix
}

// storeTTL maps the query TTL onto the store contract, where <= 0 means forever.
func (o Options) storeTTL() time.Duration {
	if o.TTL > 0 {
		return o.TTL
	}
	return 0
}

// scopeTags is the union of query tags and base tags, duplicates removed.
func (o Options) scopeTags() []string {
	return mergeTags(o.Tags, o.BaseTags)
}

func (o Options) clone() Options {
	o.Tags = append([]string(nil), o.Tags...)
	o.BaseTags = append([]string(nil), o.BaseTags...)
	return o
}

// mergeTags returns the union of the given tag sets in first-seen order.
func mergeTags(sets ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, tag := range set {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
