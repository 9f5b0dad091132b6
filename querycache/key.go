package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MethodCount is the one method whose key omits the SQL text.
const MethodCount = "count"

// KeyInput is the material a cache key is derived from.
type KeyInput struct {
	Connection string
	Method     string
	ID         string
	SQL        string
	Bindings   []any
	Appends    string
}

// KeyHasher turns a plain key into its hashed form.
type KeyHasher func(plain string) string

// SHA256 is the default KeyHasher: the hex encoded SHA-256 digest of the plain key.
func SHA256(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// XXHash is a fast non-cryptographic KeyHasher for stores that are not shared
// with untrusted writers.
func XXHash(plain string) string {
	return strconv.FormatUint(xxhash.Sum64String(plain), 16)
}

// PlainKey concatenates connection, method, id, SQL text (skipped for count),
// the serialized bindings and the appended suffix.
func (c *QueryCache) PlainKey(in KeyInput) string {
	var b strings.Builder
	b.WriteString(in.Connection)
	b.WriteString(in.Method)
	b.WriteString(in.ID)
	if in.Method != MethodCount {
		b.WriteString(in.SQL)
	}
	b.WriteString(c.serializer.Serialize(in.Bindings))
	b.WriteString(in.Appends)
	return b.String()
}

// Key returns the full store key for in under opts.
func (c *QueryCache) Key(opts Options, in KeyInput) string {
	key := c.PlainKey(in)
	if !opts.PlainKey {
		key = c.hasher(key)
	}

	full := opts.prefix() + ":" + key
	if opts.NotFlush {
		full = NotFlushPrefix + full
	}
	return full
}

// GroupKey returns the invalidation group every flush-tracked key under opts is registered in.
func (c *QueryCache) GroupKey(opts Options) string {
	var first string
	if len(opts.BaseTags) > 0 {
		first = opts.BaseTags[0]
	}
	return opts.prefix() + GroupKeyName + first
}
