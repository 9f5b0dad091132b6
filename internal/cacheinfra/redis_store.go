package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/redis/go-redis/v9"
)

var (
	_ cache.TaggableStore = (*RedisStore)(nil)
	_ cache.TaggedStore   = (*redisTaggedStore)(nil)
)

// RedisStore implements cache.TaggableStore on top of redis.
// Tag membership is tracked in one redis set per tag. A tag set expires with
// its longest lived member, so sets of entries that all expired by TTL go away
// on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a redis store from cfg.
func NewRedisStore(cfg *cache.RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = cache.DefaultRedisConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient creates a redis store using an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) tagKey(tag string) string {
	return s.prefix + "tag:" + tag + ":keys"
}

// Get implements cache.Store.Get.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Put implements cache.Store.Put. A ttl <= 0 stores the key without expiry.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, expiration(ttl)).Err()
}

// Pull implements cache.Store.Pull.
func (s *RedisStore) Pull(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Forget implements cache.Store.Forget.
func (s *RedisStore) Forget(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Tags implements cache.TaggableStore.Tags.
func (s *RedisStore) Tags(tags ...string) (cache.TaggedStore, error) {
	return &redisTaggedStore{RedisStore: s, tags: append([]string(nil), tags...)}, nil
}

// Ping verifies connectivity to redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisTaggedStore is the scoped view returned by RedisStore.Tags.
// Entries live under their plain key, so untagged reads and deletes still reach them.
type redisTaggedStore struct {
	*RedisStore
	tags []string
}

// taggedPut stores an entry and records it in each tag set (KEYS[2:]). A tag
// set lives as long as its longest lived member: a bounded put only ever
// extends the set's expiry and a forever put makes the set persistent.
var taggedPut = redis.NewScript(`
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
for i = 2, #KEYS do
  local current = redis.call('PTTL', KEYS[i])
  redis.call('SADD', KEYS[i], ARGV[3])
  if ttl <= 0 then
    redis.call('PERSIST', KEYS[i])
  elseif current == -2 or (current >= 0 and current < ttl) then
    redis.call('PEXPIRE', KEYS[i], ARGV[2])
  end
end
return 1
`)

// Put stores the value and records the key in every tag set atomically.
func (s *redisTaggedStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	keys := make([]string, 0, len(s.tags)+1)
	keys = append(keys, s.key(key))
	for _, tag := range s.tags {
		keys = append(keys, s.tagKey(tag))
	}
	return taggedPut.Run(ctx, s.client, keys, value, expiration(ttl).Milliseconds(), key).Err()
}

// Flush deletes every key recorded under the view's tags, then the tag sets themselves.
func (s *redisTaggedStore) Flush(ctx context.Context) error {
	for _, tag := range s.tags {
		members, err := s.client.SMembers(ctx, s.tagKey(tag)).Result()
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(members)+1)
		for _, member := range members {
			keys = append(keys, s.key(member))
		}
		keys = append(keys, s.tagKey(tag))

		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}
