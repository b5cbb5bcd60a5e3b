package tempstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Blobs live in hashes with a native
// TTL; a sorted set indexed by expiry backs SweepExpired so stale index
// members are pruned even after Redis evicts the hashes itself.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	BlobTTL  time.Duration
}

// NewRedisStore creates a Redis-backed temp store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "kocr:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.BlobTTL,
	}, nil
}

func (s *RedisStore) blobKey(id string) string { return s.prefix + "blob:" + id }
func (s *RedisStore) indexKey() string         { return s.prefix + "blobs" }

// Save stores a blob scoped to the owner.
func (s *RedisStore) Save(ctx context.Context, owner string, data []byte, contentType string) (string, error) {
	id := BlobID(owner, data)
	now := time.Now()
	expires := now.Add(s.ttl)

	key := s.blobKey(id)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"owner":        owner,
		"content_type": contentType,
		"data":         data,
		"created_at":   now.Unix(),
		"expires_at":   expires.Unix(),
	})
	pipe.ExpireAt(ctx, key, expires)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(expires.Unix()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis save blob: %w", err)
	}
	return id, nil
}

// Get retrieves a blob, enforcing owner scoping. Expiry is native: once the
// hash TTL passes the key is simply gone.
func (s *RedisStore) Get(ctx context.Context, blobID, owner string) (*Entry, error) {
	vals, err := s.client.HGetAll(ctx, s.blobKey(blobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get blob: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	if vals["owner"] != owner {
		return nil, ErrForbidden
	}

	created, _ := strconv.ParseInt(vals["created_at"], 10, 64)
	expires, _ := strconv.ParseInt(vals["expires_at"], 10, 64)

	return &Entry{
		BlobID:      blobID,
		OwnerToken:  owner,
		Data:        []byte(vals["data"]),
		ContentType: vals["content_type"],
		CreatedAt:   time.Unix(created, 0),
		ExpiresAt:   time.Unix(expires, 0),
	}, nil
}

// Delete removes a blob. Idempotent for absent blobs.
func (s *RedisStore) Delete(ctx context.Context, blobID, owner string) error {
	key := s.blobKey(blobID)
	storedOwner, err := s.client.HGet(ctx, key, "owner").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis delete blob: %w", err)
	}
	if storedOwner != owner {
		return ErrForbidden
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, s.indexKey(), blobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete blob: %w", err)
	}
	return nil
}

// DeleteOwned removes a batch of blobs belonging to the owner.
func (s *RedisStore) DeleteOwned(ctx context.Context, owner string, blobIDs []string) error {
	for _, id := range blobIDs {
		if err := s.Delete(ctx, id, owner); err != nil && !errors.Is(err, ErrForbidden) {
			return err
		}
	}
	return nil
}

// SweepExpired prunes index members whose expiry has passed. The hashes
// themselves are removed by Redis TTL; this keeps the index honest.
func (s *RedisStore) SweepExpired(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)

	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis sweep scan: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.blobKey(id))
	}
	pipe.ZRemRangeByScore(ctx, s.indexKey(), "-inf", now)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis sweep delete: %w", err)
	}
	return len(ids), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
