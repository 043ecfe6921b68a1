package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docsync/internal/logging"
	"docsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// ShareSource is the uncached share lookup.
type ShareSource interface {
	GetShares(ctx context.Context, documentID string) ([]models.DocumentShare, error)
}

// cachedShare is the JSON shape stored in Redis.
type cachedShare struct {
	UserID     string            `json:"user_id"`
	Permission models.Permission `json:"permission"`
}

// errStaleLoad means the share list changed while it was being loaded.
var errStaleLoad = errors.New("share list invalidated during load")

/*
Cache-aside with a generation counter.

A miss reads the share list from Postgres and writes it back. A NOTIFY can
land between the read and the write; writing blindly would resurrect a
revoked share until the TTL runs out. Every Invalidate bumps shares:gen:<doc>,
the loader remembers the generation it started from, and the write-back runs
in a WATCH/MULTI transaction that is skipped when the generation moved.
*/

// CachedShareRepository serves share lists from Redis for a short TTL and falls
// back to the source on a miss or when Redis is unavailable. Document rows are
// never cached: owner and content always come from the database.
type CachedShareRepository struct {
	source ShareSource
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logging.Logger
}

// NewRedisClient parses redisURL and checks the server is reachable.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return client, nil
}

// NewCachedShareRepository wraps source with a Redis cache.
func NewCachedShareRepository(source ShareSource, client *redis.Client, ttl time.Duration) *CachedShareRepository {
	return &CachedShareRepository{
		source: source,
		client: client,
		prefix: "shares:",
		ttl:    ttl,
		logger: logging.New("share-cache"),
	}
}

func (c *CachedShareRepository) key(documentID string) string {
	return c.prefix + documentID
}

func (c *CachedShareRepository) genKey(documentID string) string {
	return c.prefix + "gen:" + documentID
}

// generation returns the invalidation counter for a document; 0 when unset.
func (c *CachedShareRepository) generation(ctx context.Context, cmd redis.Cmdable, documentID string) (int64, error) {
	gen, err := cmd.Get(ctx, c.genKey(documentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetShares returns the cached share list, loading and caching it on a miss.
func (c *CachedShareRepository) GetShares(ctx context.Context, documentID string) ([]models.DocumentShare, error) {
	data, err := c.client.Get(ctx, c.key(documentID)).Bytes()
	switch {
	case err == nil:
		shares, decodeErr := decodeShares(documentID, data)
		if decodeErr == nil {
			return shares, nil
		}
		c.logger.Warnf("⚠️  Discarding corrupt cached shares for %s: %v", documentID, decodeErr)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warnf("⚠️  Share cache read failed for %s: %v", documentID, err)
	}

	gen, genErr := c.generation(ctx, c.client, documentID)

	shares, err := c.source.GetShares(ctx, documentID)
	if err != nil {
		return nil, err
	}

	// Without a known starting generation the write-back can't be checked.
	if genErr != nil {
		return shares, nil
	}

	err = c.store(ctx, documentID, gen, shares)
	switch {
	case err == nil:
	case errors.Is(err, errStaleLoad), errors.Is(err, redis.TxFailedErr):
		c.logger.Debugf("Skipping share cache write for %s: invalidated during load", documentID)
	default:
		c.logger.Warnf("⚠️  Share cache write failed for %s: %v", documentID, err)
	}

	return shares, nil
}

// Invalidate drops the cached share list for a document and bumps its
// generation so in-flight loads don't write the old list back.
func (c *CachedShareRepository) Invalidate(ctx context.Context, documentID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(documentID))
		pipe.Del(ctx, c.key(documentID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate shares: %w", err)
	}
	return nil
}

// store caches shares only if the document's generation is still gen.
func (c *CachedShareRepository) store(ctx context.Context, documentID string, gen int64, shares []models.DocumentShare) error {
	entries := make([]cachedShare, len(shares))
	for i, s := range shares {
		entries[i] = cachedShare{UserID: s.UserID, Permission: s.Permission}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal shares: %w", err)
	}

	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generation(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleLoad
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(documentID), data, c.ttl)
			return nil
		})
		return err
	}, c.genKey(documentID))
}

func decodeShares(documentID string, data []byte) ([]models.DocumentShare, error) {
	var entries []cachedShare
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	shares := make([]models.DocumentShare, len(entries))
	for i, e := range entries {
		shares[i] = models.DocumentShare{
			DocumentID: documentID,
			UserID:     e.UserID,
			Permission: e.Permission,
		}
	}
	return shares, nil
}
