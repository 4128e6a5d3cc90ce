// Package cache keeps recently computed user statistics in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/social"
)

const (
	statsPrefix = "stats:user:"
	genPrefix   = "stats:gen:"
)

// StatsCache serves UserStats from Redis and falls back to the wrapped
// computer on a miss. Entries expire after ttl; writers that change a
// user's counts call Invalidate so readers do not wait out the ttl.
// A Redis failure never fails a read: the stats are recomputed instead.
//
// Every user has a generation counter that Invalidate bumps. A computed
// entry is only stored if the generation it was computed under is still
// current, so a slow reader cannot put back counts older than a completed
// write.
type StatsCache struct {
	client *redis.Client
	next   social.StatsComputer
	ttl    time.Duration
	log    *zap.Logger
}

var (
	_ social.StatsComputer    = (*StatsCache)(nil)
	_ social.StatsInvalidator = (*StatsCache)(nil)
)

// NewClient parses a redis:// URL and checks the server answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewStatsCache(client *redis.Client, next social.StatsComputer, ttl time.Duration, log *zap.Logger) *StatsCache {
	return &StatsCache{client: client, next: next, ttl: ttl, log: log.Named("stats_cache")}
}

func (c *StatsCache) ComputeStats(ctx context.Context, userID uint) (models.UserStats, error) {
	key := statsKey(userID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var stats models.UserStats
		if err := json.Unmarshal(raw, &stats); err == nil {
			return stats, nil
		}
		c.log.Warn("discarding unreadable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
	}

	gen, genErr := c.generation(ctx, c.client, userID)
	if genErr != nil {
		c.log.Warn("stats cache generation read failed", zap.Uint("user", userID), zap.Error(genErr))
	}

	stats, err := c.next.ComputeStats(ctx, userID)
	if err != nil {
		return models.UserStats{}, err
	}

	if genErr == nil {
		c.store(ctx, userID, gen, stats)
	}
	return stats, nil
}

// store writes stats under a WATCH on the user's generation and gives up if
// an Invalidate ran since gen was read.
func (c *StatsCache) store(ctx context.Context, userID uint, gen int64, stats models.UserStats) {
	key := statsKey(userID)
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generation(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, c.ttl)
			return nil
		})
		return err
	}, genKey(userID))

	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		c.log.Debug("skipping stale stats", zap.Uint("user", userID))
	default:
		c.log.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *StatsCache) generation(ctx context.Context, cmd getter, userID uint) (int64, error) {
	gen, err := cmd.Get(ctx, genKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate drops the cached stats of the given users and bumps their
// generations. Generation counters never expire.
func (c *StatsCache) Invalidate(ctx context.Context, userIDs ...uint) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, genKey(id))
			keys = append(keys, statsKey(id))
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		c.log.Warn("stats cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

var errStale = errors.New("stats generation changed")

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func statsKey(userID uint) string {
	return fmt.Sprintf("%s%d", statsPrefix, userID)
}

func genKey(userID uint) string {
	return fmt.Sprintf("%s%d", genPrefix, userID)
}
