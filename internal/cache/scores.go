// Package cache stores finished analysis results in Redis so repeated runs
// over the same snapshot, configuration and scope skip the engine.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"

	apperrors "relationship-metrics/internal/common/errors"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/common/metrics"
	"relationship-metrics/internal/models"
)

const keyPrefix = "relmetrics:result:"

// Key derives the cache key for a snapshot, the engine configuration that
// analyses it and the scope. A result is only reusable when all three match.
func Key(snapshotFingerprint, paramsFingerprint string, scope models.AnalysisScope) string {
	sum := sha256.Sum256([]byte(scope.Fingerprint()))
	return keyPrefix + snapshotFingerprint + ":" + paramsFingerprint + ":" + hex.EncodeToString(sum[:8])
}

// ScoreCache reads and writes snappy-compressed JSON results.
type ScoreCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewScoreCache(client *redis.Client, ttl time.Duration, log logger.Logger) *ScoreCache {
	return &ScoreCache{client: client, ttl: ttl, logger: log.Named("score-cache")}
}

// Get returns a CACHE_MISS error when the key is absent.
func (c *ScoreCache) Get(ctx context.Context, key string) (*models.Result, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ScoreCacheLookups.WithLabelValues("miss").Inc()
		return nil, apperrors.NewCacheMissError(key)
	}
	if err != nil {
		metrics.ScoreCacheLookups.WithLabelValues("error").Inc()
		return nil, apperrors.NewCacheFailedError("get", err)
	}

	res, err := decode(raw)
	if err != nil {
		metrics.ScoreCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, apperrors.NewCacheFailedError("decode", err)
	}
	metrics.ScoreCacheLookups.WithLabelValues("hit").Inc()
	return res, nil
}

func (c *ScoreCache) Put(ctx context.Context, key string, res *models.Result) error {
	data, err := encode(res)
	if err != nil {
		return apperrors.NewCacheFailedError("encode", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return apperrors.NewCacheFailedError("set", err)
	}
	c.logger.Debug("cached result", map[string]interface{}{
		"key":   key,
		"bytes": len(data),
		"ttl":   c.ttl.String(),
	})
	return nil
}

func (c *ScoreCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return apperrors.NewCacheFailedError("del", err)
	}
	return nil
}

func encode(res *models.Result) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func decode(raw []byte) (*models.Result, error) {
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, err
	}
	var res models.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
