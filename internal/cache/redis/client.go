// Package redis caches what the read path serves most often: assembled run
// details for poll-heavy clients and the aggregated model catalog. Everything
// here is an optimization; callers must work when the client is nil.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agent-council/backend/internal/llm"
	"github.com/agent-council/backend/internal/storage/models"
	"github.com/agent-council/backend/pkg/logger"
)

const (
	runKeyPrefix    = "council:run:"
	modelCatalogKey = "council:models"
	pingTimeout     = 3 * time.Second
)

type Client struct {
	rdb *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func runKey(runID string) string {
	return runKeyPrefix + runID
}

// CacheRunDetail stores an assembled run. Only terminal runs belong here:
// their details never change again, so the entry cannot go stale.
func (c *Client) CacheRunDetail(ctx context.Context, detail *models.RunDetail, ttl time.Duration) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal run detail: %w", err)
	}

	if err := c.rdb.Set(ctx, runKey(detail.Run.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache run detail: %w", err)
	}

	logger.Debug("Run detail cached", zap.String("run_id", detail.Run.ID), zap.Duration("ttl", ttl))
	return nil
}

// CachedRunDetail returns the cached JSON for a run, nil when absent. The raw
// bytes are returned so the read path can serve them without re-encoding.
func (c *Client) CachedRunDetail(ctx context.Context, runID string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, runKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run cache: %w", err)
	}

	logger.Debug("Run cache hit", zap.String("run_id", runID))
	return data, nil
}

// DropRunDetail removes a run's cache entry, if any.
func (c *Client) DropRunDetail(ctx context.Context, runID string) error {
	if err := c.rdb.Del(ctx, runKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to drop run cache: %w", err)
	}
	return nil
}

// CacheModelCatalog stores the merged provider model listing.
func (c *Client) CacheModelCatalog(ctx context.Context, catalog []llm.ModelInfo, ttl time.Duration) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("failed to marshal model catalog: %w", err)
	}

	if err := c.rdb.Set(ctx, modelCatalogKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache model catalog: %w", err)
	}

	logger.Debug("Model catalog cached", zap.Duration("ttl", ttl))
	return nil
}

// CachedModelCatalog returns the cached catalog, nil when absent.
func (c *Client) CachedModelCatalog(ctx context.Context) ([]llm.ModelInfo, error) {
	data, err := c.rdb.Get(ctx, modelCatalogKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog cache: %w", err)
	}

	catalog := []llm.ModelInfo{}
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model catalog: %w", err)
	}

	logger.Debug("Model catalog cache hit")
	return catalog, nil
}
