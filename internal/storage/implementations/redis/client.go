package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/models"
)

// RedisConfig holds configuration for the Redis backed cache
type RedisConfig struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	PoolSize     int           `json:"pool_size"`
	MaxRetries   int           `json:"max_retries"`
	TTL          time.Duration `json:"ttl"`
	KeyPrefix    string        `json:"key_prefix"`
	ScanCount    int64         `json:"scan_count"`
}

// RedisCache shares raw table snapshots between server replicas. Entries
// expire through Redis' own EX handling, so SweepExpired has nothing to do.
type RedisCache struct {
	config  *RedisConfig
	client  *redis.Client
	logger  *logrus.Logger
	mu      sync.RWMutex
	metrics *cacheMetrics
	closed  bool
}

type cacheMetrics struct {
	hitCount   int64
	missCount  int64
	setCount   int64
	errorCount int64
	mu         sync.Mutex
}

// NewRedisCache creates a new Redis cache; call Connect before use
func NewRedisCache(config *RedisConfig, logger *logrus.Logger) (*RedisCache, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis config cannot be nil")
	}

	if config.Addr == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis address is required")
	}

	if config.TTL <= 0 {
		config.TTL = constants.DefaultCacheTTL
	}

	if config.ScanCount <= 0 {
		config.ScanCount = 100
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &RedisCache{
		config:  config,
		logger:  logger,
		metrics: &cacheMetrics{},
	}, nil
}

// Connect establishes connection to Redis
func (r *RedisCache) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         r.config.Addr,
		Password:     r.config.Password,
		DB:           r.config.DB,
		DialTimeout:  r.config.DialTimeout,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
		PoolSize:     r.config.PoolSize,
		MaxRetries:   r.config.MaxRetries,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, "CONNECTION_FAILED", "Failed to connect to Redis")
	}

	r.client = client
	r.closed = false

	r.logger.WithFields(logrus.Fields{
		"addr": r.config.Addr,
		"db":   r.config.DB,
		"ttl":  r.config.TTL.String(),
	}).Info("Connected to Redis")

	return nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	r.closed = true
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, "CLOSE_FAILED", "Failed to close Redis connection")
	}

	r.logger.Info("Redis connection closed")
	return nil
}

// Ping tests the Redis connection
func (r *RedisCache) Ping(ctx context.Context) error {
	client, err := r.getClient()
	if err != nil {
		return err
	}

	if _, err := client.Ping(ctx).Result(); err != nil {
		r.incrementErrorCount()
		return errors.WrapError(err, errors.ErrorTypeStorage, "PING_FAILED", "Redis ping failed")
	}
	return nil
}

// Get returns the table stored under key
func (r *RedisCache) Get(ctx context.Context, key string) (*models.RawTable, bool, error) {
	client, err := r.getClient()
	if err != nil {
		return nil, false, err
	}

	data, err := client.Get(ctx, r.generateKey(key)).Bytes()
	if err == redis.Nil {
		r.incrementMissCount()
		return nil, false, nil
	}
	if err != nil {
		r.incrementErrorCount()
		return nil, false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to read cache entry")
	}

	var table models.RawTable
	if err := json.Unmarshal(data, &table); err != nil {
		r.incrementErrorCount()
		return nil, false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to decode cache entry")
	}

	r.incrementHitCount()
	return &table, true, nil
}

// Set writes the table with the configured TTL, replacing any previous value.
// SET is atomic, so readers see either the old or the new entry.
func (r *RedisCache) Set(ctx context.Context, key string, value *models.RawTable) error {
	client, err := r.getClient()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to encode cache entry")
	}

	if err := client.Set(ctx, r.generateKey(key), data, r.config.TTL).Err(); err != nil {
		r.incrementErrorCount()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to write cache entry")
	}

	r.metrics.mu.Lock()
	r.metrics.setCount++
	r.metrics.mu.Unlock()
	return nil
}

// Clear deletes every key under the configured prefix
func (r *RedisCache) Clear(ctx context.Context) error {
	client, err := r.getClient()
	if err != nil {
		return err
	}

	var cursor uint64
	pattern := r.generateKey("*")
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, r.config.ScanCount).Result()
		if err != nil {
			r.incrementErrorCount()
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to scan cache keys")
		}

		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				r.incrementErrorCount()
				return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to delete cache keys")
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.logger.WithField("prefix", r.config.KeyPrefix).Info("Cleared Redis cache")
	return nil
}

// SweepExpired is a no-op: Redis evicts expired keys itself
func (r *RedisCache) SweepExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Stats reports counters for the health endpoint
func (r *RedisCache) Stats(ctx context.Context) (*interfaces.CacheStats, error) {
	r.metrics.mu.Lock()
	stats := &interfaces.CacheStats{
		Backend: "redis",
		Hits:    r.metrics.hitCount,
		Misses:  r.metrics.missCount,
		Sets:    r.metrics.setCount,
		TTL:     r.config.TTL,
	}
	r.metrics.mu.Unlock()

	client, err := r.getClient()
	if err != nil {
		return stats, nil
	}

	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, r.generateKey("*"), r.config.ScanCount).Result()
		if err != nil {
			break
		}
		stats.Entries += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stats, nil
}

func (r *RedisCache) getClient() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || r.client == nil {
		return nil, errors.NewStorageError("NOT_CONNECTED", "Redis not connected")
	}
	return r.client, nil
}

func (r *RedisCache) generateKey(key string) string {
	return r.config.KeyPrefix + key
}

func (r *RedisCache) incrementErrorCount() {
	r.metrics.mu.Lock()
	r.metrics.errorCount++
	r.metrics.mu.Unlock()
}

func (r *RedisCache) incrementHitCount() {
	r.metrics.mu.Lock()
	r.metrics.hitCount++
	r.metrics.mu.Unlock()
}

func (r *RedisCache) incrementMissCount() {
	r.metrics.mu.Lock()
	r.metrics.missCount++
	r.metrics.mu.Unlock()
}
