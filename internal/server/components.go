package server

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/forecast"
	"github.com/inferloop/tsforecast/internal/loader"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/storage/cache"
	rediscache "github.com/inferloop/tsforecast/internal/storage/implementations/redis"
	s3source "github.com/inferloop/tsforecast/internal/storage/implementations/s3"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

const (
	redisDialTimeout = 5 * time.Second
	redisIOTimeout   = 3 * time.Second
	redisPoolSize    = 10
	redisMaxRetries  = 3
	s3MaxRetries     = 3
)

// NewCache builds the raw table cache selected by cfg.Cache.Backend. The
// "none" backend yields a nil cache, which the loader treats as disabled.
func NewCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (interfaces.Cache, error) {
	switch cfg.Cache.Backend {
	case "memory":
		c, err := cache.NewMemoryCache(&cache.MemoryConfig{
			Capacity: cfg.Cache.Capacity,
			TTL:      cfg.Cache.TTL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil

	case "redis":
		c, err := rediscache.NewRedisCache(&rediscache.RedisConfig{
			Addr:         cfg.Cache.RedisAddr,
			Password:     cfg.Cache.RedisPassword,
			DB:           cfg.Cache.RedisDB,
			DialTimeout:  redisDialTimeout,
			ReadTimeout:  redisIOTimeout,
			WriteTimeout: redisIOTimeout,
			PoolSize:     redisPoolSize,
			MaxRetries:   redisMaxRetries,
			TTL:          cfg.Cache.TTL,
			KeyPrefix:    cfg.Cache.RedisPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil

	case "none":
		return nil, nil
	}

	return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
}

// NewObjectSource returns the S3 source when object storage is enabled and nil otherwise
func NewObjectSource(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (interfaces.ObjectFetcher, error) {
	if !cfg.S3.Enabled {
		return nil, nil
	}

	source, err := s3source.NewS3Source(&s3source.S3Config{
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretKey,
		Endpoint:        cfg.S3.Endpoint,
		ForcePathStyle:  cfg.S3.ForcePathStyle,
		MaxRetries:      s3MaxRetries,
		MaxBytes:        cfg.Loader.MaxBytes,
		PresignExpiry:   cfg.S3.PresignExpiry,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := source.Connect(ctx); err != nil {
		return nil, err
	}
	return source, nil
}

// NewPipeline wires a loader over c and objects into an orchestrator. pm
// may be nil, in which case nothing is recorded.
func NewPipeline(cfg *config.Config, c interfaces.Cache, objects interfaces.ObjectFetcher, pm *metrics.PrometheusMetrics, logger *logrus.Logger) (*forecast.Orchestrator, error) {
	l := loader.NewLoader(&loader.Config{
		Timeout:   cfg.Loader.Timeout,
		MaxBytes:  cfg.Loader.MaxBytes,
		UserAgent: cfg.Loader.UserAgent,
	}, c, objects, logger)

	var recorder forecast.Recorder
	if pm != nil {
		l.SetObserver(pm)
		recorder = pm
	}

	return forecast.NewOrchestrator(forecast.NewConfig(cfg), l, recorder, logger)
}
