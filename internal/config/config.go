package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/inferloop/tsforecast/pkg/constants"
)

// EnvPrefix is prepended to every environment override, e.g. FORECAST_SERVER_PORT
const EnvPrefix = "FORECAST"

// Config contains the configuration for the forecasting service
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Log       LogConfig       `json:"log" mapstructure:"log"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	Loader    LoaderConfig    `json:"loader" mapstructure:"loader"`
	S3        S3Config        `json:"s3" mapstructure:"s3"`
	Forecast  ForecastConfig  `json:"forecast" mapstructure:"forecast"`
	Policy    PolicyConfig    `json:"policy" mapstructure:"policy"`
	Boosted   BoostedConfig   `json:"boosted" mapstructure:"boosted"`
	RateLimit RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MetricsPath     string        `json:"metrics_path" mapstructure:"metrics_path"`
	AllowedOrigins  []string      `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// CacheConfig selects and tunes the raw table cache
type CacheConfig struct {
	Backend       string        `json:"backend" mapstructure:"backend"`
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	Capacity      int           `json:"capacity" mapstructure:"capacity"`
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
	RedisAddr     string        `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `json:"redis_db" mapstructure:"redis_db"`
	RedisPrefix   string        `json:"redis_prefix" mapstructure:"redis_prefix"`
}

// LoaderConfig contains data source fetch settings
type LoaderConfig struct {
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxBytes  int64         `json:"max_bytes" mapstructure:"max_bytes"`
	UserAgent string        `json:"user_agent" mapstructure:"user_agent"`
}

// S3Config contains object storage settings
type S3Config struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	Region         string        `json:"region" mapstructure:"region"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID    string        `json:"access_key_id" mapstructure:"access_key_id"`
	SecretKey      string        `json:"secret_key" mapstructure:"secret_key"`
	ForcePathStyle bool          `json:"force_path_style" mapstructure:"force_path_style"`
	PresignExpiry  time.Duration `json:"presign_expiry" mapstructure:"presign_expiry"`
}

// ForecastConfig contains orchestration settings
type ForecastConfig struct {
	DateColumn     string  `json:"date_column" mapstructure:"date_column"`
	ValueColumn    string  `json:"value_column" mapstructure:"value_column"`
	SeasonalPeriod int     `json:"seasonal_period" mapstructure:"seasonal_period"`
	ValidationCap  int     `json:"validation_cap" mapstructure:"validation_cap"`
	TrainRatio     float64 `json:"train_ratio" mapstructure:"train_ratio"`
	MinRows        int     `json:"min_rows" mapstructure:"min_rows"`
	TiePolicy      string  `json:"tie_policy" mapstructure:"tie_policy"`
}

// PolicyConfig contains the statistical forecaster's output safety rails
type PolicyConfig struct {
	DivergenceMultiple float64 `json:"divergence_multiple" mapstructure:"divergence_multiple"`
	DivergenceFloor    float64 `json:"divergence_floor" mapstructure:"divergence_floor"`
	SoftCapMultiple    float64 `json:"soft_cap_multiple" mapstructure:"soft_cap_multiple"`
}

// BoostedConfig contains gradient boosting hyperparameters
type BoostedConfig struct {
	Estimators   int     `json:"estimators" mapstructure:"estimators"`
	MaxDepth     int     `json:"max_depth" mapstructure:"max_depth"`
	LearningRate float64 `json:"learning_rate" mapstructure:"learning_rate"`
	Seed         int64   `json:"seed" mapstructure:"seed"`
	Lambda       float64 `json:"lambda" mapstructure:"lambda"`
	MinRows      int     `json:"min_rows" mapstructure:"min_rows"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `json:"burst" mapstructure:"burst"`
}

// SetDefaults registers default values on a viper instance
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", constants.DefaultHost)
	v.SetDefault("server.port", constants.DefaultPort)
	v.SetDefault("server.read_timeout", constants.DefaultReadTimeout)
	v.SetDefault("server.write_timeout", constants.DefaultWriteTimeout)
	v.SetDefault("server.idle_timeout", constants.DefaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", constants.DefaultShutdownTimeout)
	v.SetDefault("server.metrics_path", constants.DefaultMetricsPath)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", constants.DefaultLogLevel)
	v.SetDefault("log.format", constants.DefaultLogFormat)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", constants.DefaultCacheTTL)
	v.SetDefault("cache.capacity", constants.DefaultCacheCapacity)
	v.SetDefault("cache.sweep_interval", constants.DefaultCacheSweep)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "tsforecast:raw:")

	v.SetDefault("loader.timeout", constants.DefaultLoaderTimeout)
	v.SetDefault("loader.max_bytes", constants.DefaultLoaderMaxBytes)
	v.SetDefault("loader.user_agent", constants.AppName+"/"+constants.AppVersion)

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.presign_expiry", constants.DefaultPresignExpiry)

	v.SetDefault("forecast.date_column", constants.DefaultDateColumn)
	v.SetDefault("forecast.value_column", constants.DefaultValueColumn)
	v.SetDefault("forecast.seasonal_period", constants.DefaultSeasonalPeriod)
	v.SetDefault("forecast.validation_cap", constants.DefaultValidationCap)
	v.SetDefault("forecast.train_ratio", constants.DefaultTrainRatio)
	v.SetDefault("forecast.min_rows", constants.DefaultMinRows)
	v.SetDefault("forecast.tie_policy", constants.TieBreakPreferSimpler)

	v.SetDefault("policy.divergence_multiple", constants.DefaultDivergenceMultiple)
	v.SetDefault("policy.divergence_floor", constants.DefaultDivergenceFloor)
	v.SetDefault("policy.soft_cap_multiple", constants.DefaultSoftCapMultiple)

	v.SetDefault("boosted.estimators", constants.DefaultEstimators)
	v.SetDefault("boosted.max_depth", constants.DefaultMaxDepth)
	v.SetDefault("boosted.learning_rate", constants.DefaultLearningRate)
	v.SetDefault("boosted.seed", constants.DefaultBoostSeed)
	v.SetDefault("boosted.lambda", constants.DefaultLambda)
	v.SetDefault("boosted.min_rows", constants.DefaultBoostMinRows)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
}

// Load reads configuration from an optional file plus FORECAST_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates a configuration from an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewDefaultConfig returns the configuration with every default applied
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	if c.Loader.Timeout <= 0 {
		return fmt.Errorf("loader timeout must be positive")
	}

	if c.Forecast.TrainRatio <= 0 || c.Forecast.TrainRatio >= 1 {
		return fmt.Errorf("train ratio must be in (0, 1): %v", c.Forecast.TrainRatio)
	}

	if c.Forecast.MinRows < 1 {
		return fmt.Errorf("min rows must be positive")
	}

	switch c.Forecast.TiePolicy {
	case constants.TieBreakPreferSimpler, constants.TieBreakFirstEvaluated:
	default:
		return fmt.Errorf("unknown tie policy: %s", c.Forecast.TiePolicy)
	}

	if c.Policy.SoftCapMultiple <= 0 || c.Policy.DivergenceMultiple <= 0 {
		return fmt.Errorf("policy multiples must be positive")
	}

	if c.Boosted.Estimators <= 0 || c.Boosted.MaxDepth <= 0 {
		return fmt.Errorf("boosted estimators and max depth must be positive")
	}

	return nil
}

// GetAddress returns the server listen address
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
