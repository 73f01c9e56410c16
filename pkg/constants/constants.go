package constants

import "time"

// Application constants
const (
	AppName        = "tsforecast"
	AppDescription = "Univariate sales forecasting service"
	AppVersion     = "0.1.0"

	DefaultPort            = 8080
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsPath     = "/metrics"
)

// Content types
const (
	MimeTypeJSON = "application/json"
	MimeTypeCSV  = "text/csv"
)

// Granularities
const (
	GranularityDaily   = "daily"
	GranularityWeekly  = "weekly"
	GranularityMonthly = "monthly"
)

// Strategies
const (
	StrategyBaseline    = "baseline"
	StrategyStatistical = "statistical"
	StrategyBoosted     = "boosted"
	StrategyAuto        = "auto"

	// Aliases accepted from older clients
	StrategyAliasARIMA   = "arima"
	StrategyAliasXGBoost = "xgboost"
)

// Baseline methods
const (
	BaselineNaive         = "naive"
	BaselineSeasonalNaive = "seasonal_naive"
	BaselineMovingAverage = "moving_average"

	DefaultSeasonalPeriod      = 7
	DefaultMovingAverageWindow = 7
)

// Request limits
const (
	MinHorizon = 1
	MaxHorizon = 365
)

// Pipeline defaults
const (
	DefaultDateColumn      = "date"
	DefaultValueColumn     = "sales"
	DefaultTrainRatio      = 0.8
	DefaultMinRows         = 10
	DefaultValidationCap   = 30
	DefaultLoaderTimeout   = 60 * time.Second
	DefaultLoaderMaxBytes  = 64 << 20
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheCapacity   = 128
	DefaultCacheSweep      = time.Minute
	DefaultPresignExpiry   = 15 * time.Minute
	RawCacheMarker         = "raw"
	TieBreakPreferSimpler  = "prefer_simpler"
	TieBreakFirstEvaluated = "first"
)

// Statistical model defaults
const (
	StationarityPValue        = 0.05
	SeasonalityMinObs         = 20
	SeasonalityMaxLags        = 50
	SeasonalityACFThreshold   = 0.3
	SeasonalityMinStrength    = 0.1
	DefaultDivergenceMultiple = 100.0
	DefaultDivergenceFloor    = 1e9
	DefaultSoftCapMultiple    = 10.0
)

// Boosted-tree defaults
const (
	DefaultEstimators   = 100
	DefaultMaxDepth     = 5
	DefaultLearningRate = 0.1
	DefaultBoostSeed    = 42
	DefaultLambda       = 1.0
	DefaultBoostMinRows = 10
	DefaultLags         = 7
)

// Rounding applied to transport values
const (
	ValuePrecision     = 2
	MetricPrecision    = 2
	FitMetricPrecision = 4
)
