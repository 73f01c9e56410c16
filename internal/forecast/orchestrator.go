package forecast

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/forecasting"
	"github.com/inferloop/tsforecast/internal/forecasting/arima"
	"github.com/inferloop/tsforecast/internal/forecasting/baseline"
	"github.com/inferloop/tsforecast/internal/forecasting/boosted"
	"github.com/inferloop/tsforecast/internal/preprocess"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// DataSource loads the raw table behind a source identifier
type DataSource interface {
	Load(ctx context.Context, source string) (*models.RawTable, error)
}

// Recorder receives pipeline telemetry. A nil Recorder disables it.
type Recorder interface {
	RecordRequest(strategy, status string, duration time.Duration)
	RecordDegradation(strategy, reason string)
	RecordSelection(strategy string)
}

// StrategyFunc forecasts horizon steps past the end of train
type StrategyFunc func(train *models.TimeSeries, horizon int) forecasting.Outcome

// Config contains orchestrator settings
type Config struct {
	DateColumn     string             `json:"date_column"`
	ValueColumn    string             `json:"value_column"`
	SeasonalPeriod int                `json:"seasonal_period"`
	ValidationCap  int                `json:"validation_cap"`
	TrainRatio     float64            `json:"train_ratio"`
	MinRows        int                `json:"min_rows"`
	TiePolicy      string             `json:"tie_policy"`
	Candidates     []models.Strategy  `json:"candidates"`
	Safety         arima.SafetyPolicy `json:"safety"`
	Boosted        boosted.Config     `json:"boosted"`
}

// NewConfig derives orchestrator settings from the application config
func NewConfig(cfg *config.Config) *Config {
	return &Config{
		DateColumn:     cfg.Forecast.DateColumn,
		ValueColumn:    cfg.Forecast.ValueColumn,
		SeasonalPeriod: cfg.Forecast.SeasonalPeriod,
		ValidationCap:  cfg.Forecast.ValidationCap,
		TrainRatio:     cfg.Forecast.TrainRatio,
		MinRows:        cfg.Forecast.MinRows,
		TiePolicy:      cfg.Forecast.TiePolicy,
		Safety: arima.SafetyPolicy{
			DivergenceMultiple: cfg.Policy.DivergenceMultiple,
			DivergenceFloor:    cfg.Policy.DivergenceFloor,
			SoftCapMultiple:    cfg.Policy.SoftCapMultiple,
		},
		Boosted: boosted.Config{
			GBM: boosted.GBMConfig{
				Estimators:     cfg.Boosted.Estimators,
				MaxDepth:       cfg.Boosted.MaxDepth,
				LearningRate:   cfg.Boosted.LearningRate,
				Lambda:         cfg.Boosted.Lambda,
				MinChildWeight: 1,
				Subsample:      1,
				Seed:           cfg.Boosted.Seed,
			},
			MinRows: cfg.Boosted.MinRows,
			Lags:    constants.DefaultLags,
		},
	}
}

// Orchestrator runs the load, preprocess, select, fit, score and format
// pipeline for one request at a time. It holds no per-request state and is
// safe for concurrent use once strategies are registered.
type Orchestrator struct {
	config       *Config
	source       DataSource
	preprocessor *preprocess.Preprocessor
	strategies   map[models.Strategy]StrategyFunc
	recorder     Recorder
	logger       *logrus.Logger
}

// NewOrchestrator creates an orchestrator with the three built-in strategies
func NewOrchestrator(config *Config, source DataSource, recorder Recorder, logger *logrus.Logger) (*Orchestrator, error) {
	if source == nil {
		return nil, fmt.Errorf("data source is required")
	}

	if config == nil {
		config = getDefaultConfig()
	}

	if config.ValidationCap <= 0 {
		config.ValidationCap = constants.DefaultValidationCap
	}

	if config.MinRows <= 0 {
		config.MinRows = constants.DefaultMinRows
	}

	if config.SeasonalPeriod <= 0 {
		config.SeasonalPeriod = constants.DefaultSeasonalPeriod
	}

	if config.TiePolicy == "" {
		config.TiePolicy = constants.TieBreakPreferSimpler
	}

	if len(config.Candidates) == 0 {
		config.Candidates = models.ConcreteStrategies
	}

	if logger == nil {
		logger = logrus.New()
	}

	base, err := baseline.NewForecaster(&baseline.Config{
		Method:         constants.BaselineSeasonalNaive,
		SeasonalPeriod: config.SeasonalPeriod,
	}, logger)
	if err != nil {
		return nil, err
	}

	statistical := arima.NewForecaster(&arima.Config{
		Order:     arima.Order{P: 1, D: 1, Q: 1},
		AutoOrder: true,
		Safety:    config.Safety,
	}, logger)

	boostedCfg := config.Boosted
	trees := boosted.NewForecaster(&boostedCfg, logger)

	o := &Orchestrator{
		config: config,
		source: source,
		preprocessor: preprocess.NewPreprocessor(&preprocess.Config{
			DateColumn:  config.DateColumn,
			ValueColumn: config.ValueColumn,
			TrainRatio:  config.TrainRatio,
			MinRows:     config.MinRows,
		}, logger),
		strategies: make(map[models.Strategy]StrategyFunc),
		recorder:   recorder,
		logger:     logger,
	}

	o.RegisterStrategy(models.StrategyBaseline, func(train *models.TimeSeries, horizon int) forecasting.Outcome {
		return base.Forecast(train.Values(), horizon)
	})
	o.RegisterStrategy(models.StrategyStatistical, func(train *models.TimeSeries, horizon int) forecasting.Outcome {
		return statistical.Forecast(train.Values(), horizon, train.Granularity)
	})
	o.RegisterStrategy(models.StrategyBoosted, func(train *models.TimeSeries, horizon int) forecasting.Outcome {
		return trees.Forecast(train, horizon)
	})

	return o, nil
}

// RegisterStrategy installs or replaces the implementation behind a strategy id
func (o *Orchestrator) RegisterStrategy(strategy models.Strategy, fn StrategyFunc) {
	o.strategies[strategy] = fn
}

// Strategies lists the accepted strategy names, auto included
func (o *Orchestrator) Strategies() []string {
	names := make([]string, 0, len(o.strategies)+1)
	for s := range o.strategies {
		names = append(names, string(s))
	}
	names = append(names, string(models.StrategyAuto))
	sort.Strings(names)
	return names
}

// Forecast validates the request and runs the pipeline
func (o *Orchestrator) Forecast(ctx context.Context, req *models.ForecastRequest) (*models.ForecastResponse, error) {
	_, response, err := o.Execute(ctx, req)
	return response, err
}

// Execute runs the pipeline and also returns the execution record, which
// carries the stage path and the stage a failure happened in
func (o *Orchestrator) Execute(ctx context.Context, req *models.ForecastRequest) (*Execution, *models.ForecastResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	requested, _ := models.ParseStrategy(req.Strategy)
	granularity, _ := models.ParseGranularity(req.Granularity)

	exec := newExecution(uuid.New().String(), o.logger)
	logger := o.logger.WithFields(logrus.Fields{
		"request_id":  exec.ID,
		"strategy":    requested,
		"horizon":     req.Horizon,
		"granularity": granularity,
	})
	logger.Info("Starting forecast")

	response, err := o.run(ctx, exec, req.SourceURL, requested, req.Horizon, granularity)

	label := string(requested)
	if response != nil {
		label = string(response.Strategy)
	}

	if err != nil {
		logger.WithError(err).WithField("stage", exec.FailedAt).Error("Forecast failed")
		o.recordRequest(label, "error", exec.Duration)
		return exec, nil, err
	}

	logger.WithFields(logrus.Fields{
		"selected":    response.Strategy,
		"predictions": len(response.Predictions),
		"accuracy":    response.Metrics.Accuracy,
		"degraded":    response.Degraded,
		"duration":    exec.Duration,
	}).Info("Forecast completed")
	o.recordRequest(label, "success", exec.Duration)

	return exec, response, nil
}

func (o *Orchestrator) run(ctx context.Context, exec *Execution, source string, requested models.Strategy, horizon int, g models.Granularity) (*models.ForecastResponse, error) {
	table, err := o.source.Load(ctx, source)
	if err != nil {
		return nil, exec.fail(err)
	}
	if err := o.step(exec, StageLoaded); err != nil {
		return nil, err
	}

	if table.Len() < o.config.MinRows {
		return nil, exec.fail(errors.NewInsufficientDataError("dataset has too few rows").
			WithContext("rows", table.Len()).
			WithContext("min_rows", o.config.MinRows))
	}

	prepared, err := o.preprocessor.Preprocess(table, o.config.DateColumn, o.config.ValueColumn, g)
	if err != nil {
		return nil, exec.fail(err)
	}
	if err := o.step(exec, StagePreprocessed); err != nil {
		return nil, err
	}

	train, validation := prepared.Split.Train, prepared.Split.Validation

	chosen := requested
	var candidates []models.CandidateScore
	if requested == models.StrategyAuto {
		if err := o.step(exec, StageSelecting); err != nil {
			return nil, err
		}
		chosen, candidates = o.Select(train, validation)
		if o.recorder != nil {
			o.recorder.RecordSelection(string(chosen))
		}
	}

	fn, ok := o.strategies[chosen]
	if !ok {
		return nil, exec.fail(errors.NewConfigurationError(errors.CodeUnknownStrategy, "strategy is not registered").
			WithContext("strategy", string(chosen)))
	}

	outcome, err := call(fn, train, horizon)
	if err != nil {
		o.logger.WithError(err).WithField("strategy", chosen).Warn("Strategy failed, using naive forecast")
		outcome = forecasting.Degrade(train.Values(), horizon, forecasting.ReasonPanic, err.Error())
	}
	if outcome.Degraded && o.recorder != nil {
		o.recorder.RecordDegradation(string(chosen), outcome.Reason)
	}
	if err := o.step(exec, StageFitted); err != nil {
		return nil, err
	}

	bundle := Evaluate(train, validation, outcome.Predictions, horizon)
	if err := o.step(exec, StageScored); err != nil {
		return nil, err
	}

	last, _ := train.Last()
	predictions := FormatPredictions(last.Timestamp, outcome.Predictions, g)
	if err := o.step(exec, StageFormatted); err != nil {
		return nil, err
	}

	response := &models.ForecastResponse{
		RequestID:         exec.ID,
		Strategy:          chosen,
		RequestedStrategy: requested,
		Granularity:       g,
		Predictions:       predictions,
		Metrics:           bundle,
		Degraded:          outcome.Degraded,
		Degradation:       outcome.Reason,
		Candidates:        candidates,
		GeneratedAt:       time.Now().UTC(),
	}

	if err := o.step(exec, StageDone); err != nil {
		return nil, err
	}
	return response, nil
}

func (o *Orchestrator) step(exec *Execution, next Stage) error {
	if err := exec.advance(next); err != nil {
		return exec.fail(errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "pipeline stage error"))
	}
	return nil
}

func (o *Orchestrator) recordRequest(strategy, status string, duration time.Duration) {
	if o.recorder != nil {
		o.recorder.RecordRequest(strategy, status, duration)
	}
}

// call runs a strategy, turning a panic into an error
func call(fn StrategyFunc, train *models.TimeSeries, horizon int) (outcome forecasting.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return fn(train, horizon), nil
}

func getDefaultConfig() *Config {
	return &Config{
		DateColumn:     constants.DefaultDateColumn,
		ValueColumn:    constants.DefaultValueColumn,
		SeasonalPeriod: constants.DefaultSeasonalPeriod,
		ValidationCap:  constants.DefaultValidationCap,
		TrainRatio:     constants.DefaultTrainRatio,
		MinRows:        constants.DefaultMinRows,
		TiePolicy:      constants.TieBreakPreferSimpler,
		Candidates:     models.ConcreteStrategies,
		Safety:         arima.DefaultSafetyPolicy(),
	}
}
