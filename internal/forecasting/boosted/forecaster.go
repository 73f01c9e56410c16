package boosted

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/forecasting"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Config contains boosted-tree forecaster settings
type Config struct {
	GBM     GBMConfig `json:"gbm"`
	MinRows int       `json:"min_rows"`
	Lags    int       `json:"lags"`
}

// Forecaster fits gradient boosted trees on engineered features and predicts
// recursively, one step at a time
type Forecaster struct {
	config *Config
	logger *logrus.Logger
}

// Model is a fitted forecaster state for one series
type Model struct {
	Spec     *FeatureSpec    `json:"spec"`
	Scaler   *StandardScaler `json:"scaler"`
	Ensemble *Ensemble       `json:"ensemble"`
	Rows     int             `json:"rows"`
}

// NewForecaster creates a new boosted-tree forecaster
func NewForecaster(config *Config, logger *logrus.Logger) *Forecaster {
	if config == nil {
		config = getDefaultConfig()
	}

	if config.GBM.Estimators <= 0 {
		config.GBM = *defaultGBMConfig()
	}

	if config.MinRows <= 0 {
		config.MinRows = constants.DefaultBoostMinRows
	}

	if config.Lags <= 0 {
		config.Lags = constants.DefaultLags
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &Forecaster{
		config: config,
		logger: logger,
	}
}

// Fit engineers features for the series and trains the ensemble
func (f *Forecaster) Fit(series *models.TimeSeries) (*Model, error) {
	values := series.Values()
	spec := NewFeatureSpec(len(values), series.Granularity, series.HasTimestamps(), f.config.Lags, f.config.MinRows)
	if spec.Width() == 0 {
		return nil, errTooFewRows
	}

	x, y := spec.Matrix(values, series.Timestamps())
	if len(x) < f.config.MinRows {
		return nil, errTooFewRows
	}

	scaler, err := FitScaler(x)
	if err != nil {
		return nil, err
	}

	ensemble, err := TrainGBM(scaler.TransformAll(x), y, &f.config.GBM)
	if err != nil {
		return nil, err
	}

	return &Model{Spec: spec, Scaler: scaler, Ensemble: ensemble, Rows: len(x)}, nil
}

// Predict extends the series horizon steps. Each prediction is clamped to be
// non-negative and appended before the features of the next step are built.
func (m *Model) Predict(series *models.TimeSeries, horizon int) ([]float64, error) {
	working := series.Values()
	stamp := time.Time{}
	if last, ok := series.Last(); ok {
		stamp = last.Timestamp
	}

	predictions := make([]float64, 0, horizon)
	for step := 0; step < horizon; step++ {
		if m.Spec.Calendar {
			stamp = series.Granularity.Next(stamp)
		}

		row, ok := m.Spec.Row(working, len(working), stamp)
		if !ok {
			return nil, fmt.Errorf("features undefined at step %d", step)
		}

		value := m.Ensemble.Predict(m.Scaler.Transform(row))
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, errNonFinite
		}
		value = math.Max(value, 0)

		predictions = append(predictions, value)
		working = append(working, value)
	}

	return predictions, nil
}

// Forecast fits and predicts horizon steps. It never fails: short series,
// training errors and panics yield the non-negative naive forecast tagged as
// degraded.
func (f *Forecaster) Forecast(series *models.TimeSeries, horizon int) forecasting.Outcome {
	history := series.Values()
	outcome := forecasting.Guard(f.logger, constants.StrategyBoosted, history, horizon, func() forecasting.Outcome {
		return f.forecast(series, history, horizon)
	})
	if outcome.Degraded {
		outcome.Predictions = forecasting.NonNegative(outcome.Predictions)
	}
	return outcome
}

func (f *Forecaster) forecast(series *models.TimeSeries, history []float64, horizon int) forecasting.Outcome {
	model, err := f.Fit(series)
	if err == errTooFewRows {
		return f.degrade(history, horizon, forecasting.ReasonTooFewRows, err)
	}
	if err != nil {
		return f.degrade(history, horizon, forecasting.ReasonFitFailed, err)
	}

	predictions, err := model.Predict(series, horizon)
	if err == errNonFinite {
		return f.degrade(history, horizon, forecasting.ReasonNonFinite, err)
	}
	if err != nil {
		return f.degrade(history, horizon, forecasting.ReasonPredictError, err)
	}

	f.logger.WithFields(logrus.Fields{
		"features":    model.Spec.Width(),
		"rows":        model.Rows,
		"trees":       len(model.Ensemble.Trees),
		"calendar":    model.Spec.Calendar,
		"granularity": series.Granularity,
		"horizon":     horizon,
	}).Info("Boosted forecast completed")

	return forecasting.Success(predictions)
}

func (f *Forecaster) degrade(history []float64, horizon int, reason string, err error) forecasting.Outcome {
	f.logger.WithFields(logrus.Fields{
		"reason": reason,
		"error":  err.Error(),
	}).Warn("Boosted forecast degraded to naive")
	return forecasting.Degrade(history, horizon, reason, err.Error())
}

var (
	errTooFewRows = fmt.Errorf("insufficient complete rows for boosted model")
	errNonFinite  = fmt.Errorf("model produced a non-finite prediction")
)

func getDefaultConfig() *Config {
	return &Config{
		GBM:     *defaultGBMConfig(),
		MinRows: constants.DefaultBoostMinRows,
		Lags:    constants.DefaultLags,
	}
}
