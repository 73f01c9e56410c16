package baseline

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/forecasting"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Method produces horizon predictions from a history
type Method func(history []float64, horizon int, config *Config) []float64

var methods = map[string]Method{
	constants.BaselineNaive:         naive,
	constants.BaselineSeasonalNaive: seasonalNaive,
	constants.BaselineMovingAverage: movingAverage,
}

// Config contains baseline forecaster settings
type Config struct {
	Method         string `json:"method"`
	SeasonalPeriod int    `json:"seasonal_period"`
	Window         int    `json:"window"`
}

// Forecaster implements the naive family of forecasts
type Forecaster struct {
	config *Config
	method Method
	logger *logrus.Logger
}

// NewForecaster creates a baseline forecaster; an unknown method is a configuration error
func NewForecaster(config *Config, logger *logrus.Logger) (*Forecaster, error) {
	if config == nil {
		config = getDefaultConfig()
	}

	if config.SeasonalPeriod <= 0 {
		config.SeasonalPeriod = constants.DefaultSeasonalPeriod
	}

	if config.Window <= 0 {
		config.Window = constants.DefaultMovingAverageWindow
	}

	method, ok := methods[config.Method]
	if !ok {
		return nil, errors.NewConfigurationError(errors.CodeUnknownMethod, "unknown baseline method").
			WithContext("method", config.Method).
			WithContext("available", Methods())
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &Forecaster{
		config: config,
		method: method,
		logger: logger,
	}, nil
}

// Methods lists the supported method names
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the configured method
func (f *Forecaster) Name() string {
	return f.config.Method
}

// Forecast returns exactly horizon predictions. Baselines cannot degrade.
func (f *Forecaster) Forecast(history []float64, horizon int) forecasting.Outcome {
	if horizon <= 0 {
		return forecasting.Success([]float64{})
	}

	predictions := f.method(history, horizon, f.config)

	f.logger.WithFields(logrus.Fields{
		"method":  f.config.Method,
		"history": len(history),
		"horizon": horizon,
	}).Debug("Baseline forecast generated")

	return forecasting.Success(predictions)
}

func naive(history []float64, horizon int, _ *Config) []float64 {
	return forecasting.Naive(history, horizon)
}

// seasonalNaive repeats the last season: step i takes the value
// period - (i mod period) positions from the end, or the last value when the
// history is shorter than that
func seasonalNaive(history []float64, horizon int, config *Config) []float64 {
	n := len(history)
	if n == 0 {
		return forecasting.Naive(history, horizon)
	}

	period := config.SeasonalPeriod
	out := make([]float64, horizon)
	for i := range out {
		lookback := period - (i % period)
		if lookback <= n {
			out[i] = history[n-lookback]
		} else {
			out[i] = history[n-1]
		}
	}
	return out
}

func movingAverage(history []float64, horizon int, config *Config) []float64 {
	n := len(history)
	if n == 0 {
		return forecasting.Naive(history, horizon)
	}

	window := config.Window
	if window > n {
		window = n
	}

	sum := 0.0
	for _, v := range history[n-window:] {
		sum += v
	}
	mean := sum / float64(window)

	out := make([]float64, horizon)
	for i := range out {
		out[i] = mean
	}
	return out
}

func getDefaultConfig() *Config {
	return &Config{
		Method:         constants.BaselineSeasonalNaive,
		SeasonalPeriod: constants.DefaultSeasonalPeriod,
		Window:         constants.DefaultMovingAverageWindow,
	}
}
