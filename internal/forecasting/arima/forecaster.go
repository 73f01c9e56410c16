package arima

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/forecasting"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/models"
)

// SafetyPolicy bounds statistical forecasts. Predictions above
// max(historical max * DivergenceMultiple, DivergenceFloor) are treated as a
// diverged model; otherwise they are capped at historical max * SoftCapMultiple.
type SafetyPolicy struct {
	DivergenceMultiple float64 `json:"divergence_multiple"`
	DivergenceFloor    float64 `json:"divergence_floor"`
	SoftCapMultiple    float64 `json:"soft_cap_multiple"`
}

// DefaultSafetyPolicy returns the 100x / 1e9 / 10x policy
func DefaultSafetyPolicy() SafetyPolicy {
	return SafetyPolicy{
		DivergenceMultiple: constants.DefaultDivergenceMultiple,
		DivergenceFloor:    constants.DefaultDivergenceFloor,
		SoftCapMultiple:    constants.DefaultSoftCapMultiple,
	}
}

// Apply clamps predictions to [0, cap]. It returns a non-empty reason when the
// forecast must be discarded instead.
func (p SafetyPolicy) Apply(predictions, history []float64) ([]float64, string) {
	out := make([]float64, len(predictions))
	for i, v := range predictions {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, forecasting.ReasonNonFinite
		}
		out[i] = math.Max(v, 0)
	}

	hmax := historicalMax(history)
	threshold := math.Max(hmax*p.DivergenceMultiple, p.DivergenceFloor)
	for _, v := range out {
		if v > threshold {
			return nil, forecasting.ReasonDiverged
		}
	}

	limit := math.Max(hmax, 0) * p.SoftCapMultiple
	for i, v := range out {
		out[i] = math.Min(v, limit)
	}
	return out, ""
}

// Config contains statistical forecaster settings. With AutoOrder the orders
// are chosen per series and Order/SeasonalOrder are ignored.
type Config struct {
	Order         Order         `json:"order"`
	SeasonalOrder SeasonalOrder `json:"seasonal_order"`
	AutoOrder     bool          `json:"auto_order"`
	Safety        SafetyPolicy  `json:"safety"`
}

// Selection records how the model orders were chosen
type Selection struct {
	Order         Order              `json:"order"`
	SeasonalOrder SeasonalOrder      `json:"seasonal_order"`
	Stationarity  *ADFResult         `json:"stationarity,omitempty"`
	Seasonality   *SeasonalityResult `json:"seasonality,omitempty"`
}

// Forecaster fits a SARIMA model per request and guards its output
type Forecaster struct {
	config   *Config
	detector *SeasonalityDetector
	logger   *logrus.Logger
}

// NewForecaster creates a new statistical forecaster
func NewForecaster(config *Config, logger *logrus.Logger) *Forecaster {
	if config == nil {
		config = getDefaultConfig()
	}

	if config.Safety.SoftCapMultiple <= 0 {
		config.Safety = DefaultSafetyPolicy()
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &Forecaster{
		config:   config,
		detector: NewSeasonalityDetector(logger),
		logger:   logger,
	}
}

// SelectOrder picks d from an ADF test (p >= 0.05 means difference once),
// fixes p = q = 1 and adds a (1,1,1,s) seasonal part when a seasonal period is
// confirmed and at least two cycles are observed
func (f *Forecaster) SelectOrder(data []float64, g models.Granularity) (*Selection, error) {
	adf, err := ADFTest(data)
	if err != nil {
		return nil, fmt.Errorf("stationarity test failed: %w", err)
	}

	d := 0
	if adf.PValue >= constants.StationarityPValue {
		d = 1
	}

	selection := &Selection{
		Order:        Order{P: 1, D: d, Q: 1},
		Stationarity: adf,
	}

	seasonality := f.detector.DetectSeasonality(data, g)
	selection.Seasonality = seasonality
	if seasonality.HasSeasonality && len(data) >= 2*seasonality.Period {
		selection.SeasonalOrder = SeasonalOrder{P: 1, D: 1, Q: 1, Period: seasonality.Period}
	}

	return selection, nil
}

// Forecast fits and predicts horizon steps. It never fails: any fitting
// problem, divergence or panic yields the non-negative naive forecast tagged
// as degraded.
func (f *Forecaster) Forecast(data []float64, horizon int, g models.Granularity) forecasting.Outcome {
	outcome := forecasting.Guard(f.logger, constants.StrategyStatistical, data, horizon, func() forecasting.Outcome {
		return f.forecast(data, horizon, g)
	})
	if outcome.Degraded {
		outcome.Predictions = forecasting.NonNegative(outcome.Predictions)
	}
	return outcome
}

func (f *Forecaster) forecast(data []float64, horizon int, g models.Granularity) forecasting.Outcome {
	if len(data) == 0 {
		return forecasting.Degrade(data, horizon, forecasting.ReasonFitFailed, "empty series")
	}

	order, seasonal := f.config.Order, f.config.SeasonalOrder
	if f.config.AutoOrder {
		selection, err := f.SelectOrder(data, g)
		if err != nil {
			return f.degrade(data, horizon, forecasting.ReasonFitFailed, err)
		}
		order, seasonal = selection.Order, selection.SeasonalOrder
	}

	maxIter := maxIterations(seasonal.IsSeasonal(), len(data))
	model, err := Fit(data, order, seasonal, maxIter)
	if err != nil && seasonal.IsSeasonal() {
		f.logger.WithError(err).WithField("period", seasonal.Period).Warn("Seasonal fit failed, retrying without seasonality")
		seasonal = SeasonalOrder{}
		model, err = Fit(data, order, seasonal, maxIterations(false, 0))
	}
	if err != nil {
		return f.degrade(data, horizon, forecasting.ReasonFitFailed, err)
	}

	raw := model.Forecast(horizon)
	predictions, reason := f.config.Safety.Apply(raw, data)
	if reason != "" {
		return f.degrade(data, horizon, reason, fmt.Errorf("forecast peaked at %g", maxOf(raw)))
	}

	f.logger.WithFields(logrus.Fields{
		"order":      fmt.Sprintf("(%d,%d,%d)", order.P, order.D, order.Q),
		"seasonal":   fmt.Sprintf("(%d,%d,%d,%d)", seasonal.P, seasonal.D, seasonal.Q, seasonal.Period),
		"sigma2":     model.Sigma2,
		"iterations": model.Iterations,
		"horizon":    horizon,
	}).Info("Statistical forecast completed")

	return forecasting.Success(predictions)
}

func (f *Forecaster) degrade(data []float64, horizon int, reason string, err error) forecasting.Outcome {
	f.logger.WithFields(logrus.Fields{
		"reason": reason,
		"error":  err.Error(),
	}).Warn("Statistical forecast degraded to naive")
	return forecasting.Degrade(data, horizon, reason, err.Error())
}

// maxIterations scales the optimizer budget with seasonality and series length
func maxIterations(seasonal bool, n int) int {
	switch {
	case seasonal && n > 100:
		return 100
	case seasonal:
		return 75
	case n > 200:
		return 75
	default:
		return 50
	}
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		if v > m || math.IsNaN(v) {
			m = v
		}
	}
	return m
}

func getDefaultConfig() *Config {
	return &Config{
		Order:     Order{P: 1, D: 1, Q: 1},
		AutoOrder: true,
		Safety:    DefaultSafetyPolicy(),
	}
}
