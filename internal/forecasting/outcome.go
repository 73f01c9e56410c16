// Package forecasting holds the result contract shared by every forecasting
// strategy and the naive fallback they degrade to.
package forecasting

import (
	"fmt"
	"math"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Degradation reasons reported when a strategy falls back to the naive forecast
const (
	ReasonPanic        = "panic"
	ReasonFitFailed    = "fit_failed"
	ReasonDiverged     = "diverged"
	ReasonTooFewRows   = "too_few_rows"
	ReasonNonFinite    = "non_finite"
	ReasonPredictError = "predict_failed"
)

// Outcome is what a strategy produces: predictions of the requested length,
// plus a degradation tag when they are the naive fallback rather than the
// model's own output
type Outcome struct {
	Predictions []float64 `json:"predictions"`
	Degraded    bool      `json:"degraded"`
	Reason      string    `json:"reason,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Success wraps model predictions
func Success(predictions []float64) Outcome {
	return Outcome{Predictions: predictions}
}

// Degrade returns the naive forecast tagged with why the model was abandoned
func Degrade(history []float64, horizon int, reason string, detail string) Outcome {
	return Outcome{
		Predictions: Naive(history, horizon),
		Degraded:    true,
		Reason:      reason,
		Detail:      detail,
	}
}

// Naive repeats the last observation horizon times, or zeros for an empty history
func Naive(history []float64, horizon int) []float64 {
	if horizon <= 0 {
		return []float64{}
	}
	last := 0.0
	if len(history) > 0 {
		last = history[len(history)-1]
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = last
	}
	return out
}

// NonNegative replaces negative and NaN values with zero in place
func NonNegative(values []float64) []float64 {
	for i, v := range values {
		if v < 0 || math.IsNaN(v) {
			values[i] = 0
		}
	}
	return values
}

// Guard runs fn and converts a panic into a degraded outcome. Numerical code
// panics on singular matrices and similar conditions.
func Guard(logger *logrus.Logger, strategy string, history []float64, horizon int, fn func() Outcome) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"strategy": strategy,
					"panic":    fmt.Sprint(r),
					"stack":    string(debug.Stack()),
				}).Warn("Forecaster panicked, using naive forecast")
			}
			outcome = Degrade(history, horizon, ReasonPanic, fmt.Sprint(r))
		}
	}()
	return fn()
}
