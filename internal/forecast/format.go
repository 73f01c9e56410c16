package forecast

import (
	"time"

	"github.com/inferloop/tsforecast/internal/validation/metrics"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/models"
)

// DateLayout is the ISO-8601 calendar date used for prediction labels
const DateLayout = "2006-01-02"

// Evaluate scores predictions against the validation partition. Without one
// it falls back to the last min(horizon, |train|/5) training points, and to
// a zero bundle when that is empty too. The result is rounded for transport.
func Evaluate(train, validation *models.TimeSeries, predictions []float64, horizon int) models.MetricsBundle {
	if validation.Len() > 0 {
		return metrics.Round(metrics.Score(validation.Values(), predictions))
	}

	n := train.Len() / 5
	if horizon < n {
		n = horizon
	}
	if n > len(predictions) {
		n = len(predictions)
	}
	if n <= 0 {
		return metrics.Zero()
	}

	return metrics.Round(metrics.Score(train.Tail(n).Values(), predictions[:n]))
}

// FormatPredictions labels each value with the period following last and
// rounds it for transport
func FormatPredictions(last time.Time, values []float64, g models.Granularity) []models.Prediction {
	dates := g.Range(last, len(values))
	out := make([]models.Prediction, len(values))
	for i, v := range values {
		out[i] = models.Prediction{
			Date:  dates[i].Format(DateLayout),
			Value: metrics.RoundTo(v, constants.ValuePrecision),
		}
	}
	return out
}
