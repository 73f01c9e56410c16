package metrics

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Score computes the accuracy bundle of predicted against actual. Both are
// truncated to their common length; an empty overlap scores all zeros.
func Score(actual, predicted []float64) models.MetricsBundle {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	if n == 0 {
		return Zero()
	}
	actual, predicted = actual[:n], predicted[:n]

	var absSum, sqSum float64
	for i := range actual {
		diff := actual[i] - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
	}
	mae := absSum / float64(n)
	mse := sqSum / float64(n)

	return models.MetricsBundle{
		MAE:      mae,
		RMSE:     math.Sqrt(mse),
		MAPE:     meanAbsolutePercentageError(actual, predicted),
		SMAPE:    symmetricMAPE(actual, predicted),
		R2:       rSquared(actual, sqSum),
		RMSSE:    rootMeanSquaredScaledError(actual, mse),
		Accuracy: accuracy(actual, mae),
	}
}

// Zero is the bundle reported when nothing could be scored
func Zero() models.MetricsBundle {
	return models.MetricsBundle{}
}

// Worst is the score given to a strategy that failed during selection
func Worst() models.MetricsBundle {
	return models.MetricsBundle{Accuracy: 0, R2: -1}
}

// Compare ranks two bundles by accuracy, then R². It returns 1 when a is
// better, -1 when b is better and 0 on a tie.
func Compare(a, b models.MetricsBundle) int {
	switch {
	case a.Accuracy > b.Accuracy:
		return 1
	case a.Accuracy < b.Accuracy:
		return -1
	case a.R2 > b.R2:
		return 1
	case a.R2 < b.R2:
		return -1
	}
	return 0
}

// Round applies transport precision: two decimals for error and accuracy
// figures, four for R² and RMSSE
func Round(b models.MetricsBundle) models.MetricsBundle {
	return models.MetricsBundle{
		MAE:      RoundTo(b.MAE, constants.MetricPrecision),
		RMSE:     RoundTo(b.RMSE, constants.MetricPrecision),
		MAPE:     RoundTo(b.MAPE, constants.MetricPrecision),
		SMAPE:    RoundTo(b.SMAPE, constants.MetricPrecision),
		R2:       RoundTo(b.R2, constants.FitMetricPrecision),
		RMSSE:    RoundTo(b.RMSSE, constants.FitMetricPrecision),
		Accuracy: RoundTo(b.Accuracy, constants.MetricPrecision),
	}
}

// RoundTo rounds half away from zero to the given number of decimal places.
// Non-finite values are returned unchanged.
func RoundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// meanAbsolutePercentageError skips entries whose actual is zero
func meanAbsolutePercentageError(actual, predicted []float64) float64 {
	sum, count := 0.0, 0
	for i, a := range actual {
		if a == 0 {
			continue
		}
		sum += math.Abs((a - predicted[i]) / a)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * 100
}

// symmetricMAPE uses (|a|+|p|)/2 as denominator, skipping zero denominators
func symmetricMAPE(actual, predicted []float64) float64 {
	sum, count := 0.0, 0
	for i, a := range actual {
		denominator := (math.Abs(a) + math.Abs(predicted[i])) / 2
		if denominator == 0 {
			continue
		}
		sum += math.Abs(a-predicted[i]) / denominator
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * 100
}

func rSquared(actual []float64, ssRes float64) float64 {
	mean := stat.Mean(actual, nil)
	ssTot := 0.0
	for _, a := range actual {
		ssTot += (a - mean) * (a - mean)
	}
	if ssTot <= 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// rootMeanSquaredScaledError scales by the one-step naive forecast error of
// the actual series itself
func rootMeanSquaredScaledError(actual []float64, mse float64) float64 {
	if len(actual) < 2 {
		return 0
	}
	naive := 0.0
	for i := 1; i < len(actual); i++ {
		diff := actual[i] - actual[i-1]
		naive += diff * diff
	}
	naive /= float64(len(actual) - 1)
	if naive <= 0 {
		return 0
	}
	return math.Sqrt(mse / naive)
}

// accuracy is 100 * (1 - WAPE) floored at zero; undefined for a non-positive mean
func accuracy(actual []float64, mae float64) float64 {
	mean := stat.Mean(actual, nil)
	if mean <= 0 {
		return 0
	}
	return math.Max(0, (1-mae/mean)*100)
}
