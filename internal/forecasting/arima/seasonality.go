package arima

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/models"
)

// candidatePeriods lists the seasonal periods worth testing per granularity
var candidatePeriods = map[models.Granularity][]int{
	models.GranularityDaily:   {7, 14, 30},
	models.GranularityWeekly:  {4, 13, 52},
	models.GranularityMonthly: {3, 6, 12},
}

var defaultCandidatePeriods = []int{7, 12, 30}

// SeasonalityDetector finds a dominant seasonal period from the
// autocorrelation function and confirms it with a decomposition
type SeasonalityDetector struct {
	minObservations int
	maxLags         int
	acfThreshold    float64
	minStrength     float64
	logger          *logrus.Logger
}

// SeasonalityResult contains the results of seasonality analysis
type SeasonalityResult struct {
	Period           int     `json:"period"`
	HasSeasonality   bool    `json:"has_seasonality"`
	Autocorrelation  float64 `json:"autocorrelation"`
	SeasonalStrength float64 `json:"seasonal_strength"`
	Confirmed        bool    `json:"confirmed"`
}

// DecompositionResult contains additive decomposition components. Trend is
// NaN where the centered moving average is undefined.
type DecompositionResult struct {
	Trend    []float64 `json:"trend"`
	Seasonal []float64 `json:"seasonal"`
	Residual []float64 `json:"residual"`
}

// NewSeasonalityDetector creates a new seasonality detector
func NewSeasonalityDetector(logger *logrus.Logger) *SeasonalityDetector {
	if logger == nil {
		logger = logrus.New()
	}

	return &SeasonalityDetector{
		minObservations: constants.SeasonalityMinObs,
		maxLags:         constants.SeasonalityMaxLags,
		acfThreshold:    constants.SeasonalityACFThreshold,
		minStrength:     constants.SeasonalityMinStrength,
		logger:          logger,
	}
}

// CandidatePeriods returns the periods tested for a granularity
func CandidatePeriods(g models.Granularity) []int {
	if periods, ok := candidatePeriods[g]; ok {
		return periods
	}
	return defaultCandidatePeriods
}

// DetectSeasonality picks the candidate period with the strongest
// autocorrelation above the threshold, then rejects it when an additive
// decomposition shows a negligible seasonal component. A failing
// decomposition leaves the autocorrelation verdict in place.
func (sd *SeasonalityDetector) DetectSeasonality(data []float64, g models.Granularity) *SeasonalityResult {
	result := &SeasonalityResult{}
	n := len(data)
	if n < sd.minObservations {
		return result
	}

	nlags := n / 2
	if nlags > sd.maxLags {
		nlags = sd.maxLags
	}
	acf := Autocorrelation(data, nlags)

	best := sd.acfThreshold
	for _, period := range CandidatePeriods(g) {
		if period >= len(acf) {
			continue
		}
		if acf[period] > best {
			best = acf[period]
			result.Period = period
			result.Autocorrelation = acf[period]
		}
	}
	result.HasSeasonality = result.Period > 0

	if result.HasSeasonality && n >= 2*result.Period {
		strength, err := sd.seasonalStrength(data, result.Period)
		if err != nil {
			sd.logger.WithError(err).Debug("Seasonal decomposition failed, keeping autocorrelation result")
		} else {
			result.SeasonalStrength = strength
			result.Confirmed = strength >= sd.minStrength
			if !result.Confirmed {
				result.HasSeasonality = false
				result.Period = 0
			}
		}
	}

	sd.logger.WithFields(logrus.Fields{
		"period":          result.Period,
		"autocorrelation": result.Autocorrelation,
		"strength":        result.SeasonalStrength,
		"has_seasonality": result.HasSeasonality,
	}).Debug("Seasonality detection")

	return result
}

func (sd *SeasonalityDetector) seasonalStrength(data []float64, period int) (float64, error) {
	decomposition, err := Decompose(data, period)
	if err != nil {
		return 0, err
	}

	total := stat.StdDev(data, nil)
	if total == 0 || math.IsNaN(total) {
		return 0, fmt.Errorf("series has zero variance")
	}
	return stat.StdDev(decomposition.Seasonal, nil) / total, nil
}

// Decompose splits data into trend, seasonal and residual components using a
// centered moving average trend
func Decompose(data []float64, period int) (*DecompositionResult, error) {
	n := len(data)
	if period < 2 {
		return nil, fmt.Errorf("period must be at least 2, got %d", period)
	}
	if n < 2*period {
		return nil, fmt.Errorf("need %d observations for period %d, have %d", 2*period, period, n)
	}

	trend := centeredMovingAverage(data, period)

	pattern := make([]float64, period)
	counts := make([]int, period)
	for i, v := range data {
		if math.IsNaN(trend[i]) {
			continue
		}
		pattern[i%period] += v - trend[i]
		counts[i%period]++
	}
	for i := range pattern {
		if counts[i] == 0 {
			return nil, fmt.Errorf("seasonal position %d has no detrended observations", i)
		}
		pattern[i] /= float64(counts[i])
	}

	// center so the seasonal effects sum to zero over a cycle
	mean := stat.Mean(pattern, nil)
	for i := range pattern {
		pattern[i] -= mean
	}

	seasonal := make([]float64, n)
	residual := make([]float64, n)
	for i := range data {
		seasonal[i] = pattern[i%period]
		residual[i] = data[i] - trend[i] - seasonal[i]
	}

	return &DecompositionResult{
		Trend:    trend,
		Seasonal: seasonal,
		Residual: residual,
	}, nil
}

// centeredMovingAverage uses a 2xperiod filter for even periods so the window
// stays centered
func centeredMovingAverage(data []float64, period int) []float64 {
	n := len(data)
	trend := make([]float64, n)
	for i := range trend {
		trend[i] = math.NaN()
	}

	half := period / 2
	for i := half; i < n-half; i++ {
		sum := 0.0
		if period%2 == 1 {
			for j := i - half; j <= i+half; j++ {
				sum += data[j]
			}
			trend[i] = sum / float64(period)
			continue
		}
		sum += 0.5 * data[i-half]
		sum += 0.5 * data[i+half]
		for j := i - half + 1; j < i+half; j++ {
			sum += data[j]
		}
		trend[i] = sum / float64(period)
	}
	return trend
}

// Autocorrelation returns the sample autocorrelation for lags 0..nlags
func Autocorrelation(data []float64, nlags int) []float64 {
	n := len(data)
	if nlags >= n {
		nlags = n - 1
	}
	if nlags < 0 {
		return nil
	}

	acf := make([]float64, nlags+1)
	mean := stat.Mean(data, nil)

	var c0 float64
	for i := 0; i < n; i++ {
		c0 += (data[i] - mean) * (data[i] - mean)
	}
	c0 /= float64(n)

	acf[0] = 1.0
	if c0 == 0 {
		return acf
	}

	for k := 1; k <= nlags; k++ {
		var ck float64
		for i := k; i < n; i++ {
			ck += (data[i] - mean) * (data[i-k] - mean)
		}
		ck /= float64(n)
		acf[k] = ck / c0
	}
	return acf
}
