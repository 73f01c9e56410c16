package boosted

import (
	"fmt"
	"math"
	"time"

	"github.com/inferloop/tsforecast/pkg/models"
)

// Every engineered feature of row t reads only values[:t], so the same code
// builds the training matrix and the rows of the recursive forecast.

var (
	dailyLags   = []int{1, 7, 14, 30}
	weeklyLags  = []int{1, 4, 12, 52}
	monthlyLags = []int{1, 3, 6, 12}

	dailyWindows   = []int{3, 7, 14, 30}
	weeklyWindows  = []int{4, 12, 26}
	monthlyWindows = []int{3, 6, 12}
	defaultWindows = []int{3, 7, 14}

	emaSpans = []int{7, 30}
)

const rocPeriod = 7

// FeatureSpec fixes the feature columns for one fitted model. It is derived
// from the training series and reused unchanged for every forecast step.
type FeatureSpec struct {
	Lags        []int    `json:"lags"`
	Windows     []int    `json:"windows"`
	EMASpans    []int    `json:"ema_spans"`
	ROC         bool     `json:"roc"`
	Calendar    bool     `json:"calendar"`
	Interaction bool     `json:"interaction"`
	Names       []string `json:"names"`
}

// NewFeatureSpec chooses lags and windows for the granularity, keeping only
// those that still leave minRows complete training rows for a series of
// length n. Unknown granularities use lags 1..min(nLags, 7).
func NewFeatureSpec(n int, g models.Granularity, calendar bool, nLags, minRows int) *FeatureSpec {
	lags, windows := granularityLags(g, nLags)
	spec := &FeatureSpec{Calendar: calendar}

	fits := func(lookback int) bool { return n-lookback >= minRows }

	for _, lag := range lags {
		if fits(lag) {
			spec.Lags = append(spec.Lags, lag)
		}
	}
	for _, w := range windows {
		if fits(w) {
			spec.Windows = append(spec.Windows, w)
		}
	}
	for _, span := range emaSpans {
		if n >= span {
			spec.EMASpans = append(spec.EMASpans, span)
		}
	}
	spec.ROC = n >= rocPeriod && fits(rocPeriod+1)
	spec.Interaction = calendar && spec.hasLag(1)

	spec.Names = spec.names()
	return spec
}

func granularityLags(g models.Granularity, nLags int) ([]int, []int) {
	switch g {
	case models.GranularityDaily:
		return dailyLags, dailyWindows
	case models.GranularityWeekly:
		return weeklyLags, weeklyWindows
	case models.GranularityMonthly:
		return monthlyLags, monthlyWindows
	}

	if nLags <= 0 || nLags > 7 {
		nLags = 7
	}
	lags := make([]int, nLags)
	for i := range lags {
		lags[i] = i + 1
	}
	return lags, defaultWindows
}

func (s *FeatureSpec) hasLag(lag int) bool {
	for _, l := range s.Lags {
		if l == lag {
			return true
		}
	}
	return false
}

func (s *FeatureSpec) names() []string {
	var names []string
	for _, lag := range s.Lags {
		names = append(names, fmt.Sprintf("lag_%d", lag))
	}
	for _, w := range s.Windows {
		names = append(names,
			fmt.Sprintf("rolling_mean_%d", w),
			fmt.Sprintf("rolling_std_%d", w),
			fmt.Sprintf("rolling_min_%d", w),
			fmt.Sprintf("rolling_max_%d", w))
	}
	for _, span := range s.EMASpans {
		names = append(names, fmt.Sprintf("ema_%d", span))
	}
	if s.ROC {
		names = append(names, fmt.Sprintf("roc_%d", rocPeriod))
	}
	if s.Calendar {
		names = append(names, "day_of_week", "day_of_month", "month", "quarter", "year",
			"is_weekend", "is_month_start", "is_month_end", "is_quarter_end")
	}
	if s.Interaction {
		names = append(names, "lag1_x_dow")
	}
	return names
}

// Width is the number of feature columns
func (s *FeatureSpec) Width() int {
	return len(s.Names)
}

// Row computes the features of position t from values[:t] and the timestamp
// of t. It reports false while any lag or window still reaches before the
// start of the series.
func (s *FeatureSpec) Row(values []float64, t int, ts time.Time) ([]float64, bool) {
	row := make([]float64, 0, s.Width())

	for _, lag := range s.Lags {
		if t-lag < 0 {
			return nil, false
		}
		row = append(row, values[t-lag])
	}

	for _, w := range s.Windows {
		if t-w < 0 {
			return nil, false
		}
		window := values[t-w : t]
		row = append(row, mean(window), sampleStd(window), minOf(window), maxOf(window))
	}

	for _, span := range s.EMASpans {
		if t < 1 {
			return nil, false
		}
		row = append(row, ema(values[:t], span))
	}

	if s.ROC {
		if t-rocPeriod-1 < 0 {
			return nil, false
		}
		row = append(row, rateOfChange(values[t-1], values[t-rocPeriod-1]))
	}

	if s.Calendar {
		row = append(row, calendarFeatures(ts)...)
	}

	if s.Interaction {
		row = append(row, values[t-1]*float64(dayOfWeek(ts)))
	}

	return row, true
}

// Matrix builds the training design matrix and targets, dropping incomplete rows
func (s *FeatureSpec) Matrix(values []float64, timestamps []time.Time) ([][]float64, []float64) {
	var (
		x [][]float64
		y []float64
	)
	for t := range values {
		var ts time.Time
		if t < len(timestamps) {
			ts = timestamps[t]
		}
		row, ok := s.Row(values, t, ts)
		if !ok {
			continue
		}
		x = append(x, row)
		y = append(y, values[t])
	}
	return x, y
}

// dayOfWeek counts from Monday = 0
func dayOfWeek(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}

func calendarFeatures(ts time.Time) []float64 {
	dow := dayOfWeek(ts)
	day := ts.Day()
	month := int(ts.Month())
	daysInMonth := time.Date(ts.Year(), ts.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()

	return []float64{
		float64(dow),
		float64(day),
		float64(month),
		float64((month-1)/3 + 1),
		float64(ts.Year()),
		indicator(dow >= 5),
		indicator(day <= 7),
		indicator(day >= daysInMonth-7),
		indicator(month%3 == 0),
	}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ema is the recursive exponential moving average with alpha = 2/(span+1)
// seeded with the first value
func ema(values []float64, span int) float64 {
	alpha := 2.0 / float64(span+1)
	current := values[0]
	for _, v := range values[1:] {
		current = alpha*v + (1-alpha)*current
	}
	return current
}

// rateOfChange is zero when the base is zero or the result is not finite
func rateOfChange(current, base float64) float64 {
	roc := (current - base) / base
	if math.IsNaN(roc) || math.IsInf(roc, 0) {
		return 0
	}
	return roc
}
