package preprocess

import (
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Config contains preprocessing settings
type Config struct {
	DateColumn  string  `json:"date_column"`
	ValueColumn string  `json:"value_column"`
	TrainRatio  float64 `json:"train_ratio"`
	MinRows     int     `json:"min_rows"`
}

// Preprocessor turns a raw table into an evenly spaced, gap-free series and
// its chronological train/validation split
type Preprocessor struct {
	config *Config
	logger *logrus.Logger
}

// Result is the outcome of preprocessing one table
type Result struct {
	Series      *models.TimeSeries `json:"series"`
	Split       *models.Split      `json:"split"`
	DateColumn  string             `json:"date_column"`
	ValueColumn string             `json:"value_column"`
	DroppedRows int                `json:"dropped_rows"`
	FilledGaps  int                `json:"filled_gaps"`
}

type observation struct {
	at    time.Time
	value float64
}

// NewPreprocessor creates a new preprocessor
func NewPreprocessor(config *Config, logger *logrus.Logger) *Preprocessor {
	if config == nil {
		config = &Config{
			DateColumn:  constants.DefaultDateColumn,
			ValueColumn: constants.DefaultValueColumn,
			TrainRatio:  constants.DefaultTrainRatio,
			MinRows:     constants.DefaultMinRows,
		}
	}

	if config.TrainRatio <= 0 || config.TrainRatio >= 1 {
		config.TrainRatio = constants.DefaultTrainRatio
	}

	if config.MinRows <= 0 {
		config.MinRows = constants.DefaultMinRows
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &Preprocessor{
		config: config,
		logger: logger,
	}
}

// Preprocess detects columns, cleans values, parses dates, aggregates and
// resamples onto the granularity grid, then splits the result. Empty hints use
// the configured defaults.
func (p *Preprocessor) Preprocess(table *models.RawTable, dateHint, valueHint string, granularity models.Granularity) (*Result, error) {
	if !granularity.Valid() {
		return nil, errors.NewConfigurationError(errors.CodeUnknownGranularity, "unknown granularity").
			WithContext("granularity", string(granularity))
	}

	if table.Len() == 0 {
		return nil, errors.NewInsufficientDataError("dataset has no rows")
	}

	if dateHint == "" {
		dateHint = p.config.DateColumn
	}
	if valueHint == "" {
		valueHint = p.config.ValueColumn
	}

	dateCol, err := DetectDateColumn(table, dateHint)
	if err != nil {
		return nil, err
	}

	valueCol, err := DetectValueColumn(table, valueHint, dateCol)
	if err != nil {
		return nil, err
	}

	values := CleanValues(table.Column(valueCol), table.IsNumeric(valueCol))

	observations := make([]observation, 0, table.Len())
	dropped := 0
	for i, cell := range table.Column(dateCol) {
		at, ok := ParseDate(cell)
		if !ok {
			dropped++
			continue
		}
		observations = append(observations, observation{at: at, value: values[i]})
	}

	if dropped > 0 {
		p.logger.WithFields(logrus.Fields{
			"dropped": dropped,
			"column":  dateCol,
		}).Warn("Dropped rows with unparseable dates")
	}

	if len(observations) == 0 {
		return nil, errors.NewInsufficientDataError("no rows with a parseable date")
	}

	aggregated := aggregate(observations)
	series, filled := resample(aggregated, granularity)

	if series.Len() < p.config.MinRows {
		return nil, errors.NewInsufficientDataError("too few rows after cleaning").
			WithContext("rows", series.Len()).
			WithContext("min_rows", p.config.MinRows)
	}

	split := series.Split(p.config.TrainRatio)

	p.logger.WithFields(logrus.Fields{
		"date_column":  dateCol,
		"value_column": valueCol,
		"granularity":  granularity,
		"rows":         series.Len(),
		"filled_gaps":  filled,
		"train":        split.Train.Len(),
		"validation":   split.Validation.Len(),
	}).Info("Preprocessed dataset")

	return &Result{
		Series:      series,
		Split:       split,
		DateColumn:  dateCol,
		ValueColumn: valueCol,
		DroppedRows: dropped,
		FilledGaps:  filled,
	}, nil
}

// CleanValues coerces a value column to floats. Text cells lose "$" and ","
// before parsing; cells that still do not parse, and nulls, become 0.
func CleanValues(cells []interface{}, numeric bool) []float64 {
	out := make([]float64, len(cells))
	for i, cell := range cells {
		if cell == nil {
			continue
		}
		if !numeric {
			if s, ok := cell.(string); ok {
				cell = strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
			}
		}
		v, err := cast.ToFloat64E(cell)
		if err != nil {
			continue
		}
		out[i] = v
	}
	return out
}

// ParseDate parses a date cell in any common layout, returning it in UTC
func ParseDate(cell interface{}) (time.Time, bool) {
	switch v := cell.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v.UTC(), !v.IsZero()
	}

	s, err := cast.ToStringE(cell)
	if err != nil {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// aggregate sums observations sharing an exact timestamp and sorts the result
func aggregate(observations []observation) []observation {
	sums := make(map[time.Time]float64, len(observations))
	for _, o := range observations {
		sums[o.at] += o.value
	}

	out := make([]observation, 0, len(sums))
	for at, v := range sums {
		out = append(out, observation{at: at, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

// resample sums observations into granularity buckets and fills every missing
// bucket between the first and last with zero
func resample(observations []observation, g models.Granularity) (*models.TimeSeries, int) {
	buckets := make(map[time.Time]float64, len(observations))
	for _, o := range observations {
		buckets[g.Bucket(o.at)] += o.value
	}

	first := g.Bucket(observations[0].at)
	last := g.Bucket(observations[len(observations)-1].at)

	series := &models.TimeSeries{Granularity: g}
	filled := 0
	for at := first; !at.After(last); at = g.Next(at) {
		v, ok := buckets[at]
		if !ok {
			filled++
		}
		series.DataPoints = append(series.DataPoints, models.DataPoint{Timestamp: at, Value: v})
	}
	return series, filled
}
