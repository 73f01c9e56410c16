package models

import (
	"strings"
	"time"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// Granularity is the fixed bucket width a series is resampled to
type Granularity string

const (
	GranularityDaily   Granularity = constants.GranularityDaily
	GranularityWeekly  Granularity = constants.GranularityWeekly
	GranularityMonthly Granularity = constants.GranularityMonthly
)

// ParseGranularity normalizes a user supplied granularity; empty means daily
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if g == "" {
		return GranularityDaily, nil
	}
	if !g.Valid() {
		return "", errors.NewConfigurationError(errors.CodeUnknownGranularity,
			"granularity must be one of daily, weekly, monthly").WithContext("granularity", s)
	}
	return g, nil
}

// Valid reports whether g is one of the supported granularities
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// Bucket returns the label of the bucket t falls into. Days are truncated to
// midnight UTC, weeks are labelled by the Sunday that closes them and months by
// their first day.
func (g Granularity) Bucket(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GranularityWeekly:
		untilSunday := (7 - int(day.Weekday())) % 7
		return day.AddDate(0, 0, untilSunday)
	case GranularityMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Next advances a bucket label by one period
func (g Granularity) Next(t time.Time) time.Time {
	switch g {
	case GranularityWeekly:
		return t.AddDate(0, 0, 7)
	case GranularityMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Range returns n consecutive bucket labels following after
func (g Granularity) Range(after time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	current := after
	for i := 0; i < n; i++ {
		current = g.Next(current)
		out = append(out, current)
	}
	return out
}
