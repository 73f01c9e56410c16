package models

import (
	"time"
)

// DataPoint represents a single observation in a time series
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeSeries is an ordered, evenly spaced sequence of observations
type TimeSeries struct {
	Granularity Granularity `json:"granularity"`
	DataPoints  []DataPoint `json:"data_points"`
}

// NewTimeSeries builds a series from parallel timestamp/value slices
func NewTimeSeries(g Granularity, timestamps []time.Time, values []float64) *TimeSeries {
	points := make([]DataPoint, len(values))
	for i, v := range values {
		var ts time.Time
		if i < len(timestamps) {
			ts = timestamps[i]
		}
		points[i] = DataPoint{Timestamp: ts, Value: v}
	}
	return &TimeSeries{Granularity: g, DataPoints: points}
}

// Len returns the number of observations
func (ts *TimeSeries) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.DataPoints)
}

// Values returns a copy of the observation values
func (ts *TimeSeries) Values() []float64 {
	values := make([]float64, ts.Len())
	for i := range values {
		values[i] = ts.DataPoints[i].Value
	}
	return values
}

// Timestamps returns a copy of the observation timestamps
func (ts *TimeSeries) Timestamps() []time.Time {
	stamps := make([]time.Time, ts.Len())
	for i := range stamps {
		stamps[i] = ts.DataPoints[i].Timestamp
	}
	return stamps
}

// HasTimestamps reports whether every point carries a timestamp
func (ts *TimeSeries) HasTimestamps() bool {
	if ts.Len() == 0 {
		return false
	}
	for _, dp := range ts.DataPoints {
		if dp.Timestamp.IsZero() {
			return false
		}
	}
	return true
}

// Last returns the most recent observation
func (ts *TimeSeries) Last() (DataPoint, bool) {
	if ts.Len() == 0 {
		return DataPoint{}, false
	}
	return ts.DataPoints[len(ts.DataPoints)-1], true
}

// LastValue returns the most recent value, or 0 for an empty series
func (ts *TimeSeries) LastValue() float64 {
	dp, _ := ts.Last()
	return dp.Value
}

// Slice returns the sub-series [start, end) sharing no memory with ts
func (ts *TimeSeries) Slice(start, end int) *TimeSeries {
	if start < 0 {
		start = 0
	}
	if end > ts.Len() {
		end = ts.Len()
	}
	if start > end {
		start = end
	}
	points := make([]DataPoint, end-start)
	copy(points, ts.DataPoints[start:end])
	return &TimeSeries{Granularity: ts.Granularity, DataPoints: points}
}

// Tail returns the last n observations
func (ts *TimeSeries) Tail(n int) *TimeSeries {
	return ts.Slice(ts.Len()-n, ts.Len())
}

// Split partitions the series chronologically at int(len*ratio)
func (ts *TimeSeries) Split(ratio float64) *Split {
	idx := int(float64(ts.Len()) * ratio)
	return &Split{
		Train:      ts.Slice(0, idx),
		Validation: ts.Slice(idx, ts.Len()),
	}
}

// Split holds the chronological train/validation partitions of one series
type Split struct {
	Train      *TimeSeries `json:"train"`
	Validation *TimeSeries `json:"validation"`
}
