package preprocess

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

func createTestPreprocessor() *Preprocessor {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewPreprocessor(nil, logger)
}

func dailyTable(days int, value func(i int) interface{}) *models.RawTable {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table := &models.RawTable{Columns: []string{"date", "sales"}}
	for i := 0; i < days; i++ {
		table.Rows = append(table.Rows, map[string]interface{}{
			"date":  start.AddDate(0, 0, i).Format("2006-01-02"),
			"sales": value(i),
		})
	}
	return table
}

func TestPreprocessDaily(t *testing.T) {
	p := createTestPreprocessor()
	table := dailyTable(20, func(i int) interface{} { return float64(i) })

	result, err := p.Preprocess(table, "", "", models.GranularityDaily)
	require.NoError(t, err)

	assert.Equal(t, "date", result.DateColumn)
	assert.Equal(t, "sales", result.ValueColumn)
	assert.Equal(t, 20, result.Series.Len())
	assert.Equal(t, 16, result.Split.Train.Len())
	assert.Equal(t, 4, result.Split.Validation.Len())

	last, _ := result.Split.Train.Last()
	first := result.Split.Validation.DataPoints[0]
	assert.True(t, last.Timestamp.Before(first.Timestamp))
}

func TestPreprocessCurrencyAndMixedCaseHeaders(t *testing.T) {
	p := createTestPreprocessor()
	table := &models.RawTable{Columns: []string{"Date", "Sales Amount"}}
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		table.Rows = append(table.Rows, map[string]interface{}{
			"Date":         start.AddDate(0, 0, i).Format("2006-01-02"),
			"Sales Amount": "$1,200.50",
		})
	}

	result, err := p.Preprocess(table, "date", "sales", models.GranularityDaily)
	require.NoError(t, err)

	assert.Equal(t, "Date", result.DateColumn)
	assert.Equal(t, "Sales Amount", result.ValueColumn)
	for _, dp := range result.Series.DataPoints {
		assert.InDelta(t, 1200.50, dp.Value, 1e-9)
	}
}

func TestPreprocessAggregatesDuplicateDates(t *testing.T) {
	p := createTestPreprocessor()
	table := dailyTable(12, func(i int) interface{} { return 1.0 })
	table.Rows[0]["sales"] = 10.0
	table.Rows = append(table.Rows,
		map[string]interface{}{"date": "2024-01-01", "sales": 20.0},
		map[string]interface{}{"date": "2024-01-01", "sales": 30.0},
	)

	result, err := p.Preprocess(table, "", "", models.GranularityDaily)
	require.NoError(t, err)

	assert.Equal(t, 12, result.Series.Len())
	assert.Equal(t, 60.0, result.Series.DataPoints[0].Value)
}

func TestPreprocessFillsGapsWithZero(t *testing.T) {
	p := createTestPreprocessor()
	table := dailyTable(15, func(i int) interface{} { return 5.0 })
	table.Rows = append(table.Rows[:3], table.Rows[6:]...)

	result, err := p.Preprocess(table, "", "", models.GranularityDaily)
	require.NoError(t, err)

	assert.Equal(t, 15, result.Series.Len())
	assert.Equal(t, 3, result.FilledGaps)
	assert.Equal(t, 0.0, result.Series.DataPoints[3].Value)
	assert.Equal(t, 0.0, result.Series.DataPoints[5].Value)
	assert.Equal(t, 5.0, result.Series.DataPoints[6].Value)
}

func TestPreprocessGridIsStrict(t *testing.T) {
	p := createTestPreprocessor()
	table := &models.RawTable{Columns: []string{"order_date", "revenue"}}
	start := time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 400; i += 3 {
		table.Rows = append(table.Rows, map[string]interface{}{
			"order_date": start.AddDate(0, 0, i).Format("01/02/2006"),
			"revenue":    float64(i%17 + 1),
		})
	}

	tests := []struct {
		granularity models.Granularity
		check       func(prev, next time.Time) bool
	}{
		{models.GranularityDaily, func(a, b time.Time) bool { return b.Sub(a) == 24*time.Hour }},
		{models.GranularityWeekly, func(a, b time.Time) bool { return b.Sub(a) == 7*24*time.Hour && b.Weekday() == time.Sunday }},
		{models.GranularityMonthly, func(a, b time.Time) bool { return b.Day() == 1 && a.AddDate(0, 1, 0).Equal(b) }},
	}

	for _, tt := range tests {
		t.Run(string(tt.granularity), func(t *testing.T) {
			result, err := p.Preprocess(table, "", "", tt.granularity)
			require.NoError(t, err)

			points := result.Series.DataPoints
			for i := 1; i < len(points); i++ {
				assert.True(t, tt.check(points[i-1].Timestamp, points[i].Timestamp),
					"step %d: %s -> %s", i, points[i-1].Timestamp, points[i].Timestamp)
			}
		})
	}
}

func TestPreprocessWeeklyBuckets(t *testing.T) {
	p := createTestPreprocessor()
	// Mon 2024-01-01 .. Sun 2024-01-07 is one week labelled 2024-01-07
	table := dailyTable(7*12, func(i int) interface{} { return 1.0 })

	result, err := p.Preprocess(table, "", "", models.GranularityWeekly)
	require.NoError(t, err)

	assert.Equal(t, 12, result.Series.Len())
	assert.Equal(t, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), result.Series.DataPoints[0].Timestamp)
	assert.Equal(t, 7.0, result.Series.DataPoints[0].Value)
}

func TestPreprocessDropsUnparseableDates(t *testing.T) {
	p := createTestPreprocessor()
	table := dailyTable(12, func(i int) interface{} { return 2.0 })
	table.Rows = append(table.Rows,
		map[string]interface{}{"date": "not a date", "sales": 99.0},
		map[string]interface{}{"date": nil, "sales": 99.0},
	)

	result, err := p.Preprocess(table, "", "", models.GranularityDaily)
	require.NoError(t, err)

	assert.Equal(t, 2, result.DroppedRows)
	assert.Equal(t, 12, result.Series.Len())
}

func TestPreprocessInsufficientData(t *testing.T) {
	p := createTestPreprocessor()
	table := dailyTable(5, func(i int) interface{} { return 1.0 })

	_, err := p.Preprocess(table, "", "", models.GranularityDaily)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInsufficientData)
}

func TestPreprocessMissingDateColumn(t *testing.T) {
	p := createTestPreprocessor()
	table := &models.RawTable{
		Columns: []string{"store", "sales"},
		Rows:    []map[string]interface{}{{"store": "a", "sales": 1.0}},
	}

	_, err := p.Preprocess(table, "", "", models.GranularityDaily)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))
}

func TestPreprocessUnknownGranularity(t *testing.T) {
	p := createTestPreprocessor()
	_, err := p.Preprocess(dailyTable(12, func(i int) interface{} { return 1.0 }), "", "", "hourly")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestDetectValueColumnPreference(t *testing.T) {
	table := &models.RawTable{
		Columns: []string{"date", "price_label", "sales_total", "quantity"},
		Rows: []map[string]interface{}{
			{"date": "2024-01-01", "price_label": "n/a", "sales_total": "$10", "quantity": 3.0},
		},
	}

	col, err := DetectValueColumn(table, "sales", "date")
	require.NoError(t, err)
	assert.Equal(t, "quantity", col)

	delete(table.Rows[0], "quantity")
	table.Columns = table.Columns[:3]
	col, err = DetectValueColumn(table, "sales", "date")
	require.NoError(t, err)
	assert.Equal(t, "sales_total", col)

	table.Rows[0]["sales_total"] = "none"
	col, err = DetectValueColumn(table, "sales", "date")
	require.NoError(t, err)
	assert.Equal(t, "price_label", col)
}

func TestDetectValueColumnMissing(t *testing.T) {
	table := &models.RawTable{Columns: []string{"date", "store"}}
	_, err := DetectValueColumn(table, "sales", "date")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))
}

func TestCleanValues(t *testing.T) {
	cells := []interface{}{"$1,200.50", " 3 ", "abc", nil, "$-4"}
	assert.Equal(t, []float64{1200.50, 3, 0, 0, -4}, CleanValues(cells, false))

	assert.Equal(t, []float64{1.5, 0}, CleanValues([]interface{}{1.5, nil}, true))
}

func TestParseDate(t *testing.T) {
	layouts := []string{"2024-02-03", "02/03/2024", "2024-02-03T10:00:00Z", "Feb 3, 2024"}
	for _, s := range layouts {
		t.Run(s, func(t *testing.T) {
			got, ok := ParseDate(s)
			require.True(t, ok)
			assert.Equal(t, 2024, got.Year())
			assert.Equal(t, time.February, got.Month())
			assert.Equal(t, 3, got.Day())
		})
	}

	for _, bad := range []interface{}{nil, "", "garbage", fmt.Sprint("??")} {
		_, ok := ParseDate(bad)
		assert.False(t, ok)
	}
}
