package forecast

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/forecasting"
	"github.com/inferloop/tsforecast/internal/loader"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

type staticSource struct {
	table *models.RawTable
	err   error
	calls int
}

func (s *staticSource) Load(ctx context.Context, source string) (*models.RawTable, error) {
	s.calls++
	return s.table, s.err
}

type fakeRecorder struct {
	requests     []string
	degradations []string
	selections   []string
}

func (r *fakeRecorder) RecordRequest(strategy, status string, duration time.Duration) {
	r.requests = append(r.requests, strategy+":"+status)
}

func (r *fakeRecorder) RecordDegradation(strategy, reason string) {
	r.degradations = append(r.degradations, strategy+":"+reason)
}

func (r *fakeRecorder) RecordSelection(strategy string) {
	r.selections = append(r.selections, strategy)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func createTestOrchestrator(t *testing.T, source DataSource, recorder Recorder) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(nil, source, recorder, quietLogger())
	require.NoError(t, err)
	return o
}

func dailyTable(days int, value func(i int) float64) *models.RawTable {
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

func createTestSeries(g models.Granularity, values []float64) *models.TimeSeries {
	stamps := make([]time.Time, len(values))
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range stamps {
		stamps[i] = current
		current = g.Next(current)
	}
	return models.NewTimeSeries(g, stamps, values)
}

func fixed(values ...float64) StrategyFunc {
	return func(train *models.TimeSeries, horizon int) forecasting.Outcome {
		out := make([]float64, horizon)
		for i := range out {
			out[i] = values[i%len(values)]
		}
		return forecasting.Success(out)
	}
}

func TestConstantSeriesBaseline(t *testing.T) {
	source := &staticSource{table: dailyTable(60, func(int) float64 { return 100 })}
	o := createTestOrchestrator(t, source, nil)

	resp, err := o.Forecast(context.Background(), &models.ForecastRequest{
		SourceURL: "memory://constant",
		Strategy:  "baseline",
		Horizon:   14,
	})
	require.NoError(t, err)

	require.Len(t, resp.Predictions, 14)
	for _, p := range resp.Predictions {
		assert.Equal(t, 100.0, p.Value)
	}
	assert.Equal(t, 100.0, resp.Metrics.Accuracy)
	assert.Equal(t, models.StrategyBaseline, resp.Strategy)
	assert.Equal(t, models.GranularityDaily, resp.Granularity)
	assert.False(t, resp.Degraded)
	assert.Empty(t, resp.Candidates)
	assert.NotEmpty(t, resp.RequestID)

	// 48 training days end on 2024-02-17
	assert.Equal(t, "2024-02-18", resp.Predictions[0].Date)
	assert.Equal(t, "2024-03-02", resp.Predictions[13].Date)
}

func TestTooFewRows(t *testing.T) {
	source := &staticSource{table: dailyTable(5, func(int) float64 { return 1 })}
	recorder := &fakeRecorder{}
	o := createTestOrchestrator(t, source, recorder)

	exec, resp, err := o.Execute(context.Background(), &models.ForecastRequest{
		SourceURL: "memory://short",
		Strategy:  "baseline",
		Horizon:   3,
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInsufficientData))
	assert.Equal(t, StageFailed, exec.Stage)
	assert.Equal(t, StageLoaded, exec.FailedAt)
	assert.Equal(t, []string{"baseline:error"}, recorder.requests)
}

func TestCurrencyValuesEndToEnd(t *testing.T) {
	var body strings.Builder
	body.WriteString("\" Date \",Sales Amount\n")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&body, "2024-03-%02d,\"$1,200.50\"\n", i+1)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", constants.MimeTypeCSV)
		_, _ = w.Write([]byte(body.String()))
	}))
	defer server.Close()

	l := loader.NewLoader(nil, nil, nil, quietLogger())
	o := createTestOrchestrator(t, l, nil)

	resp, err := o.Forecast(context.Background(), &models.ForecastRequest{
		SourceURL: server.URL + "/sales.csv",
		Strategy:  "baseline",
		Horizon:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 1200.5, resp.Predictions[0].Value)
	assert.Equal(t, 100.0, resp.Metrics.Accuracy)
}

func TestDuplicateDatesAggregate(t *testing.T) {
	table := &models.RawTable{Columns: []string{"date", "sales"}}
	add := func(date string, v float64) {
		table.Rows = append(table.Rows, map[string]interface{}{"date": date, "sales": v})
	}
	add("2024-01-01", 5)
	add("2024-01-02", 5)
	add("2024-01-03", 10)
	add("2024-01-03", 20)
	add("2024-01-03", 30)
	for day := 4; day <= 12; day++ {
		add(fmt.Sprintf("2024-01-%02d", day), 5)
	}

	o := createTestOrchestrator(t, &staticSource{table: table}, nil)
	resp, err := o.Forecast(context.Background(), &models.ForecastRequest{
		SourceURL: "memory://dupes",
		Strategy:  "baseline",
		Horizon:   2,
	})
	require.NoError(t, err)

	// nine training days; the seasonal naive reaches back to the 3rd
	assert.Equal(t, 60.0, resp.Predictions[0].Value)
	assert.Equal(t, 5.0, resp.Predictions[1].Value)
}

func TestAutoSelection(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	pattern := []float64{100, 120, 130, 125, 140, 180, 90}
	table := dailyTable(120, func(i int) float64 { return pattern[i%7] + rng.NormFloat64() })

	recorder := &fakeRecorder{}
	o := createTestOrchestrator(t, &staticSource{table: table}, recorder)
	req := &models.ForecastRequest{SourceURL: "memory://weekly", Strategy: "auto", Horizon: 10}

	exec, first, err := o.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyAuto, first.RequestedStrategy)
	assert.Contains(t, models.ConcreteStrategies, first.Strategy)
	require.Len(t, first.Candidates, 3)
	assert.Len(t, first.Predictions, 10)
	assert.Equal(t, []Stage{
		StageIdle, StageLoaded, StagePreprocessed, StageSelecting,
		StageFitted, StageScored, StageFormatted, StageDone,
	}, exec.Path)
	assert.Equal(t, []string{string(first.Strategy)}, recorder.selections)

	_, second, err := o.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Strategy, second.Strategy)
	assert.Equal(t, first.Candidates, second.Candidates)
	assert.Equal(t, first.Predictions, second.Predictions)
}

func TestSelectScoresFailuresAsWorst(t *testing.T) {
	o := createTestOrchestrator(t, &staticSource{}, nil)
	o.RegisterStrategy(models.StrategyBaseline, fixed(1))
	o.RegisterStrategy(models.StrategyStatistical, func(*models.TimeSeries, int) forecasting.Outcome {
		panic("singular matrix")
	})
	o.RegisterStrategy(models.StrategyBoosted, fixed(10, 20, 30))

	train := createTestSeries(models.GranularityDaily, make([]float64, 20))
	validation := createTestSeries(models.GranularityDaily, []float64{10, 20, 30, 10, 20})

	best, scores := o.Select(train, validation)
	assert.Equal(t, models.StrategyBoosted, best)
	require.Len(t, scores, 3)

	assert.True(t, scores[1].Failed)
	assert.Equal(t, 0.0, scores[1].Metrics.Accuracy)
	assert.Equal(t, -1.0, scores[1].Metrics.R2)
	assert.Equal(t, 100.0, scores[2].Metrics.Accuracy)
}

func TestSelectValidationHorizonCap(t *testing.T) {
	o := createTestOrchestrator(t, &staticSource{}, nil)
	var horizons []int
	record := func(train *models.TimeSeries, horizon int) forecasting.Outcome {
		horizons = append(horizons, horizon)
		return forecasting.Success(make([]float64, horizon))
	}
	for _, s := range models.ConcreteStrategies {
		o.RegisterStrategy(s, record)
	}

	train := createTestSeries(models.GranularityDaily, make([]float64, 100))
	o.Select(train, createTestSeries(models.GranularityDaily, make([]float64, 45)))
	o.Select(train, createTestSeries(models.GranularityDaily, make([]float64, 12)))
	assert.Equal(t, []int{30, 30, 30, 12, 12, 12}, horizons)
}

func TestRankTiePolicies(t *testing.T) {
	tied := models.MetricsBundle{Accuracy: 90, R2: 0.5}
	scores := []models.CandidateScore{
		{Strategy: models.StrategyBoosted, Metrics: tied},
		{Strategy: models.StrategyStatistical, Metrics: tied},
		{Strategy: models.StrategyBaseline, Metrics: tied},
	}

	assert.Equal(t, models.StrategyBaseline, Rank(scores, constants.TieBreakPreferSimpler))
	assert.Equal(t, models.StrategyBoosted, Rank(scores, constants.TieBreakFirstEvaluated))

	scores[1].Metrics.R2 = 0.6
	assert.Equal(t, models.StrategyStatistical, Rank(scores, constants.TieBreakPreferSimpler))

	assert.Equal(t, models.StrategyBaseline, Rank(nil, constants.TieBreakFirstEvaluated))
}

func TestRequestValidation(t *testing.T) {
	source := &staticSource{table: dailyTable(30, func(int) float64 { return 1 })}
	o := createTestOrchestrator(t, source, nil)
	ctx := context.Background()

	_, err := o.Forecast(ctx, &models.ForecastRequest{SourceURL: "memory://x", Strategy: "prophet", Horizon: 5})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	_, err = o.Forecast(ctx, &models.ForecastRequest{SourceURL: "memory://x", Strategy: "baseline", Horizon: 0})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = o.Forecast(ctx, &models.ForecastRequest{SourceURL: "memory://x", Strategy: "baseline", Horizon: 366})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = o.Forecast(ctx, &models.ForecastRequest{SourceURL: "memory://x", Strategy: "baseline", Horizon: 3, Granularity: "hourly"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	assert.Equal(t, 0, source.calls, "invalid requests never reach the loader")
}

func TestStrategyAliases(t *testing.T) {
	source := &staticSource{table: dailyTable(40, func(i int) float64 { return float64(50 + i%7) })}
	o := createTestOrchestrator(t, source, nil)
	o.RegisterStrategy(models.StrategyBoosted, fixed(7))
	o.RegisterStrategy(models.StrategyStatistical, fixed(9))

	resp, err := o.Forecast(context.Background(), &models.ForecastRequest{SourceURL: "memory://x", Strategy: "xgboost", Horizon: 2})
	require.NoError(t, err)
	assert.Equal(t, models.StrategyBoosted, resp.Strategy)
	assert.Equal(t, 7.0, resp.Predictions[0].Value)

	resp, err = o.Forecast(context.Background(), &models.ForecastRequest{SourceURL: "memory://x", Strategy: "ARIMA", Horizon: 2})
	require.NoError(t, err)
	assert.Equal(t, models.StrategyStatistical, resp.Strategy)
}

func TestLoadErrorSurfaces(t *testing.T) {
	source := &staticSource{err: errors.NewDataLoadError(errors.CodeFetchFailed, "connection refused")}
	recorder := &fakeRecorder{}
	o := createTestOrchestrator(t, source, recorder)

	exec, _, err := o.Execute(context.Background(), &models.ForecastRequest{SourceURL: "http://x", Strategy: "auto", Horizon: 2})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDataLoad))
	assert.Equal(t, StageIdle, exec.FailedAt)
	assert.Equal(t, []Stage{StageIdle, StageFailed}, exec.Path)
	assert.Equal(t, []string{"auto:error"}, recorder.requests)
}

func TestDegradedStrategyIsReported(t *testing.T) {
	source := &staticSource{table: dailyTable(30, func(i int) float64 { return float64(i) })}
	recorder := &fakeRecorder{}
	o := createTestOrchestrator(t, source, recorder)
	o.RegisterStrategy(models.StrategyStatistical, func(train *models.TimeSeries, horizon int) forecasting.Outcome {
		return forecasting.Degrade(train.Values(), horizon, forecasting.ReasonDiverged, "peaked at 1e12")
	})

	resp, err := o.Forecast(context.Background(), &models.ForecastRequest{SourceURL: "memory://x", Strategy: "statistical", Horizon: 3})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, forecasting.ReasonDiverged, resp.Degradation)
	// naive over the 24 training days
	assert.Equal(t, 23.0, resp.Predictions[0].Value)
	assert.Equal(t, []string{"statistical:diverged"}, recorder.degradations)
	assert.Equal(t, []string{"statistical:success"}, recorder.requests)
}

func TestPanickingStrategyDegrades(t *testing.T) {
	source := &staticSource{table: dailyTable(30, func(i int) float64 { return 4 })}
	o := createTestOrchestrator(t, source, nil)
	o.RegisterStrategy(models.StrategyBoosted, func(*models.TimeSeries, int) forecasting.Outcome {
		panic("index out of range")
	})

	resp, err := o.Forecast(context.Background(), &models.ForecastRequest{SourceURL: "memory://x", Strategy: "boosted", Horizon: 2})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, forecasting.ReasonPanic, resp.Degradation)
	assert.Equal(t, 4.0, resp.Predictions[1].Value)
}

func TestEvaluateFallbacks(t *testing.T) {
	train := createTestSeries(models.GranularityDaily, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	empty := createTestSeries(models.GranularityDaily, nil)

	// |train|/5 = 2 points: 9 and 10
	bundle := Evaluate(train, empty, []float64{9, 10, 99}, 5)
	assert.Equal(t, 100.0, bundle.Accuracy)

	bundle = Evaluate(train, empty, []float64{8}, 1)
	assert.Equal(t, 80.0, bundle.Accuracy)

	short := createTestSeries(models.GranularityDaily, []float64{1, 2, 3, 4})
	assert.Equal(t, models.MetricsBundle{}, Evaluate(short, empty, []float64{1}, 1))

	validation := createTestSeries(models.GranularityDaily, []float64{10, 10})
	bundle = Evaluate(train, validation, []float64{9, 11, 500}, 3)
	assert.Equal(t, 1.0, bundle.MAE)
	assert.Equal(t, 90.0, bundle.Accuracy)
}

func TestFormatPredictions(t *testing.T) {
	monthly := FormatPredictions(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), []float64{1.005, 2.3333}, models.GranularityMonthly)
	assert.Equal(t, []models.Prediction{
		{Date: "2024-02-01", Value: 1.01},
		{Date: "2024-03-01", Value: 2.33},
	}, monthly)

	weekly := FormatPredictions(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), []float64{5}, models.GranularityWeekly)
	assert.Equal(t, "2024-01-14", weekly[0].Date)

	assert.Empty(t, FormatPredictions(time.Now(), nil, models.GranularityDaily))
}

func TestStageTransitions(t *testing.T) {
	assert.True(t, StageIdle.CanTransition(StageLoaded))
	assert.False(t, StageIdle.CanTransition(StageFitted))
	assert.True(t, StagePreprocessed.CanTransition(StageSelecting))
	assert.True(t, StagePreprocessed.CanTransition(StageFitted))
	assert.True(t, StageScored.CanTransition(StageFailed))
	assert.False(t, StageDone.CanTransition(StageFailed))
	assert.False(t, StageFailed.CanTransition(StageLoaded))

	exec := newExecution("test", quietLogger())
	require.NoError(t, exec.advance(StageLoaded))
	assert.Error(t, exec.advance(StageScored))
	assert.Nil(t, exec.CompletedAt)

	err := exec.fail(fmt.Errorf("boom"))
	assert.EqualError(t, err, "boom")
	assert.Equal(t, StageLoaded, exec.FailedAt)
	assert.NotNil(t, exec.CompletedAt)
}

func TestNewConfigFromApplicationConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Forecast.TiePolicy = constants.TieBreakFirstEvaluated
	cfg.Boosted.Estimators = 20

	c := NewConfig(cfg)
	assert.Equal(t, constants.TieBreakFirstEvaluated, c.TiePolicy)
	assert.Equal(t, 20, c.Boosted.GBM.Estimators)
	assert.Equal(t, cfg.Policy.SoftCapMultiple, c.Safety.SoftCapMultiple)
	assert.Equal(t, cfg.Forecast.ValidationCap, c.ValidationCap)

	o, err := NewOrchestrator(c, &staticSource{}, nil, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, models.ConcreteStrategies, o.config.Candidates)
}

func TestOrchestratorStrategies(t *testing.T) {
	o := createTestOrchestrator(t, &staticSource{}, nil)
	assert.Equal(t, []string{"auto", "baseline", "boosted", "statistical"}, o.Strategies())

	_, err := NewOrchestrator(nil, nil, nil, nil)
	assert.Error(t, err)
}
