package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func defaultConfig() (*appconfig.Config, error) {
	return appconfig.NewDefaultConfig(), nil
}

func writeSalesCSV(t *testing.T, rows int, value float64) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("Date,Sales\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%s,%g\n", start.AddDate(0, 0, i).Format("2006-01-02"), value)
	}

	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func executeForecast(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewForecastCmd(defaultConfig, quietLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestForecastLocalJSON(t *testing.T) {
	path := writeSalesCSV(t, 60, 100)

	output, err := executeForecast(t, "--source", path, "--strategy", "baseline", "--horizon", "3")
	require.NoError(t, err)

	var response models.ForecastResponse
	require.NoError(t, json.Unmarshal([]byte(output), &response))
	assert.Equal(t, models.StrategyBaseline, response.Strategy)
	require.Len(t, response.Predictions, 3)
	assert.Equal(t, "2024-02-18", response.Predictions[0].Date)
	assert.Equal(t, 100.0, response.Predictions[0].Value)
}

func TestForecastCSVOutputFile(t *testing.T) {
	path := writeSalesCSV(t, 60, 100)
	outFile := filepath.Join(t.TempDir(), "out.csv")

	_, err := executeForecast(t, "--source", path, "--strategy", "baseline", "--horizon", "2",
		"--format", "csv", "--output", outFile)
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "date,value\n2024-02-18,100\n2024-02-19,100\n", string(data))
}

func TestForecastTable(t *testing.T) {
	path := writeSalesCSV(t, 60, 100)

	output, err := executeForecast(t, "--source", path, "--strategy", "baseline", "--horizon", "1", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, output, "Strategy:")
	assert.Contains(t, output, "baseline")
	assert.Contains(t, output, "2024-02-18")
	assert.Contains(t, output, "100.00")
}

func TestForecastRejectsInvalidInput(t *testing.T) {
	path := writeSalesCSV(t, 60, 100)

	_, err := executeForecast(t, "--source", path, "--horizon", "0")
	assert.Error(t, err)

	_, err = executeForecast(t, "--source", path, "--strategy", "prophet")
	assert.Error(t, err)

	_, err = executeForecast(t, "--source", path, "--format", "xml", "--strategy", "baseline", "--horizon", "1")
	assert.Error(t, err)

	_, err = executeForecast(t, "--horizon", "5")
	assert.Error(t, err)
}

func TestForecastTooFewRows(t *testing.T) {
	path := writeSalesCSV(t, 4, 100)

	_, err := executeForecast(t, "--source", path, "--strategy", "auto", "--horizon", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOO_FEW_ROWS")
}

func TestForecastRemote(t *testing.T) {
	var received models.ForecastRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&models.ForecastResponse{
			Strategy:    models.StrategyStatistical,
			Predictions: []models.Prediction{{Date: "2024-05-01", Value: 42}},
		})
	}))
	defer srv.Close()

	output, err := executeForecast(t, "--source", "https://example.com/s.csv", "--strategy", "arima",
		"--horizon", "1", "--granularity", "monthly", "--server", srv.URL+"/", "--format", "csv")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/s.csv", received.SourceURL)
	assert.Equal(t, "arima", received.Strategy)
	assert.Equal(t, "monthly", received.Granularity)
	assert.Equal(t, "date,value\n2024-05-01,42\n", output)
}

func TestForecastRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"code":"TOO_FEW_ROWS","message":"need at least 10 rows"}}`))
	}))
	defer srv.Close()

	_, err := executeForecast(t, "--source", "https://example.com/s.csv", "--horizon", "1", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "TOO_FEW_ROWS")
}

func TestVersionCmd(t *testing.T) {
	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "tsforecast")
}
