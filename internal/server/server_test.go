package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/storage/cache"
	rediscache "github.com/inferloop/tsforecast/internal/storage/implementations/redis"
	"github.com/inferloop/tsforecast/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func writeSalesCSV(t *testing.T, rows int, value float64) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("date,sales\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%s,%g\n", start.AddDate(0, 0, i).Format("2006-01-02"), value)
	}

	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestNewCacheBackends(t *testing.T) {
	ctx := context.Background()

	cfg := config.NewDefaultConfig()
	c, err := NewCache(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, c)

	cfg.Cache.Backend = "none"
	c, err = NewCache(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, c)

	mr := miniredis.RunT(t)
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisAddr = mr.Addr()
	c, err = NewCache(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &rediscache.RedisCache{}, c)
	require.NoError(t, c.Close())

	cfg.Cache.Backend = "memcached"
	_, err = NewCache(ctx, cfg, quietLogger())
	assert.Error(t, err)
}

func TestNewCacheRedisUnreachable(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisAddr = "127.0.0.1:1"

	_, err := NewCache(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestNewObjectSource(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewDefaultConfig()

	objects, err := NewObjectSource(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, objects)

	cfg.S3.Enabled = true
	cfg.S3.Endpoint = "http://127.0.0.1:9000"
	cfg.S3.AccessKeyID = "test"
	cfg.S3.SecretKey = "test"
	cfg.S3.ForcePathStyle = true
	objects, err = NewObjectSource(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, objects)
}

func TestServerForecastEndToEnd(t *testing.T) {
	path := writeSalesCSV(t, 60, 100)

	s, err := NewServer(context.Background(), config.NewDefaultConfig(), "test", quietLogger())
	require.NoError(t, err)

	body := fmt.Sprintf(`{"source_url":%q,"strategy":"baseline","horizon":3,"granularity":"daily"}`, path)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/forecast", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var response models.ForecastResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Predictions, 3)
	for _, p := range response.Predictions {
		assert.Equal(t, 100.0, p.Value)
	}
	assert.Equal(t, 100.0, response.Metrics.Accuracy)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `forecast_requests_total{status="success",strategy="baseline"} 1`)
	assert.Contains(t, rec.Body.String(), `forecast_cache_lookups_total{result="miss"} 1`)
}

func TestServerSurfacesInputErrors(t *testing.T) {
	path := writeSalesCSV(t, 5, 100)

	s, err := NewServer(context.Background(), config.NewDefaultConfig(), "test", quietLogger())
	require.NoError(t, err)

	body := fmt.Sprintf(`{"source_url":%q,"strategy":"auto","horizon":3}`, path)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/forecast", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOO_FEW_ROWS")
}

func TestServerStartStop(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	s, err := NewServer(context.Background(), cfg, "test", quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, s.Stop(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
