package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/storage/cache"
	"github.com/inferloop/tsforecast/internal/storage/implementations/s3"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Config contains data loader settings
type Config struct {
	Timeout   time.Duration `json:"timeout"`
	MaxBytes  int64         `json:"max_bytes"`
	UserAgent string        `json:"user_agent"`
}

// CacheObserver is notified of every cache lookup
type CacheObserver interface {
	ObserveCacheLookup(hit bool)
}

// Loader fetches tabular datasets from HTTP(S), s3:// or the local filesystem
// and keeps parsed snapshots in a cache
type Loader struct {
	config   *Config
	client   *http.Client
	cache    interfaces.Cache
	objects  interfaces.ObjectFetcher
	observer CacheObserver
	logger   *logrus.Logger
}

// NewLoader creates a new data loader. cache and objects may be nil.
func NewLoader(config *Config, c interfaces.Cache, objects interfaces.ObjectFetcher, logger *logrus.Logger) *Loader {
	if config == nil {
		config = &Config{
			Timeout:   constants.DefaultLoaderTimeout,
			MaxBytes:  constants.DefaultLoaderMaxBytes,
			UserAgent: constants.AppName + "/" + constants.AppVersion,
		}
	}

	if config.MaxBytes <= 0 {
		config.MaxBytes = constants.DefaultLoaderMaxBytes
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &Loader{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		cache:   c,
		objects: objects,
		logger:  logger,
	}
}

// SetObserver registers a cache lookup observer
func (l *Loader) SetObserver(observer CacheObserver) {
	l.observer = observer
}

// Load returns the parsed table for source, consulting the cache first
func (l *Loader) Load(ctx context.Context, source string) (*models.RawTable, error) {
	key := cache.Key(source, constants.RawCacheMarker)

	if l.cache != nil {
		table, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			l.logger.WithError(err).Warn("Cache lookup failed, fetching source")
		}
		l.observe(ok)
		if ok {
			l.logger.WithField("rows", table.Len()).Debug("Loaded dataset from cache")
			return table, nil
		}
	}

	start := time.Now()
	data, err := l.fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	table, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"rows":     table.Len(),
		"columns":  len(table.Columns),
		"bytes":    len(data),
		"duration": time.Since(start),
	}).Info("Loaded dataset")

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, table); err != nil {
			l.logger.WithError(err).Warn("Failed to cache dataset")
		}
	}

	return table, nil
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDataLoad, errors.CodeUnsupportedSource, "invalid source").
			WithContext("source", source)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return l.fetchHTTP(ctx, source)
	case "s3":
		return l.fetchObject(ctx, source)
	case "file":
		return l.readFile(u.Path)
	case "":
		return l.readFile(source)
	default:
		return nil, errors.NewDataLoadError(errors.CodeUnsupportedSource,
			fmt.Sprintf("unsupported source scheme %q", u.Scheme)).WithContext("source", source)
	}
}

func (l *Loader) fetchHTTP(ctx context.Context, source string) ([]byte, error) {
	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDataLoad, errors.CodeUnsupportedSource, "invalid source").
			WithContext("source", source)
	}
	req.Header.Set("Accept", constants.MimeTypeCSV+", */*")
	if l.config.UserAgent != "" {
		req.Header.Set("User-Agent", l.config.UserAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.WrapFetchError(err, source, l.config.Timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewHTTPStatusError(resp.StatusCode, source)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.config.MaxBytes+1))
	if err != nil {
		return nil, errors.WrapFetchError(err, source, l.config.Timeout)
	}
	if int64(len(data)) > l.config.MaxBytes {
		return nil, errors.NewDataLoadError(errors.CodeFetchFailed, "dataset exceeds maximum size").
			WithContext("source", source).WithContext("max_bytes", l.config.MaxBytes)
	}
	return data, nil
}

func (l *Loader) fetchObject(ctx context.Context, source string) ([]byte, error) {
	if l.objects == nil {
		return nil, errors.NewDataLoadError(errors.CodeUnsupportedSource, "s3 sources are not configured").
			WithContext("source", source)
	}

	bucket, key, err := s3.ParseURI(source)
	if err != nil {
		return nil, err
	}

	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()
	}

	data, err := l.objects.Fetch(ctx, bucket, key)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeDataLoad) {
			return nil, err
		}
		return nil, errors.WrapFetchError(err, source, l.config.Timeout)
	}
	return data, nil
}

func (l *Loader) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDataLoad, errors.CodeFetchFailed, "failed to open dataset").
			WithContext("source", path)
	}
	if info.Size() > l.config.MaxBytes {
		return nil, errors.NewDataLoadError(errors.CodeFetchFailed, "dataset exceeds maximum size").
			WithContext("source", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDataLoad, errors.CodeFetchFailed, "failed to read dataset").
			WithContext("source", path)
	}
	return data, nil
}

func (l *Loader) observe(hit bool) {
	if l.observer != nil {
		l.observer.ObserveCacheLookup(hit)
	}
}
