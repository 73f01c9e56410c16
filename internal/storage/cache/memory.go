package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/models"
)

// MemoryConfig contains in-process cache settings
type MemoryConfig struct {
	Capacity int           `json:"capacity"`
	TTL      time.Duration `json:"ttl"`
}

// MemoryCache is a size-bounded LRU of raw tables with per-entry expiry.
// Expired entries are dropped lazily on Get and eagerly by SweepExpired.
type MemoryCache struct {
	cache  *lru.Cache[string, *entry]
	ttl    time.Duration
	mu     sync.Mutex
	now    func() time.Time
	logger *logrus.Logger

	hits    int64
	misses  int64
	sets    int64
	evicted int64
}

type entry struct {
	value     *models.RawTable
	expiresAt time.Time
}

// NewMemoryCache creates a new in-process cache
func NewMemoryCache(config *MemoryConfig, logger *logrus.Logger) (*MemoryCache, error) {
	if config == nil {
		config = &MemoryConfig{
			Capacity: constants.DefaultCacheCapacity,
			TTL:      constants.DefaultCacheTTL,
		}
	}

	if logger == nil {
		logger = logrus.New()
	}

	c, err := lru.New[string, *entry](config.Capacity)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeCacheFailed, "invalid cache capacity")
	}

	return &MemoryCache{
		cache:  c,
		ttl:    config.TTL,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Get returns the table stored under key when present and not expired
func (m *MemoryCache) Get(ctx context.Context, key string) (*models.RawTable, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.cache.Get(key)
	if !ok {
		m.misses++
		return nil, false, nil
	}

	if m.expired(e, m.now()) {
		m.cache.Remove(key)
		m.misses++
		m.evicted++
		return nil, false, nil
	}

	m.hits++
	return e.value, true, nil
}

// Set inserts or replaces the entry for key
func (m *MemoryCache) Set(ctx context.Context, key string, value *models.RawTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if m.ttl > 0 {
		expiresAt = m.now().Add(m.ttl)
	}

	if m.cache.Add(key, &entry{value: value, expiresAt: expiresAt}) {
		m.evicted++
	}
	m.sets++
	return nil
}

// Clear removes every entry
func (m *MemoryCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Purge()
	return nil
}

// SweepExpired removes all expired entries and returns how many were dropped
func (m *MemoryCache) SweepExpired(ctx context.Context) (int, error) {
	if m.ttl <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, key := range m.cache.Keys() {
		if e, ok := m.cache.Peek(key); ok && m.expired(e, now) {
			m.cache.Remove(key)
			removed++
		}
	}
	m.evicted += int64(removed)
	return removed, nil
}

// Stats reports counters for the health endpoint
func (m *MemoryCache) Stats(ctx context.Context) (*interfaces.CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &interfaces.CacheStats{
		Backend: "memory",
		Entries: m.cache.Len(),
		Hits:    m.hits,
		Misses:  m.misses,
		Sets:    m.sets,
		Evicted: m.evicted,
		TTL:     m.ttl,
	}, nil
}

// Close empties the cache
func (m *MemoryCache) Close() error {
	return m.Clear(context.Background())
}

func (m *MemoryCache) expired(e *entry, now time.Time) bool {
	return m.ttl > 0 && now.After(e.expiresAt)
}
