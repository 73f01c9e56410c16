package interfaces

import (
	"context"
	"time"

	"github.com/inferloop/tsforecast/pkg/models"
)

// Cache holds raw table snapshots keyed by a stable hash of their source.
// Implementations must be safe for concurrent use; a Get never observes a
// partially written entry.
type Cache interface {
	// Get returns the cached table, or nil and false when absent or expired
	Get(ctx context.Context, key string) (*models.RawTable, bool, error)

	// Set inserts or replaces the entry for key
	Set(ctx context.Context, key string, value *models.RawTable) error

	// Clear removes every entry
	Clear(ctx context.Context) error

	// SweepExpired evicts expired entries and reports how many were removed
	SweepExpired(ctx context.Context) (int, error)

	// Close releases resources held by the cache
	Close() error
}

// CacheStats contains cache counters exposed on the health endpoint
type CacheStats struct {
	Backend string        `json:"backend"`
	Entries int           `json:"entries"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	Sets    int64         `json:"sets"`
	Evicted int64         `json:"evicted"`
	TTL     time.Duration `json:"ttl"`
}

// StatsProvider is implemented by caches that can report CacheStats
type StatsProvider interface {
	Stats(ctx context.Context) (*CacheStats, error)
}
