package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// Sweeper periodically evicts expired cache entries until its context ends
type Sweeper struct {
	cache    interfaces.Cache
	interval time.Duration
	logger   *logrus.Logger
	onSweep  func(removed int)
	done     chan struct{}
}

// NewSweeper creates a sweeper for the given cache
func NewSweeper(c interfaces.Cache, interval time.Duration, logger *logrus.Logger) *Sweeper {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sweeper{
		cache:    c,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// OnSweep registers a callback invoked after every successful sweep
func (s *Sweeper) OnSweep(fn func(removed int)) {
	s.onSweep = fn
}

// Start runs the sweep loop in a goroutine. A non-positive interval disables it.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.cache.SweepExpired(ctx)
				if err != nil {
					s.logger.WithError(err).Warn("Cache sweep failed")
					continue
				}
				if removed > 0 {
					s.logger.WithField("removed", removed).Debug("Swept expired cache entries")
				}
				if s.onSweep != nil {
					s.onSweep(removed)
				}
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited
func (s *Sweeper) Wait() {
	<-s.done
}
