/*
scheduler.go - Periodic backup snapshots

PURPOSE:
  Keeps the snapshot file fresh without putting any disk I/O on the request
  path. Admins can also ask for a snapshot right away (Trigger).

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Snapshots once immediately on start
  - Trigger runs one snapshot asynchronously; overlapping runs are coalesced
  - After Stop, Trigger refuses work until the next Start

USAGE:
  scheduler := backup.NewScheduler(gateway, 30*time.Minute, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - gateway.go: SnapshotLatest
  - api/handlers.go: POST /api/admin/snapshot
*/
package backup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives Gateway.SnapshotLatest.
type Scheduler struct {
	Gateway  *Gateway
	Interval time.Duration
	Enabled  bool

	logger  *zap.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	running atomic.Bool
}

// NewScheduler creates a scheduler. An interval <= 0 defaults to one hour.
func NewScheduler(gateway *Gateway, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Gateway:  gateway,
		Interval: interval,
		Enabled:  true,
		logger:   logger,
	}
}

// Start begins the periodic loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = false
	if !s.Enabled {
		s.logger.Info("backup scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.logger.Info("backup scheduler started", zap.Duration("interval", s.Interval))
}

// Stop ends the loop and waits for in-flight snapshots.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.ticker = nil
	}
	s.stopped = true
	s.wg.Wait()
	s.logger.Info("backup scheduler stopped")
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow()

	for {
		select {
		case <-ticker.C:
			s.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow snapshots synchronously. It reports false when another snapshot
// was already running and this call did nothing.
func (s *Scheduler) RunNow() bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("snapshot already running, skipped")
		return false
	}
	defer s.running.Store(false)

	s.Gateway.SnapshotLatest(context.Background())
	return true
}

// Trigger starts a snapshot in the background and returns immediately. It
// reports false, and does nothing, between Stop and the next Start.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunNow()
	}()
	return true
}
