package attachments

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zooyoda/workspace-mcp/internal/instrumentation"
)

const (
	// DefaultBaseInterval is the scheduler's starting sweep period.
	DefaultBaseInterval = 5 * time.Minute
	// DefaultMaxInterval caps how far the sweep period can stretch.
	DefaultMaxInterval = time.Hour

	// slowCleanupThreshold marks a sweep as expensive; expensive sweeps
	// stretch the interval as load shedding.
	slowCleanupThreshold = 100 * time.Millisecond

	// immediateCleanupFraction of capacity triggers an out-of-band sweep.
	immediateCleanupFraction = 0.9
)

// CleanupScheduler sweeps a MetadataIndex on a self-tuning timer. Write
// pressure observed through NotifyActivity shrinks the period toward the base
// interval; idle periods stretch it toward the max.
type CleanupScheduler struct {
	mu        sync.Mutex
	index     *MetadataIndex
	base      time.Duration
	max       time.Duration
	interval  time.Duration
	lastSize  int
	lastSweep time.Time
	timer     *time.Timer
	running   bool
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewCleanupScheduler creates a scheduler with the default base and max
// intervals.
func NewCleanupScheduler(index *MetadataIndex, metrics *instrumentation.Metrics, logger *slog.Logger) *CleanupScheduler {
	return NewCleanupSchedulerWith(index, DefaultBaseInterval, DefaultMaxInterval, metrics, logger)
}

// NewCleanupSchedulerWith creates a scheduler with explicit intervals, used
// by tests.
func NewCleanupSchedulerWith(index *MetadataIndex, base, max time.Duration, metrics *instrumentation.Metrics, logger *slog.Logger) *CleanupScheduler {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupScheduler{
		index:    index,
		base:     base,
		max:      max,
		interval: base,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Start arms the timer. Starting a running scheduler is a no-op.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.timer = time.AfterFunc(s.interval, s.tick)
}

// Stop disarms the timer. The scheduler can be restarted afterwards.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.timer.Stop()
	s.timer = nil
}

// Interval returns the current sweep period.
func (s *CleanupScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// NotifyActivity tells the scheduler the index was just written to. Growth
// since the last notification shrinks the period by 25% (floored at the
// base); no growth stretches it by 25% (capped at the max). An index at 90%
// of capacity triggers an immediate sweep and a timer reset.
func (s *CleanupScheduler) NotifyActivity() {
	size := s.index.Len()

	s.mu.Lock()
	grew := size > s.lastSize
	s.lastSize = size

	if grew {
		s.interval = maxDuration(s.base, s.interval*3/4)
	} else {
		s.interval = minDuration(s.max, s.interval*5/4)
	}

	nearCapacity := float64(size) >= float64(s.index.Capacity())*immediateCleanupFraction
	running := s.running
	s.mu.Unlock()

	if nearCapacity {
		s.sweep(true)
		if running {
			s.reschedule()
		}
	}
}

// tick is the timer callback: sweep, then re-arm.
func (s *CleanupScheduler) tick() {
	s.sweep(false)

	s.mu.Lock()
	if s.running {
		s.timer = time.AfterFunc(s.interval, s.tick)
	}
	s.mu.Unlock()
}

// sweep runs one cleanup pass. Unless forced, a pass is skipped when less
// than half a base interval has elapsed since the previous one. A pass that
// takes over the slow threshold stretches the interval by 50%.
func (s *CleanupScheduler) sweep(force bool) {
	s.mu.Lock()
	if !force && !s.lastSweep.IsZero() && s.now().Sub(s.lastSweep) < s.base/2 {
		s.mu.Unlock()
		return
	}
	s.lastSweep = s.now()
	s.mu.Unlock()

	start := s.now()
	removed := s.index.CleanExpired()
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	if elapsed > slowCleanupThreshold {
		s.interval = minDuration(s.max, s.interval*3/2)
	}
	interval := s.interval
	s.mu.Unlock()

	s.metrics.RecordIndexSweep(context.Background(), removed, elapsed)
	s.logger.Debug("attachment index sweep",
		slog.Int("removed", removed),
		slog.Duration("elapsed", elapsed),
		slog.Duration("next_interval", interval))
}

func (s *CleanupScheduler) reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.timer.Stop()
	s.timer = time.AfterFunc(s.interval, s.tick)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
