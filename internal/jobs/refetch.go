package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DelayedRefetch re-reads a market from its contract some time after a write,
// once the chain has caught up. Repeated schedules for the same market within
// the delay collapse into one refetch.
type DelayedRefetch struct {
	delay   time.Duration
	fetch   func(ctx context.Context, marketID uint) error
	baseCtx context.Context
	logger  *zap.Logger

	mu     sync.Mutex
	timers map[uint]*time.Timer
}

func NewDelayedRefetch(baseCtx context.Context, delay time.Duration, fetch func(ctx context.Context, marketID uint) error, logger *zap.Logger) *DelayedRefetch {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &DelayedRefetch{
		delay:   delay,
		fetch:   fetch,
		baseCtx: baseCtx,
		logger:  logger,
		timers:  make(map[uint]*time.Timer),
	}
}

// Schedule arms (or re-arms) the refetch timer for marketID.
func (d *DelayedRefetch) Schedule(marketID uint) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[marketID]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[marketID] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, marketID)
		d.mu.Unlock()

		if d.baseCtx.Err() != nil {
			return
		}
		if err := d.fetch(d.baseCtx, marketID); err != nil {
			d.logger.Warn("delayed refetch failed", zap.Uint("market_id", marketID), zap.Error(err))
		}
	})
}

// Pending returns the number of armed timers.
func (d *DelayedRefetch) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels every armed timer.
func (d *DelayedRefetch) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}
