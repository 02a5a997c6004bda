package settlement

import (
	"context"
	"fmt"
	"time"
)

const (
	LabelPending = "Market Pending"
	LabelClosed  = "Betting Closed"
)

// Countdown is the display state of the betting window.
type Countdown struct {
	Active    bool          `json:"active"`
	Remaining time.Duration `json:"remaining"`
	Label     string        `json:"label"`
}

// CountdownAt formats the time left until endTime.
func CountdownAt(endTime int64, now time.Time) Countdown {
	if endTime == 0 {
		return Countdown{Label: LabelPending}
	}

	diff := endTime - now.Unix()
	if diff <= 0 {
		return Countdown{Label: LabelClosed}
	}

	hours := diff / 3600
	minutes := (diff % 3600) / 60
	seconds := diff % 60

	label := fmt.Sprintf("%02d:%02d", minutes, seconds)
	if hours > 0 {
		label = fmt.Sprintf("%dh %02dm", hours, minutes)
	}

	return Countdown{
		Active:    true,
		Remaining: time.Duration(diff) * time.Second,
		Label:     label,
	}
}

// Ticker re-derives the countdown on a fixed interval.
type Ticker struct {
	endTime  int64
	interval time.Duration
	now      func() time.Time
}

// NewTicker creates a ticker for endTime. interval defaults to one second.
func NewTicker(endTime int64, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{endTime: endTime, interval: interval, now: time.Now}
}

// Run emits the current countdown immediately and then once per interval.
// It returns after emitting an inactive countdown or when ctx is done.
func (t *Ticker) Run(ctx context.Context, emit func(Countdown)) {
	cd := CountdownAt(t.endTime, t.now())
	emit(cd)
	if !cd.Active {
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cd = CountdownAt(t.endTime, t.now())
			emit(cd)
			if !cd.Active {
				return
			}
		}
	}
}
