package settlement

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDerive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name     string
		endTime  int64
		resolved bool
		want     State
	}{
		{"pending", 0, false, StatePending},
		{"open", now.Unix() + 3600, false, StateOpen},
		{"closed one second ago", now.Unix() - 1, false, StateClosed},
		{"closed exactly at end", now.Unix(), false, StateClosed},
		{"resolved", now.Unix() - 10, true, StateResolved},
		{"resolved while pending", 0, true, StateResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(tt.endTime, tt.resolved, now); got != tt.want {
				t.Errorf("Derive() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCountdownScenario(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	closed := CountdownAt(now.Unix()-1, now)
	if closed.Active {
		t.Error("expected betting inactive after end time")
	}
	if closed.Label != LabelClosed {
		t.Errorf("expected %q, got %q", LabelClosed, closed.Label)
	}

	open := CountdownAt(now.Unix()+3600, now)
	if !open.Active {
		t.Error("expected betting active before end time")
	}
	if open.Label != "1h 00m" {
		t.Errorf("expected label 1h 00m, got %q", open.Label)
	}
	if open.Remaining != time.Hour {
		t.Errorf("expected 1h remaining, got %s", open.Remaining)
	}
}

func TestCountdownLabels(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		endTime int64
		want    string
	}{
		{0, LabelPending},
		{now.Unix() + 59, "00:59"},
		{now.Unix() + 61, "01:01"},
		{now.Unix() + 3599, "59:59"},
		{now.Unix() + 2*3600 + 5*60 + 30, "2h 05m"},
		{now.Unix() + 30*3600, "30h 00m"},
	}

	for _, tt := range tests {
		if got := CountdownAt(tt.endTime, now).Label; got != tt.want {
			t.Errorf("CountdownAt(+%d) = %q, want %q", tt.endTime-now.Unix(), got, tt.want)
		}
	}
}

func TestLifecycleStartResolveRestart(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := &Lifecycle{}

	if err := l.Start(0, now); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if err := l.Resolve("Yes", []string{"Yes", "No"}, now); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}

	if err := l.Start(30*time.Minute, now); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if l.EndTime != now.Unix()+1800 {
		t.Errorf("expected end time now+1800, got %d", l.EndTime)
	}
	if !l.AcceptsBets(now) {
		t.Error("expected market to accept bets while open")
	}
	if err := l.Start(time.Minute, now); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("expected ErrAlreadyOpen, got %v", err)
	}

	if err := l.Resolve("yes", []string{"Yes", "No"}, now); !errors.Is(err, ErrBettingOpen) {
		t.Errorf("expected ErrBettingOpen while open, got %v", err)
	}
	if l.Resolved || l.Winner != "" {
		t.Error("rejected resolve must not change the lifecycle")
	}

	now = now.Add(30 * time.Minute)
	if l.State(now) != StateClosed {
		t.Fatalf("expected closed at end time, got %s", l.State(now))
	}
	if err := l.Resolve("maybe", []string{"Yes", "No"}, now); !errors.Is(err, ErrUnknownOutcome) {
		t.Errorf("expected ErrUnknownOutcome, got %v", err)
	}
	if err := l.Resolve("yes", []string{"Yes", "No"}, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if l.Winner != "Yes" {
		t.Errorf("expected canonical winner Yes, got %q", l.Winner)
	}
	if l.AcceptsBets(now) {
		t.Error("resolved market must reject bets")
	}
	if err := l.Resolve("No", []string{"Yes", "No"}, now); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
	if err := l.Start(time.Minute, now); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved on start, got %v", err)
	}

	l.Restart()
	if l.State(now) != StatePending {
		t.Errorf("expected pending after restart, got %s", l.State(now))
	}
	if l.Epoch != 1 {
		t.Errorf("expected epoch 1, got %d", l.Epoch)
	}
	if l.Winner != "" || l.Resolved {
		t.Error("expected resolution cleared after restart")
	}
}

func TestLifecycleReopenClosedMarket(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := &Lifecycle{EndTime: now.Unix() - 60}

	if l.State(now) != StateClosed {
		t.Fatalf("expected closed, got %s", l.State(now))
	}
	if err := l.Start(10*time.Minute, now); err != nil {
		t.Fatalf("expected closed market to reopen, got %v", err)
	}
	if l.State(now) != StateOpen {
		t.Errorf("expected open, got %s", l.State(now))
	}
}

func TestHasWinningBet(t *testing.T) {
	if HasWinningBet(true, "Yes", 0) {
		t.Error("expected no winning bet with zero stake")
	}
	if !HasWinningBet(true, "Yes", 0.01) {
		t.Error("expected winning bet with positive stake")
	}
	if HasWinningBet(false, "Yes", 5) {
		t.Error("unresolved market has no winning bet")
	}
	if HasWinningBet(true, "", 5) {
		t.Error("resolved market without winner has no winning bet")
	}
}

func TestTickerStopsWhenClosed(t *testing.T) {
	tk := NewTicker(time.Now().Unix()-5, 10*time.Millisecond)

	var got []Countdown
	done := make(chan struct{})
	go func() {
		tk.Run(context.Background(), func(cd Countdown) { got = append(got, cd) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop for a closed market")
	}

	if len(got) != 1 || got[0].Active {
		t.Errorf("expected a single inactive countdown, got %+v", got)
	}
}

func TestTickerStopsAtZero(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	calls := 0
	tk := NewTicker(base.Unix()+2, time.Millisecond)
	tk.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * time.Second)
	}

	var labels []string
	tk.Run(context.Background(), func(cd Countdown) { labels = append(labels, cd.Label) })

	want := []string{"00:02", "00:01", LabelClosed}
	if len(labels) != len(want) {
		t.Fatalf("expected %v, got %v", want, labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("tick %d: expected %q, got %q", i, want[i], labels[i])
		}
	}
}

func TestTickerStopsOnCancel(t *testing.T) {
	tk := NewTicker(time.Now().Add(time.Hour).Unix(), 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		tk.Run(ctx, func(Countdown) {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop after cancel")
	}
}
