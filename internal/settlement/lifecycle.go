// Package settlement implements the market lifecycle: pending, open, closed
// and resolved, the countdown shown while betting is open, and claim
// eligibility once a winner is known.
package settlement

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the derived status of a market at a point in time.
type State string

const (
	StatePending  State = "pending"
	StateOpen     State = "open"
	StateClosed   State = "closed"
	StateResolved State = "resolved"
)

var (
	ErrInvalidDuration = errors.New("duration must be greater than 0")
	ErrAlreadyOpen     = errors.New("betting is already open")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrNotStarted      = errors.New("market has not started")
	ErrBettingOpen     = errors.New("betting is live, cannot resolve yet")
	ErrUnknownOutcome  = errors.New("unknown outcome")
)

// Derive computes the status from stored fields. Open to closed is never
// written anywhere; it happens when now passes endTime.
func Derive(endTime int64, resolved bool, now time.Time) State {
	switch {
	case resolved:
		return StateResolved
	case endTime == 0:
		return StatePending
	case now.Unix() < endTime:
		return StateOpen
	default:
		return StateClosed
	}
}

// Lifecycle is the settlement state of one market epoch.
type Lifecycle struct {
	EndTime  int64
	Resolved bool
	Winner   string
	Epoch    int
}

// State derives the current status.
func (l *Lifecycle) State(now time.Time) State {
	return Derive(l.EndTime, l.Resolved, now)
}

// Start opens betting for duration. It is allowed from pending and from
// closed (an unresolved market can be reopened); a resolved epoch has to be
// restarted first.
func (l *Lifecycle) Start(duration time.Duration, now time.Time) error {
	if duration <= 0 {
		return ErrInvalidDuration
	}
	switch l.State(now) {
	case StateOpen:
		return ErrAlreadyOpen
	case StateResolved:
		return ErrAlreadyResolved
	}
	l.EndTime = now.Add(duration).Unix()
	return nil
}

// Resolve fixes the winning outcome. Only a closed market can be resolved.
// outcomes is the set of valid outcome names; matching is case-insensitive
// and the canonical spelling is stored.
func (l *Lifecycle) Resolve(outcome string, outcomes []string, now time.Time) error {
	switch l.State(now) {
	case StateResolved:
		return ErrAlreadyResolved
	case StatePending:
		return ErrNotStarted
	case StateOpen:
		return ErrBettingOpen
	}

	for _, o := range outcomes {
		if strings.EqualFold(o, strings.TrimSpace(outcome)) {
			l.Resolved = true
			l.Winner = o
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
}

// Restart returns the market to pending under a new epoch.
func (l *Lifecycle) Restart() {
	l.EndTime = 0
	l.Resolved = false
	l.Winner = ""
	l.Epoch++
}

// AcceptsBets reports whether a bet may be placed now.
func (l *Lifecycle) AcceptsBets(now time.Time) bool {
	return l.State(now) == StateOpen
}

// HasWinningBet is true when the market is resolved with a winner and the
// user has a positive stake on it.
func HasWinningBet(resolved bool, winner string, stakeOnWinner float64) bool {
	return resolved && winner != "" && stakeOnWinner > 0
}
