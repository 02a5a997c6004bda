// Package blockchain talks to the betting contract that backs each market and
// verifies wallet signatures for login.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

var (
	ErrTxPending      = errors.New("transaction is still pending")
	ErrTxMismatch     = errors.New("transaction does not match the request")
	ErrNoOperatorKey  = errors.New("operator key not configured")
	ErrInvalidAddress = errors.New("invalid contract address")
)

// RevertError is a call the contract rejected. ShortMessage is the revert
// reason suitable for showing to a user.
type RevertError struct {
	ShortMessage string
	Err          error
}

func (e *RevertError) Error() string {
	return "contract revert: " + e.ShortMessage
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

func revert(msg string) error {
	return &RevertError{ShortMessage: msg}
}

// WinnerGetter is the name of the view that reports the winning outcome.
// Multi-candidate contracts expose winningCandidate, binary ones
// winningOutcome.
type WinnerGetter string

const (
	WinnerCandidate WinnerGetter = "winningCandidate"
	WinnerOutcome   WinnerGetter = "winningOutcome"
)

// Reader is the read side of a betting contract.
type Reader interface {
	Owner(ctx context.Context) (string, error)
	EndTime(ctx context.Context) (int64, error)
	MarketResolved(ctx context.Context) (bool, error)
	Winner(ctx context.Context) (string, error)
	TotalPool(ctx context.Context) (*big.Int, error)
	OutcomeTotal(ctx context.Context, outcome string) (*big.Int, error)
	UserBet(ctx context.Context, user, outcome string) (*big.Int, error)
}

// Operator sends owner-only transactions signed by the server key.
type Operator interface {
	StartBetting(ctx context.Context, durationMinutes int64) (string, error)
	ResolveMarket(ctx context.Context, outcome string) (string, error)
}

// BetTx is a verified placeBet transaction.
type BetTx struct {
	Hash    string
	From    string
	Outcome string
	Value   *big.Int
}

// Verifier checks transactions that wallets sent themselves.
type Verifier interface {
	VerifyBet(ctx context.Context, txHash, from string) (*BetTx, error)
	VerifyClaim(ctx context.Context, txHash, from string) error
}

// Contract is a deployed betting contract.
type Contract interface {
	Reader
	Operator
	Verifier
}

// Bettor is implemented by contracts that can take bets and claims on behalf
// of a wallet, which only the simulated contract does. Callers simulate
// before placing, the same way a wallet would.
type Bettor interface {
	SimulateBet(ctx context.Context, from, outcome string, value *big.Int) error
	PlaceBet(ctx context.Context, from, outcome string, value *big.Int) (string, error)
	Claim(ctx context.Context, from string) (string, error)
}

// Resetter clears contract state for a new round.
type Resetter interface {
	Reset(ctx context.Context) error
}

// State is everything the reconciler reads from a contract in one pass.
type State struct {
	EndTime       int64
	Resolved      bool
	Winner        string
	TotalPool     *big.Int
	OutcomeTotals map[string]*big.Int
}

// ReadState reads lifecycle fields and per-outcome totals.
func ReadState(ctx context.Context, r Reader, outcomes []string) (*State, error) {
	endTime, err := r.EndTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read endTime: %w", err)
	}
	resolved, err := r.MarketResolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read marketResolved: %w", err)
	}

	state := &State{
		EndTime:       endTime,
		Resolved:      resolved,
		OutcomeTotals: make(map[string]*big.Int, len(outcomes)),
	}
	if resolved {
		if state.Winner, err = r.Winner(ctx); err != nil {
			return nil, fmt.Errorf("failed to read winner: %w", err)
		}
	}
	if state.TotalPool, err = r.TotalPool(ctx); err != nil {
		return nil, fmt.Errorf("failed to read totalPool: %w", err)
	}
	for _, o := range outcomes {
		total, err := r.OutcomeTotal(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("failed to read outcomeTotals(%s): %w", o, err)
		}
		state.OutcomeTotals[o] = total
	}
	return state, nil
}

// Factory builds a contract client for an address.
type Factory func(address string, winner WinnerGetter) (Contract, error)

// Registry caches one contract client per address.
type Registry struct {
	mu        sync.Mutex
	factory   Factory
	contracts map[string]Contract
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:   factory,
		contracts: make(map[string]Contract),
	}
}

// Get returns the cached client for address, creating it on first use.
func (r *Registry) Get(address string, winner WinnerGetter) (Contract, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return nil, ErrInvalidAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.contracts[key]; ok {
		return c, nil
	}
	c, err := r.factory(address, winner)
	if err != nil {
		return nil, err
	}
	r.contracts[key] = c
	return c, nil
}

// Put registers a client explicitly.
func (r *Registry) Put(address string, c Contract) {
	r.mu.Lock()
	r.contracts[strings.ToLower(strings.TrimSpace(address))] = c
	r.mu.Unlock()
}
