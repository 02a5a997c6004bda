// Package pricing holds the pool pricing models used by markets: the
// pari-mutuel multi-outcome pool and the binary yes/no pool. Everything in
// here is pure arithmetic over pool sizes; persistence lives elsewhere.
package pricing

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOutcome = errors.New("unknown outcome")
	ErrInvalidAmount  = errors.New("amount must be greater than 0")
	ErrNoOutcomes     = errors.New("market has no outcomes")
)

// Outcome is one candidate in a pari-mutuel pool.
type Outcome struct {
	ID   uint
	Name string
	Pool float64
}

// OutcomeStats is the listing view of an outcome.
type OutcomeStats struct {
	ID                 uint    `json:"id"`
	Name               string  `json:"name"`
	Pool               float64 `json:"pool"`
	Probability        float64 `json:"probability"`
	ProbabilityPercent float64 `json:"probability_percent"`
	Multiplier         float64 `json:"multiplier"`
}

// Projection is the quote for a hypothetical stake on one outcome.
type Projection struct {
	Amount              float64 `json:"amount"`
	ProjectedMultiplier float64 `json:"projected_multiplier"`
	EstimatedPayout     float64 `json:"estimated_payout"`
}

// Parimutuel is a pool where every stake on every outcome is pooled and the
// winners split the total in proportion to their stake.
type Parimutuel struct {
	outcomes []Outcome
	index    map[uint]int
}

// NewParimutuel builds a pool from the given outcomes. Pools below zero are
// clamped to zero.
func NewParimutuel(outcomes []Outcome) (*Parimutuel, error) {
	if len(outcomes) == 0 {
		return nil, ErrNoOutcomes
	}

	p := &Parimutuel{
		outcomes: make([]Outcome, len(outcomes)),
		index:    make(map[uint]int, len(outcomes)),
	}
	for i, o := range outcomes {
		if _, dup := p.index[o.ID]; dup {
			return nil, fmt.Errorf("duplicate outcome id %d", o.ID)
		}
		if o.Pool < 0 {
			o.Pool = 0
		}
		p.outcomes[i] = o
		p.index[o.ID] = i
	}
	return p, nil
}

// Total is the sum of every outcome pool. It is never stored separately.
func (p *Parimutuel) Total() float64 {
	var total float64
	for _, o := range p.outcomes {
		total += o.Pool
	}
	return total
}

// Pool returns the current pool of an outcome.
func (p *Parimutuel) Pool(id uint) (float64, error) {
	i, ok := p.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownOutcome, id)
	}
	return p.outcomes[i].Pool, nil
}

// Probability is pool/total, or 1/N while nothing has been staked.
func (p *Parimutuel) Probability(id uint) (float64, error) {
	pool, err := p.Pool(id)
	if err != nil {
		return 0, err
	}
	total := p.Total()
	if total == 0 {
		return 1 / float64(len(p.outcomes)), nil
	}
	return pool / total, nil
}

// Multiplier is total/pool. An outcome nobody has staked on has no
// multiplier yet and reports 0.
func (p *Parimutuel) Multiplier(id uint) (float64, error) {
	pool, err := p.Pool(id)
	if err != nil {
		return 0, err
	}
	if pool <= 0 {
		return 0, nil
	}
	return p.Total() / pool, nil
}

// Project quotes a stake without applying it. The division is against the
// post-bet pool, so a zero-pool outcome still gets a defined quote for any
// positive amount.
func (p *Parimutuel) Project(id uint, amount float64) (*Projection, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := p.Pool(id)
	if err != nil {
		return nil, err
	}

	projectedPool := pool + amount
	projection := &Projection{Amount: amount}
	if projectedPool > 0 {
		projection.ProjectedMultiplier = (p.Total() + amount) / projectedPool
	}
	projection.EstimatedPayout = amount * projection.ProjectedMultiplier
	return projection, nil
}

// PlaceBet adds amount to the outcome pool. Every other outcome's odds move
// with it because the total changes.
func (p *Parimutuel) PlaceBet(id uint, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	i, ok := p.index[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOutcome, id)
	}
	p.outcomes[i].Pool += amount
	return nil
}

// Stats returns the listing view of every outcome in input order.
func (p *Parimutuel) Stats() []OutcomeStats {
	stats := make([]OutcomeStats, 0, len(p.outcomes))
	for _, o := range p.outcomes {
		prob, _ := p.Probability(o.ID)
		mult, _ := p.Multiplier(o.ID)
		stats = append(stats, OutcomeStats{
			ID:                 o.ID,
			Name:               o.Name,
			Pool:               o.Pool,
			Probability:        prob,
			ProbabilityPercent: prob * 100,
			Multiplier:         mult,
		})
	}
	return stats
}
