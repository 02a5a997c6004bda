package services

import (
	"errors"
	"fmt"

	"poolmarket/internal/blockchain"
	"poolmarket/internal/models"
	"poolmarket/internal/repository"
)

var (
	ErrMarketNotFound    = errors.New("market not found")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrMarketClosed      = errors.New("betting is closed for this market")
	ErrWrongChain        = errors.New("wallet is on the wrong network")
	ErrForbidden         = errors.New("admin rights required")
	ErrNoContract        = errors.New("market has no contract")
	ErrTxRequired        = errors.New("transaction hash required")
	ErrTxAlreadyUsed     = errors.New("transaction already recorded")
	ErrOutcomeMismatch   = errors.New("transaction outcome does not match the candidate")
	ErrInvalidNonce      = errors.New("login nonce missing or expired")
	ErrUnauthorized      = errors.New("signature verification failed")
	ErrUserNotFound      = errors.New("user not found")
)

// WrongChainError carries the chain the wallet has to switch to.
type WrongChainError struct {
	Expected int64
	Actual   int64
}

func (e *WrongChainError) Error() string {
	return fmt.Sprintf("wallet is on chain %d, switch to %d", e.Actual, e.Expected)
}

func (e *WrongChainError) Is(target error) bool {
	return target == ErrWrongChain
}

func marketErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrMarketNotFound
	}
	return err
}

// contractFor returns the contract client bound to a market.
func contractFor(reg *blockchain.Registry, m *models.Market) (blockchain.Contract, error) {
	if m.ContractAddress == "" {
		return nil, ErrNoContract
	}
	winner := blockchain.WinnerOutcome
	if m.PricingModel == models.PricingParimutuel {
		winner = blockchain.WinnerCandidate
	}
	return reg.Get(m.ContractAddress, winner)
}

// Publisher pushes market snapshots to live subscribers.
type Publisher interface {
	PublishMarket(snapshot *models.MarketSnapshot)
}

// RefetchScheduler re-reads a market from its contract after the staleness
// window.
type RefetchScheduler interface {
	Schedule(marketID uint)
}

type noopPublisher struct{}

func (noopPublisher) PublishMarket(*models.MarketSnapshot) {}

type noopScheduler struct{}

func (noopScheduler) Schedule(uint) {}
