package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"poolmarket/internal/blockchain"
	"poolmarket/internal/models"
	"poolmarket/internal/pricing"
	"poolmarket/internal/repository"
)

// ReconcileService overwrites stored market state with what the contract
// reports. Local writes after a bet are provisional until this runs.
type ReconcileService struct {
	repo      *repository.Repository
	contracts *blockchain.Registry
	markets   *MarketService
	logger    *zap.Logger
}

func NewReconcileService(repo *repository.Repository, contracts *blockchain.Registry, markets *MarketService, logger *zap.Logger) *ReconcileService {
	return &ReconcileService{
		repo:      repo,
		contracts: contracts,
		markets:   markets,
		logger:    logger,
	}
}

// ReconcileMarket re-reads one market. A market that was restarted and not
// yet started again is skipped: its contract still holds the previous round.
func (s *ReconcileService) ReconcileMarket(ctx context.Context, marketID uint) error {
	market, err := s.repo.GetMarket(ctx, marketID)
	if err != nil {
		return marketErr(err)
	}
	if market.ContractAddress == "" {
		return nil
	}
	if market.EndTime == 0 && market.Epoch > 0 {
		return nil
	}

	contract, err := contractFor(s.contracts, market)
	if err != nil {
		return err
	}
	state, err := blockchain.ReadState(ctx, contract, market.OutcomeNames())
	if err != nil {
		return fmt.Errorf("failed to read contract for market %d: %w", market.ID, err)
	}

	changed, err := s.apply(ctx, market, state)
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("market reconciled", zap.Uint("market_id", market.ID))
		s.markets.Publish(ctx, market.ID)
	}
	return nil
}

func (s *ReconcileService) apply(ctx context.Context, market *models.Market, state *blockchain.State) (bool, error) {
	changed := false

	winner := ""
	if state.Resolved {
		winner = state.Winner
		if c, ok := market.CandidateByOutcome(state.Winner); ok {
			winner = c.Outcome()
		}
	}
	if state.EndTime != market.EndTime || state.Resolved != market.Resolved || winner != market.WinningOutcome {
		if err := s.repo.SyncMarketState(ctx, market.ID, state.EndTime, state.Resolved, winner); err != nil {
			return false, err
		}
		changed = true
	}

	for _, c := range market.Candidates {
		total, ok := state.OutcomeTotals[c.Outcome()]
		if !ok {
			continue
		}
		pool := pricing.FromWei(total).Mul(market.UnitPriceUSD).Round(8)
		if pool.Equal(c.PoolAmount) {
			continue
		}
		if err := s.repo.UpdatePoolAmount(ctx, c.ID, pool); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// ReconcileAll re-reads every market. One failing market does not stop the
// others.
func (s *ReconcileService) ReconcileAll(ctx context.Context) error {
	markets, err := s.repo.ListMarkets(ctx, "")
	if err != nil {
		return err
	}

	var errs []error
	for _, m := range markets {
		if err := s.ReconcileMarket(ctx, m.ID); err != nil {
			s.logger.Warn("reconcile failed", zap.Uint("market_id", m.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
