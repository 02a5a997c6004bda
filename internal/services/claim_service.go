package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"poolmarket/internal/blockchain"
	"poolmarket/internal/models"
	"poolmarket/internal/pricing"
	"poolmarket/internal/repository"
	"poolmarket/internal/session"
	"poolmarket/internal/settlement"
)

// ClaimService checks and executes payouts. The contract decides who may
// claim; a claim transaction is only recorded once.
type ClaimService struct {
	repo      *repository.Repository
	contracts *blockchain.Registry
	markets   *MarketService
	logger    *zap.Logger
}

func NewClaimService(repo *repository.Repository, contracts *blockchain.Registry, markets *MarketService, logger *zap.Logger) *ClaimService {
	return &ClaimService{
		repo:      repo,
		contracts: contracts,
		markets:   markets,
		logger:    logger,
	}
}

// Eligibility reads resolution and the wallet's stake on the winner from the
// contract. A failed read is logged and reported as not eligible.
func (s *ClaimService) Eligibility(ctx context.Context, idOrSlug, address string) (*models.ClaimEligibility, error) {
	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}

	result := &models.ClaimEligibility{
		MarketID:    market.ID,
		UserAddress: strings.ToLower(address),
	}

	contract, err := contractFor(s.contracts, market)
	if err != nil {
		return nil, err
	}

	resolved, err := contract.MarketResolved(ctx)
	if err != nil {
		s.logger.Warn("failed to read marketResolved", zap.Uint("market_id", market.ID), zap.Error(err))
		return result, nil
	}
	result.Resolved = resolved
	if !resolved {
		return result, nil
	}

	winner, err := contract.Winner(ctx)
	if err != nil {
		s.logger.Warn("failed to read winner", zap.Uint("market_id", market.ID), zap.Error(err))
		return result, nil
	}
	result.WinningOutcome = winner

	stake, err := contract.UserBet(ctx, address, winner)
	if err != nil {
		s.logger.Warn("failed to read user bet", zap.Uint("market_id", market.ID), zap.Error(err))
		return result, nil
	}
	result.WinningStake = pricing.FromWei(stake).InexactFloat64()
	result.Eligible = settlement.HasWinningBet(resolved, winner, result.WinningStake)

	return result, nil
}

// Claim verifies a wallet-sent claim transaction, or claims through a
// contract that supports it, and records the result.
func (s *ClaimService) Claim(ctx context.Context, sess *session.Session, idOrSlug, txHash string) (*models.Claim, error) {
	if err := s.markets.CheckChain(sess); err != nil {
		return nil, err
	}

	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}
	contract, err := contractFor(s.contracts, market)
	if err != nil {
		return nil, err
	}

	if txHash != "" {
		if _, err := s.repo.GetClaimByTxHash(ctx, txHash); err == nil {
			return nil, ErrTxAlreadyUsed
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if err := contract.VerifyClaim(ctx, txHash, sess.WalletAddress); err != nil {
			return nil, err
		}
	} else {
		bettor, ok := contract.(blockchain.Bettor)
		if !ok {
			return nil, ErrTxRequired
		}
		if txHash, err = bettor.Claim(ctx, sess.WalletAddress); err != nil {
			return nil, err
		}
	}

	claim := &models.Claim{
		MarketID:    market.ID,
		Epoch:       market.Epoch,
		UserAddress: strings.ToLower(sess.WalletAddress),
		TxHash:      txHash,
	}
	if err := s.repo.CreateClaim(ctx, claim); err != nil {
		s.logger.Error("failed to record claim",
			zap.Uint("market_id", market.ID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
	}

	s.logger.Info("claim confirmed",
		zap.Uint("market_id", market.ID),
		zap.String("user", sess.WalletAddress),
		zap.String("tx_hash", txHash),
	)
	return claim, nil
}

// ClaimHistory lists the claims a wallet recorded on a market, newest first
func (s *ClaimService) ClaimHistory(ctx context.Context, idOrSlug, address string) ([]models.Claim, error) {
	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}
	return s.repo.ListClaims(ctx, market.ID, strings.ToLower(address))
}
