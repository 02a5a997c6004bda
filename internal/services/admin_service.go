package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"poolmarket/internal/blockchain"
	"poolmarket/internal/models"
	"poolmarket/internal/repository"
	"poolmarket/internal/session"
	"poolmarket/internal/settlement"
)

// AdminService runs the owner-only market lifecycle actions
type AdminService struct {
	repo      *repository.Repository
	contracts *blockchain.Registry
	markets   *MarketService
	diag      blockchain.Diagnoser
	logger    *zap.Logger
	now       func() time.Time
}

func NewAdminService(repo *repository.Repository, contracts *blockchain.Registry, markets *MarketService, diag blockchain.Diagnoser, logger *zap.Logger) *AdminService {
	return &AdminService{
		repo:      repo,
		contracts: contracts,
		markets:   markets,
		diag:      diag,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source used by the lifecycle guards.
func (s *AdminService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// IsAdmin reports whether the session's wallet owns the market's contract or
// has an admin_users row. With a nil market any contract owner qualifies.
func (s *AdminService) IsAdmin(ctx context.Context, sess *session.Session, market *models.Market) (bool, error) {
	if _, err := s.repo.GetAdminByUserID(ctx, sess.UserID); err == nil {
		return true, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	markets := []models.Market{}
	if market != nil {
		markets = append(markets, *market)
	} else {
		all, err := s.repo.ListMarkets(ctx, "")
		if err != nil {
			return false, err
		}
		markets = all
	}

	for i := range markets {
		contract, err := contractFor(s.contracts, &markets[i])
		if err != nil {
			continue
		}
		owner, err := contract.Owner(ctx)
		if err != nil {
			s.logger.Warn("failed to read contract owner",
				zap.Uint("market_id", markets[i].ID),
				zap.Error(err),
			)
			continue
		}
		if strings.EqualFold(owner, sess.WalletAddress) {
			return true, nil
		}
	}
	return false, nil
}

func (s *AdminService) requireAdmin(ctx context.Context, sess *session.Session, market *models.Market) error {
	ok, err := s.IsAdmin(ctx, sess, market)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *AdminService) loadForAdmin(ctx context.Context, sess *session.Session, idOrSlug string) (*models.Market, error) {
	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}
	if err := s.requireAdmin(ctx, sess, market); err != nil {
		return nil, err
	}
	return market, nil
}

func lifecycleOf(m *models.Market) *settlement.Lifecycle {
	return &settlement.Lifecycle{
		EndTime:  m.EndTime,
		Resolved: m.Resolved,
		Winner:   m.WinningOutcome,
		Epoch:    m.Epoch,
	}
}

// ============================================================================
// LIFECYCLE ACTIONS
// ============================================================================

// StartBetting opens a market for durationMinutes on the contract, then in
// the store.
func (s *AdminService) StartBetting(ctx context.Context, sess *session.Session, idOrSlug string, durationMinutes int64) (*models.AdminActionResult, error) {
	market, err := s.loadForAdmin(ctx, sess, idOrSlug)
	if err != nil {
		return nil, err
	}

	lc := lifecycleOf(market)
	if err := lc.Start(time.Duration(durationMinutes)*time.Minute, s.now()); err != nil {
		return nil, err
	}

	contract, err := contractFor(s.contracts, market)
	if err != nil {
		return nil, err
	}
	txHash, err := contract.StartBetting(ctx, durationMinutes)
	if err != nil {
		return nil, err
	}

	endTime := lc.EndTime
	if onChain, err := contract.EndTime(ctx); err == nil && onChain > 0 {
		endTime = onChain
	} else if err != nil {
		s.logger.Warn("failed to read endTime after start", zap.Uint("market_id", market.ID), zap.Error(err))
	}

	if err := s.repo.StartMarket(ctx, market.ID, endTime); err != nil {
		return nil, err
	}

	s.audit(ctx, sess, models.AdminActionStart, market.ID, txHash, models.JSONB{
		"duration_minutes": durationMinutes,
		"end_time":         endTime,
	})
	return s.result(ctx, models.AdminActionStart, market.ID, txHash)
}

// ResolveMarket records the winning outcome on the contract and in the store.
func (s *AdminService) ResolveMarket(ctx context.Context, sess *session.Session, idOrSlug, outcome string) (*models.AdminActionResult, error) {
	market, err := s.loadForAdmin(ctx, sess, idOrSlug)
	if err != nil {
		return nil, err
	}

	lc := lifecycleOf(market)
	if err := lc.Resolve(outcome, market.OutcomeNames(), s.now()); err != nil {
		return nil, err
	}

	contract, err := contractFor(s.contracts, market)
	if err != nil {
		return nil, err
	}
	txHash, err := contract.ResolveMarket(ctx, lc.Winner)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ResolveMarket(ctx, market.ID, lc.Winner); err != nil {
		return nil, err
	}

	s.audit(ctx, sess, models.AdminActionResolve, market.ID, txHash, models.JSONB{
		"outcome": lc.Winner,
	})
	return s.result(ctx, models.AdminActionResolve, market.ID, txHash)
}

// RestartMarket zeroes all pools, clears the resolution and starts a new
// epoch. Bets and price history of earlier epochs are kept.
func (s *AdminService) RestartMarket(ctx context.Context, sess *session.Session, idOrSlug string) (*models.AdminActionResult, error) {
	market, err := s.loadForAdmin(ctx, sess, idOrSlug)
	if err != nil {
		return nil, err
	}

	if contract, err := contractFor(s.contracts, market); err == nil {
		if resetter, ok := contract.(blockchain.Resetter); ok {
			if err := resetter.Reset(ctx); err != nil {
				return nil, err
			}
		}
	}

	epoch, err := s.repo.ResetMarket(ctx, market.ID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, sess, models.AdminActionRestart, market.ID, "", models.JSONB{
		"previous_epoch": market.Epoch,
		"epoch":          epoch,
	})
	return s.result(ctx, models.AdminActionRestart, market.ID, "")
}

func (s *AdminService) result(ctx context.Context, action string, marketID uint, txHash string) (*models.AdminActionResult, error) {
	snapshot, err := s.markets.afterWrite(ctx, marketID, nil)
	if err != nil {
		return nil, err
	}
	return &models.AdminActionResult{
		Action: action,
		TxHash: txHash,
		Epoch:  snapshot.Epoch,
		Market: snapshot,
	}, nil
}

func (s *AdminService) audit(ctx context.Context, sess *session.Session, action string, marketID uint, txHash string, details models.JSONB) {
	id := marketID
	entry := &models.AdminLog{
		AdminAddress: sess.WalletAddress,
		Action:       action,
		ResourceType: "MARKET",
		ResourceID:   &id,
		TxHash:       txHash,
		Details:      details,
	}
	if err := s.repo.CreateAdminLog(ctx, entry); err != nil {
		s.logger.Error("failed to write admin log", zap.String("action", action), zap.Error(err))
		return
	}
	s.logger.Info("admin action",
		zap.String("action", action),
		zap.Uint("market_id", marketID),
		zap.String("admin", sess.WalletAddress),
		zap.String("tx_hash", txHash),
	)
}

// ============================================================================
// AUDIT AND DIAGNOSTICS
// ============================================================================

// ListAdminLogs returns the audit log
func (s *AdminService) ListAdminLogs(ctx context.Context, sess *session.Session, limit, offset int) ([]models.AdminLog, int64, error) {
	if err := s.requireAdmin(ctx, sess, nil); err != nil {
		return nil, 0, err
	}
	return s.repo.ListAdminLogs(ctx, limit, offset)
}

// Diagnostics checks the contract backend
func (s *AdminService) Diagnostics(ctx context.Context, sess *session.Session) (*blockchain.DiagnosticResult, error) {
	if err := s.requireAdmin(ctx, sess, nil); err != nil {
		return nil, err
	}
	return s.diag.RunDiagnostics(ctx), nil
}
