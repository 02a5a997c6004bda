package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"poolmarket/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// Store is the candidate pool surface the market pages read and write.
type Store interface {
	ListCandidates(ctx context.Context, category string) ([]models.Candidate, error)
	UpdatePoolAmount(ctx context.Context, candidateID uint, amount decimal.Decimal) error
	InsertCandidates(ctx context.Context, candidates []models.Candidate) error
	ResetMarket(ctx context.Context, marketID uint) (int, error)
}

var _ Store = (*Repository)(nil)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func orderedCandidates(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

// ============================================================================
// MARKETS
// ============================================================================

// CreateMarket inserts a market together with its candidates.
func (r *Repository) CreateMarket(ctx context.Context, market *models.Market) error {
	return r.db.WithContext(ctx).Create(market).Error
}

// GetMarket loads a market with its candidates.
func (r *Repository) GetMarket(ctx context.Context, id uint) (*models.Market, error) {
	var market models.Market
	err := r.db.WithContext(ctx).
		Preload("Candidates", orderedCandidates).
		First(&market, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &market, nil
}

// GetMarketBySlug loads a market by slug.
func (r *Repository) GetMarketBySlug(ctx context.Context, slug string) (*models.Market, error) {
	var market models.Market
	err := r.db.WithContext(ctx).
		Preload("Candidates", orderedCandidates).
		Where("slug = ?", slug).
		First(&market).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &market, nil
}

// GetMarketByContract loads the market deployed at address, ignoring case.
func (r *Repository) GetMarketByContract(ctx context.Context, address string) (*models.Market, error) {
	var market models.Market
	err := r.db.WithContext(ctx).
		Preload("Candidates", orderedCandidates).
		Where("LOWER(contract_address) = ?", strings.ToLower(strings.TrimSpace(address))).
		First(&market).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &market, nil
}

// FindMarket accepts a numeric id or a slug.
func (r *Repository) FindMarket(ctx context.Context, idOrSlug string) (*models.Market, error) {
	if id, err := strconv.ParseUint(idOrSlug, 10, 64); err == nil {
		return r.GetMarket(ctx, uint(id))
	}
	return r.GetMarketBySlug(ctx, idOrSlug)
}

// ListMarkets returns every market, optionally filtered by category.
func (r *Repository) ListMarkets(ctx context.Context, category string) ([]models.Market, error) {
	var markets []models.Market
	query := r.db.WithContext(ctx).Preload("Candidates", orderedCandidates).Order("id ASC")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Find(&markets).Error; err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	return markets, nil
}

// StartMarket stores a new end time and clears any stale resolution.
func (r *Repository) StartMarket(ctx context.Context, marketID uint, endTime int64) error {
	return r.updateMarket(ctx, marketID, map[string]interface{}{
		"end_time":        endTime,
		"resolved":        false,
		"winning_outcome": "",
	})
}

// ResolveMarket stores the winning outcome.
func (r *Repository) ResolveMarket(ctx context.Context, marketID uint, outcome string) error {
	return r.updateMarket(ctx, marketID, map[string]interface{}{
		"resolved":        true,
		"winning_outcome": outcome,
	})
}

// SyncMarketState overwrites the lifecycle fields with what the contract reports.
func (r *Repository) SyncMarketState(ctx context.Context, marketID uint, endTime int64, resolved bool, winner string) error {
	return r.updateMarket(ctx, marketID, map[string]interface{}{
		"end_time":        endTime,
		"resolved":        resolved,
		"winning_outcome": winner,
	})
}

func (r *Repository) updateMarket(ctx context.Context, marketID uint, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Market{}).Where("id = ?", marketID).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update market %d: %w", marketID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetMarket zeroes every pool, clears resolution and end time, and moves
// the market to the next epoch. It returns the new epoch.
func (r *Repository) ResetMarket(ctx context.Context, marketID uint) (int, error) {
	var epoch int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Market{}).Where("id = ?", marketID).Updates(map[string]interface{}{
			"end_time":        0,
			"resolved":        false,
			"winning_outcome": "",
			"epoch":           gorm.Expr("epoch + 1"),
		})
		if result.Error != nil {
			return fmt.Errorf("failed to reset market: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Model(&models.Candidate{}).
			Where("market_id = ?", marketID).
			Update("pool_amount", decimal.Zero).Error; err != nil {
			return fmt.Errorf("failed to reset pools: %w", err)
		}

		return tx.Model(&models.Market{}).Where("id = ?", marketID).Select("epoch").Scan(&epoch).Error
	})
	if err != nil {
		return 0, err
	}
	return epoch, nil
}

// ============================================================================
// CANDIDATES
// ============================================================================

// ListCandidates returns candidates, optionally filtered by category.
func (r *Repository) ListCandidates(ctx context.Context, category string) ([]models.Candidate, error) {
	var candidates []models.Candidate
	query := orderedCandidates(r.db.WithContext(ctx))
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return candidates, nil
}

// InsertCandidates adds candidates in one statement.
func (r *Repository) InsertCandidates(ctx context.Context, candidates []models.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&candidates).Error
}

// UpdatePoolAmount sets a candidate pool to an absolute value.
func (r *Repository) UpdatePoolAmount(ctx context.Context, candidateID uint, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.Candidate{}).
		Where("id = ?", candidateID).
		Update("pool_amount", amount)
	if result.Error != nil {
		return fmt.Errorf("failed to update pool %d: %w", candidateID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// BETS
// ============================================================================

// RecordBet stores a confirmed bet and adds its amount to the candidate pool
// in one transaction. The pool update is a single UPDATE so concurrent bets
// cannot overwrite each other.
func (r *Repository) RecordBet(ctx context.Context, bet *models.Bet) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bet).Error; err != nil {
			return fmt.Errorf("failed to record bet: %w", err)
		}

		result := tx.Model(&models.Candidate{}).
			Where("id = ? AND market_id = ?", bet.CandidateID, bet.MarketID).
			Update("pool_amount", gorm.Expr("pool_amount + ?", bet.Amount))
		if result.Error != nil {
			return fmt.Errorf("failed to increment pool: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetBetByTxHash finds a bet by its transaction hash.
func (r *Repository) GetBetByTxHash(ctx context.Context, txHash string) (*models.Bet, error) {
	var bet models.Bet
	if err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&bet).Error; err != nil {
		return nil, notFound(err)
	}
	return &bet, nil
}

// UserStakes sums a wallet's confirmed bets per candidate for one epoch.
func (r *Repository) UserStakes(ctx context.Context, marketID uint, epoch int, address string) (map[uint]decimal.Decimal, error) {
	var bets []models.Bet
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND epoch = ? AND user_address = ? AND status = ?",
			marketID, epoch, address, models.BetStatusConfirmed).
		Find(&bets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user bets: %w", err)
	}

	stakes := make(map[uint]decimal.Decimal)
	for _, b := range bets {
		stakes[b.CandidateID] = stakes[b.CandidateID].Add(b.Amount)
	}
	return stakes, nil
}

// ListBets returns the latest bets of a market epoch.
func (r *Repository) ListBets(ctx context.Context, marketID uint, epoch int, limit, offset int) ([]models.Bet, error) {
	var bets []models.Bet
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND epoch = ?", marketID, epoch).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&bets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	return bets, nil
}

// ListEpochBets returns every confirmed bet of a market epoch, oldest first.
func (r *Repository) ListEpochBets(ctx context.Context, marketID uint, epoch int) ([]models.Bet, error) {
	var bets []models.Bet
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND epoch = ? AND status = ?", marketID, epoch, models.BetStatusConfirmed).
		Order("created_at ASC").
		Find(&bets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list epoch bets: %w", err)
	}
	return bets, nil
}

// ============================================================================
// PRICE HISTORY
// ============================================================================

// AppendPricePoint adds the next point of the market's price log.
func (r *Repository) AppendPricePoint(ctx context.Context, marketID uint, epoch int, priceYes float64) (*models.PricePoint, error) {
	point := &models.PricePoint{MarketID: marketID, Epoch: epoch, PriceYes: priceYes}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last models.PricePoint
		err := tx.Where("market_id = ? AND epoch = ?", marketID, epoch).
			Order("seq DESC").
			First(&last).Error
		switch {
		case err == nil:
			point.Seq = last.Seq + 1
		case errors.Is(err, gorm.ErrRecordNotFound):
			point.Seq = 1
		default:
			return err
		}
		return tx.Create(point).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append price point: %w", err)
	}
	return point, nil
}

// ListPricePoints returns the log of one epoch in order.
func (r *Repository) ListPricePoints(ctx context.Context, marketID uint, epoch int) ([]models.PricePoint, error) {
	var points []models.PricePoint
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND epoch = ?", marketID, epoch).
		Order("seq ASC").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	return points, nil
}

// ============================================================================
// USERS & ADMINS
// ============================================================================

func (r *Repository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) GetUserByWallet(ctx context.Context, address string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("wallet_address = ?", address).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetAdminByUserID returns the admin row of a user.
func (r *Repository) GetAdminByUserID(ctx context.Context, userID uint) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&admin).Error; err != nil {
		return nil, notFound(err)
	}
	return &admin, nil
}

func (r *Repository) CreateAdmin(ctx context.Context, admin *models.AdminUser) error {
	return r.db.WithContext(ctx).Create(admin).Error
}

func (r *Repository) CreateAdminLog(ctx context.Context, entry *models.AdminLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListAdminLogs returns the audit log, newest first.
func (r *Repository) ListAdminLogs(ctx context.Context, limit, offset int) ([]models.AdminLog, int64, error) {
	var logs []models.AdminLog
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.AdminLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// ============================================================================
// CLAIMS
// ============================================================================

func (r *Repository) CreateClaim(ctx context.Context, claim *models.Claim) error {
	return r.db.WithContext(ctx).Create(claim).Error
}

// GetClaimByTxHash finds a recorded claim by its transaction hash.
func (r *Repository) GetClaimByTxHash(ctx context.Context, txHash string) (*models.Claim, error) {
	var claim models.Claim
	if err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&claim).Error; err != nil {
		return nil, notFound(err)
	}
	return &claim, nil
}

// ListEpochClaims returns every claim recorded for a market epoch.
func (r *Repository) ListEpochClaims(ctx context.Context, marketID uint, epoch int) ([]models.Claim, error) {
	var claims []models.Claim
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND epoch = ?", marketID, epoch).
		Order("created_at ASC").
		Find(&claims).Error
	return claims, err
}

func (r *Repository) ListClaims(ctx context.Context, marketID uint, address string) ([]models.Claim, error) {
	var claims []models.Claim
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND user_address = ?", marketID, address).
		Order("created_at DESC").
		Find(&claims).Error
	return claims, err
}
