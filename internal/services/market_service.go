package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolmarket/internal/blockchain"
	"poolmarket/internal/models"
	"poolmarket/internal/pricing"
	"poolmarket/internal/repository"
	"poolmarket/internal/session"
	"poolmarket/internal/settlement"
)

// MarketService serves market snapshots, quotes and bets
type MarketService struct {
	repo      *repository.Repository
	contracts *blockchain.Registry
	publisher Publisher
	refetch   RefetchScheduler
	chainID   int64
	logger    *zap.Logger
	now       func() time.Time
}

// NewMarketService creates a new market service
func NewMarketService(repo *repository.Repository, contracts *blockchain.Registry, chainID int64, logger *zap.Logger) *MarketService {
	return &MarketService{
		repo:      repo,
		contracts: contracts,
		publisher: noopPublisher{},
		refetch:   noopScheduler{},
		chainID:   chainID,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source used to derive market status.
func (s *MarketService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetPublisher attaches the live snapshot publisher.
func (s *MarketService) SetPublisher(p Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// SetRefetcher attaches the delayed contract re-read.
func (s *MarketService) SetRefetcher(r RefetchScheduler) {
	if r != nil {
		s.refetch = r
	}
}

// ============================================================================
// SNAPSHOTS
// ============================================================================

// ListMarkets returns snapshots of all markets, optionally by category
func (s *MarketService) ListMarkets(ctx context.Context, category string) ([]models.MarketSnapshot, error) {
	markets, err := s.repo.ListMarkets(ctx, category)
	if err != nil {
		return nil, err
	}

	snapshots := make([]models.MarketSnapshot, 0, len(markets))
	for i := range markets {
		snapshots = append(snapshots, *s.Snapshot(&markets[i]))
	}
	return snapshots, nil
}

// GetMarket returns one market by id or slug
func (s *MarketService) GetMarket(ctx context.Context, idOrSlug string) (*models.MarketSnapshot, error) {
	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}
	return s.Snapshot(market), nil
}

// SnapshotByID loads and snapshots a market.
func (s *MarketService) SnapshotByID(ctx context.Context, marketID uint) (*models.MarketSnapshot, error) {
	market, err := s.repo.GetMarket(ctx, marketID)
	if err != nil {
		return nil, marketErr(err)
	}
	return s.Snapshot(market), nil
}

// Snapshot derives status, countdown and odds from a stored market.
func (s *MarketService) Snapshot(m *models.Market) *models.MarketSnapshot {
	now := s.now()
	state := settlement.Derive(m.EndTime, m.Resolved, now)

	label := settlement.CountdownAt(m.EndTime, now).Label
	if state == settlement.StateResolved {
		label = settlement.LabelClosed
	}

	snap := &models.MarketSnapshot{
		ID:              m.ID,
		Slug:            m.Slug,
		Title:           m.Title,
		Description:     m.Description,
		Category:        m.Category,
		ContractAddress: m.ContractAddress,
		PricingModel:    m.PricingModel,
		Status:          string(state),
		EndTime:         m.EndTime,
		Countdown:       label,
		BettingActive:   state == settlement.StateOpen,
		Resolved:        m.Resolved,
		WinningOutcome:  m.WinningOutcome,
		Epoch:           m.Epoch,
		UnitPriceUSD:    m.UnitPriceUSD.InexactFloat64(),
		TotalPool:       m.TotalPool().InexactFloat64(),
		Candidates:      make([]models.CandidateView, 0, len(m.Candidates)),
		AllowAdminPanel: m.AllowAdminPanel,
		UpdatedAt:       m.UpdatedAt,
	}

	stats := make(map[uint]pricing.OutcomeStats, len(m.Candidates))
	if engine, err := parimutuelFor(m); err == nil {
		for _, st := range engine.Stats() {
			stats[st.ID] = st
		}
	}

	for _, c := range m.Candidates {
		st := stats[c.ID]
		snap.Candidates = append(snap.Candidates, models.CandidateView{
			ID:                 c.ID,
			Name:               c.Name,
			Outcome:            c.Outcome(),
			Initials:           c.Initials,
			Color:              c.Color,
			ImageURL:           c.ImageURL,
			PoolAmount:         c.PoolAmount.InexactFloat64(),
			Probability:        st.Probability,
			ProbabilityPercent: st.ProbabilityPercent,
			Multiplier:         st.Multiplier,
		})
	}

	if m.PricingModel == models.PricingAMM {
		if b, err := binaryFor(m); err == nil {
			yes, no := b.Pools()
			snap.Binary = &models.BinaryPrices{
				YesPool:  yes,
				NoPool:   no,
				PriceYes: b.PriceYes(),
				PriceNo:  b.PriceNo(),
			}
		}
	}

	return snap
}

func parimutuelFor(m *models.Market) (*pricing.Parimutuel, error) {
	outcomes := make([]pricing.Outcome, 0, len(m.Candidates))
	for _, c := range m.Candidates {
		outcomes = append(outcomes, pricing.Outcome{
			ID:   c.ID,
			Name: c.Name,
			Pool: c.PoolAmount.InexactFloat64(),
		})
	}
	return pricing.NewParimutuel(outcomes)
}

// binaryFor builds the yes/no pool of an amm market from its candidates.
func binaryFor(m *models.Market) (*pricing.Binary, error) {
	var yes, no float64
	var seenYes, seenNo bool
	for _, c := range m.Candidates {
		side, err := pricing.ParseSide(c.Outcome())
		if err != nil {
			return nil, err
		}
		switch side {
		case pricing.SideYes:
			yes, seenYes = c.PoolAmount.InexactFloat64(), true
		case pricing.SideNo:
			no, seenNo = c.PoolAmount.InexactFloat64(), true
		}
	}
	if !seenYes || !seenNo {
		return nil, fmt.Errorf("market %d is not a yes/no market", m.ID)
	}
	return pricing.NewBinary(yes, no), nil
}

// ============================================================================
// QUOTES
// ============================================================================

// Quote projects a bet without placing it
func (s *MarketService) Quote(ctx context.Context, idOrSlug string, candidateID uint, amountText string) (*models.QuoteResponse, error) {
	amount, err := pricing.ParseAmount(amountText)
	if err != nil {
		return nil, err
	}

	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}
	candidate, ok := market.CandidateByID(candidateID)
	if !ok {
		return nil, ErrCandidateNotFound
	}

	value, err := pricing.ToContractValue(amount, market.UnitPriceUSD)
	if err != nil {
		return nil, err
	}

	a := amount.InexactFloat64()
	quote := &models.QuoteResponse{
		MarketID:      market.ID,
		CandidateID:   candidate.ID,
		Amount:        a,
		ContractValue: value.String(),
	}

	if market.PricingModel == models.PricingAMM {
		b, err := binaryFor(market)
		if err != nil {
			return nil, err
		}
		side, err := pricing.ParseSide(candidate.Outcome())
		if err != nil {
			return nil, err
		}
		price, _ := b.Price(side)
		shares, err := b.EstimatedShares(side, a)
		if err != nil {
			return nil, err
		}
		quote.Price = price
		quote.EstimatedShares = shares
		quote.EstimatedPayout = pricing.Payout(side, shares, side)
		return quote, nil
	}

	engine, err := parimutuelFor(market)
	if err != nil {
		return nil, err
	}
	projection, err := engine.Project(candidate.ID, a)
	if err != nil {
		return nil, err
	}
	quote.ProjectedMultiplier = projection.ProjectedMultiplier
	quote.EstimatedPayout = projection.EstimatedPayout
	return quote, nil
}

// ============================================================================
// BETS
// ============================================================================

// CheckChain rejects a session whose wallet is not on the configured chain.
func (s *MarketService) CheckChain(sess *session.Session) error {
	if sess.Chain != blockchain.ChainEVM || sess.ChainID != s.chainID {
		return &WrongChainError{Expected: s.chainID, Actual: sess.ChainID}
	}
	return nil
}

// PlaceBet places a bet for the session's wallet. The local pool is only
// touched after the contract accepted the bet; a store failure after that is
// reported as StoreSynced=false and left to reconciliation.
func (s *MarketService) PlaceBet(ctx context.Context, sess *session.Session, idOrSlug string, req *models.PlaceBetRequest) (*models.BetResult, error) {
	amount, err := pricing.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	if err := s.CheckChain(sess); err != nil {
		return nil, err
	}

	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}
	candidate, ok := market.CandidateByID(req.CandidateID)
	if !ok {
		return nil, ErrCandidateNotFound
	}
	if settlement.Derive(market.EndTime, market.Resolved, s.now()) != settlement.StateOpen {
		return nil, ErrMarketClosed
	}

	value, err := pricing.ToContractValue(amount, market.UnitPriceUSD)
	if err != nil {
		return nil, err
	}
	wei := pricing.ToWei(value)
	if wei.Sign() <= 0 {
		return nil, pricing.ErrInvalidAmount
	}

	contract, err := contractFor(s.contracts, market)
	if err != nil {
		return nil, err
	}

	var txHash string
	if req.TxHash != "" {
		if _, err := s.repo.GetBetByTxHash(ctx, req.TxHash); err == nil {
			return nil, ErrTxAlreadyUsed
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}

		tx, err := contract.VerifyBet(ctx, req.TxHash, sess.WalletAddress)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(tx.Outcome, candidate.Outcome()) {
			return nil, ErrOutcomeMismatch
		}
		// The chain value is authoritative for what was staked.
		wei = tx.Value
		amount = pricing.FromWei(tx.Value).Mul(market.UnitPriceUSD)
		txHash = tx.Hash
	} else {
		bettor, ok := contract.(blockchain.Bettor)
		if !ok {
			return nil, ErrTxRequired
		}
		if err := bettor.SimulateBet(ctx, sess.WalletAddress, candidate.Outcome(), wei); err != nil {
			return nil, err
		}
		if txHash, err = bettor.PlaceBet(ctx, sess.WalletAddress, candidate.Outcome(), wei); err != nil {
			return nil, err
		}
	}

	s.logger.Info("bet confirmed on chain",
		zap.Uint("market_id", market.ID),
		zap.String("outcome", candidate.Outcome()),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", txHash),
	)

	bet := &models.Bet{
		MarketID:         market.ID,
		CandidateID:      candidate.ID,
		Epoch:            market.Epoch,
		UserAddress:      strings.ToLower(sess.WalletAddress),
		Amount:           amount,
		ContractValueWei: wei.String(),
		TxHash:           txHash,
		Status:           models.BetStatusConfirmed,
	}

	result := &models.BetResult{TxHash: txHash}
	priced := true
	if err := applyBet(market, candidate, amount.InexactFloat64(), result); err != nil {
		priced = false
		s.logger.Warn("failed to price bet", zap.Uint("market_id", market.ID), zap.Error(err))
	}

	var pricePoint *float64
	if err := s.repo.RecordBet(ctx, bet); err != nil {
		s.logger.Error("failed to record confirmed bet",
			zap.Uint("market_id", market.ID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
	} else {
		result.Bet = bet
		result.StoreSynced = true
		if priced && market.PricingModel == models.PricingAMM {
			pricePoint = &result.PriceYes
		}
	}

	snapshot, err := s.afterWrite(ctx, market.ID, pricePoint)
	if err != nil {
		s.logger.Warn("failed to refresh market after bet", zap.Uint("market_id", market.ID), zap.Error(err))
	}
	result.Market = snapshot
	return result, nil
}

// applyBet runs the pricing engine transition over the pre-bet pools and
// fills in the post-bet figures. RecordBet moves the stored pools the same
// way.
func applyBet(m *models.Market, c *models.Candidate, amount float64, result *models.BetResult) error {
	switch m.PricingModel {
	case models.PricingAMM:
		b, err := binaryFor(m)
		if err != nil {
			return err
		}
		side, err := pricing.ParseSide(c.Outcome())
		if err != nil {
			return err
		}
		shares, err := b.EstimatedShares(side, amount)
		if err != nil {
			return err
		}
		price, err := b.PlaceBet(side, amount)
		if err != nil {
			return err
		}
		result.Shares = shares
		result.PriceYes = price
	default:
		p, err := parimutuelFor(m)
		if err != nil {
			return err
		}
		if err := p.PlaceBet(c.ID, amount); err != nil {
			return err
		}
		mult, err := p.Multiplier(c.ID)
		if err != nil {
			return err
		}
		result.Multiplier = mult
	}
	return nil
}

// afterWrite publishes the new snapshot and schedules the provisional
// re-read. pricePoint, when set, is appended to the market's price log.
func (s *MarketService) afterWrite(ctx context.Context, marketID uint, pricePoint *float64) (*models.MarketSnapshot, error) {
	defer s.refetch.Schedule(marketID)

	market, err := s.repo.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if pricePoint != nil {
		if _, err := s.repo.AppendPricePoint(ctx, market.ID, market.Epoch, *pricePoint); err != nil {
			s.logger.Warn("failed to append price point", zap.Uint("market_id", market.ID), zap.Error(err))
		}
	}

	snapshot := s.Snapshot(market)
	s.publisher.PublishMarket(snapshot)
	return snapshot, nil
}

// Publish pushes the current snapshot of a market without scheduling a
// re-read.
func (s *MarketService) Publish(ctx context.Context, marketID uint) {
	snapshot, err := s.SnapshotByID(ctx, marketID)
	if err != nil {
		s.logger.Warn("failed to publish market", zap.Uint("market_id", marketID), zap.Error(err))
		return
	}
	s.publisher.PublishMarket(snapshot)
}

// ============================================================================
// POSITIONS AND HISTORY
// ============================================================================

// UserPosition returns a wallet's stakes in the current epoch
func (s *MarketService) UserPosition(ctx context.Context, idOrSlug, address string) (*models.PositionResponse, error) {
	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}

	address = strings.ToLower(address)
	stakes, err := s.repo.UserStakes(ctx, market.ID, market.Epoch, address)
	if err != nil {
		return nil, err
	}

	resp := &models.PositionResponse{
		MarketID:       market.ID,
		Epoch:          market.Epoch,
		UserAddress:    address,
		Stakes:         make(map[string]float64, len(stakes)),
		Resolved:       market.Resolved,
		WinningOutcome: market.WinningOutcome,
	}

	winningStake := decimal.Zero
	for _, c := range market.Candidates {
		stake, ok := stakes[c.ID]
		if !ok {
			continue
		}
		resp.Stakes[c.Outcome()] = stake.InexactFloat64()
		if market.Resolved && strings.EqualFold(c.Outcome(), market.WinningOutcome) {
			winningStake = stake
		}
	}
	resp.HasWinningBet = settlement.HasWinningBet(market.Resolved, market.WinningOutcome, winningStake.InexactFloat64())

	return resp, nil
}

// PriceHistory returns the yes-price log of the current epoch
func (s *MarketService) PriceHistory(ctx context.Context, idOrSlug string) ([]models.PricePoint, error) {
	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}
	return s.repo.ListPricePoints(ctx, market.ID, market.Epoch)
}

// RecentBets returns the latest bets of the current epoch
func (s *MarketService) RecentBets(ctx context.Context, idOrSlug string, limit, offset int) ([]models.Bet, error) {
	market, err := s.repo.FindMarket(ctx, idOrSlug)
	if err != nil {
		return nil, marketErr(err)
	}
	return s.repo.ListBets(ctx, market.ID, market.Epoch, limit, offset)
}
