package models

import (
	"time"
)

// PricePoint is one entry of a binary market's yes-price log. Points are
// appended per (market, epoch) and never rewritten; a restart starts a new
// epoch instead of truncating.
type PricePoint struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MarketID  uint      `gorm:"not null;uniqueIndex:idx_price_points_seq" json:"market_id"`
	Epoch     int       `gorm:"not null;uniqueIndex:idx_price_points_seq" json:"epoch"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_price_points_seq" json:"seq"`
	PriceYes  float64   `gorm:"not null" json:"price_yes"`
	CreatedAt time.Time `json:"created_at"`
}

func (PricePoint) TableName() string {
	return "price_points"
}

// ---- Request/Response DTOs ----

// CandidateView is a candidate with its derived odds.
type CandidateView struct {
	ID                 uint    `json:"id"`
	Name               string  `json:"name"`
	Outcome            string  `json:"outcome"`
	Initials           string  `json:"initials"`
	Color              string  `json:"color"`
	ImageURL           string  `json:"image_url,omitempty"`
	PoolAmount         float64 `json:"pool_amount"`
	Probability        float64 `json:"probability"`
	ProbabilityPercent float64 `json:"probability_percent"`
	Multiplier         float64 `json:"multiplier"`
}

// BinaryPrices is the AMM view of a yes/no market.
type BinaryPrices struct {
	YesPool  float64 `json:"yes_pool"`
	NoPool   float64 `json:"no_pool"`
	PriceYes float64 `json:"price_yes"`
	PriceNo  float64 `json:"price_no"`
}

// MarketSnapshot is the API and websocket view of a market.
type MarketSnapshot struct {
	ID              uint            `json:"id"`
	Slug            string          `json:"slug"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	ContractAddress string          `json:"contract_address"`
	PricingModel    PricingModel    `json:"pricing_model"`
	Status          string          `json:"status"`
	EndTime         int64           `json:"end_time"`
	Countdown       string          `json:"countdown"`
	BettingActive   bool            `json:"betting_active"`
	Resolved        bool            `json:"resolved"`
	WinningOutcome  string          `json:"winning_outcome,omitempty"`
	Epoch           int             `json:"epoch"`
	UnitPriceUSD    float64         `json:"unit_price_usd"`
	TotalPool       float64         `json:"total_pool"`
	Candidates      []CandidateView `json:"candidates"`
	Binary          *BinaryPrices   `json:"binary,omitempty"`
	AllowAdminPanel bool            `json:"allow_admin_panel"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// QuoteResponse is a projected bet that has not been placed.
type QuoteResponse struct {
	MarketID            uint    `json:"market_id"`
	CandidateID         uint    `json:"candidate_id"`
	Amount              float64 `json:"amount"`
	ContractValue       string  `json:"contract_value"`
	ProjectedMultiplier float64 `json:"projected_multiplier,omitempty"`
	EstimatedPayout     float64 `json:"estimated_payout"`
	Price               float64 `json:"price,omitempty"`
	EstimatedShares     float64 `json:"estimated_shares,omitempty"`
}

// PlaceBetRequest is the body of POST /api/markets/:id/bets
type PlaceBetRequest struct {
	CandidateID uint   `json:"candidate_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	TxHash      string `json:"tx_hash"`
}

// BetResult reports a placed bet. StoreSynced is false when the chain
// accepted the bet but the local pool could not be updated yet.
// PriceYes and Shares are set for amm markets, Multiplier for pari-mutuel
// ones; all are the values right after this bet.
type BetResult struct {
	Bet         *Bet            `json:"bet,omitempty"`
	TxHash      string          `json:"tx_hash"`
	StoreSynced bool            `json:"store_synced"`
	PriceYes    float64         `json:"price_yes,omitempty"`
	Shares      float64         `json:"shares,omitempty"`
	Multiplier  float64         `json:"multiplier,omitempty"`
	Market      *MarketSnapshot `json:"market,omitempty"`
}

// PositionResponse is one wallet's stakes in the current epoch.
type PositionResponse struct {
	MarketID       uint               `json:"market_id"`
	Epoch          int                `json:"epoch"`
	UserAddress    string             `json:"user_address"`
	Stakes         map[string]float64 `json:"stakes"` // outcome -> amount
	Resolved       bool               `json:"resolved"`
	WinningOutcome string             `json:"winning_outcome,omitempty"`
	HasWinningBet  bool               `json:"has_winning_bet"`
}

// ClaimRequest is the body of POST /api/markets/:id/claim
type ClaimRequest struct {
	TxHash string `json:"tx_hash"`
}

// StartBettingRequest is the body of POST /api/admin/markets/:id/start
type StartBettingRequest struct {
	DurationMinutes int64 `json:"duration_minutes" binding:"required,min=1"`
}

// ResolveMarketRequest is the body of POST /api/admin/markets/:id/resolve
type ResolveMarketRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

// AdminActionResult reports an admin write.
type AdminActionResult struct {
	Action string          `json:"action"`
	TxHash string          `json:"tx_hash,omitempty"`
	Epoch  int             `json:"epoch"`
	Market *MarketSnapshot `json:"market,omitempty"`
}

// ClaimEligibility is what the contract says about a wallet's claim.
type ClaimEligibility struct {
	MarketID       uint    `json:"market_id"`
	UserAddress    string  `json:"user_address"`
	Resolved       bool    `json:"resolved"`
	WinningOutcome string  `json:"winning_outcome,omitempty"`
	WinningStake   float64 `json:"winning_stake"`
	Eligible       bool    `json:"eligible"`
}

// WalletLoginRequest is the body of POST /auth/wallet
type WalletLoginRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
	ChainID       int64  `json:"chain_id"`
}

// SwitchChainRequest is the body of POST /auth/chain
type SwitchChainRequest struct {
	ChainID int64 `json:"chain_id" binding:"required"`
}
