package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PricingModel selects how a market turns pools into odds
type PricingModel string

const (
	PricingParimutuel PricingModel = "parimutuel"
	PricingAMM        PricingModel = "amm"
)

// Market is one configured betting pool backed by a contract.
type Market struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Slug            string          `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Title           string          `gorm:"size:500;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	Category        string          `gorm:"size:50;not null;index" json:"category"` // bitcoin, base_tweet, weather, economics
	ContractAddress string          `gorm:"size:66" json:"contract_address"`
	PricingModel    PricingModel    `gorm:"size:20;not null;default:parimutuel" json:"pricing_model"`
	EndTime         int64           `gorm:"not null;default:0" json:"end_time"` // unix seconds, 0 = pending
	Resolved        bool            `gorm:"not null;default:false" json:"resolved"`
	WinningOutcome  string          `gorm:"size:100" json:"winning_outcome,omitempty"`
	Epoch           int             `gorm:"not null;default:0" json:"epoch"`
	UnitPriceUSD    decimal.Decimal `gorm:"type:decimal(18,8);not null;default:1" json:"unit_price_usd"`
	AllowAdminPanel bool            `gorm:"not null" json:"allow_admin_panel"`
	Candidates      []Candidate     `gorm:"foreignKey:MarketID" json:"candidates,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Market model
func (Market) TableName() string {
	return "markets"
}

// OutcomeNames returns the contract outcome strings of every candidate.
func (m *Market) OutcomeNames() []string {
	names := make([]string, 0, len(m.Candidates))
	for _, c := range m.Candidates {
		names = append(names, c.Outcome())
	}
	return names
}

// CandidateByOutcome finds a candidate by its contract outcome, ignoring case.
func (m *Market) CandidateByOutcome(outcome string) (*Candidate, bool) {
	for i := range m.Candidates {
		if strings.EqualFold(m.Candidates[i].Outcome(), outcome) {
			return &m.Candidates[i], true
		}
	}
	return nil, false
}

// CandidateByID finds a candidate of this market.
func (m *Market) CandidateByID(id uint) (*Candidate, bool) {
	for i := range m.Candidates {
		if m.Candidates[i].ID == id {
			return &m.Candidates[i], true
		}
	}
	return nil, false
}

// TotalPool sums candidate pools. Totals are never stored.
func (m *Market) TotalPool() decimal.Decimal {
	total := decimal.Zero
	for _, c := range m.Candidates {
		total = total.Add(c.PoolAmount)
	}
	return total
}

// Candidate is an outcome of a market and the pool staked on it.
type Candidate struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	MarketID        uint            `gorm:"not null;index" json:"market_id"`
	Name            string          `gorm:"size:200;not null" json:"name"`
	ContractOutcome string          `gorm:"size:100" json:"contract_outcome,omitempty"`
	Initials        string          `gorm:"size:8" json:"initials"`
	Color           string          `gorm:"size:16" json:"color"`
	PoolAmount      decimal.Decimal `gorm:"type:decimal(24,8);not null;default:0" json:"pool_amount"`
	ImageURL        string          `gorm:"size:500" json:"image_url,omitempty"`
	Category        string          `gorm:"size:50;index" json:"category"`
	Position        int             `gorm:"not null;default:0" json:"position"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// Outcome is the string the contract knows this candidate by.
func (c *Candidate) Outcome() string {
	if c.ContractOutcome != "" {
		return c.ContractOutcome
	}
	return c.Name
}
