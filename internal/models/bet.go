package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BetStatus tracks a bet against the chain
type BetStatus string

const (
	BetStatusConfirmed BetStatus = "CONFIRMED"
)

// Bet is a confirmed stake by one wallet on one candidate. Bets decide claim
// eligibility and positions; odds are computed from candidate pools only.
type Bet struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID         uint            `gorm:"not null;index:idx_bets_market_user" json:"market_id"`
	CandidateID      uint            `gorm:"not null;index" json:"candidate_id"`
	Epoch            int             `gorm:"not null;default:0" json:"epoch"`
	UserAddress      string          `gorm:"size:64;not null;index:idx_bets_market_user" json:"user_address"`
	Amount           decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"amount"`
	ContractValueWei string          `gorm:"size:80;not null" json:"contract_value_wei"`
	TxHash           string          `gorm:"size:100;uniqueIndex;not null" json:"tx_hash"`
	Status           BetStatus       `gorm:"size:20;not null;default:CONFIRMED" json:"status"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Bet model
func (Bet) TableName() string {
	return "bets"
}

// BeforeCreate assigns the id in Go so the schema works on every driver.
func (b *Bet) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Claim records a claim the contract accepted.
type Claim struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MarketID    uint      `gorm:"not null;index" json:"market_id"`
	Epoch       int       `gorm:"not null;default:0" json:"epoch"`
	UserAddress string    `gorm:"size:64;not null;index" json:"user_address"`
	TxHash      string    `gorm:"size:100;uniqueIndex;not null" json:"tx_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Claim) TableName() string {
	return "claims"
}
