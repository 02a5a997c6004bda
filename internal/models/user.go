package models

import (
	"time"
)

// Wallet chains a user can sign in with
const (
	ChainEVM    = "evm"
	ChainSolana = "solana"
)

// User represents a wallet that has signed in
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	WalletAddress string    `gorm:"size:64;uniqueIndex;not null" json:"wallet_address"`
	Username      string    `gorm:"size:100;not null" json:"username"`
	AvatarURL     *string   `json:"avatar_url,omitempty"`
	Chain         string    `gorm:"size:20;not null;default:evm" json:"chain"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
