// Package session holds the wallet context of a signed-in user. A session is
// created on wallet login, referenced by the token's sid claim, and deleted
// on logout.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Session is the wallet and chain a request acts for.
type Session struct {
	ID            string    `json:"id"`
	UserID        uint      `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	Chain         string    `json:"chain"`
	ChainID       int64     `json:"chain_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// New builds a session with a fresh id.
func New(userID uint, wallet, chain string, chainID int64) *Session {
	return &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		WalletAddress: wallet,
		Chain:         chain,
		ChainID:       chainID,
		CreatedAt:     time.Now().UTC(),
	}
}

// Store persists sessions and single-use login nonces.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error

	IssueNonce(ctx context.Context, wallet string) (string, error)
	// ConsumeNonce returns the nonce issued to wallet and forgets it.
	ConsumeNonce(ctx context.Context, wallet string) (string, error)
}

func newNonce() string {
	return uuid.NewString()
}
