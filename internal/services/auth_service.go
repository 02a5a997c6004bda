package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"poolmarket/internal/auth"
	"poolmarket/internal/blockchain"
	"poolmarket/internal/models"
	"poolmarket/internal/repository"
	"poolmarket/internal/session"
	"poolmarket/internal/utils"
)

// LoginMessage is the text a wallet signs to sign in.
func LoginMessage(nonce string) string {
	return "Sign this message to authenticate with PoolMarket.\nNonce: " + nonce
}

// LoginResult is a signed-in wallet.
type LoginResult struct {
	Token   string           `json:"token"`
	User    *models.User     `json:"user"`
	Session *session.Session `json:"session"`
}

// AuthService handles wallet authentication and session lifecycle
type AuthService struct {
	repo     *repository.Repository
	sessions session.Store
	logger   *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(repo *repository.Repository, sessions session.Store, logger *zap.Logger) *AuthService {
	return &AuthService{
		repo:     repo,
		sessions: sessions,
		logger:   logger,
	}
}

// Nonce issues a single-use login nonce and the message to sign with it
func (s *AuthService) Nonce(ctx context.Context, walletAddress string) (nonce, message string, err error) {
	chain, err := blockchain.DetectChain(walletAddress)
	if err != nil {
		return "", "", err
	}
	nonce, err = s.sessions.IssueNonce(ctx, blockchain.NormalizeAddress(chain, walletAddress))
	if err != nil {
		return "", "", fmt.Errorf("failed to issue nonce: %w", err)
	}
	return nonce, LoginMessage(nonce), nil
}

// Login verifies the signed nonce, finds or creates the user and opens a
// session
func (s *AuthService) Login(ctx context.Context, req *models.WalletLoginRequest) (*LoginResult, error) {
	chain, err := blockchain.DetectChain(req.WalletAddress)
	if err != nil {
		return nil, err
	}
	address := blockchain.NormalizeAddress(chain, req.WalletAddress)

	nonce, err := s.sessions.ConsumeNonce(ctx, address)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrInvalidNonce
		}
		return nil, err
	}

	if err := blockchain.VerifySignature(chain, address, LoginMessage(nonce), req.Signature); err != nil {
		s.logger.Info("wallet signature rejected", zap.String("wallet", address), zap.Error(err))
		return nil, ErrUnauthorized
	}

	user, err := s.syncUser(ctx, address, chain)
	if err != nil {
		return nil, err
	}

	sess := session.New(user.ID, address, chain, req.ChainID)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := auth.GenerateToken(user.ID, address, sess.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, User: user, Session: sess}, nil
}

// syncUser finds a user by wallet or creates one with a default username
func (s *AuthService) syncUser(ctx context.Context, address, chain string) (*models.User, error) {
	user, err := s.repo.GetUserByWallet(ctx, address)
	if err == nil {
		s.logger.Info("user logged in", zap.String("wallet", address), zap.Uint("user_id", user.ID))
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	user = &models.User{
		WalletAddress: address,
		Username:      utils.DisplayName(address),
		Chain:         chain,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("new user created", zap.String("wallet", address), zap.Uint("user_id", user.ID))
	return user, nil
}

// Logout deletes the session, which invalidates every token bound to it
func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	return s.sessions.Delete(ctx, sess.ID)
}

// Me returns the session's user
func (s *AuthService) Me(ctx context.Context, sess *session.Session) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// SwitchChain records the chain the wallet moved to
func (s *AuthService) SwitchChain(ctx context.Context, sess *session.Session, chainID int64) (*session.Session, error) {
	updated := *sess
	updated.ChainID = chainID
	if err := s.sessions.Update(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}
