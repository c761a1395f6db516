package auth

import (
	"context"
	"log"
)

// Service ties accounts to token issuance.
type Service struct {
	users  *UserStore
	tokens *TokenStorage
	logger *log.Logger
}

// NewService creates an auth service. If logger is nil, log.Default() is used.
func NewService(users *UserStore, tokens *TokenStorage, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{users: users, tokens: tokens, logger: logger}
}

func (s *Service) Users() *UserStore     { return s.users }
func (s *Service) Tokens() *TokenStorage { return s.tokens }

// Register creates an account.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	user, err := s.users.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("[Auth] Registered user %s", user.ID)
	return user, nil
}

// Login verifies credentials and issues a fresh token pair, invalidating any
// earlier tokens of the user.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("[Auth] User %s logged in", user.ID)
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	info, err := s.tokens.ValidateToken(ctx, refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return s.tokens.IssuePair(ctx, info.UserID)
}

// Authenticate validates an access token and returns its owner id.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (string, error) {
	info, err := s.tokens.ValidateToken(ctx, accessToken, TokenTypeAccess)
	if err != nil {
		return "", err
	}
	return info.UserID, nil
}
