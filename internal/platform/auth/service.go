package auth

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"notebook-lending/internal/platform/apperr"
)

const (
	RoleAdmin    = "admin"
	RoleStandard = "standard"
)

type LoginResult struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	store   AccountStore
	tokens  *Tokens
	revoker Revoker
	log     *zap.Logger
}

func NewService(store AccountStore, tokens *Tokens, revoker Revoker, log *zap.Logger) *Service {
	return &Service{store: store, tokens: tokens, revoker: revoker, log: log}
}

// Login checks the credential pair and issues a token. Only admin accounts
// may use the panel.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.InvalidArgument("email and password are required")
	}

	acct, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	// 存在しない・無効・パスワード違いは同じエラーにする
	if acct == nil || !acct.Active || !CheckPassword(acct.PasswordHash, password) {
		s.log.Info("login rejected", zap.String("email", email))
		return nil, apperr.InvalidCredential("invalid email or password")
	}
	if acct.Kind != RoleAdmin {
		s.log.Info("login denied for non-admin", zap.Int64("person_id", acct.ID))
		return nil, apperr.PermissionDenied("only administrators may sign in")
	}

	token, claims, err := s.tokens.Issue(acct.ID, acct.Kind, acct.FullName)
	if err != nil {
		return nil, err
	}
	if err := s.revoker.Track(ctx, acct.ID, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}

	s.log.Info("login", zap.Int64("person_id", acct.ID))
	return &LoginResult{Token: token, Name: acct.FullName, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the presented token until it would have expired.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if err := s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	s.log.Info("logout", zap.String("person_id", claims.Subject))
	return nil
}

// RevokePerson invalidates every token issued to a person, used when the
// account is deactivated or deleted.
func (s *Service) RevokePerson(ctx context.Context, personID int64) error {
	return s.revoker.RevokeAll(ctx, personID)
}
