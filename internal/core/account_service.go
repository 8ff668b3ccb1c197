package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gwi.com/nova-chat/internal/auth"
	"gwi.com/nova-chat/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthenticated means the request carries no live session. It
	// matches store.ErrNotFound as well.
	ErrUnauthenticated = fmt.Errorf("unauthenticated: %w", store.ErrNotFound)
)

type SignupRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Email           string `json:"email,omitempty"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountService handles signup, login and session checks on top of the
// credential and session stores.
type AccountService struct {
	stores *store.Stores
	signer *auth.TokenSigner
	logger zerolog.Logger
}

func NewAccountService(stores *store.Stores, signer *auth.TokenSigner, logger zerolog.Logger) *AccountService {
	return &AccountService{stores: stores, signer: signer, logger: logger}
}

// Signup creates the account and logs the new user in.
func (s *AccountService) Signup(ctx context.Context, req SignupRequest) (*LoginResult, error) {
	username := strings.TrimSpace(req.Username)
	if req.Password != req.ConfirmPassword {
		return nil, store.NewValidationError("confirm_password", "passwords do not match")
	}
	if _, err := s.stores.Credentials.CreateUser(ctx, username, req.Password, req.Email); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user", username).Msg("Account created")
	return s.Login(ctx, username, req.Password)
}

func (s *AccountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, store.NewValidationError("username", "username and password are required")
	}
	if !s.stores.Credentials.Verify(ctx, username, password) {
		s.logger.Info().Str("user", username).Msg("Login rejected")
		return nil, ErrInvalidCredentials
	}

	if err := s.stores.Credentials.RecordLogin(ctx, username); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	sess, err := s.stores.Sessions.Create(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	token, err := s.signer.Sign(username, sess.Token, sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	s.logger.Info().Str("user", username).Msg("Logged in")
	return &LoginResult{Token: token, Username: username, ExpiresAt: sess.ExpiresAt}, nil
}

// Authenticate returns the user behind token and extends the session.
func (s *AccountService) Authenticate(ctx context.Context, token string) (string, error) {
	username, sessionToken, err := s.signer.Parse(token)
	if err != nil {
		return "", ErrUnauthenticated
	}
	owner, ok, err := s.stores.Sessions.Validate(ctx, sessionToken)
	if err != nil {
		return "", err
	}
	if !ok || owner != username {
		return "", ErrUnauthenticated
	}

	// a session whose user is gone is dangling
	if _, err := s.stores.Credentials.Get(ctx, username); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		if err := s.stores.Sessions.Revoke(ctx, sessionToken); err != nil {
			s.logger.Warn().Err(err).Str("user", username).Msg("Failed to revoke dangling session")
		}
		return "", ErrUnauthenticated
	}
	return username, nil
}

// Logout revokes the session behind token. Unknown tokens are ignored.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	_, sessionToken, err := s.signer.Parse(token)
	if err != nil {
		return nil
	}
	return s.stores.Sessions.Revoke(ctx, sessionToken)
}

// DeleteAccount removes the user together with their sessions,
// conversations, statistics and memories.
func (s *AccountService) DeleteAccount(ctx context.Context, username string) error {
	steps := []struct {
		what string
		fn   func(context.Context, string) error
	}{
		{"sessions", s.stores.Sessions.RevokeAll},
		{"conversations", s.stores.Conversations.DeleteAll},
		{"stats", s.stores.Stats.Delete},
		{"memories", s.stores.Memories.Clear},
		{"user", s.stores.Credentials.Delete},
	}
	for _, step := range steps {
		if err := step.fn(ctx, username); err != nil {
			return fmt.Errorf("failed to delete %s of %s: %w", step.what, username, err)
		}
	}
	s.logger.Info().Str("user", username).Msg("Account deleted")
	return nil
}
