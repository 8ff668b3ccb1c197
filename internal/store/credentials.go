package store

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gwi.com/nova-chat/internal/auth"
)

// CredentialPolicy is the signup length/complexity rule set.
type CredentialPolicy struct {
	UsernameMinLength int
	PasswordMinLength int
	// RequireMixed demands at least one letter, one digit and one symbol.
	RequireMixed bool
}

func DefaultCredentialPolicy() CredentialPolicy {
	return CredentialPolicy{UsernameMinLength: 3, PasswordMinLength: 8, RequireMixed: true}
}

func (p CredentialPolicy) Check(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return invalid("username", "username is required")
	}
	if password == "" {
		return invalid("password", "password is required")
	}
	if utf8.RuneCountInString(username) < p.UsernameMinLength {
		return tooShort("username", fmt.Sprintf("username must be at least %d characters", p.UsernameMinLength))
	}
	if utf8.RuneCountInString(password) < p.PasswordMinLength {
		return tooShort("password", fmt.Sprintf("password must be at least %d characters", p.PasswordMinLength))
	}
	if p.RequireMixed && !mixedPassword(password) {
		return tooShort("password", "password must contain a letter, a digit and a special character")
	}
	return nil
}

func mixedPassword(password string) bool {
	var letter, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsSpace(r):
			special = true
		}
	}
	return letter && digit && special
}

type CredentialStore struct {
	users        *document[*User]
	now          func() time.Time
	policy       CredentialPolicy
	defaultModel string
	logger       zerolog.Logger
}

// CreateUser registers username with a freshly salted password hash and the
// default preferences.
func (s *CredentialStore) CreateUser(ctx context.Context, username, password, email string) (*User, error) {
	if err := s.policy.Check(username, password); err != nil {
		return nil, err
	}

	salt, err := auth.NewSalt()
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     username,
		PasswordHash: auth.HashPassword(password, salt),
		Salt:         salt,
		CreatedAt:    s.now(),
		Email:        strings.TrimSpace(email),
		Preferences:  DefaultPreferences(s.defaultModel),
	}

	err = s.users.update(ctx, func(users map[string]*User) error {
		if _, exists := users[username]; exists {
			return &ValidationError{Field: "username", Message: "username already exists", Err: ErrAlreadyExists}
		}
		users[username] = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Verify reports whether password matches the stored hash. Unknown users and
// storage failures both yield false.
func (s *CredentialStore) Verify(ctx context.Context, username, password string) bool {
	var user *User
	err := s.users.view(ctx, func(users map[string]*User) error {
		user = users[username]
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Failed to load credentials")
		return false
	}
	if user == nil {
		return false
	}
	return auth.CheckPasswordHash(password, user.Salt, user.PasswordHash)
}

func (s *CredentialStore) Get(ctx context.Context, username string) (*User, error) {
	var user *User
	err := s.users.view(ctx, func(users map[string]*User) error {
		user = users[username]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	user.Username = username
	return user, nil
}

func (s *CredentialStore) RecordLogin(ctx context.Context, username string) error {
	return s.users.update(ctx, func(users map[string]*User) error {
		user, ok := users[username]
		if !ok {
			return ErrNotFound
		}
		now := s.now()
		user.LastLogin = &now
		return nil
	})
}

// Delete removes the account record. Missing users are not an error.
func (s *CredentialStore) Delete(ctx context.Context, username string) error {
	return s.users.update(ctx, func(users map[string]*User) error {
		if _, ok := users[username]; !ok {
			return errNoChange
		}
		delete(users, username)
		return nil
	})
}
