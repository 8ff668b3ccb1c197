package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const sessionTokenBytes = 32

// SessionStore maps opaque tokens to usernames with a sliding expiry.
type SessionStore struct {
	doc *document[*Session]
	now func() time.Time
	ttl time.Duration
}

func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func (s *SessionStore) Create(ctx context.Context, username string) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	session := &Session{
		Token:     token,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	err = s.doc.update(ctx, func(sessions map[string]*Session) error {
		sessions[token] = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Validate returns the username behind token and pushes its expiry to
// now+TTL. Expired sessions are removed and reported as invalid.
func (s *SessionStore) Validate(ctx context.Context, token string) (string, bool, error) {
	var username string
	err := s.doc.update(ctx, func(sessions map[string]*Session) error {
		session, ok := sessions[token]
		if !ok || session == nil {
			return errNoChange
		}
		now := s.now()
		if now.After(session.ExpiresAt) {
			delete(sessions, token)
			return nil
		}
		session.ExpiresAt = now.Add(s.ttl)
		username = session.Username
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return username, username != "", nil
}

func (s *SessionStore) Get(ctx context.Context, token string) (*Session, error) {
	var session *Session
	err := s.doc.view(ctx, func(sessions map[string]*Session) error {
		session = sessions[token]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	session.Token = token
	return session, nil
}

func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.doc.update(ctx, func(sessions map[string]*Session) error {
		if _, ok := sessions[token]; !ok {
			return errNoChange
		}
		delete(sessions, token)
		return nil
	})
}

// RevokeAll drops every session held by username.
func (s *SessionStore) RevokeAll(ctx context.Context, username string) error {
	return s.doc.update(ctx, func(sessions map[string]*Session) error {
		removed := 0
		for token, session := range sessions {
			if session == nil || session.Username == username {
				delete(sessions, token)
				removed++
			}
		}
		if removed == 0 {
			return errNoChange
		}
		return nil
	})
}

// PruneExpired removes all sessions past their expiry and reports how many
// were dropped.
func (s *SessionStore) PruneExpired(ctx context.Context) (int, error) {
	removed := 0
	err := s.doc.update(ctx, func(sessions map[string]*Session) error {
		now := s.now()
		for token, session := range sessions {
			if session == nil || now.After(session.ExpiresAt) {
				delete(sessions, token)
				removed++
			}
		}
		if removed == 0 {
			return errNoChange
		}
		return nil
	})
	return removed, err
}

func newToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
