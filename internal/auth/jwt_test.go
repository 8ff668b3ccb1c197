package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSigner_RoundTrip(t *testing.T) {
	s := NewTokenSigner("k")

	tok, err := s.Sign("alice", "sess-1", time.Now())
	require.NoError(t, err)

	user, sess, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "sess-1", sess)
}

func TestTokenSigner_WrongSecret(t *testing.T) {
	tok, err := NewTokenSigner("k1").Sign("alice", "sess-1", time.Now())
	require.NoError(t, err)

	_, _, err = NewTokenSigner("k2").Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSigner_Garbage(t *testing.T) {
	_, _, err := NewTokenSigner("k").Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSigner_MissingSessionID(t *testing.T) {
	secret := "k"
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte(secret))
	require.NoError(t, err)

	_, _, err = NewTokenSigner(secret).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSigner_RejectsNoneAlg(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice", ID: "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = NewTokenSigner("k").Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
