package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenSigner wraps a server-side session token in an HS256 JWT so that
// clients hold a tamper-evident credential. Expiry is not encoded in the JWT:
// the session store owns the sliding expiration.
type TokenSigner struct {
	secret []byte
}

func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

func (s *TokenSigner) Sign(username, sessionToken string, issuedAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  username,
		ID:       sessionToken,
		IssuedAt: jwt.NewNumericDate(issuedAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse verifies the signature and returns the username and session token.
func (s *TokenSigner) Parse(tokenString string) (string, string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.ID, nil
}
