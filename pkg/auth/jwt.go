package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parley/pkg/config"
	"parley/pkg/models"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// ErrInvalidToken covers malformed, expired, mis-signed and mis-typed
// tokens; callers surface it uniformly as 401.
var ErrInvalidToken = errors.New("invalid token")

// Claims carried by both access and refresh tokens.
type Claims struct {
	Username  string `json:"username"`
	Superuser bool   `json:"su,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is the response of the token obtain endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// IssuePair signs a fresh access+refresh token pair for the user.
func IssuePair(u models.User) (TokenPair, error) {
	access, err := sign(u, TokenAccess, time.Duration(config.GetAccessTTLMinutes())*time.Minute)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := sign(u, TokenRefresh, time.Duration(config.GetRefreshTTLMinutes())*time.Minute)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func sign(u models.User, typ string, ttl time.Duration) (string, error) {
	secret := config.GetJWTSecret()
	if len(secret) == 0 {
		return "", fmt.Errorf("no jwt secret configured")
	}
	now := time.Now().UTC()
	claims := Claims{
		Username:  u.Username,
		Superuser: u.Superuser,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify parses a token string and checks signature, expiry and token
// type. Returns the embedded claims.
func Verify(tokenStr, wantType string) (*Claims, error) {
	secret := config.GetJWTSecret()
	if len(secret) == 0 {
		return nil, fmt.Errorf("no jwt secret configured")
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
