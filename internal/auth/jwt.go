package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"attendly/internal/model"
)

// Token is a signed session token. ID is stored on the user to enforce one live session.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Role  model.Role `json:"role"`
	RegNo string     `json:"regNo"`
	Email string     `json:"email"`
	jwt.RegisteredClaims
}

// Signer issues and verifies session tokens with one HS256 key.
type Signer struct {
	Key    string
	Issuer string
	TTL    time.Duration
}

// Issue signs a session token for u.
func (s Signer) Issue(u *model.User) (Token, error) {
	return Issue(u.ID, u.Role, u.RegNo, u.Email, s.Issuer, s.Key, s.TTL)
}

// Parse validates a token string against the signer's key and issuer.
func (s Signer) Parse(tokenStr string) (Claims, error) {
	return Parse(tokenStr, s.Key, s.Issuer)
}

// Issue signs a session token with a fresh token id.
func Issue(subject string, role model.Role, regNo, email, issuer, key string, ttl time.Duration) (Token, error) {
	now := time.Now()
	exp := now.Add(ttl)
	id := uuid.NewString()

	claims := Claims{
		Role:  role,
		RegNo: regNo,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ID: id, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject")
	}
	return *claims, nil
}
