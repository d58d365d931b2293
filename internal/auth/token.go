// Package auth verifies the bearer tokens issued by the practice's auth
// service and turns them into an access.Caller.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/access"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload: user id, email and role.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks signature and expiry and returns the caller the token names.
func (v *Verifier) Verify(tokenString string) (access.Caller, *Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return access.Caller{}, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return access.Caller{}, nil, fmt.Errorf("%w: bad subject id", ErrInvalidToken)
	}
	role, err := access.ParseRole(claims.Role)
	if err != nil {
		return access.Caller{}, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return access.Caller{ID: id, Role: role}, claims, nil
}

// Sign mints a token. The api server only verifies; seed and simulate use
// this to produce development credentials.
func Sign(secret string, id uuid.UUID, email string, role access.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.String(),
		Email:  email,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
