package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/therapy-scheduling/internal/access"
)

const secret = "test-secret"

func TestSignVerifyRoundTrip(t *testing.T) {
	id := uuid.New()
	tok, err := Sign(secret, id, "t@example.com", access.RoleTherapist, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	caller, claims, err := NewVerifier(secret).Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if caller.ID != id || caller.Role != access.RoleTherapist {
		t.Errorf("unexpected caller %+v", caller)
	}
	if claims.Email != "t@example.com" {
		t.Errorf("unexpected email %q", claims.Email)
	}
}

func TestVerifyRejects(t *testing.T) {
	id := uuid.New()
	good, _ := Sign(secret, id, "", access.RoleClient, time.Hour)
	expired, _ := Sign(secret, id, "", access.RoleClient, -time.Minute)
	otherKey, _ := Sign("other", id, "", access.RoleClient, time.Hour)

	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: id.String(), Role: "ROOT"}).SignedString([]byte(secret))
	badID, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "42", Role: "CLIENT"}).SignedString([]byte(secret))
	wrongAlg, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: id.String(), Role: "CLIENT"}).SignedString([]byte(secret))

	tests := map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"unknown role": badRole,
		"bad id":       badID,
		"wrong method": wrongAlg,
		"garbage":      "not-a-token",
		"tampered sig": good + "x",
	}
	v := NewVerifier(secret)
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
