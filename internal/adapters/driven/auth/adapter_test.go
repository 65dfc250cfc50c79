package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

func TestGenerateAndParseToken(t *testing.T) {
	adapter := NewAdapterWithCost("test-secret", 4)

	token, err := adapter.GenerateToken("ci-pipeline", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("expected a compact JWT, got %q", token)
	}

	claims, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.Subject != "ci-pipeline" {
		t.Errorf("expected subject ci-pipeline, got %q", claims.Subject)
	}
	if claims.ExpiresAt-claims.IssuedAt != int64(time.Hour/time.Second) {
		t.Errorf("expected one hour validity, got %ds", claims.ExpiresAt-claims.IssuedAt)
	}
}

func TestParseToken_Expired(t *testing.T) {
	adapter := NewAdapterWithCost("test-secret", 4)
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter.now = func() time.Time { return issued }

	token, err := adapter.GenerateToken("ci", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	adapter.now = func() time.Time { return issued.Add(time.Hour) }
	if _, err := adapter.ParseToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	adapter := NewAdapterWithCost("test-secret", 4)
	other := NewAdapterWithCost("other-secret", 4)
	foreign, _ := other.GenerateToken("ci", time.Hour)

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "ci",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  issuer,
		Subject: "ci",
	}).SignedString([]byte("test-secret"))

	tests := map[string]string{
		"garbage":        "not-a-token",
		"wrong secret":   foreign,
		"none algorithm": noneToken,
		"no expiry":      noExpiry,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := adapter.ParseToken(token); !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestTokensDisabledWithoutSecret(t *testing.T) {
	adapter := NewAdapter("")
	if _, err := adapter.GenerateToken("ci", time.Hour); err == nil {
		t.Error("expected error without secret")
	}
	if _, err := adapter.ParseToken("a.b.c"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestHashAndVerifyAPIKey(t *testing.T) {
	adapter := NewAdapterWithCost("", 4) // Low cost for faster tests

	hash, err := adapter.HashAPIKey("s3cret-key")
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}
	if hash == "s3cret-key" || len(hash) < 60 {
		t.Errorf("unexpected hash %q", hash)
	}

	if !adapter.VerifyAPIKey("s3cret-key", hash) {
		t.Error("expected key to verify")
	}
	if adapter.VerifyAPIKey("wrong", hash) {
		t.Error("expected wrong key to fail")
	}
	if adapter.VerifyAPIKey("s3cret-key", "") {
		t.Error("expected empty hash to fail")
	}
	if _, err := adapter.HashAPIKey(""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
