package driven

import (
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// AuthAdapter signs and verifies API credentials
type AuthAdapter interface {
	// GenerateToken signs a token for subject valid for ttl
	GenerateToken(subject string, ttl time.Duration) (string, error)

	// ParseToken validates a token and returns its claims
	ParseToken(token string) (*domain.TokenClaims, error)

	// HashAPIKey returns a storable hash of an API key
	HashAPIKey(key string) (string, error)

	// VerifyAPIKey checks a presented key against a stored hash
	VerifyAPIKey(key, hash string) bool
}
