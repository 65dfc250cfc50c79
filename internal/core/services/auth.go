package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Ensure AuthService implements the driving port
var _ driving.Authenticator = (*AuthService)(nil)

// APIKeySubject is the principal a valid static API key authenticates as
const APIKeySubject = "api-key"

// AuthService authenticates API callers by signed token or static API key.
type AuthService struct {
	adapter    driven.AuthAdapter
	apiKeyHash string
}

// NewAuthService creates an AuthService. apiKeyHash is the bcrypt hash of the
// static API key; empty disables key authentication.
func NewAuthService(adapter driven.AuthAdapter, apiKeyHash string) *AuthService {
	return &AuthService{adapter: adapter, apiKeyHash: apiKeyHash}
}

// Authenticate treats three-part credentials as tokens and anything else as the API key.
func (s *AuthService) Authenticate(ctx context.Context, credential string) (*domain.Principal, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: missing credentials", domain.ErrUnauthorized)
	}

	if strings.Count(credential, ".") == 2 {
		claims, err := s.adapter.ParseToken(credential)
		if err != nil {
			return nil, err
		}
		return &domain.Principal{Subject: claims.Subject, Method: "token"}, nil
	}

	if s.adapter.VerifyAPIKey(credential, s.apiKeyHash) {
		return &domain.Principal{Subject: APIKeySubject, Method: "api_key"}, nil
	}
	return nil, fmt.Errorf("%w: invalid api key", domain.ErrUnauthorized)
}
