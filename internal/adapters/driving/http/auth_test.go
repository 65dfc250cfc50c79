package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// stubAuthenticator accepts "good" and reports "old" as expired
type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(ctx context.Context, credential string) (*domain.Principal, error) {
	switch credential {
	case "good":
		return &domain.Principal{Subject: "ci", Method: "token"}, nil
	case "old":
		return nil, fmt.Errorf("%w: exp", domain.ErrTokenExpired)
	default:
		return nil, domain.ErrUnauthorized
	}
}

func TestAuthMiddleware(t *testing.T) {
	var principal *domain.Principal
	handler := NewAuthMiddleware(stubAuthenticator{}, slog.New(slog.NewTextHandler(io.Discard, nil))).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipal(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic good", http.StatusUnauthorized},
		{"invalid", "Bearer bad", http.StatusUnauthorized},
		{"expired", "Bearer old", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal = nil
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && (principal == nil || principal.Subject != "ci") {
				t.Errorf("expected principal in context, got %+v", principal)
			}
		})
	}
}

func TestServer_EnableAuthProtectsSyncEndpoints(t *testing.T) {
	svc := newMockSyncService()
	svc.syncAllFn = func(ctx context.Context) (*domain.SyncSummary, error) {
		return &domain.SyncSummary{RunID: "run-1"}, nil
	}
	s := createTestServer(svc)
	s.EnableAuth(stubAuthenticator{})

	if rec := do(t, s, http.MethodPost, "/api/v1/sync"); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
	for _, path := range []string{"/api/v1/sources/reports/resume", "/api/v1/sources/reports/reset"} {
		if rec := do(t, s, http.MethodPost, path); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	// reads stay open
	if rec := do(t, s, http.MethodGet, "/api/v1/sources"); rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}
