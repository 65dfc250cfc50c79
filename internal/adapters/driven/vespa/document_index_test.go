package vespa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  string
		want      string
		wantError bool
	}{
		{name: "valid http endpoint", endpoint: "http://localhost:8080", want: "http://localhost:8080"},
		{name: "valid https endpoint", endpoint: "https://vespa.example.com:8080", want: "https://vespa.example.com:8080"},
		{name: "strips trailing slash", endpoint: "http://localhost:8080/", want: "http://localhost:8080"},
		{name: "rejects empty string", endpoint: "", wantError: true},
		{name: "rejects file scheme", endpoint: "file:///etc/passwd", wantError: true},
		{name: "rejects no scheme", endpoint: "localhost:8080", wantError: true},
		{name: "rejects data scheme", endpoint: "data:text/html,<script>alert(1)</script>", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateEndpoint(tt.endpoint)
			if tt.wantError {
				if err == nil {
					t.Errorf("validateEndpoint(%q) expected error, got nil", tt.endpoint)
				}
				return
			}
			if err != nil {
				t.Errorf("validateEndpoint(%q) unexpected error: %v", tt.endpoint, err)
				return
			}
			if got != tt.want {
				t.Errorf("validateEndpoint(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   string
}

// fakeVespa records requests and answers with canned handlers.
type fakeVespa struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, r *http.Request, body string)
}

func (f *fakeVespa) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: q, Body: string(data)})
	f.mu.Unlock()
	f.handle(w, r, string(data))
}

func createTestIndex(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body string)) (*DocumentIndex, *fakeVespa) {
	t.Helper()
	fake := &fakeVespa{handle: handle}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	idx, err := NewDocumentIndex(DefaultConfig(server.URL))
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	return idx, fake
}

func TestDocumentIndex_UpsertAndGet(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var stored string
	idx, fake := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {
		switch r.Method {
		case http.MethodPost:
			stored = body
			w.Write([]byte(`{"id":"id:sercha:documents::x"}`))
		case http.MethodGet:
			w.Write([]byte(stored))
		}
	})

	doc := &domain.IndexDocument{
		ID:          "reports_abc_def",
		SourceID:    "reports",
		ItemKey:     "abc",
		ContentHash: "def",
		Content:     "hello",
		Timestamp:   ts,
	}
	id, err := idx.Upsert(context.Background(), "documents", doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "reports_abc_def" {
		t.Errorf("expected id to be echoed, got %s", id)
	}
	if fake.requests[0].Path != "/document/v1/sercha/documents/docid/reports_abc_def" {
		t.Errorf("unexpected path %s", fake.requests[0].Path)
	}
	if !strings.Contains(stored, `"timestamp":1709294400000`) {
		t.Errorf("expected epoch millis timestamp in body, got %s", stored)
	}

	got, err := idx.Get(context.Background(), "documents", "reports_abc_def")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SourceID != "reports" || got.ItemKey != "abc" || !got.Timestamp.Equal(ts) {
		t.Errorf("unexpected document: %+v", got)
	}
}

func TestDocumentIndex_GetNotFound(t *testing.T) {
	idx, _ := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusNotFound)
	})
	if _, err := idx.Get(context.Background(), "documents", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentIndex_MarkStaleFollowsContinuation(t *testing.T) {
	calls := 0
	idx, fake := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"documentCount":2,"continuation":"tok"}`))
			return
		}
		w.Write([]byte(`{"documentCount":1}`))
	})

	before := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n, err := idx.MarkStale(context.Background(), "documents", domain.OutdatedScope{
		SourceID: "reports",
		ItemKeys: []string{"a", "b"},
		Before:   before,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 marked, got %d", n)
	}

	first := fake.requests[0]
	if first.Method != http.MethodPut {
		t.Errorf("expected PUT, got %s", first.Method)
	}
	want := `documents.source_id=="reports" and documents.timestamp < 1709294400000 and (documents.item_key=="a" or documents.item_key=="b")`
	if first.Query["selection"] != want {
		t.Errorf("unexpected selection:\n got %s\nwant %s", first.Query["selection"], want)
	}
	if first.Query["cluster"] != "sercha" {
		t.Errorf("expected cluster param, got %q", first.Query["cluster"])
	}
	var update map[string]map[string]map[string]bool
	if err := json.Unmarshal([]byte(first.Body), &update); err != nil {
		t.Fatalf("bad update body: %v", err)
	}
	if !update["fields"]["stale"]["assign"] {
		t.Errorf("expected stale assign, got %s", first.Body)
	}
	if fake.requests[1].Query["continuation"] != "tok" {
		t.Errorf("expected continuation token on second call, got %v", fake.requests[1].Query)
	}
}

func TestDocumentIndex_DeleteOutdatedSourceWide(t *testing.T) {
	idx, fake := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {
		w.Write([]byte(`{"documentCount":4}`))
	})

	n, err := idx.DeleteOutdated(context.Background(), "documents", domain.OutdatedScope{
		SourceID: "page",
		Before:   time.UnixMilli(1000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 deleted, got %d", n)
	}
	if fake.requests[0].Method != http.MethodDelete {
		t.Errorf("expected DELETE, got %s", fake.requests[0].Method)
	}
	if got := fake.requests[0].Query["selection"]; got != `documents.source_id=="page" and documents.timestamp < 1000` {
		t.Errorf("unexpected selection %s", got)
	}
}

func TestDocumentIndex_RejectsUnscopedCleanup(t *testing.T) {
	idx, fake := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {})

	_, err := idx.DeleteOutdated(context.Background(), "documents", domain.OutdatedScope{SourceID: "page"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if len(fake.requests) != 0 {
		t.Errorf("expected no request, got %d", len(fake.requests))
	}
}

func TestDocumentIndex_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusServiceUnavailable, domain.ErrTransient},
		{http.StatusInternalServerError, domain.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			idx, _ := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {
				w.WriteHeader(tt.status)
			})
			_, err := idx.Upsert(context.Background(), "documents", &domain.IndexDocument{ID: "x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !domain.IsRetryable(err) {
				t.Errorf("expected retryable error, got %v", err)
			}
		})
	}

	idx, _ := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := idx.Upsert(context.Background(), "documents", &domain.IndexDocument{ID: "x"})
	if err == nil || domain.IsRetryable(err) {
		t.Errorf("expected fatal error for 400, got %v", err)
	}
}

func TestDocumentIndex_CountBySource(t *testing.T) {
	idx, fake := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {
		w.Write([]byte(`{"root":{"fields":{"totalCount":7}}}`))
	})

	n, err := idx.CountBySource(context.Background(), "documents", "reports", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
	if !strings.Contains(fake.requests[0].Body, "stale = false") {
		t.Errorf("expected current-only filter, got %s", fake.requests[0].Body)
	}
}

func TestDocumentIndex_HealthCheck(t *testing.T) {
	idx, _ := createTestIndex(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if r.URL.Path != "/state/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":{"code":"up"}}`))
	})
	if err := idx.HealthCheck(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
