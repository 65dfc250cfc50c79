package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// mockTransport implements http.RoundTripper for mocking Elasticsearch responses
type mockTransport struct {
	mu          sync.Mutex
	requests    []*http.Request
	bodies      []string
	RoundTripFn func(req *http.Request) (*http.Response, error)
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.bodies = append(t.bodies, body)
	t.mu.Unlock()
	return t.RoundTripFn(req)
}

func (t *mockTransport) last() (*http.Request, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests[len(t.requests)-1], t.bodies[len(t.bodies)-1]
}

func esResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}},
	}
}

func createTestIndex(t *testing.T, fn func(req *http.Request) (*http.Response, error)) (*DocumentIndex, *mockTransport) {
	t.Helper()
	transport := &mockTransport{RoundTripFn: fn}
	client, err := es.NewClient(es.Config{Transport: transport})
	require.NoError(t, err)
	return NewDocumentIndex(client, true, nil), transport
}

func TestDocumentIndex_Upsert(t *testing.T) {
	idx, transport := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		return esResponse(http.StatusCreated, `{"_id":"reports_abc_def","result":"created"}`), nil
	})

	id, err := idx.Upsert(context.Background(), "documents", &domain.IndexDocument{
		ID:          "reports_abc_def",
		SourceID:    "reports",
		ItemKey:     "abc",
		ContentHash: "def",
		Timestamp:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "reports_abc_def", id)

	req, body := transport.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/documents/_doc/reports_abc_def", req.URL.Path)
	assert.Equal(t, "true", req.URL.Query().Get("refresh"))
	assert.Contains(t, body, `"source_id":"reports"`)
	assert.Contains(t, body, `"stale":false`)
}

func TestDocumentIndex_UpsertRequiresID(t *testing.T) {
	idx, _ := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err := idx.Upsert(context.Background(), "documents", &domain.IndexDocument{SourceID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentIndex_Get(t *testing.T) {
	idx, _ := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/documents/_doc/missing" {
			return esResponse(http.StatusNotFound, `{"_id":"missing","found":false}`), nil
		}
		return esResponse(http.StatusOK, `{"_id":"d1","found":true,"_source":{"source_id":"reports","item_key":"abc","content_hash":"h","stale":true}}`), nil
	})

	doc, err := idx.Get(context.Background(), "documents", "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)
	assert.Equal(t, "reports", doc.SourceID)
	assert.True(t, doc.Stale)

	_, err = idx.Get(context.Background(), "documents", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentIndex_MarkStaleScopedQuery(t *testing.T) {
	idx, transport := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		return esResponse(http.StatusOK, `{"updated":2,"version_conflicts":0}`), nil
	})

	before := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n, err := idx.MarkStale(context.Background(), "documents", domain.OutdatedScope{
		SourceID: "reports",
		ItemKeys: []string{"a", "b"},
		Before:   before,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	req, body := transport.last()
	assert.Equal(t, "/documents/_update_by_query", req.URL.Path)
	assert.Equal(t, "proceed", req.URL.Query().Get("conflicts"))

	var q struct {
		Query struct {
			Bool struct {
				Filter []map[string]map[string]any `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
		Script struct {
			Source string `json:"source"`
		} `json:"script"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &q))
	require.Len(t, q.Query.Bool.Filter, 3)
	assert.Equal(t, "reports", q.Query.Bool.Filter[0]["term"]["source_id"])
	rng := q.Query.Bool.Filter[1]["range"]["timestamp"].(map[string]any)
	assert.Equal(t, "2024-03-01T12:00:00Z", rng["lt"])
	assert.Equal(t, []any{"a", "b"}, q.Query.Bool.Filter[2]["terms"]["item_key"])
	assert.Equal(t, "ctx._source.stale = true", q.Script.Source)
}

func TestDocumentIndex_DeleteOutdatedSourceWide(t *testing.T) {
	idx, transport := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		return esResponse(http.StatusOK, `{"deleted":3}`), nil
	})

	n, err := idx.DeleteOutdated(context.Background(), "documents", domain.OutdatedScope{
		SourceID: "page",
		Before:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	req, body := transport.last()
	assert.Equal(t, "/documents/_delete_by_query", req.URL.Path)
	assert.NotContains(t, body, "item_key", "single documents clean up source-wide")
}

func TestDocumentIndex_RejectsUnscopedCleanup(t *testing.T) {
	idx, _ := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err := idx.DeleteOutdated(context.Background(), "documents", domain.OutdatedScope{Before: time.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = idx.MarkStale(context.Background(), "documents", domain.OutdatedScope{SourceID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentIndex_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		sentinel  error
	}{
		{http.StatusTooManyRequests, true, domain.ErrRateLimited},
		{http.StatusServiceUnavailable, true, domain.ErrTransient},
		{http.StatusConflict, false, nil},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			idx, _ := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
				return esResponse(tt.status, `{"error":"x"}`), nil
			})
			_, err := idx.DeleteOutdated(context.Background(), "documents", domain.OutdatedScope{
				SourceID: "s", Before: time.Now(),
			})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestDocumentIndex_CountBySource(t *testing.T) {
	idx, transport := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		return esResponse(http.StatusOK, `{"count":5}`), nil
	})

	n, err := idx.CountBySource(context.Background(), "documents", "reports", true)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	req, body := transport.last()
	assert.Equal(t, "/documents/_count", req.URL.Path)
	assert.Contains(t, body, `"stale":false`)
}

func TestDocumentIndex_EnsureIndexCreatesWhenMissing(t *testing.T) {
	idx, transport := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodHead {
			return esResponse(http.StatusNotFound, ``), nil
		}
		return esResponse(http.StatusOK, `{"acknowledged":true}`), nil
	})

	require.NoError(t, idx.EnsureIndex(context.Background(), "documents"))

	req, body := transport.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/documents", req.URL.Path)
	assert.Contains(t, body, `"mappings"`)
	assert.Contains(t, body, `"item_key"`)
}

func TestDocumentIndex_HealthCheck(t *testing.T) {
	idx, _ := createTestIndex(t, func(req *http.Request) (*http.Response, error) {
		return esResponse(http.StatusOK, `{}`), nil
	})
	assert.NoError(t, idx.HealthCheck(context.Background()))
}

func TestNormalizeAddresses(t *testing.T) {
	assert.Equal(t, []string{"http://localhost:9200"}, normalizeAddresses(nil))
	assert.Equal(t, []string{"http://es:9200", "https://es2:9200"}, normalizeAddresses([]string{"es:9200", " https://es2:9200 ", ""}))
}
