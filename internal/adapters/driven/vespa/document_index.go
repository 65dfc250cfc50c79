package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentIndex = (*DocumentIndex)(nil)

// DocumentIndex implements driven.DocumentIndex on the Vespa document/v1 API.
// The index name is the Vespa document type; timestamps are stored as epoch milliseconds.
type DocumentIndex struct {
	baseURL    string
	namespace  string
	cluster    string
	httpClient *http.Client
}

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the container endpoint (e.g., http://localhost:8080)
	BaseURL string

	// Namespace of the document ids
	Namespace string

	// Cluster is the content cluster selection-based operations run against
	Cluster string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		Namespace: "sercha",
		Cluster:   "sercha",
		Timeout:   30 * time.Second,
	}
}

// NewDocumentIndex creates a Vespa-backed DocumentIndex
func NewDocumentIndex(cfg Config) (*DocumentIndex, error) {
	base, err := validateEndpoint(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "sercha"
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "sercha"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DocumentIndex{
		baseURL:    base,
		namespace:  cfg.Namespace,
		cluster:    cfg.Cluster,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// validateEndpoint accepts absolute http(s) URLs and strips a trailing slash.
func validateEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || endpoint == "" {
		return "", fmt.Errorf("%w: invalid vespa endpoint %q", domain.ErrInvalidInput, endpoint)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: vespa endpoint must be http(s): %q", domain.ErrInvalidInput, endpoint)
	}
	return strings.TrimSuffix(endpoint, "/"), nil
}

type vespaFields struct {
	ID          string            `json:"id"`
	SourceID    string            `json:"source_id"`
	ItemKey     string            `json:"item_key"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"`
	ContentHash string            `json:"content_hash"`
	Timestamp   int64             `json:"timestamp"`
	Stale       bool              `json:"stale"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type vespaDocument struct {
	Fields vespaFields `json:"fields"`
}

// visitResponse is the body of selection-based updates and deletes
type visitResponse struct {
	DocumentCount int    `json:"documentCount"`
	Continuation  string `json:"continuation"`
	Message       string `json:"message"`
}

func (s *DocumentIndex) docURL(index, id string) string {
	return fmt.Sprintf("%s/document/v1/%s/%s/docid/%s", s.baseURL, s.namespace, index, url.PathEscape(id))
}

// Upsert writes the document under doc.ID
func (s *DocumentIndex) Upsert(ctx context.Context, index string, doc *domain.IndexDocument) (string, error) {
	if doc.ID == "" {
		return "", fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	body, err := json.Marshal(vespaDocument{Fields: toFields(doc)})
	if err != nil {
		return "", err
	}

	resp, err := s.do(ctx, http.MethodPost, s.docURL(index, doc.ID), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "put"); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// Get retrieves a document by id
func (s *DocumentIndex) Get(ctx context.Context, index, id string) (*domain.IndexDocument, error) {
	resp, err := s.do(ctx, http.MethodGet, s.docURL(index, id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if err := checkStatus(resp, "get"); err != nil {
		return nil, err
	}

	var doc vespaDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode vespa document: %w", err)
	}
	return fromFields(doc.Fields), nil
}

// MarkStale assigns stale=true to every document in scope
func (s *DocumentIndex) MarkStale(ctx context.Context, index string, scope domain.OutdatedScope) (int, error) {
	if err := checkScope(scope); err != nil {
		return 0, err
	}
	body, err := json.Marshal(map[string]any{
		"fields": map[string]any{"stale": map[string]any{"assign": true}},
	})
	if err != nil {
		return 0, err
	}
	return s.visit(ctx, http.MethodPut, index, scope, body)
}

// DeleteOutdated removes every document in scope
func (s *DocumentIndex) DeleteOutdated(ctx context.Context, index string, scope domain.OutdatedScope) (int, error) {
	if err := checkScope(scope); err != nil {
		return 0, err
	}
	return s.visit(ctx, http.MethodDelete, index, scope, nil)
}

// visit runs a selection-based operation, following continuation tokens until done.
func (s *DocumentIndex) visit(ctx context.Context, method, index string, scope domain.OutdatedScope, body []byte) (int, error) {
	params := url.Values{}
	params.Set("selection", buildSelection(index, scope))
	params.Set("cluster", s.cluster)

	total := 0
	for {
		endpoint := fmt.Sprintf("%s/document/v1/%s/%s/docid?%s", s.baseURL, s.namespace, index, params.Encode())
		resp, err := s.do(ctx, method, endpoint, body)
		if err != nil {
			return total, err
		}

		if err := checkStatus(resp, "visit"); err != nil {
			resp.Body.Close()
			return total, err
		}
		var vr visitResponse
		err = json.NewDecoder(resp.Body).Decode(&vr)
		resp.Body.Close()
		if err != nil {
			return total, fmt.Errorf("failed to decode vespa visit response: %w", err)
		}

		total += vr.DocumentCount
		if vr.Continuation == "" {
			return total, nil
		}
		params.Set("continuation", vr.Continuation)
	}
}

// CountBySource counts documents of a source through the query API
func (s *DocumentIndex) CountBySource(ctx context.Context, index, sourceID string, currentOnly bool) (int, error) {
	yql := fmt.Sprintf(`select * from %s where source_id contains "%s"`, index, escape(sourceID))
	if currentOnly {
		yql += " and stale = false"
	}
	body, err := json.Marshal(map[string]any{"yql": yql, "hits": 0})
	if err != nil {
		return 0, err
	}

	resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/search/", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "count"); err != nil {
		return 0, err
	}

	var sr struct {
		Root struct {
			Fields struct {
				TotalCount int64 `json:"totalCount"`
			} `json:"fields"`
		} `json:"root"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return 0, fmt.Errorf("failed to decode vespa search response: %w", err)
	}
	return int(sr.Root.Fields.TotalCount), nil
}

// HealthCheck verifies the container is up
func (s *DocumentIndex) HealthCheck(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, s.baseURL+"/state/v1/health", nil)
	if err != nil {
		return fmt.Errorf("vespa health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: vespa unhealthy: %s", domain.ErrServiceUnavailable, resp.Status)
	}
	return nil
}

func (s *DocumentIndex) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: vespa %s: %v", domain.ErrTransient, method, err)
		}
		return nil, fmt.Errorf("%w: vespa %s: %v", domain.ErrServiceUnavailable, method, err)
	}
	return resp, nil
}

// checkStatus maps Vespa status codes onto domain errors.
func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("vespa %s failed: %s - %s", op, resp.Status, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrTransient, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	default:
		return errors.New(msg)
	}
}

func checkScope(scope domain.OutdatedScope) error {
	if scope.SourceID == "" || scope.Before.IsZero() {
		return fmt.Errorf("%w: cleanup scope needs a source id and a cutoff", domain.ErrInvalidInput)
	}
	return nil
}

// buildSelection renders a scope in the document selection language.
func buildSelection(doctype string, scope domain.OutdatedScope) string {
	var b strings.Builder
	fmt.Fprintf(&b, `%s.source_id=="%s" and %s.timestamp < %d`,
		doctype, escape(scope.SourceID), doctype, scope.Before.UnixMilli())
	if len(scope.ItemKeys) > 0 {
		keys := make([]string, len(scope.ItemKeys))
		for i, key := range scope.ItemKeys {
			keys[i] = fmt.Sprintf(`%s.item_key=="%s"`, doctype, escape(key))
		}
		b.WriteString(" and (" + strings.Join(keys, " or ") + ")")
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`)
}

func toFields(doc *domain.IndexDocument) vespaFields {
	return vespaFields{
		ID:          doc.ID,
		SourceID:    doc.SourceID,
		ItemKey:     doc.ItemKey,
		URL:         doc.URL,
		Title:       doc.Title,
		Content:     doc.Content,
		ContentType: doc.ContentType,
		ContentHash: doc.ContentHash,
		Timestamp:   doc.Timestamp.UnixMilli(),
		Stale:       doc.Stale,
		Metadata:    doc.Metadata,
	}
}

func fromFields(f vespaFields) *domain.IndexDocument {
	return &domain.IndexDocument{
		ID:          f.ID,
		SourceID:    f.SourceID,
		ItemKey:     f.ItemKey,
		URL:         f.URL,
		Title:       f.Title,
		Content:     f.Content,
		ContentType: f.ContentType,
		ContentHash: f.ContentHash,
		Timestamp:   time.UnixMilli(f.Timestamp).UTC(),
		Stale:       f.Stale,
		Metadata:    f.Metadata,
	}
}
