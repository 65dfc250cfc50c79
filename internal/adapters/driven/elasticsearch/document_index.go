package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentIndex = (*DocumentIndex)(nil)

// indexMapping keeps the cleanup fields exact so scoped queries match precisely.
const indexMapping = `{
  "mappings": {
    "properties": {
      "source_id":    {"type": "keyword"},
      "item_key":     {"type": "keyword"},
      "url":          {"type": "keyword"},
      "title":        {"type": "text"},
      "content":      {"type": "text"},
      "content_type": {"type": "keyword"},
      "content_hash": {"type": "keyword"},
      "timestamp":    {"type": "date"},
      "stale":        {"type": "boolean"},
      "metadata":     {"type": "object", "enabled": false}
    }
  }
}`

// Config holds Elasticsearch connection configuration
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string

	// Transport overrides the HTTP transport (tests)
	Transport http.RoundTripper

	// PingAttempts bounds the startup ping loop
	PingAttempts int
	PingDelay    time.Duration

	// Refresh makes writes visible to the next cleanup query immediately
	Refresh bool
}

// DocumentIndex implements driven.DocumentIndex with go-elasticsearch
type DocumentIndex struct {
	client  *es.Client
	refresh bool
	logger  *slog.Logger
}

// NewClient creates a client and verifies it answers a ping, retrying while the cluster starts.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*es.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := es.NewClient(es.Config{
		Addresses: normalizeAddresses(cfg.Addresses),
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	attempts := cfg.PingAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		err = ping(ctx, client)
		if err == nil {
			break
		}
		logger.Debug("elasticsearch ping failed", "attempt", i, "error", err)
		if i >= attempts {
			return nil, fmt.Errorf("failed to connect to Elasticsearch after %d attempts: %w", attempts, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.PingDelay):
		}
	}
	return client, nil
}

// NewDocumentIndex wraps a connected client
func NewDocumentIndex(client *es.Client, refresh bool, logger *slog.Logger) *DocumentIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentIndex{client: client, refresh: refresh, logger: logger}
}

func normalizeAddresses(addrs []string) []string {
	if len(addrs) == 0 {
		return []string{"http://localhost:9200"}
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !strings.HasPrefix(a, "http://") && !strings.HasPrefix(a, "https://") {
			a = "http://" + a
		}
		out = append(out, a)
	}
	return out
}

// EnsureIndex creates the index with the document mapping when it does not exist.
func (d *DocumentIndex) EnsureIndex(ctx context.Context, index string) error {
	res, err := d.client.Indices.Exists([]string{index}, d.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return classifyTransport(err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = d.client.Indices.Create(index,
		d.client.Indices.Create.WithContext(ctx),
		d.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return classifyTransport(err)
	}
	defer res.Body.Close()
	if err := responseError(res, "create index"); err != nil {
		// lost a race with another instance
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return err
	}
	d.logger.Info("created index", "index", index)
	return nil
}

// Upsert indexes the document under doc.ID
func (d *DocumentIndex) Upsert(ctx context.Context, index string, doc *domain.IndexDocument) (string, error) {
	if doc.ID == "" {
		return "", fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	opts := []func(*esapi.IndexRequest){
		d.client.Index.WithContext(ctx),
		d.client.Index.WithDocumentID(doc.ID),
	}
	if d.refresh {
		opts = append(opts, d.client.Index.WithRefresh("true"))
	}

	res, err := d.client.Index(index, bytes.NewReader(body), opts...)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer res.Body.Close()
	if err := responseError(res, "index document"); err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil || out.ID == "" {
		return doc.ID, nil
	}
	return out.ID, nil
}

// Get retrieves a document by id
func (d *DocumentIndex) Get(ctx context.Context, index, id string) (*domain.IndexDocument, error) {
	res, err := d.client.Get(index, id, d.client.Get.WithContext(ctx))
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer res.Body.Close()
	if err := responseError(res, "get document"); err != nil {
		return nil, err
	}

	var out struct {
		ID     string               `json:"_id"`
		Found  bool                 `json:"found"`
		Source domain.IndexDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if !out.Found {
		return nil, domain.ErrNotFound
	}
	out.Source.ID = out.ID
	return &out.Source, nil
}

// MarkStale sets stale=true with update_by_query limited to scope
func (d *DocumentIndex) MarkStale(ctx context.Context, index string, scope domain.OutdatedScope) (int, error) {
	query, err := scopeQuery(scope)
	if err != nil {
		return 0, err
	}
	query["script"] = map[string]any{
		"source": "ctx._source.stale = true",
		"lang":   "painless",
	}
	body, err := json.Marshal(query)
	if err != nil {
		return 0, err
	}

	res, err := d.client.UpdateByQuery([]string{index},
		d.client.UpdateByQuery.WithContext(ctx),
		d.client.UpdateByQuery.WithBody(bytes.NewReader(body)),
		d.client.UpdateByQuery.WithConflicts("proceed"),
		d.client.UpdateByQuery.WithRefresh(d.refresh),
	)
	if err != nil {
		return 0, classifyTransport(err)
	}
	defer res.Body.Close()
	if err := responseError(res, "update_by_query"); err != nil {
		return 0, err
	}

	var out struct {
		Updated int `json:"updated"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode update_by_query response: %w", err)
	}
	return out.Updated, nil
}

// DeleteOutdated removes documents in scope with delete_by_query
func (d *DocumentIndex) DeleteOutdated(ctx context.Context, index string, scope domain.OutdatedScope) (int, error) {
	query, err := scopeQuery(scope)
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(query)
	if err != nil {
		return 0, err
	}

	res, err := d.client.DeleteByQuery([]string{index}, bytes.NewReader(body),
		d.client.DeleteByQuery.WithContext(ctx),
		d.client.DeleteByQuery.WithConflicts("proceed"),
		d.client.DeleteByQuery.WithRefresh(d.refresh),
	)
	if err != nil {
		return 0, classifyTransport(err)
	}
	defer res.Body.Close()
	if err := responseError(res, "delete_by_query"); err != nil {
		return 0, err
	}

	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode delete_by_query response: %w", err)
	}
	return out.Deleted, nil
}

// CountBySource counts documents of a source, optionally only the non-stale ones
func (d *DocumentIndex) CountBySource(ctx context.Context, index, sourceID string, currentOnly bool) (int, error) {
	filter := []any{map[string]any{"term": map[string]any{"source_id": sourceID}}}
	if currentOnly {
		filter = append(filter, map[string]any{"term": map[string]any{"stale": false}})
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": filter}},
	})
	if err != nil {
		return 0, err
	}

	res, err := d.client.Count(
		d.client.Count.WithContext(ctx),
		d.client.Count.WithIndex(index),
		d.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, classifyTransport(err)
	}
	defer res.Body.Close()
	if err := responseError(res, "count"); err != nil {
		return 0, err
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return out.Count, nil
}

// HealthCheck pings the cluster
func (d *DocumentIndex) HealthCheck(ctx context.Context) error {
	return ping(ctx, d.client)
}

func ping(ctx context.Context, client *es.Client) error {
	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return classifyTransport(err)
	}
	defer res.Body.Close()
	return responseError(res, "ping")
}

// scopeQuery builds the bool filter every cleanup step uses. An empty source or cutoff
// would widen the query to other sources, so it is refused.
func scopeQuery(scope domain.OutdatedScope) (map[string]any, error) {
	if scope.SourceID == "" || scope.Before.IsZero() {
		return nil, fmt.Errorf("%w: cleanup scope needs a source id and a cutoff", domain.ErrInvalidInput)
	}
	filter := []any{
		map[string]any{"term": map[string]any{"source_id": scope.SourceID}},
		map[string]any{"range": map[string]any{"timestamp": map[string]any{
			"lt": scope.Before.UTC().Format(time.RFC3339Nano),
		}}},
	}
	if len(scope.ItemKeys) > 0 {
		filter = append(filter, map[string]any{"terms": map[string]any{"item_key": scope.ItemKeys}})
	}
	return map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": filter}},
	}, nil
}

// responseError maps an error response onto the domain sentinels.
func responseError(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	msg := fmt.Sprintf("elasticsearch %s failed: %s %s", op, res.Status(), strings.TrimSpace(string(body)))
	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case res.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case res.StatusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrTransient, msg)
	default:
		return errors.New(msg)
	}
}

func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: elasticsearch: %v", domain.ErrTransient, err)
}
