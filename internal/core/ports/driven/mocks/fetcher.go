package mocks

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// MockFetcher serves canned payloads by URL
type MockFetcher struct {
	mu       sync.Mutex
	payloads map[string]*domain.Payload
	errs     map[string]error
	calls    map[string]int
}

// NewMockFetcher creates a new MockFetcher
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		payloads: make(map[string]*domain.Payload),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

// SetPayload registers the body served for url.
func (m *MockFetcher) SetPayload(url, contentType string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[url] = &domain.Payload{
		URL:         url,
		Body:        body,
		ContentType: contentType,
		StatusCode:  200,
	}
	delete(m.errs, url)
}

// SetError makes every fetch of url fail with err.
func (m *MockFetcher) SetError(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[url] = err
}

func (m *MockFetcher) Fetch(ctx context.Context, req driven.FetchRequest) (*domain.Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[req.URL]++
	if err, ok := m.errs[req.URL]; ok {
		return nil, err
	}
	p, ok := m.payloads[req.URL]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, domain.ErrNotFound)
	}
	cp := *p
	cp.FetchedAt = time.Now()
	return &cp, nil
}

// Calls returns how many times url was fetched.
func (m *MockFetcher) Calls(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

// MockExtractor returns the payload body as text unless ExtractFn is set
type MockExtractor struct {
	mu    sync.Mutex
	calls int

	ExtractFn func(req domain.ExtractRequest) (*domain.ExtractedContent, error)
}

// NewMockExtractor creates a new MockExtractor
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

func (m *MockExtractor) Extract(ctx context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ExtractFn != nil {
		return m.ExtractFn(req)
	}
	return &domain.ExtractedContent{
		Title:    req.Filename,
		Text:     string(req.Payload.Body),
		MimeType: req.Payload.ContentType,
	}, nil
}

// Calls returns the number of extractions.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockLinkExtractor treats every non-empty line of a listing body as an item URL
type MockLinkExtractor struct {
	Err error
}

// NewMockLinkExtractor creates a new MockLinkExtractor
func NewMockLinkExtractor() *MockLinkExtractor {
	return &MockLinkExtractor{}
}

func (m *MockLinkExtractor) ExtractLinks(source *domain.ContentSource, page *domain.Payload) ([]domain.DiscoveredItem, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var items []domain.DiscoveredItem
	for _, line := range strings.Split(string(page.Body), "\n") {
		url := strings.TrimSpace(line)
		if url == "" {
			continue
		}
		items = append(items, domain.DiscoveredItem{
			URL:          url,
			Filename:     path.Base(url),
			URLHash:      domain.ComputeURLHash(url),
			DiscoveredAt: page.FetchedAt,
		})
	}
	return items, nil
}
