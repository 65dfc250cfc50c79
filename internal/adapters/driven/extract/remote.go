package extract

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
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// RemoteExtractor posts payloads to an external extraction service. It is the
// fallback for PDFs and every type no local handler understands.
//
// The service receives the raw body with the payload content type and answers
// with {"title": "", "text": "", "fields": {}, "mime_type": ""}.
type RemoteExtractor struct {
	endpoint   string
	httpClient *http.Client
}

// RemoteConfig configures the remote extractor.
type RemoteConfig struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewRemoteExtractor validates the endpoint and creates the extractor.
func NewRemoteExtractor(cfg RemoteConfig) (*RemoteExtractor, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid extractor url %q", domain.ErrInvalidInput, cfg.URL)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteExtractor{endpoint: u.String(), httpClient: client}, nil
}

func (e *RemoteExtractor) SupportedTypes() []string {
	return []string{"*/*"}
}

func (e *RemoteExtractor) Priority() int {
	return 1
}

type remoteResponse struct {
	Title    string            `json:"title"`
	Text     string            `json:"text"`
	Fields   map[string]string `json:"fields"`
	MimeType string            `json:"mime_type"`
}

func (e *RemoteExtractor) Extract(ctx context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(req.Payload.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	contentType := ResolveType(req)
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Source-ID", req.Source.ID)
	httpReq.Header.Set("X-Filename", req.Filename)
	httpReq.Header.Set("X-Source-URL", req.Payload.URL)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
			return nil, fmt.Errorf("%w: extractor: %v", domain.ErrTransient, err)
		}
		return nil, fmt.Errorf("%w: extractor: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := fmt.Sprintf("extractor returned %s: %s", resp.Status, bytes.TrimSpace(body))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
		case resp.StatusCode == http.StatusUnsupportedMediaType:
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedContent, msg)
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %s", domain.ErrTransient, msg)
		default:
			return nil, errors.New(msg)
		}
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode extractor response: %w", err)
	}
	if out.MimeType == "" {
		out.MimeType = contentType
	}
	return &domain.ExtractedContent{
		Title:    out.Title,
		Text:     out.Text,
		Fields:   out.Fields,
		MimeType: out.MimeType,
	}, nil
}
