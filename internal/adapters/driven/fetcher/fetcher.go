package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Fetcher = (*Fetcher)(nil)

const (
	defaultUserAgent = "sercha-sync/1.0"
	defaultMaxBytes  = 100 << 20
)

// Fetcher implements driven.Fetcher over HTTP(S) and the local filesystem.
// It does not retry: callers wrap it in the resilience executor.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	now        func() time.Time
}

// Config configures the fetcher.
type Config struct {
	// HTTPClient defaults to a client without a global timeout; requests carry their own
	HTTPClient *http.Client
	UserAgent  string
	// MaxBytes caps the body size read from one response
	MaxBytes int64
	Now      func() time.Time
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Fetcher{
		httpClient: cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBytes,
		now:        cfg.Now,
	}
}

// Fetch retrieves req.URL.
//
// Failures are classified for the executor: 429 wraps ErrRateLimited, 5xx and
// network errors wrap ErrTransient, 404 wraps ErrNotFound and other statuses are
// returned unwrapped so they are not retried.
func (f *Fetcher) Fetch(ctx context.Context, req driven.FetchRequest) (*domain.Payload, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q", domain.ErrInvalidInput, req.URL)
	}
	switch u.Scheme {
	case "file":
		return f.fetchFile(u)
	case "http", "https":
		return f.fetchHTTP(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidInput, u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, req driven.FetchRequest) (*domain.Payload, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrInvalidInput, err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyNetwork(req.URL, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req.URL, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, classifyNetwork(req.URL, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, req.URL, f.maxBytes)
	}

	payload := &domain.Payload{
		URL:         req.URL,
		Body:        body,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		ETag:        resp.Header.Get("ETag"),
		StatusCode:  resp.StatusCode,
		FetchedAt:   f.now().UTC(),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			t = t.UTC()
			payload.LastModified = &t
		}
	}
	if payload.ContentType == "" {
		payload.ContentType = mediaType(http.DetectContentType(body))
	}
	return payload, nil
}

func (f *Fetcher) fetchFile(u *url.URL) (*domain.Payload, error) {
	path := filepath.FromSlash(u.Path)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, u.String())
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, path, f.maxBytes)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	contentType := mediaType(mime.TypeByExtension(filepath.Ext(path)))
	if contentType == "" {
		contentType = mediaType(http.DetectContentType(body))
	}
	modified := info.ModTime().UTC()
	return &domain.Payload{
		URL:          u.String(),
		Body:         body,
		ContentType:  contentType,
		LastModified: &modified,
		StatusCode:   http.StatusOK,
		FetchedAt:    f.now().UTC(),
	}, nil
}

func checkStatus(rawURL string, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	msg := fmt.Sprintf("GET %s: %s", rawURL, resp.Status)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			msg += " (retry after " + ra + ")"
		}
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrTransient, msg)
	default:
		return errors.New(msg)
	}
}

func classifyNetwork(rawURL string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: GET %s: %v", domain.ErrTransient, rawURL, err)
	}
	return fmt.Errorf("%w: GET %s: %v", domain.ErrServiceUnavailable, rawURL, err)
}

// mediaType strips parameters such as charset.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return mt
}
