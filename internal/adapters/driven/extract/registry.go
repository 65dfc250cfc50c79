package extract

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Extractor = (*Registry)(nil)

// MIME types resolved from the source kind or the filename.
const (
	MimeHTML        = "text/html"
	MimePlain       = "text/plain"
	MimePDF         = "application/pdf"
	MimeSpreadsheet = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var extensionTypes = map[string]string{
	".html": MimeHTML,
	".htm":  MimeHTML,
	".aspx": MimeHTML,
	".php":  MimeHTML,
	".txt":  MimePlain,
	".md":   "text/markdown",
	".csv":  "text/csv",
	".pdf":  MimePDF,
	".xlsx": MimeSpreadsheet,
}

// Handler extracts one family of content types.
type Handler interface {
	Extract(ctx context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error)

	// SupportedTypes lists MIME types, "text/*" and "*/*" wildcards included
	SupportedTypes() []string

	// Priority breaks ties between handlers of the same type, highest wins
	Priority() int
}

// Registry implements driven.Extractor with priority-based handler selection.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry registers the built-in handlers. remote may be nil, in which
// case PDFs and other binary formats are rejected with ErrUnsupportedContent.
func DefaultRegistry(remote *RemoteExtractor) *Registry {
	r := NewRegistry()
	r.Register(&TextExtractor{})
	r.Register(&HTMLExtractor{})
	r.Register(&SpreadsheetExtractor{})
	if remote != nil {
		r.Register(remote)
	}
	return r
}

// Register adds a handler.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Get returns the highest priority handler for mimeType, or nil.
func (r *Registry) Get(mimeType string) Handler {
	matches := r.GetAll(mimeType)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// GetAll returns the handlers matching mimeType, highest priority first.
func (r *Registry) GetAll(mimeType string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Handler
	for _, h := range r.handlers {
		if matchesMIMEType(h.SupportedTypes(), mimeType) {
			matches = append(matches, h)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Priority() > matches[j].Priority()
	})
	return matches
}

// List returns the registered MIME types, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	for _, h := range r.handlers {
		for _, t := range h.SupportedTypes() {
			set[t] = struct{}{}
		}
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Extract dispatches req to the handler for its resolved MIME type.
func (r *Registry) Extract(ctx context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error) {
	if req.Payload == nil || req.Source == nil {
		return nil, fmt.Errorf("%w: extract request needs a source and a payload", domain.ErrInvalidInput)
	}
	mimeType := ResolveType(req)
	h := r.Get(mimeType)
	if h == nil {
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrUnsupportedContent, mimeType, req.Filename)
	}
	content, err := h.Extract(ctx, req)
	if err != nil {
		return nil, err
	}
	if content.MimeType == "" {
		content.MimeType = mimeType
	}
	return content, nil
}

// ResolveType picks the MIME type used for dispatch. Spreadsheet sources always
// resolve to the spreadsheet type; generic or missing content types fall back
// to the filename extension.
func ResolveType(req domain.ExtractRequest) string {
	if req.Source != nil && req.Source.Kind == domain.SourceKindSpreadsheet {
		return MimeSpreadsheet
	}
	mimeType := normalizeMIMEType(req.Payload.ContentType)
	if mimeType != "" && mimeType != "application/octet-stream" && mimeType != "binary/octet-stream" {
		return mimeType
	}
	name := req.Filename
	if name == "" {
		name = req.Payload.URL
	}
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

func normalizeMIMEType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}

// matchesMIMEType supports "text/*" and "*/*" wildcards.
func matchesMIMEType(supportedTypes []string, mimeType string) bool {
	mimeType = normalizeMIMEType(mimeType)
	for _, supported := range supportedTypes {
		supported = strings.ToLower(strings.TrimSpace(supported))
		switch {
		case supported == mimeType, supported == "*/*":
			return true
		case strings.HasSuffix(supported, "/*") && strings.HasPrefix(mimeType, supported[:len(supported)-1]):
			return true
		}
	}
	return false
}
