package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// SourceKind discriminates the configuration payload carried by a ContentSource.
type SourceKind string

const (
	SourceKindHTMLIndex   SourceKind = "html_index"
	SourceKindPDFIndex    SourceKind = "pdf_index"
	SourceKindHTMLPage    SourceKind = "html_page"
	SourceKindSingleFile  SourceKind = "single_file"
	SourceKindSpreadsheet SourceKind = "spreadsheet"
)

// IsDiscovery reports whether the kind enumerates items from a listing page.
func (k SourceKind) IsDiscovery() bool {
	return k == SourceKindHTMLIndex || k == SourceKindPDFIndex
}

// VersioningStrategy selects how a source decides that its content changed.
type VersioningStrategy string

const (
	VersioningHash          VersioningStrategy = "hash"
	VersioningETag          VersioningStrategy = "etag"
	VersioningVersionString VersioningStrategy = "version_string"
	VersioningTimestamp     VersioningStrategy = "timestamp"
	VersioningCombined      VersioningStrategy = "combined"
)

// Default per-kind fetch timeouts.
const (
	DefaultHTMLTimeout = 30 * time.Second
	DefaultPDFTimeout  = 60 * time.Second
	DefaultPriority    = 5
)

// HTMLIndexConfig configures a listing page whose links point at HTML documents.
type HTMLIndexConfig struct {
	URL         string            `json:"url" yaml:"url"`
	LinkPattern string            `json:"link_pattern,omitempty" yaml:"link_pattern"`
	Selector    string            `json:"selector,omitempty" yaml:"selector"`
	Encoding    string            `json:"encoding,omitempty" yaml:"encoding"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers"`
	Timeout     time.Duration     `json:"timeout,omitempty" yaml:"timeout"`
}

// PDFIndexConfig configures a listing page whose links point at PDF files.
type PDFIndexConfig struct {
	URL         string            `json:"url" yaml:"url"`
	FilePattern string            `json:"file_pattern,omitempty" yaml:"file_pattern"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers"`
	Timeout     time.Duration     `json:"timeout,omitempty" yaml:"timeout"`
}

// FileConfig configures a single document (an HTML page or any other file).
type FileConfig struct {
	URL      string            `json:"url" yaml:"url"`
	Selector string            `json:"selector,omitempty" yaml:"selector"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers"`
	Timeout  time.Duration     `json:"timeout,omitempty" yaml:"timeout"`
}

// SpreadsheetConfig configures a spreadsheet document.
type SpreadsheetConfig struct {
	URL       string            `json:"url" yaml:"url"`
	SheetName string            `json:"sheet_name,omitempty" yaml:"sheet_name"`
	Range     string            `json:"range,omitempty" yaml:"range"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers"`
	Timeout   time.Duration     `json:"timeout,omitempty" yaml:"timeout"`
}

// ContentSource is a configured origin to sync.
// Exactly one of the kind payloads is set and it must match Kind.
// Sources are immutable during a sync run.
type ContentSource struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	Kind               SourceKind         `json:"kind"`
	VersioningStrategy VersioningStrategy `json:"versioning_strategy"`
	VersionString      string             `json:"version_string,omitempty"`
	Enabled            bool               `json:"enabled"`
	Priority           int                `json:"priority"`
	Tags               []string           `json:"tags,omitempty"`
	FetchInterval      time.Duration      `json:"fetch_interval,omitempty"`
	Index              string             `json:"index,omitempty"`

	HTMLIndex   *HTMLIndexConfig   `json:"html_index,omitempty"`
	PDFIndex    *PDFIndexConfig    `json:"pdf_index,omitempty"`
	File        *FileConfig        `json:"file,omitempty"`
	Spreadsheet *SpreadsheetConfig `json:"spreadsheet,omitempty"`
}

// Validate checks that the source is well formed and applies defaults.
func (s *ContentSource) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.VersioningStrategy == "" {
		s.VersioningStrategy = VersioningHash
	}
	switch s.VersioningStrategy {
	case VersioningHash, VersioningETag, VersioningTimestamp, VersioningCombined:
	case VersioningVersionString:
		if s.VersionString == "" {
			return fmt.Errorf("%w: source %s: version_string strategy requires version_string", ErrInvalidInput, s.ID)
		}
	default:
		return fmt.Errorf("%w: source %s: unknown versioning strategy %q", ErrInvalidInput, s.ID, s.VersioningStrategy)
	}
	if s.Priority == 0 {
		s.Priority = DefaultPriority
	}

	set := 0
	for _, present := range []bool{s.HTMLIndex != nil, s.PDFIndex != nil, s.File != nil, s.Spreadsheet != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: source %s: exactly one kind configuration must be set, got %d", ErrInvalidInput, s.ID, set)
	}

	switch s.Kind {
	case SourceKindHTMLIndex:
		if s.HTMLIndex == nil {
			return s.kindMismatch()
		}
		if s.HTMLIndex.LinkPattern != "" {
			if _, err := regexp.Compile(s.HTMLIndex.LinkPattern); err != nil {
				return fmt.Errorf("%w: source %s: invalid link_pattern: %v", ErrInvalidInput, s.ID, err)
			}
		}
		if s.HTMLIndex.Timeout == 0 {
			s.HTMLIndex.Timeout = DefaultHTMLTimeout
		}
	case SourceKindPDFIndex:
		if s.PDFIndex == nil {
			return s.kindMismatch()
		}
		if s.PDFIndex.Timeout == 0 {
			s.PDFIndex.Timeout = DefaultPDFTimeout
		}
	case SourceKindHTMLPage, SourceKindSingleFile:
		if s.File == nil {
			return s.kindMismatch()
		}
		if s.File.Timeout == 0 {
			s.File.Timeout = DefaultHTMLTimeout
		}
	case SourceKindSpreadsheet:
		if s.Spreadsheet == nil {
			return s.kindMismatch()
		}
		if s.Spreadsheet.Timeout == 0 {
			s.Spreadsheet.Timeout = DefaultHTMLTimeout
		}
	default:
		return fmt.Errorf("%w: source %s: %q", ErrUnsupportedKind, s.ID, s.Kind)
	}

	return validateSourceURL(s.ID, s.URL())
}

func (s *ContentSource) kindMismatch() error {
	return fmt.Errorf("%w: source %s: kind %s does not match its configuration", ErrInvalidInput, s.ID, s.Kind)
}

func validateSourceURL(id, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return fmt.Errorf("%w: source %s: invalid url %q", ErrInvalidInput, id, raw)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: source %s: url %q has no host", ErrInvalidInput, id, raw)
		}
	case "file":
	default:
		return fmt.Errorf("%w: source %s: unsupported url scheme %q", ErrInvalidInput, id, u.Scheme)
	}
	return nil
}

// URL returns the location configured for the source kind.
func (s *ContentSource) URL() string {
	switch {
	case s.HTMLIndex != nil:
		return s.HTMLIndex.URL
	case s.PDFIndex != nil:
		return s.PDFIndex.URL
	case s.File != nil:
		return s.File.URL
	case s.Spreadsheet != nil:
		return s.Spreadsheet.URL
	}
	return ""
}

// Headers returns the request headers configured for the source kind.
func (s *ContentSource) Headers() map[string]string {
	switch {
	case s.HTMLIndex != nil:
		return s.HTMLIndex.Headers
	case s.PDFIndex != nil:
		return s.PDFIndex.Headers
	case s.File != nil:
		return s.File.Headers
	case s.Spreadsheet != nil:
		return s.Spreadsheet.Headers
	}
	return nil
}

// Timeout returns the fetch timeout configured for the source kind.
func (s *ContentSource) Timeout() time.Duration {
	switch {
	case s.HTMLIndex != nil:
		return s.HTMLIndex.Timeout
	case s.PDFIndex != nil:
		return s.PDFIndex.Timeout
	case s.File != nil:
		return s.File.Timeout
	case s.Spreadsheet != nil:
		return s.Spreadsheet.Timeout
	}
	return DefaultHTMLTimeout
}

// Selector returns the content selector, if the kind has one.
func (s *ContentSource) Selector() string {
	switch {
	case s.HTMLIndex != nil:
		return s.HTMLIndex.Selector
	case s.File != nil:
		return s.File.Selector
	}
	return ""
}

// HasTag reports whether the source carries the given tag.
func (s *ContentSource) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
