package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SourceStore = (*Catalog)(nil)

type catalogFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

type sourceEntry struct {
	ID                 string        `yaml:"id"`
	Name               string        `yaml:"name"`
	Description        string        `yaml:"description"`
	Kind               string        `yaml:"kind"`
	VersioningStrategy string        `yaml:"versioning_strategy"`
	VersionString      string        `yaml:"version_string"`
	Enabled            *bool         `yaml:"enabled"`
	Priority           int           `yaml:"priority"`
	Tags               []string      `yaml:"tags"`
	FetchInterval      time.Duration `yaml:"fetch_interval"`
	Index              string        `yaml:"index"`

	HTMLIndex   *domain.HTMLIndexConfig   `yaml:"html_index"`
	PDFIndex    *domain.PDFIndexConfig    `yaml:"pdf_index"`
	File        *domain.FileConfig        `yaml:"file"`
	Spreadsheet *domain.SpreadsheetConfig `yaml:"spreadsheet"`
}

// Catalog is a read-only SourceStore backed by a YAML file.
type Catalog struct {
	sources []*domain.ContentSource
	byID    map[string]*domain.ContentSource
}

// LoadCatalog reads and validates the catalog at path.
// ${VAR} references in URLs and headers are expanded from the environment.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source catalog %s: %w", path, err)
	}
	catalog, err := ParseCatalog(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("source catalog %s: %w", path, err)
	}
	return catalog, nil
}

// ParseCatalog decodes a catalog, resolving ${VAR} references with lookup.
func ParseCatalog(data []byte, lookup func(string) string) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", domain.ErrInvalidInput, err)
	}
	if lookup == nil {
		lookup = func(string) string { return "" }
	}

	c := &Catalog{byID: make(map[string]*domain.ContentSource, len(file.Sources))}
	for i := range file.Sources {
		source := file.Sources[i].toSource(lookup)
		if err := source.Validate(); err != nil {
			return nil, fmt.Errorf("source #%d: %w", i+1, err)
		}
		if _, dup := c.byID[source.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate source id %q", domain.ErrInvalidInput, source.ID)
		}
		c.byID[source.ID] = source
		c.sources = append(c.sources, source)
	}

	sort.SliceStable(c.sources, func(i, j int) bool {
		if c.sources[i].Priority != c.sources[j].Priority {
			return c.sources[i].Priority < c.sources[j].Priority
		}
		return c.sources[i].ID < c.sources[j].ID
	})
	return c, nil
}

func (e *sourceEntry) toSource(lookup func(string) string) *domain.ContentSource {
	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}
	source := &domain.ContentSource{
		ID:                 e.ID,
		Name:               e.Name,
		Description:        e.Description,
		Kind:               domain.SourceKind(e.Kind),
		VersioningStrategy: domain.VersioningStrategy(e.VersioningStrategy),
		VersionString:      e.VersionString,
		Enabled:            enabled,
		Priority:           e.Priority,
		Tags:               e.Tags,
		FetchInterval:      e.FetchInterval,
		Index:              e.Index,
		HTMLIndex:          e.HTMLIndex,
		PDFIndex:           e.PDFIndex,
		File:               e.File,
		Spreadsheet:        e.Spreadsheet,
	}

	switch {
	case source.HTMLIndex != nil:
		source.HTMLIndex.URL = os.Expand(source.HTMLIndex.URL, lookup)
		source.HTMLIndex.Headers = expandHeaders(source.HTMLIndex.Headers, lookup)
	case source.PDFIndex != nil:
		source.PDFIndex.URL = os.Expand(source.PDFIndex.URL, lookup)
		source.PDFIndex.Headers = expandHeaders(source.PDFIndex.Headers, lookup)
	case source.File != nil:
		source.File.URL = os.Expand(source.File.URL, lookup)
		source.File.Headers = expandHeaders(source.File.Headers, lookup)
	case source.Spreadsheet != nil:
		source.Spreadsheet.URL = os.Expand(source.Spreadsheet.URL, lookup)
		source.Spreadsheet.Headers = expandHeaders(source.Spreadsheet.Headers, lookup)
	}
	return source
}

func expandHeaders(headers map[string]string, lookup func(string) string) map[string]string {
	if len(headers) == 0 {
		return headers
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = os.Expand(v, lookup)
	}
	return out
}

// Get returns the source with the given ID.
func (c *Catalog) Get(_ context.Context, id string) (*domain.ContentSource, error) {
	source, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
	}
	return source, nil
}

// List returns all sources ordered by priority, then ID.
func (c *Catalog) List(_ context.Context) ([]*domain.ContentSource, error) {
	out := make([]*domain.ContentSource, len(c.sources))
	copy(out, c.sources)
	return out, nil
}

// Len returns the number of configured sources.
func (c *Catalog) Len() int {
	return len(c.sources)
}
