package postprocessors

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// DefaultMaxContentLength bounds the text stored per document.
const DefaultMaxContentLength = 100000

// Pipeline implements PostProcessorPipeline.
// It chains post-processors sorted by Order().
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order.
func (p *Pipeline) Process(content *domain.ExtractedContent) {
	if content == nil {
		return
	}
	for _, proc := range p.ordered() {
		proc.Process(content)
	}
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	processors := p.ordered()
	names := make([]string, len(processors))
	for i, proc := range processors {
		names[i] = proc.Name()
	}
	return names
}

func (p *Pipeline) ordered() []driven.PostProcessor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	return processors
}

// DefaultPipeline normalizes whitespace, drops repeated boilerplate lines and
// truncates to DefaultMaxContentLength.
func DefaultPipeline() *Pipeline {
	p := NewPipeline()
	p.Add(NewWhitespaceNormalizer())
	p.Add(NewDeduplicator(DefaultDeduplicatorConfig()))
	p.Add(NewTruncator(DefaultMaxContentLength))
	return p
}

// WhitespaceNormalizer normalizes whitespace in the title and text.
type WhitespaceNormalizer struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*WhitespaceNormalizer)(nil)

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process collapses runs of spaces per line, keeps at most one blank line
// between paragraphs and trims the result.
func (w *WhitespaceNormalizer) Process(content *domain.ExtractedContent) {
	content.Title = strings.Join(strings.Fields(content.Title), " ")

	text := strings.ReplaceAll(content.Text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	content.Text = strings.TrimSpace(strings.Join(out, "\n"))
}

// Name returns the processor name.
func (w *WhitespaceNormalizer) Name() string {
	return "whitespace-normalizer"
}

// Order returns 0 - normalization runs first.
func (w *WhitespaceNormalizer) Order() int {
	return 0
}

// DeduplicatorConfig configures the deduplicator.
type DeduplicatorConfig struct {
	// MinDuplicateLength is the minimum line length checked for repeats
	MinDuplicateLength int
}

// DefaultDeduplicatorConfig returns sensible defaults.
func DefaultDeduplicatorConfig() DeduplicatorConfig {
	return DeduplicatorConfig{
		MinDuplicateLength: 50,
	}
}

// Deduplicator removes repeated lines such as headers and footers that
// listing pages print around every block.
type Deduplicator struct {
	config DeduplicatorConfig
}

// Verify interface compliance
var _ driven.PostProcessor = (*Deduplicator)(nil)

// NewDeduplicator creates a new deduplicator with the given config.
func NewDeduplicator(config DeduplicatorConfig) *Deduplicator {
	return &Deduplicator{config: config}
}

// Process keeps the first occurrence of every line at least MinDuplicateLength long.
// Comparison ignores case and surrounding whitespace.
func (d *Deduplicator) Process(content *domain.ExtractedContent) {
	lines := strings.Split(content.Text, "\n")
	if len(lines) <= 1 {
		return
	}

	seen := make(map[string]bool)
	out := lines[:0]
	for _, line := range lines {
		if len(line) < d.config.MinDuplicateLength {
			out = append(out, line)
			continue
		}
		normalized := strings.TrimSpace(strings.ToLower(line))
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, line)
	}
	content.Text = strings.Join(out, "\n")
}

// Name returns the processor name.
func (d *Deduplicator) Name() string {
	return "deduplicator"
}

// Order returns 10 - deduplication runs after normalization.
func (d *Deduplicator) Order() int {
	return 10
}

// Truncator caps the text length, cutting at a paragraph, sentence or word boundary.
type Truncator struct {
	maxLength int
}

// Verify interface compliance
var _ driven.PostProcessor = (*Truncator)(nil)

// NewTruncator creates a truncator; maxLength is in bytes.
func NewTruncator(maxLength int) *Truncator {
	if maxLength <= 0 {
		maxLength = DefaultMaxContentLength
	}
	return &Truncator{maxLength: maxLength}
}

// Process truncates content.Text and flags the document with fields["truncated"].
func (t *Truncator) Process(content *domain.ExtractedContent) {
	if len(content.Text) <= t.maxLength {
		return
	}
	end := findBreakPoint(content.Text, t.maxLength)
	content.Text = strings.TrimSpace(content.Text[:end])
	if content.Fields == nil {
		content.Fields = make(map[string]string)
	}
	content.Fields["truncated"] = "true"
}

// Name returns the processor name.
func (t *Truncator) Name() string {
	return "truncator"
}

// Order returns 100 - truncation runs last.
func (t *Truncator) Order() int {
	return 100
}

// findBreakPoint returns a cut position no later than maxEnd, searching the
// last 100 bytes for a paragraph, then a sentence, then a word boundary.
func findBreakPoint(content string, maxEnd int) int {
	// never split a multi-byte rune
	for maxEnd > 0 && !utf8.RuneStart(content[maxEnd]) {
		maxEnd--
	}
	searchStart := maxEnd - 100
	if searchStart < 0 {
		searchStart = 0
	}
	searchContent := content[searchStart:maxEnd]

	if idx := strings.LastIndex(searchContent, "\n\n"); idx != -1 {
		return searchStart + idx
	}

	bestIdx := -1
	for _, ender := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(searchContent, ender); idx != -1 {
			if endPos := idx + 1; endPos > bestIdx {
				bestIdx = endPos
			}
		}
	}
	if bestIdx > 0 {
		return searchStart + bestIdx
	}

	if idx := strings.LastIndexAny(searchContent, " \n"); idx > 0 {
		return searchStart + idx
	}
	return maxEnd
}
