package listing

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.LinkExtractor = (*Extractor)(nil)

var htmlExtensions = []string{".html", ".htm", ".aspx", ".php"}

// Extractor finds candidate items on listing pages with goquery.
//
// PDF listings keep links whose path ends in .pdf, optionally narrowed by a regex
// anchored at the start of the filename; an invalid pattern accepts all PDFs.
// HTML listings keep links matching link_pattern anywhere in the URL, or without a
// pattern links to .html/.htm/.aspx/.php pages and extensionless paths.
type Extractor struct{}

// New creates a listing Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractLinks returns the candidate items of page in document order, without duplicates.
func (e *Extractor) ExtractLinks(source *domain.ContentSource, page *domain.Payload) ([]domain.DiscoveredItem, error) {
	var (
		base    string
		enc     string
		accept  func(u *url.URL) bool
		pdfMode bool
	)
	switch source.Kind {
	case domain.SourceKindPDFIndex:
		base = source.PDFIndex.URL
		accept = pdfFilter(source.PDFIndex.FilePattern)
		pdfMode = true
	case domain.SourceKindHTMLIndex:
		base = source.HTMLIndex.URL
		enc = source.HTMLIndex.Encoding
		filter, err := htmlFilter(source.HTMLIndex.LinkPattern)
		if err != nil {
			return nil, err
		}
		accept = filter
	default:
		return nil, fmt.Errorf("%w: %s is not a listing source", domain.ErrUnsupportedKind, source.Kind)
	}
	if page.URL != "" {
		base = page.URL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid listing url %q", domain.ErrInvalidInput, base)
	}

	reader, err := decode(page, enc)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	seen := make(map[string]bool)
	var items []domain.DiscoveredItem
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		u := baseURL.ResolveReference(ref)
		if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
			return
		}
		u.Fragment = ""
		if !accept(u) {
			return
		}

		full := u.String()
		if seen[full] {
			return
		}
		seen[full] = true

		hash := domain.ComputeURLHash(full)
		items = append(items, domain.DiscoveredItem{
			URL:          full,
			Filename:     filename(u, hash, pdfMode),
			URLHash:      hash,
			LinkText:     strings.Join(strings.Fields(a.Text()), " "),
			DiscoveredAt: page.FetchedAt,
		})
	})
	return items, nil
}

// decode converts the page to UTF-8 using the configured label or the declared charset.
func decode(page *domain.Payload, label string) (io.Reader, error) {
	body := bytes.NewReader(page.Body)
	if label != "" {
		r, err := charset.NewReaderLabel(label, body)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown encoding %q", domain.ErrInvalidInput, label)
		}
		return r, nil
	}
	r, err := charset.NewReader(body, page.ContentType)
	if err != nil {
		return bytes.NewReader(page.Body), nil
	}
	return r, nil
}

func pdfFilter(pattern string) func(*url.URL) bool {
	var re *regexp.Regexp
	if pattern != "" {
		// invalid patterns accept every PDF
		re, _ = regexp.Compile("^(?:" + pattern + ")")
	}
	return func(u *url.URL) bool {
		p := strings.ToLower(u.Path)
		if !strings.HasSuffix(p, ".pdf") {
			return false
		}
		if re == nil {
			return true
		}
		return re.MatchString(path.Base(p))
	}
}

func htmlFilter(pattern string) (func(*url.URL) bool, error) {
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid link_pattern: %v", domain.ErrInvalidInput, err)
		}
		return func(u *url.URL) bool { return re.MatchString(u.String()) }, nil
	}
	return func(u *url.URL) bool {
		p := strings.ToLower(u.Path)
		for _, ext := range htmlExtensions {
			if strings.HasSuffix(p, ext) {
				return true
			}
		}
		last := p[strings.LastIndex(p, "/")+1:]
		return !strings.Contains(last, ".")
	}, nil
}

// filename derives a display name for the item.
func filename(u *url.URL, hash string, pdf bool) string {
	name := path.Base(u.Path)
	if pdf {
		if name == "" || name == "/" || name == "." {
			return "document_" + hash[:16] + ".pdf"
		}
		return name
	}
	if name == "" || name == "/" || name == "." || !strings.Contains(name, ".") {
		name = strings.TrimLeft(strings.ReplaceAll(u.Path, "/", "_"), "_")
		if name == "" {
			return "index"
		}
	}
	return name
}
