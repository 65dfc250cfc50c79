package listing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

var fetchedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const pdfListing = `<html><body>
<a href="/files/Report-2024.pdf">  Annual
  report </a>
<a href="files/minutes.PDF">Minutes</a>
<a href="https://cdn.example.com/other.pdf#page=2">Other</a>
<a href="/files/Report-2024.pdf">Duplicate</a>
<a href="/about.html">About</a>
<a href="mailto:someone@example.com">Mail</a>
<a href="#top">Top</a>
<a>no href</a>
</body></html>`

func pdfSource(pattern string) *domain.ContentSource {
	return &domain.ContentSource{
		ID:       "reports",
		Kind:     domain.SourceKindPDFIndex,
		PDFIndex: &domain.PDFIndexConfig{URL: "https://example.com/docs/", FilePattern: pattern},
	}
}

func htmlSource(pattern string) *domain.ContentSource {
	return &domain.ContentSource{
		ID:        "pages",
		Kind:      domain.SourceKindHTMLIndex,
		HTMLIndex: &domain.HTMLIndexConfig{URL: "https://example.com/index/", LinkPattern: pattern},
	}
}

func page(body string) *domain.Payload {
	return &domain.Payload{Body: []byte(body), ContentType: "text/html", FetchedAt: fetchedAt}
}

func TestExtractLinks_PDF(t *testing.T) {
	items, err := New().ExtractLinks(pdfSource(""), page(pdfListing))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "https://example.com/files/Report-2024.pdf", items[0].URL)
	assert.Equal(t, "Report-2024.pdf", items[0].Filename)
	assert.Equal(t, "Annual report", items[0].LinkText)
	assert.Equal(t, domain.ComputeURLHash(items[0].URL), items[0].URLHash)
	assert.Equal(t, fetchedAt, items[0].DiscoveredAt)

	assert.Equal(t, "https://example.com/docs/files/minutes.PDF", items[1].URL, "relative to the listing url")
	assert.Equal(t, "https://cdn.example.com/other.pdf", items[2].URL, "fragment dropped")
}

func TestExtractLinks_PDFFilePattern(t *testing.T) {
	items, err := New().ExtractLinks(pdfSource(`report-\d+`), page(pdfListing))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Report-2024.pdf", items[0].Filename)

	// pattern is anchored at the start of the filename
	items, err = New().ExtractLinks(pdfSource(`2024`), page(pdfListing))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExtractLinks_PDFInvalidPatternAcceptsAll(t *testing.T) {
	items, err := New().ExtractLinks(pdfSource(`([`), page(pdfListing))
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestExtractLinks_HTMLDefaultFilter(t *testing.T) {
	body := `<a href="a.html">A</a><a href="/news/latest">Latest</a><a href="b.aspx">B</a>
<a href="img.png">Img</a><a href="doc.pdf">Doc</a><a href="https://example.com/">Root</a>`

	items, err := New().ExtractLinks(htmlSource(""), page(body))
	require.NoError(t, err)

	var urls []string
	for _, it := range items {
		urls = append(urls, it.URL)
	}
	assert.Equal(t, []string{
		"https://example.com/index/a.html",
		"https://example.com/news/latest",
		"https://example.com/index/b.aspx",
		"https://example.com/",
	}, urls)
	assert.Equal(t, "news_latest", items[1].Filename)
	assert.Equal(t, "index", items[3].Filename)
}

func TestExtractLinks_HTMLLinkPattern(t *testing.T) {
	body := `<a href="/laws/1">Law 1</a><a href="/laws/2.html">Law 2</a><a href="/news/3">News</a>`

	items, err := New().ExtractLinks(htmlSource(`/laws/`), page(body))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "https://example.com/laws/1", items[0].URL)
}

func TestExtractLinks_Encoding(t *testing.T) {
	source := htmlSource("")
	source.HTMLIndex.Encoding = "windows-1255"
	// "\xf9\xec\xe5\xed" is shalom in windows-1255
	body := "<a href=\"/p.html\">\xf9\xec\xe5\xed</a>"

	items, err := New().ExtractLinks(source, page(body))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "שלום", items[0].LinkText)
}

func TestExtractLinks_RejectsSingleDocumentSource(t *testing.T) {
	source := &domain.ContentSource{ID: "x", Kind: domain.SourceKindHTMLPage, File: &domain.FileConfig{URL: "https://example.com"}}
	_, err := New().ExtractLinks(source, page(""))
	assert.True(t, errors.Is(err, domain.ErrUnsupportedKind))
}
