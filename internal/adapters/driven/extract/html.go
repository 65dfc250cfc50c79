package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// HTMLExtractor pulls readable text out of HTML pages with goquery.
//
// When the source has a content selector the matched elements are used; if the
// selector matches nothing the whole body is used instead. Script, style and
// noscript blocks are dropped.
type HTMLExtractor struct{}

func (e *HTMLExtractor) SupportedTypes() []string {
	return []string{MimeHTML, "application/xhtml+xml"}
}

func (e *HTMLExtractor) Priority() int {
	return 50
}

func (e *HTMLExtractor) Extract(_ context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error) {
	reader, err := decodeHTML(req)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	fields := map[string]string{}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok && lang != "" {
		fields["language"] = lang
	}
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok && desc != "" {
		fields["description"] = strings.TrimSpace(desc)
	}

	main := doc.Find("body")
	if main.Length() == 0 {
		main = doc.Selection
	}
	if selector := req.Source.Selector(); selector != "" {
		if matched := doc.Find(selector); matched.Length() > 0 {
			main = matched
			fields["selector"] = selector
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = collapse(doc.Find("h1").First().Text())
	}

	return &domain.ExtractedContent{
		Title:    title,
		Text:     selectionText(main),
		Fields:   fields,
		MimeType: MimeHTML,
	}, nil
}

func decodeHTML(req domain.ExtractRequest) (io.Reader, error) {
	body := bytes.NewReader(req.Payload.Body)
	if req.Source.HTMLIndex != nil && req.Source.HTMLIndex.Encoding != "" {
		r, err := charset.NewReaderLabel(req.Source.HTMLIndex.Encoding, body)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown encoding %q", domain.ErrInvalidInput, req.Source.HTMLIndex.Encoding)
		}
		return r, nil
	}
	r, err := charset.NewReader(body, req.Payload.ContentType)
	if err != nil {
		return bytes.NewReader(req.Payload.Body), nil
	}
	return r, nil
}

// selectionText joins the text nodes of sel with single spaces so that adjacent
// block elements do not run together.
func selectionText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := collapse(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
