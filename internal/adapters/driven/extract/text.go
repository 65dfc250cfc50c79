package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// TextExtractor handles plain text, markdown and csv payloads.
type TextExtractor struct{}

func (e *TextExtractor) SupportedTypes() []string {
	return []string{"text/*"}
}

func (e *TextExtractor) Priority() int {
	return 10
}

func (e *TextExtractor) Extract(_ context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error) {
	content := string(req.Payload.Body)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "�")
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}
	return &domain.ExtractedContent{
		Text:     strings.TrimSpace(content),
		MimeType: normalizeMIMEType(req.Payload.ContentType),
	}, nil
}
