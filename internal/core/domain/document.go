package domain

import "time"

// IndexDocument is one document version stored in the external index.
type IndexDocument struct {
	ID          string            `json:"id,omitempty"`
	SourceID    string            `json:"source_id"`
	ItemKey     string            `json:"item_key"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"`
	ContentHash string            `json:"content_hash"`
	Timestamp   time.Time         `json:"timestamp"`
	Stale       bool              `json:"stale"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Payload is a fetched resource as returned by an origin.
type Payload struct {
	URL          string     `json:"url"`
	Body         []byte     `json:"-"`
	ContentType  string     `json:"content_type"`
	ETag         string     `json:"etag,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	StatusCode   int        `json:"status_code"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// Size returns the payload length in bytes.
func (p *Payload) Size() int64 {
	return int64(len(p.Body))
}

// ExtractedContent is the output of an extractor for one payload.
type ExtractedContent struct {
	Title    string            `json:"title"`
	Text     string            `json:"text"`
	Fields   map[string]string `json:"fields,omitempty"`
	MimeType string            `json:"mime_type"`
}

// ExtractRequest carries a payload together with source specific options.
type ExtractRequest struct {
	Source   *ContentSource
	Filename string
	Payload  *Payload
}

// OutdatedScope selects the documents a cleanup step may touch: documents of
// SourceID older than Before, restricted to ItemKeys when it is not empty.
type OutdatedScope struct {
	SourceID string    `json:"source_id"`
	ItemKeys []string  `json:"item_keys,omitempty"`
	Before   time.Time `json:"before"`
}
