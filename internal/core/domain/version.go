package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FetchStatus is the outcome of the last fetch attempt for a source.
type FetchStatus string

const (
	FetchStatusSuccess FetchStatus = "success"
	FetchStatusFailed  FetchStatus = "failed"
	FetchStatusPending FetchStatus = "pending"
)

// VersionInfo is the current version record of a source.
// There is exactly one per source ID; updates replace it in place.
type VersionInfo struct {
	SourceID         string      `json:"source_id"`
	VersionHash      string      `json:"version_hash"`
	VersionTimestamp time.Time   `json:"version_timestamp"`
	VersionString    string      `json:"version_string,omitempty"`
	ETag             string      `json:"etag,omitempty"`
	ContentSize      int64       `json:"content_size"`
	LastFetch        time.Time   `json:"last_fetch"`
	FetchStatus      FetchStatus `json:"fetch_status"`
	ErrorMessage     string      `json:"error_message,omitempty"`
}

// ComputeContentHash returns the hex SHA-256 digest of data.
func ComputeContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeTextHash hashes the UTF-8 bytes of text.
// It yields the same digest as ComputeContentHash on the encoded bytes.
func ComputeTextHash(text string) string {
	return ComputeContentHash([]byte(text))
}

// ComputeURLHash returns the identity of a discovered item.
func ComputeURLHash(rawURL string) string {
	return ComputeTextHash(rawURL)
}

// DocumentID derives the composite index id of one document version.
func DocumentID(sourceID, itemKey, contentHash string) string {
	short := contentHash
	if len(short) > 16 {
		short = short[:16]
	}
	if itemKey == "" {
		return sourceID + "_" + short
	}
	key := itemKey
	if len(key) > 16 {
		key = key[:16]
	}
	return sourceID + "_" + key + "_" + short
}
