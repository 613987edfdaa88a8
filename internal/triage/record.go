package triage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

// ArchivePrefix namespaces every archived record.
const ArchivePrefix = "archive/"

// ArchiveContentType is the content type of archived documents.
const ArchiveContentType = "application/json"

// timestampLayout is RFC 3339 in UTC with a fixed nanosecond fraction, so
// equal instants always serialize to equal strings.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// ArchiveKey derives the archive location of a source key: the path prefix is
// stripped and the base name is placed under ArchivePrefix. The same source
// key always maps to the same archive key, so reprocessing overwrites.
func ArchiveKey(sourceKey string) (string, error) {
	if sourceKey == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSourceKey)
	}
	base := sourceKey[strings.LastIndex(sourceKey, "/")+1:]
	if base == "" {
		return "", fmt.Errorf("%w: %q has no object name", ErrInvalidSourceKey, sourceKey)
	}
	return ArchivePrefix + base, nil
}

// Build assembles the enriched record for raw. now is supplied by the caller.
func Build(raw RawMessage, score sentiment.Score, tier Tier, now time.Time) (*EnrichedRecord, error) {
	key, err := ArchiveKey(raw.SourceKey)
	if err != nil {
		return nil, err
	}
	return &EnrichedRecord{
		SourceKey:  raw.SourceKey,
		Text:       raw.Text,
		Sentiment:  score,
		Priority:   tier,
		CreatedAt:  now.UTC(),
		ArchiveKey: key,
	}, nil
}

// Document is the wire form of an EnrichedRecord, shared by the archive copy and
// the queue message body.
type Document struct {
	OriginalKey   string           `json:"original_key"`
	Message       string           `json:"message"`
	Sentiment     sentiment.Label  `json:"sentiment"`
	Scores        sentiment.Scores `json:"scores"`
	NegativeScore float64          `json:"negative_score"`
	Timestamp     string           `json:"timestamp"`
	Priority      Tier             `json:"priority"`
}

// Document returns the wire form of r.
func (r *EnrichedRecord) Document() Document {
	return Document{
		OriginalKey:   r.SourceKey,
		Message:       r.Text,
		Sentiment:     r.Sentiment.Label,
		Scores:        r.Sentiment.Scores,
		NegativeScore: r.Sentiment.Scores.Negative,
		Timestamp:     r.CreatedAt.UTC().Format(timestampLayout),
		Priority:      r.Priority,
	}
}

// MarshalBody encodes r as the compact queue message body.
func (r *EnrichedRecord) MarshalBody() ([]byte, error) {
	return json.Marshal(r.Document())
}

// MarshalArchive encodes r as the indented archive document.
func (r *EnrichedRecord) MarshalArchive() ([]byte, error) {
	return json.MarshalIndent(r.Document(), "", "  ")
}

// ParseDocument decodes a queue body or archive document.
func ParseDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
