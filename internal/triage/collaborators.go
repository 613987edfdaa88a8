package triage

import (
	"context"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

// DefaultLanguageCode is passed to the classifier when none is configured.
const DefaultLanguageCode = "en"

// ClassifyRequest is the input to a sentiment classifier.
type ClassifyRequest struct {
	Text         string
	LanguageCode string
}

// Classifier is the interface for any sentiment backend.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (*sentiment.Output, error)
}

// BlobStore is durable object storage for source payloads and archived records.
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Queue delivers a message body with attributes to a named destination, at least once.
type Queue interface {
	Send(ctx context.Context, destination, body string, attrs Attributes) error
}

// Notifier is told about records routed to the HIGH tier.
type Notifier interface {
	Notify(ctx context.Context, rec *EnrichedRecord, destination string) error
}
