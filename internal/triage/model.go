package triage

import (
	"time"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

// RawMessage is one unit of input: the text of a source object and the key it came from.
type RawMessage struct {
	SourceKey string `json:"source_key"`
	Text      string `json:"text"`
}

// Tier is the priority assigned to a message.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierNormal Tier = "NORMAL"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t == TierHigh || t == TierNormal
}

// State tracks where a message is in the pipeline.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateScored     State = "SCORED"
	StateClassified State = "CLASSIFIED"
	StateBuilt      State = "BUILT"
	StateArchived   State = "ARCHIVED"
	StateRouted     State = "ROUTED"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// EnrichedRecord is the archived and routed form of a message. It is built once
// by Build and never mutated afterwards.
type EnrichedRecord struct {
	SourceKey  string
	Text       string
	Sentiment  sentiment.Score
	Priority   Tier
	CreatedAt  time.Time
	ArchiveKey string
}

// Outcome is the recorded result of the latest attempt to triage a source key.
type Outcome struct {
	SourceKey     string    `json:"source_key"`
	RunID         string    `json:"run_id"`
	State         State     `json:"state"`
	Stage         Stage     `json:"stage,omitempty"`
	ErrorKind     Kind      `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
	Priority      Tier      `json:"priority,omitempty"`
	Sentiment     string    `json:"sentiment,omitempty"`
	NegativeScore float64   `json:"negative_score"`
	ArchiveKey    string    `json:"archive_key,omitempty"`
	Destination   string    `json:"destination,omitempty"`
	Attempts      int       `json:"attempts"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
