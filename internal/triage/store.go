package triage

import "context"

// Store is the persistence interface for triage outcomes, keyed by source key.
type Store interface {
	Get(ctx context.Context, sourceKey string) (*Outcome, bool, error)

	// Record saves o as the latest attempt for o.SourceKey and returns what was
	// stored. Attempts becomes the previous count plus one (1 for a new key) and
	// FirstSeenAt keeps its first value; both happen in one atomic step so
	// overlapping attempts on a key are all counted. o.Attempts is ignored.
	Record(ctx context.Context, o *Outcome) (*Outcome, error)
}
