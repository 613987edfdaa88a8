package triage

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MessageResult is the outcome of one batch member.
type MessageResult struct {
	SourceKey   string          `json:"source_key"`
	Record      *EnrichedRecord `json:"-"`
	Priority    Tier            `json:"priority,omitempty"`
	ArchiveKey  string          `json:"archive_key,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Err         error           `json:"-"`
}

// BatchResult holds per-member results in input order.
type BatchResult struct {
	RunID   string          `json:"run_id,omitempty"`
	Results []MessageResult `json:"results"`
}

// Failed returns the number of members that did not complete.
func (b *BatchResult) Failed() int {
	n := 0
	for i := range b.Results {
		if b.Results[i].Err != nil {
			n++
		}
	}
	return n
}

// Err joins the member failures, or returns nil if every member completed.
func (b *BatchResult) Err() error {
	var errs []error
	for i := range b.Results {
		if b.Results[i].Err != nil {
			errs = append(errs, b.Results[i].Err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d messages failed: %w", len(errs), len(b.Results), errors.Join(errs...))
}

// ProcessBatch triages every message independently, with at most Config.Workers
// in flight. One member failing never stops its siblings; the returned error is
// non-nil if any member failed, so the trigger can redeliver the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, msgs []RawMessage) (*BatchResult, error) {
	res := &BatchResult{Results: make([]MessageResult, len(msgs))}

	forEach(len(msgs), p.cfg.Workers, func(i int) {
		rec, dest, err := p.process(ctx, msgs[i])
		res.Results[i] = newMessageResult(msgs[i].SourceKey, rec, dest, err)
	})

	if p.hooks.OnBatch != nil {
		p.hooks.OnBatch(len(msgs), res.Failed())
	}
	return res, res.Err()
}

func newMessageResult(sourceKey string, rec *EnrichedRecord, dest string, err error) MessageResult {
	mr := MessageResult{SourceKey: sourceKey, Err: err}
	if rec != nil {
		mr.Record = rec
		mr.Priority = rec.Priority
		mr.ArchiveKey = rec.ArchiveKey
		mr.Destination = dest
	}
	return mr
}

// forEach calls fn for 0..n-1 with at most limit calls running at once. Each
// index is written by exactly one goroutine, so fn may store into a slice slot.
func forEach(n, limit int, fn func(i int)) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range n {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait() // fn reports through its own results
}
