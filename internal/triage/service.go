package triage

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/event"
)

// Service is the business boundary for triage operations. It resolves source
// objects, drives the pipeline and records the outcome of every attempt.
type Service struct {
	store    Store
	pipeline *Pipeline
	blobs    BlobStore
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(store Store, pipeline *Pipeline, blobs BlobStore, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		pipeline: pipeline,
		blobs:    blobs,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// HandleNotification triages every object named by n. Records are independent:
// each is fetched, processed and recorded on its own, with at most
// Config.Workers in flight. The returned error is non-nil when n is unusable
// or any record failed; in the latter case the BatchResult is also returned.
func (s *Service) HandleNotification(ctx context.Context, n *event.Notification) (*BatchResult, error) {
	refs, err := n.Objects()
	if err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	runID := ulid.Make().String()
	L := s.logger.With("run_id", runID)
	L.Info(ctx, "notification received", "records", len(refs))

	res := &BatchResult{RunID: runID, Results: make([]MessageResult, len(refs))}
	forEach(len(refs), s.pipeline.cfg.Workers, func(i int) {
		res.Results[i] = s.handleObject(ctx, runID, refs[i])
	})

	failed := res.Failed()
	if s.pipeline.hooks.OnBatch != nil {
		s.pipeline.hooks.OnBatch(len(refs), failed)
	}
	if failed > 0 {
		L.Warn(ctx, "notification had failures", "records", len(refs), "failed", failed)
	}
	return res, res.Err()
}

// Submit triages one inline message without a source read.
func (s *Service) Submit(ctx context.Context, raw RawMessage) (*MessageResult, error) {
	runID := ulid.Make().String()
	rec, dest, err := s.pipeline.process(ctx, raw)
	s.finish(ctx, runID, raw.SourceKey, rec, dest, err)

	mr := newMessageResult(raw.SourceKey, rec, dest, err)
	return &mr, err
}

// Get returns the latest recorded outcome for sourceKey.
func (s *Service) Get(ctx context.Context, sourceKey string) (*Outcome, bool, error) {
	return s.store.Get(ctx, sourceKey)
}

func (s *Service) handleObject(ctx context.Context, runID string, ref event.ObjectRef) MessageResult {
	start := s.pipeline.clock.Now()
	text, err := s.fetch(ctx, ref)
	if err != nil {
		ferr := &Error{Kind: KindStorageReadFailure, Stage: StageFetch, State: StateReceived, SourceKey: ref.Key, Err: err}
		s.logger.Error(ctx, ferr, "source read failed", "run_id", runID, "bucket", ref.Bucket, "source_key", ref.Key)
		if s.pipeline.hooks.OnFailure != nil {
			s.pipeline.hooks.OnFailure(StageFetch, KindStorageReadFailure)
		}
		if s.pipeline.hooks.OnComplete != nil {
			s.pipeline.hooks.OnComplete(&CompleteEvent{State: StateFailed, Duration: s.pipeline.clock.Since(start).Seconds()})
		}
		s.finish(ctx, runID, ref.Key, nil, "", ferr)
		return newMessageResult(ref.Key, nil, "", ferr)
	}

	rec, dest, err := s.pipeline.process(ctx, RawMessage{SourceKey: ref.Key, Text: text})
	s.finish(ctx, runID, ref.Key, rec, dest, err)
	return newMessageResult(ref.Key, rec, dest, err)
}

func (s *Service) fetch(ctx context.Context, ref event.ObjectRef) (string, error) {
	ctx, span := tracer.Start(ctx, "source.get", trace.WithAttributes(
		attribute.String("sift.source.bucket", ref.Bucket),
		attribute.String("sift.source.key", ref.Key),
	))
	defer span.End()

	data, err := s.blobs.Get(ctx, ref.Bucket, ref.Key)
	if err == nil && !utf8.Valid(data) {
		err = errors.New("source object is not valid UTF-8")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("sift.source.bytes", len(data)))
	return string(data), nil
}

// finish records the outcome and notifies on HIGH. Neither step changes the
// message result: failures are logged and counted only.
func (s *Service) finish(ctx context.Context, runID, sourceKey string, rec *EnrichedRecord, dest string, procErr error) {
	L := s.logger.With("run_id", runID, "source_key", sourceKey)

	if err := s.record(ctx, runID, sourceKey, rec, dest, procErr); err != nil {
		L.Error(ctx, err, "failed to record outcome")
	}

	if procErr != nil || rec == nil || rec.Priority != TierHigh || s.notifier == nil {
		return
	}
	outcome := "success"
	if err := s.notifier.Notify(ctx, rec, dest); err != nil {
		outcome = "error"
		L.Error(ctx, err, "failed to send notification")
	}
	if s.metrics != nil {
		s.metrics.NotificationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) record(ctx context.Context, runID, sourceKey string, rec *EnrichedRecord, dest string, procErr error) error {
	now := s.pipeline.clock.Now().UTC()

	o := &Outcome{
		SourceKey:   sourceKey,
		RunID:       runID,
		FirstSeenAt: now,
		UpdatedAt:   now,
	}

	if procErr != nil {
		o.State = StateFailed
		o.Error = procErr.Error()
		if te, ok := AsError(procErr); ok {
			o.Stage = te.Stage
			o.ErrorKind = te.Kind
		}
	} else {
		o.State = StateDone
		o.Priority = rec.Priority
		o.Sentiment = string(rec.Sentiment.Label)
		o.NegativeScore = rec.Sentiment.Scores.Negative
		o.ArchiveKey = rec.ArchiveKey
		o.Destination = dest
	}

	stored, err := s.store.Record(ctx, o)
	if err != nil {
		s.countStoreError("record")
		return fmt.Errorf("record outcome: %w", err)
	}
	if stored.Attempts > 1 {
		s.logger.Info(ctx, "outcome recorded for repeat attempt", "source_key", sourceKey, "attempts", stored.Attempts, "state", stored.State)
	}
	return nil
}

func (s *Service) countStoreError(op string) {
	if s.metrics != nil {
		s.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}
