package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/triage")

// DefaultWorkers bounds how many members of a batch are processed at once.
const DefaultWorkers = 4

// Config is the pipeline configuration. Nothing here has a baked-in value
// except the defaults applied by NewPipeline.
type Config struct {
	Threshold     float64
	LanguageCode  string
	ArchiveBucket string
	Destinations  Destinations
	Workers       int
}

// Validate checks all configuration fields for correctness.
func (c Config) Validate() error {
	var errs []error
	if err := ValidateThreshold(c.Threshold); err != nil {
		errs = append(errs, err)
	}
	if c.ArchiveBucket == "" {
		errs = append(errs, errors.New("archive bucket is required"))
	}
	if c.Destinations.High == "" {
		errs = append(errs, errors.New("HIGH destination is required"))
	}
	if c.Destinations.Normal == "" {
		errs = append(errs, errors.New("NORMAL destination is required"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("invalid workers %d (must be >= 0)", c.Workers))
	}
	return errors.Join(errs...)
}

// PipelineHooks are optional callbacks for instrumentation. Nil fields are skipped.
type PipelineHooks struct {
	OnClassifierCall func(duration float64, err error)
	OnFailure        func(stage Stage, kind Kind)
	OnComplete       func(e *CompleteEvent)
	OnBatch          func(size, failed int)
}

// CompleteEvent summarizes one finished Process call.
type CompleteEvent struct {
	State    State
	Priority Tier
	Label    sentiment.Label
	Duration float64
}

// Pipeline runs the triage sequence for single messages and batches.
type Pipeline struct {
	cfg        Config
	classifier Classifier
	blobs      BlobStore
	queue      Queue
	clock      clockwork.Clock
	logger     log.Logger
	hooks      PipelineHooks
}

// NewPipeline validates cfg and wires the collaborators. A nil clock uses the
// real clock, a nil logger discards output.
func NewPipeline(cfg Config, classifier Classifier, blobs BlobStore, queue Queue, clock clockwork.Clock, logger log.Logger, hooks PipelineHooks) (*Pipeline, error) {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguageCode
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	if classifier == nil || blobs == nil || queue == nil {
		return nil, xerrors.New("classifier, blob store and queue are required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{
		cfg:        cfg,
		classifier: classifier,
		blobs:      blobs,
		queue:      queue,
		clock:      clock,
		logger:     logger,
		hooks:      hooks,
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Process triages one message: classify, prioritize, build, archive, route, send.
// The archive write always precedes the queue send. Any failure stops the
// sequence and is returned as *Error; nothing is sent for a failed message.
func (p *Pipeline) Process(ctx context.Context, raw RawMessage) (*EnrichedRecord, error) {
	rec, _, err := p.process(ctx, raw)
	return rec, err
}

func (p *Pipeline) process(ctx context.Context, raw RawMessage) (*EnrichedRecord, string, error) {
	start := p.clock.Now()

	ctx, span := tracer.Start(ctx, "triage.process", trace.WithAttributes(
		attribute.String("sift.source_key", raw.SourceKey),
		attribute.Int("sift.text_bytes", len(raw.Text)),
	))
	defer span.End()

	L := p.logger.With("source_key", raw.SourceKey)

	rec, dest, err := p.run(ctx, raw)
	duration := p.clock.Since(start).Seconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		te, _ := AsError(err)
		L.Error(ctx, err, "triage failed", "stage", te.Stage, "kind", te.Kind, "state", te.State)

		if p.hooks.OnFailure != nil {
			p.hooks.OnFailure(te.Stage, te.Kind)
		}
		if p.hooks.OnComplete != nil {
			p.hooks.OnComplete(&CompleteEvent{State: StateFailed, Duration: duration})
		}
		return nil, "", err
	}

	span.SetAttributes(
		attribute.String("sift.priority", string(rec.Priority)),
		attribute.String("sift.sentiment", string(rec.Sentiment.Label)),
		attribute.String("sift.destination", dest),
	)

	L.Info(ctx, "routed",
		"priority", rec.Priority,
		"sentiment", rec.Sentiment.Label,
		"negative_score", rec.Sentiment.Scores.Negative,
		"archive_key", rec.ArchiveKey,
		"destination", dest,
		"duration", duration,
	)

	if p.hooks.OnComplete != nil {
		p.hooks.OnComplete(&CompleteEvent{
			State:    StateDone,
			Priority: rec.Priority,
			Label:    rec.Sentiment.Label,
			Duration: duration,
		})
	}
	return rec, dest, nil
}

// run walks the state machine for one message and returns the record together
// with the destination it was sent to.
func (p *Pipeline) run(ctx context.Context, raw RawMessage) (*EnrichedRecord, string, error) {
	state := StateReceived
	fail := func(stage Stage, kind Kind, err error) error {
		return &Error{Kind: kind, Stage: stage, State: state, SourceKey: raw.SourceKey, Err: err}
	}

	// reject unusable keys before paying for a classifier call
	if _, err := ArchiveKey(raw.SourceKey); err != nil {
		return nil, "", fail(StageBuild, KindInvalidSourceKey, err)
	}

	out, err := p.classify(ctx, raw.Text)
	switch {
	case errors.Is(err, sentiment.ErrMalformedOutput):
		// the call succeeded but the reply could not be decoded
		return nil, "", fail(StageExtract, KindMalformedClassifierOutput, err)
	case err != nil:
		return nil, "", fail(StageClassify, KindClassifierCallFailure, err)
	}

	score, err := sentiment.Extract(out)
	if err != nil {
		return nil, "", fail(StageExtract, KindMalformedClassifierOutput, err)
	}
	state = StateScored

	tier, err := Classify(score, p.cfg.Threshold)
	if err != nil {
		return nil, "", fail(StagePrioritize, KindInvalidThreshold, err)
	}
	state = StateClassified

	rec, err := Build(raw, score, tier, p.clock.Now())
	if err != nil {
		return nil, "", fail(StageBuild, KindInvalidSourceKey, err)
	}
	state = StateBuilt

	if err := p.archive(ctx, rec); err != nil {
		return nil, "", fail(StageArchive, KindStorageWriteFailure, err)
	}
	state = StateArchived

	dest, attrs, err := Route(rec, p.cfg.Destinations)
	if err != nil {
		return nil, "", fail(StageRoute, KindUnknownPriorityTier, err)
	}
	state = StateRouted

	if err := p.send(ctx, rec, dest, attrs); err != nil {
		return nil, "", fail(StageSend, KindQueueSendFailure, err)
	}

	return rec, dest, nil
}

func (p *Pipeline) classify(ctx context.Context, text string) (*sentiment.Output, error) {
	ctx, span := tracer.Start(ctx, "classifier.call", trace.WithAttributes(
		attribute.String("sift.language_code", p.cfg.LanguageCode),
	))
	defer span.End()

	start := p.clock.Now()
	out, err := p.classifier.Classify(ctx, ClassifyRequest{Text: text, LanguageCode: p.cfg.LanguageCode})
	if p.hooks.OnClassifierCall != nil {
		p.hooks.OnClassifierCall(p.clock.Since(start).Seconds(), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if out != nil {
		span.SetAttributes(attribute.String("sift.classifier.label", out.Label))
	}
	return out, nil
}

func (p *Pipeline) archive(ctx context.Context, rec *EnrichedRecord) error {
	ctx, span := tracer.Start(ctx, "archive.put", trace.WithAttributes(
		attribute.String("sift.archive.bucket", p.cfg.ArchiveBucket),
		attribute.String("sift.archive.key", rec.ArchiveKey),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	doc, err := rec.MarshalArchive()
	if err != nil {
		return fmt.Errorf("marshal archive document: %w", err)
	}
	if err := p.blobs.Put(ctx, p.cfg.ArchiveBucket, rec.ArchiveKey, doc, ArchiveContentType); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Pipeline) send(ctx context.Context, rec *EnrichedRecord, dest string, attrs Attributes) error {
	ctx, span := tracer.Start(ctx, "queue.send", trace.WithAttributes(
		attribute.String("sift.destination", dest),
	))
	defer span.End()

	// a cancelled message keeps its archive copy but is not sent
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	body, err := rec.MarshalBody()
	if err != nil {
		return fmt.Errorf("marshal message body: %w", err)
	}
	if err := p.queue.Send(ctx, dest, string(body), attrs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
