package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

type pipelineFixture struct {
	log        *callLog
	classifier *mockClassifier
	blobs      *mockBlobs
	queue      *mockQueue
	clock      *clockwork.FakeClock
	pipeline   *Pipeline
}

func newFixture(t *testing.T, cfg Config, hooks PipelineHooks) *pipelineFixture {
	t.Helper()

	calls := &callLog{}
	f := &pipelineFixture{
		log:        calls,
		classifier: &mockClassifier{log: calls, def: negativeOutput(0.87)},
		blobs:      newMockBlobs(calls),
		queue:      &mockQueue{log: calls},
		clock:      clockwork.NewFakeClockAt(testNow),
	}
	p, err := NewPipeline(cfg, f.classifier, f.blobs, f.queue, f.clock, log.Nop(), hooks)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	f.pipeline = p
	return f
}

func TestProcess_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), PipelineHooks{})
	f.classifier.def = &sentiment.Output{
		Label:  "NEGATIVE",
		Scores: map[string]float64{"NEGATIVE": 0.87, "POSITIVE": 0.02, "NEUTRAL": 0.10, "MIXED": 0.01},
	}

	raw := RawMessage{SourceKey: "inbox/msg1.txt", Text: "This is terrible and broken."}
	rec, err := f.pipeline.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if rec.ArchiveKey != "archive/msg1.txt" {
		t.Errorf("ArchiveKey = %q, want archive/msg1.txt", rec.ArchiveKey)
	}
	if rec.Priority != TierHigh {
		t.Errorf("Priority = %q, want HIGH", rec.Priority)
	}
	if !rec.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, testNow)
	}

	puts := f.blobs.putCalls()
	if len(puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(puts))
	}
	if puts[0].Bucket != "archive-bucket" || puts[0].Key != "archive/msg1.txt" {
		t.Errorf("put target = %s/%s", puts[0].Bucket, puts[0].Key)
	}
	if puts[0].ContentType != ArchiveContentType {
		t.Errorf("content type = %q, want %q", puts[0].ContentType, ArchiveContentType)
	}

	sends := f.queue.sends()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	if sends[0].Destination != "queue-high" {
		t.Errorf("destination = %q, want queue-high", sends[0].Destination)
	}
	wantAttrs := Attributes{
		AttrSentiment:     {Value: "NEGATIVE", Type: TypeString},
		AttrNegativeScore: {Value: "0.87", Type: TypeNumber},
	}
	if diff := cmp.Diff(wantAttrs, sends[0].Attrs); diff != "" {
		t.Errorf("attrs mismatch (-want +got):\n%s", diff)
	}

	doc, err := ParseDocument([]byte(sends[0].Body))
	if err != nil {
		t.Fatalf("ParseDocument(body): %v", err)
	}
	if doc.OriginalKey != raw.SourceKey || doc.Message != raw.Text || doc.Priority != TierHigh {
		t.Errorf("body document = %+v", doc)
	}
}

func TestProcess_ThresholdBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		negative float64
		want     Tier
		wantDest string
	}{
		{"equal to threshold", 0.5, TierNormal, "queue-normal"},
		{"just above threshold", 0.5000001, TierHigh, "queue-high"},
		{"low", 0.02, TierNormal, "queue-normal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, testConfig(), PipelineHooks{})
			f.classifier.def = negativeOutput(tt.negative)

			rec, err := f.pipeline.Process(context.Background(), RawMessage{SourceKey: "inbox/b.txt", Text: "x"})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if rec.Priority != tt.want {
				t.Errorf("Priority = %q, want %q", rec.Priority, tt.want)
			}
			if got := f.queue.sends()[0].Destination; got != tt.wantDest {
				t.Errorf("destination = %q, want %q", got, tt.wantDest)
			}
		})
	}
}

func TestProcess_ArchiveBeforeSend(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), PipelineHooks{})
	if _, err := f.pipeline.Process(context.Background(), RawMessage{SourceKey: "inbox/a.txt", Text: "hello"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := []string{
		"classify hello",
		"put archive-bucket/archive/a.txt",
		"send queue-high",
	}
	if diff := cmp.Diff(want, f.log.snapshot()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), PipelineHooks{})
	raw := RawMessage{SourceKey: "inbox/dup.txt", Text: "again"}

	for range 2 {
		if _, err := f.pipeline.Process(context.Background(), raw); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}

	puts := f.blobs.putCalls()
	if len(puts) != 2 {
		t.Fatalf("puts = %d, want 2", len(puts))
	}
	if puts[0].Key != puts[1].Key {
		t.Errorf("archive keys differ: %q vs %q", puts[0].Key, puts[1].Key)
	}
	if puts[0].Data != puts[1].Data {
		t.Error("archive documents differ between runs")
	}
	if len(f.blobs.objects) != 1 {
		t.Errorf("archive entries = %d, want 1", len(f.blobs.objects))
	}

	sends := f.queue.sends()
	if len(sends) != 2 {
		t.Fatalf("sends = %d, want 2", len(sends))
	}
	if sends[0].Body != sends[1].Body {
		t.Error("queue bodies differ between runs")
	}
}

func TestProcess_Failures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name      string
		raw       RawMessage
		setup     func(f *pipelineFixture)
		wantKind  Kind
		wantStage Stage
		wantState State
		wantIs    error
		wantPuts  int
		wantCalls int
	}{
		{
			name:      "unknown label",
			raw:       RawMessage{SourceKey: "inbox/u.txt", Text: "?"},
			setup:     func(f *pipelineFixture) { f.classifier.def.Label = "UNKNOWN" },
			wantKind:  KindMalformedClassifierOutput,
			wantStage: StageExtract,
			wantState: StateReceived,
			wantIs:    ErrMalformedClassifierOutput,
			wantCalls: 1,
		},
		{
			name:      "classifier error",
			raw:       RawMessage{SourceKey: "inbox/c.txt", Text: "?"},
			setup:     func(f *pipelineFixture) { f.classifier.err = boom },
			wantKind:  KindClassifierCallFailure,
			wantStage: StageClassify,
			wantState: StateReceived,
			wantIs:    boom,
			wantCalls: 1,
		},
		{
			name:      "undecodable reply",
			raw:       RawMessage{SourceKey: "inbox/r.txt", Text: "?"},
			setup:     func(f *pipelineFixture) { f.classifier.err = fmt.Errorf("%w: no JSON object", sentiment.ErrMalformedOutput) },
			wantKind:  KindMalformedClassifierOutput,
			wantStage: StageExtract,
			wantState: StateReceived,
			wantIs:    ErrMalformedClassifierOutput,
			wantCalls: 1,
		},
		{
			name:      "empty source key",
			raw:       RawMessage{SourceKey: "", Text: "?"},
			wantKind:  KindInvalidSourceKey,
			wantStage: StageBuild,
			wantState: StateReceived,
			wantIs:    ErrInvalidSourceKey,
		},
		{
			name:      "archive write error",
			raw:       RawMessage{SourceKey: "inbox/w.txt", Text: "?"},
			setup:     func(f *pipelineFixture) { f.blobs.putErr = boom },
			wantKind:  KindStorageWriteFailure,
			wantStage: StageArchive,
			wantState: StateBuilt,
			wantIs:    ErrStorageWrite,
			wantCalls: 1,
		},
		{
			name:      "queue send error",
			raw:       RawMessage{SourceKey: "inbox/q.txt", Text: "?"},
			setup:     func(f *pipelineFixture) { f.queue.err = boom },
			wantKind:  KindQueueSendFailure,
			wantStage: StageSend,
			wantState: StateRouted,
			wantIs:    ErrQueueSend,
			wantPuts:  1,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, testConfig(), PipelineHooks{})
			if tt.setup != nil {
				tt.setup(f)
			}

			rec, err := f.pipeline.Process(context.Background(), tt.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if rec != nil {
				t.Errorf("record = %+v, want nil", rec)
			}

			te, ok := AsError(err)
			if !ok {
				t.Fatalf("error %T is not *Error", err)
			}
			if te.Kind != tt.wantKind || te.Stage != tt.wantStage || te.State != tt.wantState {
				t.Errorf("got kind=%s stage=%s state=%s, want %s/%s/%s",
					te.Kind, te.Stage, te.State, tt.wantKind, tt.wantStage, tt.wantState)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantIs)
			}

			if got := len(f.blobs.putCalls()); got != tt.wantPuts {
				t.Errorf("puts = %d, want %d", got, tt.wantPuts)
			}
			if got := len(f.queue.sends()); got != 0 {
				t.Errorf("sends = %d, want 0", got)
			}
			if got := f.classifier.callCount(); got != tt.wantCalls {
				t.Errorf("classifier calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestProcess_CancelledAfterArchive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), PipelineHooks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.blobs.onPut = cancel

	_, err := f.pipeline.Process(ctx, RawMessage{SourceKey: "inbox/c.txt", Text: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !errors.Is(err, ErrQueueSend) {
		t.Errorf("err = %v, want ErrQueueSend", err)
	}
	if got := len(f.blobs.putCalls()); got != 1 {
		t.Errorf("puts = %d, want archive copy retained", got)
	}
	if got := len(f.queue.sends()); got != 0 {
		t.Errorf("sends = %d, want 0", got)
	}
}

func TestProcess_CancelledBeforeArchive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), PipelineHooks{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Process(ctx, RawMessage{SourceKey: "inbox/c.txt", Text: "x"})
	if !errors.Is(err, ErrStorageWrite) {
		t.Fatalf("err = %v, want ErrStorageWrite", err)
	}
	if got := len(f.blobs.putCalls()); got != 0 {
		t.Errorf("puts = %d, want 0", got)
	}
}

func TestProcess_HooksCalled(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		classified int
		failures   []Kind
		completes  []CompleteEvent
	)
	hooks := PipelineHooks{
		OnClassifierCall: func(_ float64, _ error) {
			mu.Lock()
			classified++
			mu.Unlock()
		},
		OnFailure: func(_ Stage, kind Kind) {
			mu.Lock()
			failures = append(failures, kind)
			mu.Unlock()
		},
		OnComplete: func(e *CompleteEvent) {
			mu.Lock()
			completes = append(completes, *e)
			mu.Unlock()
		},
	}

	f := newFixture(t, testConfig(), hooks)
	if _, err := f.pipeline.Process(context.Background(), RawMessage{SourceKey: "inbox/ok.txt", Text: "x"}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	f.queue.err = errors.New("down")
	_, _ = f.pipeline.Process(context.Background(), RawMessage{SourceKey: "inbox/bad.txt", Text: "x"})

	mu.Lock()
	defer mu.Unlock()
	if classified != 2 {
		t.Errorf("classifier hook calls = %d, want 2", classified)
	}
	if diff := cmp.Diff([]Kind{KindQueueSendFailure}, failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
	if len(completes) != 2 {
		t.Fatalf("completes = %d, want 2", len(completes))
	}
	if completes[0].State != StateDone || completes[0].Priority != TierHigh || completes[0].Label != sentiment.Negative {
		t.Errorf("first complete = %+v", completes[0])
	}
	if completes[1].State != StateFailed {
		t.Errorf("second complete state = %q, want FAILED", completes[1].State)
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	cl := &mockClassifier{log: calls}
	bl := newMockBlobs(calls)
	q := &mockQueue{log: calls}

	tests := []struct {
		name    string
		cfg     Config
		wantSub string
	}{
		{"threshold zero", Config{Threshold: 0, ArchiveBucket: "b", Destinations: testDestinations}, "invalid threshold"},
		{"threshold one", Config{Threshold: 1, ArchiveBucket: "b", Destinations: testDestinations}, "invalid threshold"},
		{"no bucket", Config{Threshold: 0.5, Destinations: testDestinations}, "archive bucket"},
		{"no high", Config{Threshold: 0.5, ArchiveBucket: "b", Destinations: Destinations{Normal: "n"}}, "HIGH destination"},
		{"no normal", Config{Threshold: 0.5, ArchiveBucket: "b", Destinations: Destinations{High: "h"}}, "NORMAL destination"},
		{"negative workers", Config{Threshold: 0.5, ArchiveBucket: "b", Destinations: testDestinations, Workers: -1}, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewPipeline(tt.cfg, cl, bl, q, nil, nil, PipelineHooks{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}

	if _, err := NewPipeline(testConfig(), nil, bl, q, nil, nil, PipelineHooks{}); err == nil {
		t.Error("expected error for nil classifier")
	}

	p, err := NewPipeline(testConfig(), cl, bl, q, nil, nil, PipelineHooks{})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if got := p.Config(); got.LanguageCode != DefaultLanguageCode || got.Workers != DefaultWorkers {
		t.Errorf("defaults not applied: %+v", got)
	}
}

func TestProcess_CreatesSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	f := newFixture(t, testConfig(), PipelineHooks{})
	if _, err := f.pipeline.Process(context.Background(), RawMessage{SourceKey: "inbox/span.txt", Text: "x"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	counts := make(map[string]int)
	var processAttrs map[string]any
	for _, s := range exporter.GetSpans() {
		counts[s.Name]++
		if s.Name == "triage.process" {
			processAttrs = make(map[string]any)
			for _, a := range s.Attributes {
				processAttrs[string(a.Key)] = a.Value.AsInterface()
			}
		}
	}

	for _, name := range []string{"triage.process", "classifier.call", "archive.put", "queue.send"} {
		if counts[name] != 1 {
			t.Errorf("%s spans = %d, want 1", name, counts[name])
		}
	}
	if v := processAttrs["sift.source_key"]; v != "inbox/span.txt" {
		t.Errorf("sift.source_key = %v", v)
	}
	if v := processAttrs["sift.priority"]; v != "HIGH" {
		t.Errorf("sift.priority = %v, want HIGH", v)
	}
}
