package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testDestinations = Destinations{High: "queue-high", Normal: "queue-normal"}

func testConfig() Config {
	return Config{
		Threshold:     DefaultThreshold,
		ArchiveBucket: "archive-bucket",
		Destinations:  testDestinations,
	}
}

// callLog records collaborator calls in order across all fakes of a test.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func negativeOutput(neg float64) *sentiment.Output {
	rest := (1 - neg) / 3
	return &sentiment.Output{
		Label: "NEGATIVE",
		Scores: map[string]float64{
			"Negative": neg,
			"Positive": rest,
			"Neutral":  rest,
			"Mixed":    rest,
		},
	}
}

// mockClassifier returns outputs by text, falling back to def.
type mockClassifier struct {
	mu     sync.Mutex
	log    *callLog
	byText map[string]*sentiment.Output
	def    *sentiment.Output
	err    error
	calls  int
}

func (m *mockClassifier) Classify(_ context.Context, req ClassifyRequest) (*sentiment.Output, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	m.log.add("classify %s", req.Text)
	if m.err != nil {
		return nil, m.err
	}
	if out, ok := m.byText[req.Text]; ok {
		return out, nil
	}
	return m.def, nil
}

func (m *mockClassifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type blobPut struct {
	Bucket      string
	Key         string
	Data        string
	ContentType string
}

// mockBlobs is an in-memory BlobStore that remembers every Put.
type mockBlobs struct {
	mu      sync.Mutex
	log     *callLog
	objects map[string][]byte
	puts    []blobPut
	getErr  error
	putErr  error
	onPut   func()
}

func newMockBlobs(log *callLog) *mockBlobs {
	return &mockBlobs{log: log, objects: make(map[string][]byte)}
}

func (m *mockBlobs) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.log.add("get %s/%s", bucket, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *mockBlobs) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	m.log.add("put %s/%s", bucket, key)
	m.mu.Lock()
	if m.putErr != nil {
		m.mu.Unlock()
		return m.putErr
	}
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	m.puts = append(m.puts, blobPut{Bucket: bucket, Key: key, Data: string(data), ContentType: contentType})
	onPut := m.onPut
	m.mu.Unlock()
	if onPut != nil {
		onPut()
	}
	return nil
}

func (m *mockBlobs) putCalls() []blobPut {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]blobPut(nil), m.puts...)
}

type sentMessage struct {
	Destination string
	Body        string
	Attrs       Attributes
}

// mockQueue records sends.
type mockQueue struct {
	mu   sync.Mutex
	log  *callLog
	sent []sentMessage
	err  error
}

func (m *mockQueue) Send(_ context.Context, destination, body string, attrs Attributes) error {
	m.log.add("send %s", destination)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{Destination: destination, Body: body, Attrs: attrs})
	return nil
}

func (m *mockQueue) sends() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

// mockStore implements Store for testing. latency is spent inside Record
// while the lock is held, as a database round trip would be.
type mockStore struct {
	mu        sync.Mutex
	outcomes  map[string]*Outcome
	recordErr error
	getErr    error
	latency   time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{outcomes: make(map[string]*Outcome)}
}

func (m *mockStore) Get(_ context.Context, sourceKey string) (*Outcome, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	o, ok := m.outcomes[sourceKey]
	if !ok {
		return nil, false, nil
	}
	cp := *o
	return &cp, true, nil
}

func (m *mockStore) Record(_ context.Context, o *Outcome) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	time.Sleep(m.latency)
	cp := *o
	cp.Attempts = 1
	if prev, ok := m.outcomes[o.SourceKey]; ok {
		cp.Attempts = prev.Attempts + 1
		cp.FirstSeenAt = prev.FirstSeenAt
	}
	m.outcomes[o.SourceKey] = &cp
	out := cp
	return &out, nil
}

// mockNotifier records notified source keys.
type mockNotifier struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, rec *EnrichedRecord, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, rec.SourceKey)
	return m.err
}

func (m *mockNotifier) notified() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}
