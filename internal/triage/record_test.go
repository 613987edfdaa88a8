package triage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

func TestArchiveKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"inbox/msg1.txt", "archive/msg1.txt"},
		{"msg1.txt", "archive/msg1.txt"},
		{"a/b/c/deep.json", "archive/deep.json"},
		{"archive/msg1.txt", "archive/msg1.txt"},
		{"inbox/my note.txt", "archive/my note.txt"},
	}

	for _, tt := range tests {
		got, err := ArchiveKey(tt.in)
		if err != nil {
			t.Errorf("ArchiveKey(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ArchiveKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArchiveKey_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "inbox/", "/"} {
		if _, err := ArchiveKey(in); !errors.Is(err, ErrInvalidSourceKey) {
			t.Errorf("ArchiveKey(%q) err = %v, want ErrInvalidSourceKey", in, err)
		}
	}
}

func testScore() sentiment.Score {
	return sentiment.Score{
		Label:  sentiment.Negative,
		Scores: sentiment.Scores{Positive: 0.02, Negative: 0.87, Neutral: 0.10, Mixed: 0.01},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2026, 3, 1, 14, 0, 0, 0, loc)
	raw := RawMessage{SourceKey: "inbox/msg1.txt", Text: "This is terrible and broken."}

	rec, err := Build(raw, testScore(), TierHigh, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := &EnrichedRecord{
		SourceKey:  raw.SourceKey,
		Text:       raw.Text,
		Sentiment:  testScore(),
		Priority:   TierHigh,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ArchiveKey: "archive/msg1.txt",
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	raw := RawMessage{SourceKey: "inbox/d.txt", Text: "same"}
	a, err := Build(raw, testScore(), TierHigh, testNow)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(raw, testScore(), TierHigh, testNow)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ab, _ := a.MarshalArchive()
	bb, _ := b.MarshalArchive()
	if !bytes.Equal(ab, bb) {
		t.Errorf("archive documents differ:\n%s\n%s", ab, bb)
	}
}

func TestBuild_InvalidSourceKey(t *testing.T) {
	t.Parallel()

	_, err := Build(RawMessage{Text: "x"}, testScore(), TierNormal, testNow)
	if !errors.Is(err, ErrInvalidSourceKey) {
		t.Errorf("err = %v, want ErrInvalidSourceKey", err)
	}
}

func TestMarshalArchive_Format(t *testing.T) {
	t.Parallel()

	rec, err := Build(RawMessage{SourceKey: "inbox/msg1.txt", Text: "bad"}, testScore(), TierHigh, testNow)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := rec.MarshalArchive()
	if err != nil {
		t.Fatalf("MarshalArchive: %v", err)
	}

	want := `{
  "original_key": "inbox/msg1.txt",
  "message": "bad",
  "sentiment": "NEGATIVE",
  "scores": {
    "Positive": 0.02,
    "Negative": 0.87,
    "Neutral": 0.1,
    "Mixed": 0.01
  },
  "negative_score": 0.87,
  "timestamp": "2026-03-01T12:00:00.000000000Z",
  "priority": "HIGH"
}`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("archive document mismatch (-want +got):\n%s", diff)
	}

	body, err := rec.MarshalBody()
	if err != nil {
		t.Fatalf("MarshalBody: %v", err)
	}
	if strings.Contains(string(body), "\n") {
		t.Errorf("body is not compact: %s", body)
	}

	doc, err := ParseDocument(body)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if diff := cmp.Diff(rec.Document(), *doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDocument_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseDocument([]byte("not json")); err == nil {
		t.Error("expected error")
	}
}
