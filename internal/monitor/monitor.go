// Package monitor prints a read-only snapshot of the priority queues.
package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/linnemanlabs/sift/internal/queue"
	"github.com/linnemanlabs/sift/internal/triage"
)

// Defaults for Report.
const (
	MaxMessages   = 10
	PreviewLength = 100
	timeLayout    = "2006-01-02 15:04:05"
)

var rule = strings.Repeat("=", 60)

// Reader peeks at queued messages without consuming them.
type Reader interface {
	Peek(ctx context.Context, destination string, n int) ([]queue.Message, error)
}

// Queue names one queue to inspect.
type Queue struct {
	Title       string // e.g. "HIGH PRIORITY"
	Destination string
}

// Report writes a section per queue listing up to MaxMessages pending
// messages. Transport failures and undecodable bodies are reported inline and
// never abort the report. The only error returned is a write failure on w.
func Report(ctx context.Context, w io.Writer, r Reader, queues []Queue, now time.Time) error {
	p := &printer{w: w}
	p.printf("\nSIFT - QUEUE MONITOR\n")
	p.printf("Checked at %s\n", now.Format(timeLayout))

	for _, q := range queues {
		p.printf("\n%s\n%s QUEUE (%s)\n%s\n", rule, q.Title, q.Destination, rule)

		msgs, err := r.Peek(ctx, q.Destination, MaxMessages)
		if err != nil {
			p.printf("  Error reading queue: %v\n", err)
			continue
		}
		if len(msgs) == 0 {
			p.printf("  No messages in queue\n")
			continue
		}
		for i, m := range msgs {
			p.message(i+1, m)
		}
	}

	p.printf("\n%s\n\n", rule)
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) message(n int, m queue.Message) {
	p.printf("\n  Message %d:\n", n)
	doc, err := triage.ParseDocument([]byte(m.Body))
	if err != nil {
		p.printf("    Error decoding message %s: %v\n", m.ID, err)
		return
	}
	p.printf("    File: %s\n", doc.OriginalKey)
	p.printf("    Sentiment: %s\n", doc.Sentiment)
	p.printf("    Negative Score: %.2f\n", doc.NegativeScore)
	p.printf("    Preview: %s...\n", Preview(doc.Message, PreviewLength))
}

// Preview returns the first n runes of s.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
