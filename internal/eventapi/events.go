package eventapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/sift/internal/event"
	"github.com/linnemanlabs/sift/internal/sentiment"
	"github.com/linnemanlabs/sift/internal/triage"
)

// recordResult is the per-record entry of an events response.
type recordResult struct {
	SourceKey   string      `json:"source_key"`
	Status      string      `json:"status"`
	Priority    triage.Tier `json:"priority,omitempty"`
	ArchiveKey  string      `json:"archive_key,omitempty"`
	Destination string      `json:"destination,omitempty"`
	ErrorKind   triage.Kind `json:"error_kind,omitempty"`
	Error       string      `json:"error,omitempty"`
	Retryable   bool        `json:"retryable,omitempty"`
}

type eventsResponse struct {
	RunID   string         `json:"run_id"`
	Failed  int            `json:"failed"`
	Results []recordResult `json:"results"`
}

// handleEvents triages every object in a storage-event notification. Any
// failed record fails the request so the sender redelivers the batch.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	var n event.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if _, err := n.Objects(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.HandleNotification(r.Context(), &n)
	if res == nil {
		a.logger.Error(r.Context(), err, "notification failed")
		writeError(w, http.StatusBadGateway, "notification failed")
		return
	}

	resp := eventsResponse{RunID: res.RunID, Failed: res.Failed(), Results: make([]recordResult, len(res.Results))}
	for i := range res.Results {
		resp.Results[i] = toRecordResult(&res.Results[i])
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("sift.run_id", res.RunID),
		attribute.Int("sift.records", len(res.Results)),
		attribute.Int("sift.failed", resp.Failed),
	)

	if err != nil {
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func toRecordResult(mr *triage.MessageResult) recordResult {
	rr := recordResult{
		SourceKey:   mr.SourceKey,
		Status:      "done",
		Priority:    mr.Priority,
		ArchiveKey:  mr.ArchiveKey,
		Destination: mr.Destination,
	}
	if mr.Err != nil {
		rr.Status = "failed"
		rr.Error = mr.Err.Error()
		if te, ok := triage.AsError(mr.Err); ok {
			rr.ErrorKind = te.Kind
			rr.Retryable = te.Retryable()
		}
	}
	return rr
}

type submitResponse struct {
	SourceKey     string           `json:"source_key"`
	Sentiment     sentiment.Label  `json:"sentiment"`
	Scores        sentiment.Scores `json:"scores"`
	NegativeScore float64          `json:"negative_score"`
	Priority      triage.Tier      `json:"priority"`
	Timestamp     string           `json:"timestamp"`
	ArchiveKey    string           `json:"archive_key"`
	Destination   string           `json:"destination"`
}

// handleSubmit triages one inline message. Validation failures are the
// caller's problem (422); collaborator failures are ours (502).
func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var raw triage.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if raw.SourceKey == "" {
		writeError(w, http.StatusBadRequest, "source_key is required")
		return
	}

	res, err := a.svc.Submit(r.Context(), raw)
	if err != nil {
		status := http.StatusBadGateway
		var te *triage.Error
		if errors.As(err, &te) && !te.Retryable() {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, toRecordResult(&triage.MessageResult{SourceKey: raw.SourceKey, Err: err}))
		return
	}

	doc := res.Record.Document()
	writeJSON(w, http.StatusOK, submitResponse{
		SourceKey:     doc.OriginalKey,
		Sentiment:     doc.Sentiment,
		Scores:        doc.Scores,
		NegativeScore: doc.NegativeScore,
		Priority:      doc.Priority,
		Timestamp:     doc.Timestamp,
		ArchiveKey:    res.ArchiveKey,
		Destination:   res.Destination,
	})
}
