// Package eventapi exposes the triage service over HTTP: storage-event
// notifications, inline message submission and outcome lookup.
package eventapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sift/internal/authmw"
	"github.com/linnemanlabs/sift/internal/event"
	"github.com/linnemanlabs/sift/internal/triage"
)

// TriageService defines the business operations eventapi needs.
type TriageService interface {
	HandleNotification(ctx context.Context, n *event.Notification) (*triage.BatchResult, error)
	Submit(ctx context.Context, raw triage.RawMessage) (*triage.MessageResult, error)
	Get(ctx context.Context, sourceKey string) (*triage.Outcome, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
	token  string
}

// New creates a new API handler. A non-empty token protects every route
// with bearer authentication.
func New(logger log.Logger, svc TriageService, token string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		token:  token,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		if a.token != "" {
			r.Use(authmw.BearerToken(a.token))
		}
		r.Post("/events", a.handleEvents)
		r.Post("/messages", a.handleSubmit)
		r.Get("/triage/*", a.handleGetTriage)
	})
}

func (a *API) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("sift.source_key", key))

	outcome, ok, err := a.svc.Get(r.Context(), key)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get triage outcome", "source_key", key)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("sift.triage.state", string(outcome.State)))
	writeJSON(w, http.StatusOK, outcome)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
