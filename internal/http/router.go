// Package http serves session ingest, inspection and export over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/app"
	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/schema"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/export"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/session"
)

// maxEventBytes bounds a single event body.
const maxEventBytes = 1 << 20

// Sessions is the session manager as seen by the router.
type Sessions interface {
	Handle(ctx context.Context, env models.Envelope) (models.EventResult, error)
	Export(ctx context.Context, sessionID string, opts session.ExportOptions) (export.Result, error)
	IDs() []string
	Snapshot(id string) (session.View, error)
}

type exportBody struct {
	RecordingURL string `json:"recording_url"`
	APIKey       string `json:"api_key"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	return Routes(application.Manager, application.Ready, application.Logger)
}

// Routes builds the router over sessions. ready drives /v1/readiness.
func Routes(sessions Sessions, ready func() bool, logger zerolog.Logger) http.Handler {
	h := &handlers{sessions: sessions, logger: logging.WithComponent(logger, "http")}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/events", h.event)
			r.Get("/transcript", h.transcript)
			r.Post("/export", h.export)
		})
	})

	return r
}

type handlers struct {
	sessions Sessions
	logger   zerolog.Logger
}

func (h *handlers) list(w http.ResponseWriter, _ *http.Request) {
	ids := h.sessions.IDs()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids, "count": len(ids)})
}

func (h *handlers) event(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var env models.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body: "+err.Error())
		return
	}
	if env.SessionID == "" {
		env.SessionID = id
	}
	if env.SessionID != id {
		writeError(w, http.StatusBadRequest, "session_id does not match path")
		return
	}

	res, err := h.sessions.Handle(r.Context(), env)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) transcript(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.Snapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(view.Formatted))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// export answers 200 when the upload succeeded and 502 when it did not; the
// body is the export result either way.
func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	var body exportBody
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid export body: "+err.Error())
		return
	}
	if body.APIKey == "" {
		body.APIKey = r.Header.Get("x-pype-token")
	}

	res, err := h.sessions.Export(r.Context(), chi.URLParam(r, "sessionID"), session.ExportOptions{
		RecordingURL: body.RecordingURL,
		APIKey:       body.APIKey,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if !res.Success {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, res.Map())
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, code, err.Error())
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, schema.ErrInvalidEvent),
		errors.Is(err, session.ErrUnknownEventType),
		errors.Is(err, models.ErrUnknownMetricKind):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionExported):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
