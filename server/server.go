// Package server exposes the engine over HTTP.
//
//	POST /v1/threads/{threadID}/turns   {"user_id": "...", "text": "..."} -> {"text": "..."}
//	GET  /v1/threads/{threadID}         latest checkpoint
//	GET  /healthz
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// TurnEngine is the subset of *engine.Engine the handlers need.
type TurnEngine interface {
	SubmitTurn(ctx context.Context, threadID, userID, text string) (string, error)
	Session(ctx context.Context, threadID string) (*core.Session, error)
}

// Options configures the HTTP handlers.
type Options struct {
	Logger logging.Logger
	// TurnTimeout bounds a single SubmitTurn. 0 disables the bound.
	TurnTimeout time.Duration
}

// Handler serves the thread API.
type Handler struct {
	engine TurnEngine
	opts   Options
}

// NewHandler creates a Handler backed by eng.
func NewHandler(eng TurnEngine, optFns ...func(o *Options)) *Handler {
	opts := Options{Logger: logging.NoOpLogger{}, TurnTimeout: 2 * time.Minute}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Handler{engine: eng, opts: opts}
}

// Routes returns the router with middleware and all endpoints mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/v1/threads/{threadID}", func(r chi.Router) {
		r.Get("/", h.getThread)
		r.Post("/turns", h.postTurn)
	})
	return r
}

type turnRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type turnResponse struct {
	Text string `json:"text"`
}

type threadView struct {
	ThreadID string      `json:"thread_id"`
	UserID   string      `json:"user_id"`
	Stage    core.Stage  `json:"stage"`
	Version  int64       `json:"version"`
	Summary  string      `json:"summary,omitempty"`
	Turns    []core.Turn `json:"turns"`
	Updated  time.Time   `json:"updated"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) postTurn(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req turnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if h.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.TurnTimeout)
		defer cancel()
	}

	text, err := h.engine.SubmitTurn(ctx, threadID, req.UserID, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, turnResponse{Text: text})
}

func (h *Handler) getThread(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Session(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, threadView{
		ThreadID: sess.ThreadID,
		UserID:   sess.UserID,
		Stage:    sess.Stage,
		Version:  sess.Version,
		Summary:  sess.Summary,
		Turns:    sess.Turns,
		Updated:  sess.Updated,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	h.opts.Logger.Warn("server.request.failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"status", status,
		"error", err.Error(),
	)
	msg := http.StatusText(status)
	if status == http.StatusBadRequest || status == http.StatusNotFound {
		msg = err.Error()
	}
	Error(w, status, msg)
}

// StatusFor maps the error taxonomy to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrCheckpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCheckpointConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrTransientIO),
		errors.Is(err, core.ErrModel),
		errors.Is(err, core.ErrMaxModelCalls),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// ListenAndServe serves h on addr until ctx ends, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
