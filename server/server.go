// Package server exposes a Desk over HTTP.
//
//	POST /v1/ask                        {"session_id": "...", "message": "..."}
//	GET  /v1/agents                     loaded worker names
//	GET  /v1/sessions/{id}/messages     stored transcript
//	GET  /healthz
//	GET  /metrics                       when metrics are enabled
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/metrics"
	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/supervisor"
)

// Asker answers one user message within a session.
type Asker interface {
	Ask(ctx context.Context, sessionID, text string) (supervisor.Result, error)
}

// Options configures the server.
type Options struct {
	// Workers are listed by GET /v1/agents.
	Workers []string
	// Store serves GET /v1/sessions/{id}/messages when set.
	Store session.Store
	// Metrics serves GET /metrics when set.
	Metrics *metrics.Metrics
	Logger  logging.Logger
	// RequestTimeout bounds a single ask (default 5m).
	RequestTimeout time.Duration
	// NewSessionID generates ids for requests without one.
	NewSessionID func() string
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// AskResponse is the reply of POST /v1/ask.
type AskResponse struct {
	SessionID   string `json:"session_id"`
	RunID       string `json:"run_id"`
	Answer      string `json:"answer"`
	Cycles      int    `json:"cycles"`
	WorkerCalls int    `json:"worker_calls"`
	Reason      string `json:"reason"`
	DurationMS  int64  `json:"duration_ms"`
}

// MessageView is one transcript entry of GET /v1/sessions/{id}/messages.
type MessageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to an Asker.
type Server struct {
	asker  Asker
	opts   Options
	logger logging.Logger
	router chi.Router
}

// New creates a server for asker.
func New(asker Asker, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:         logging.NoOpLogger{},
		RequestTimeout: 5 * time.Minute,
		NewSessionID:   core.NewID,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = core.NewID
	}

	s := &Server{asker: asker, opts: opts, logger: opts.Logger}
	s.router = s.routes()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.start", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("server.shutdown", "addr", addr)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		r.Get("/metrics", s.opts.Metrics.Handler().ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Get("/agents", s.handleAgents)
		if s.opts.Store != nil {
			r.Get("/sessions/{id}/messages", s.handleMessages)
		}
	})

	return r
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = s.opts.NewSessionID()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	res, err := s.asker.Ask(ctx, req.SessionID, req.Message)
	if err != nil {
		s.logger.Error("server.ask.error", "session_id", req.SessionID, "run_id", res.RunID, "error", err.Error())
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{
		SessionID:   req.SessionID,
		RunID:       res.RunID,
		Answer:      res.Answer,
		Cycles:      res.Cycles,
		WorkerCalls: res.WorkerCalls,
		Reason:      string(res.Reason),
		DurationMS:  res.Duration.Milliseconds(),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	workers := s.opts.Workers
	if workers == nil {
		workers = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"workers": workers})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.opts.Store.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		if m.Text() == "" {
			continue
		}
		out = append(out, MessageView{
			ID:        m.ID,
			Role:      string(m.Role),
			Author:    m.Author(),
			Text:      m.Text(),
			Timestamp: m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("server.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrEmptySessionID), errors.Is(err, agent.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
