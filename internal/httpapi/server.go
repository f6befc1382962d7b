// Package httpapi serves the local control and observability endpoints of a
// running Kisan Live process: liveness and readiness probes, conversation
// status and transcript, session start and stop, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/kisanlive/internal/conversation"
	"github.com/MrWong99/kisanlive/internal/observe"
)

// Conversation is the part of [conversation.Controller] the API drives.
type Conversation interface {
	Start(ctx context.Context) error
	Stop()
	Status() conversation.Status
	EndReason() conversation.EndReason
	Err() error
	SessionID() string
	Transcript() []conversation.Line
}

var _ Conversation = (*conversation.Controller)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithCheckers adds readiness checks on top of the built-in conversation
// check.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// WithMetricsHandler replaces the handler served at /metrics. The default
// is promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger for handler errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server routes the HTTP API.
type Server struct {
	conv           Conversation
	checkers       []Checker
	metricsHandler http.Handler
	metrics        *observe.Metrics
	log            *slog.Logger
}

// New creates a Server for conv.
func New(conv Conversation, opts ...Option) *Server {
	s := &Server{conv: conv, log: slog.Default()}
	s.checkers = []Checker{{Name: "conversation", Check: s.checkConversation}}
	for _, o := range opts {
		o(s)
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed handler wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.HandleFunc("GET /v1/status", s.status)
	mux.HandleFunc("GET /v1/transcript", s.transcript)
	mux.HandleFunc("POST /v1/session/start", s.start)
	mux.HandleFunc("POST /v1/session/stop", s.stop)
	mux.Handle("GET /metrics", s.metricsHandler)
	return observe.Middleware(s.metrics)(mux)
}

// checkConversation fails when the last session ended because of an error.
func (s *Server) checkConversation(context.Context) error {
	if s.conv.Status() != conversation.StatusEnded {
		return nil
	}
	switch reason := s.conv.EndReason(); reason {
	case conversation.ReasonSetupFailed, conversation.ReasonRemoteError:
		if err := s.conv.Err(); err != nil {
			return fmt.Errorf("%s: %w", reason, err)
		}
		return errors.New(reason.String())
	}
	return nil
}

// StatusResponse is the body of /v1/status and the session endpoints.
type StatusResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TranscriptResponse is the body of /v1/transcript.
type TranscriptResponse struct {
	SessionID string              `json:"session_id,omitempty"`
	Lines     []conversation.Line `json:"lines"`
}

func (s *Server) snapshot() StatusResponse {
	res := StatusResponse{
		SessionID: s.conv.SessionID(),
		Status:    s.conv.Status().String(),
	}
	if r := s.conv.EndReason(); r != conversation.ReasonNone {
		res.Reason = r.String()
	}
	if err := s.conv.Err(); err != nil {
		res.Error = err.Error()
	}
	return res
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) transcript(w http.ResponseWriter, _ *http.Request) {
	lines := s.conv.Transcript()
	if lines == nil {
		lines = []conversation.Line{}
	}
	writeJSON(w, http.StatusOK, TranscriptResponse{SessionID: s.conv.SessionID(), Lines: lines})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	err := s.conv.Start(r.Context())
	switch {
	case errors.Is(err, conversation.ErrSessionActive), errors.Is(err, conversation.ErrStopped):
		writeJSON(w, http.StatusConflict, s.snapshot())
	case err != nil:
		observe.LoggerFrom(r.Context(), s.log).Warn("httpapi: start failed", "err", err)
		writeJSON(w, http.StatusBadGateway, s.snapshot())
	default:
		writeJSON(w, http.StatusAccepted, s.snapshot())
	}
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.conv.Stop()
	writeJSON(w, http.StatusOK, s.snapshot())
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("httpapi: encode response", "err", err)
	}
}
