// Package api exposes the HTTP surface of the call assistant: telephony
// event ingestion, overlay state and actions, the consultation summary, the
// message delivery log and update checks.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ortholink/callbridge/internal/models"
	"github.com/ortholink/callbridge/internal/overlay"
	"github.com/ortholink/callbridge/internal/updates"
)

// DefaultAddr is the default API server listen address.
const DefaultAddr = ":8080"

// Server read/write timeouts.
const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// CallEventSink ingests telephony state changes.
type CallEventSink interface {
	HandleCallEvent(ctx context.Context, event models.CallEvent) error
}

// SummaryProvider returns the cached consultation summary.
type SummaryProvider interface {
	Stats() ([]models.LocationStats, time.Time)
}

// UpdateChecker looks up the latest released version.
type UpdateChecker interface {
	Check(ctx context.Context) (updates.Info, error)
}

// MessageLog lists recorded delivery outcomes.
type MessageLog interface {
	ListMessages(limit int) ([]models.MessageRecord, error)
}

// Opts holds API server configuration options.
type Opts struct {
	Addr string
}

// Option configures API server options.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP handlers to the application's services.
type Server struct {
	opts    Opts
	monitor CallEventSink
	machine *overlay.Machine
	summary SummaryProvider
	checker UpdateChecker
	log     MessageLog

	httpServer *http.Server
}

// NewServer creates the API server. checker and log may be nil; their
// endpoints then report service unavailable.
func NewServer(monitor CallEventSink, machine *overlay.Machine, summary SummaryProvider, checker UpdateChecker, log MessageLog, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		opts:    cfg,
		monitor: monitor,
		machine: machine,
		summary: summary,
		checker: checker,
		log:     log,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/call-events", s.callEventsHandler)
	mux.HandleFunc("/overlay", s.overlayHandler)
	mux.HandleFunc("/overlay/action", s.overlayActionHandler)
	mux.HandleFunc("/summary", s.summaryHandler)
	mux.HandleFunc("/updates/check", s.updatesHandler)
	mux.HandleFunc("/messages", s.messagesHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.opts.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		slog.Info("API server stopped")
		return nil
	}
}
