// Package api provides HTTP handlers and the main API server logic for Shepherd.
//
// It exposes RESTful endpoints for help-request intake, pastoral conversations,
// leader availability, the application pipeline, and leader statistics. The API
// wires together the store, registry, assignment, conversation, and pipeline
// modules.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/haventree/shepherd/internal/assignment"
	"github.com/haventree/shepherd/internal/conversation"
	"github.com/haventree/shepherd/internal/pipeline"
	"github.com/haventree/shepherd/internal/policy"
	"github.com/haventree/shepherd/internal/registry"
	"github.com/haventree/shepherd/internal/store"
)

// DefaultAddr is the listen address used when no override is provided.
const DefaultAddr = ":8080"

// Timeouts applied to the HTTP server.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server holds the API server dependencies and shared state.
type Server struct {
	st     store.Store
	pol    *policy.Policy
	reg    *registry.Registry
	engine *assignment.Engine
	convs  *conversation.Manager
	pipe   *pipeline.Pipeline

	httpServer *http.Server
}

// NewServer constructs an API server around already-initialized components.
func NewServer(st store.Store, pol *policy.Policy, reg *registry.Registry, engine *assignment.Engine, convs *conversation.Manager, pipe *pipeline.Pipeline) *Server {
	return &Server{
		st:     st,
		pol:    pol,
		reg:    reg,
		engine: engine,
		convs:  convs,
		pipe:   pipe,
	}
}

// Handler builds the route table. Exposed so tests can drive the server
// through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /requests", s.createRequestHandler)
	mux.HandleFunc("GET /requests/{id}", s.getRequestHandler)

	mux.HandleFunc("GET /conversations/{id}", s.getConversationHandler)
	mux.HandleFunc("POST /conversations/{id}/messages", s.postMessageHandler)
	mux.HandleFunc("POST /conversations/{id}/escalate", s.escalateHandler)
	mux.HandleFunc("POST /conversations/{id}/resolve", s.resolveHandler)
	mux.HandleFunc("POST /conversations/{id}/withdraw", s.withdrawHandler)
	mux.HandleFunc("POST /conversations/{id}/archive", s.archiveHandler)

	mux.HandleFunc("GET /leaders", s.listLeadersHandler)
	mux.HandleFunc("POST /leaders/{id}/availability", s.setAvailabilityHandler)
	mux.HandleFunc("GET /leaders/{id}/stats", s.leaderStatsHandler)

	mux.HandleFunc("POST /applications", s.submitApplicationHandler)
	mux.HandleFunc("GET /applications/{id}", s.getApplicationHandler)
	mux.HandleFunc("POST /applications/{id}/advance", s.advanceApplicationHandler)
	mux.HandleFunc("POST /applications/{id}/background-check", s.backgroundCheckHandler)
	mux.HandleFunc("POST /applications/{id}/training", s.trainingModuleHandler)

	return mux
}

// Run starts the HTTP server and blocks until the context is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context, opts ...Option) error {
	options := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&options)
	}

	s.httpServer = &http.Server{
		Addr:              options.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", options.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("Server.Run: shutting down API server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server.Run: API server failed", "error", err)
			return err
		}
		return nil
	}
}
