// Package server exposes the dispatch pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/models"
	"github.com/example/dispatch-service/internal/pipeline"
	"github.com/example/dispatch-service/internal/registry"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	maxRequestBodyBytes    = 1 << 20
)

// Dependencies collects what the server needs to answer requests.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Registry *registry.Registry
	Logger   zerolog.Logger

	// TransportMode is reported by the health endpoint so operators can see
	// which delivery backend is active.
	TransportMode string
}

// Server wraps an http.Server with the dispatch routes mounted.
type Server struct {
	pipeline      *pipeline.Pipeline
	registry      *registry.Registry
	logger        zerolog.Logger
	transportMode string

	httpServer *http.Server
}

// New constructs the server. Addr is the listen address, e.g. ":3008".
func New(addr string, deps Dependencies) (*Server, error) {
	if addr == "" {
		return nil, errors.New("server: listen address is required")
	}
	if deps.Pipeline == nil {
		return nil, errors.New("server: pipeline dependency is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("server: registry dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "http-server").Logger()

	s := &Server{
		pipeline:      deps.Pipeline,
		registry:      deps.Registry,
		logger:        logger,
		transportMode: deps.TransportMode,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("GET /message-types", s.handleMessageTypes)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.Background() },
	}

	return s, nil
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server: listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("server: shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer body.Close()

	var req models.SendRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, models.SendResult{
			Status: models.StatusRejected,
			Error: &models.ErrorDetail{
				Code:    models.CodeInvalidSchema,
				Message: "request body is not a valid send request: " + err.Error(),
			},
		})
		return
	}

	result := s.pipeline.Process(r.Context(), req)
	s.writeJSON(w, statusCodeFor(result), result)
}

func (s *Server) handleMessageTypes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message_types": s.registry.Specs(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"transport": s.transportMode,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("server: failed to encode response")
	}
}

func statusCodeFor(result models.SendResult) int {
	switch result.Status {
	case models.StatusQueued:
		return http.StatusAccepted
	case models.StatusRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
