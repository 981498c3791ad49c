// Package server wires the HTTP surface: the upload channel, the MJPEG
// stream endpoint, session count, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/framestream/errors"
	"github.com/c360/framestream/health"
	"github.com/c360/framestream/metric"
	"github.com/c360/framestream/natsclient"
	"github.com/c360/framestream/session"
	"github.com/c360/framestream/stream"
)

const shutdownTimeout = 5 * time.Second

// Server hosts all HTTP endpoints of the service.
type Server struct {
	addr            string
	registry        *session.Registry
	ingress         http.Handler
	responder       http.Handler
	natsClient      *natsclient.Client
	metricsRegistry *metric.MetricsRegistry
	logger          *slog.Logger

	httpServer *http.Server
	startTime  time.Time
}

// New creates the HTTP server. ingress and responder are the handlers for
// the upload and stream endpoints; natsClient may be nil when generation is
// served in-process.
func New(
	addr string,
	registry *session.Registry,
	ingress http.Handler,
	responder http.Handler,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*Server, error) {
	if registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "New",
			"session registry is required")
	}
	if ingress == nil || responder == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "New",
			"ingress and stream handlers are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:            addr,
		registry:        registry,
		ingress:         ingress,
		responder:       responder,
		natsClient:      natsClient,
		metricsRegistry: metricsRegistry,
		logger:          logger.With("component", "server"),
	}, nil
}

// Routes builds the endpoint mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.ingress)
	mux.Handle(stream.PathPrefix, s.responder)
	mux.HandleFunc("/queue_size", s.handleQueueSize)
	mux.HandleFunc("/health", s.handleHealth)
	if s.metricsRegistry != nil {
		mux.Handle("/metrics", s.metricsRegistry.Handler())
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully. Streams
// and upload connections are long-lived, so only header reads are bounded.
func (s *Server) Run(ctx context.Context) error {
	s.startTime = time.Now()
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.WrapFatal(err, "Server", "Run", "serve")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down", "timeout", shutdownTimeout)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			// Streams still open past the deadline are cut off.
			s.httpServer.Close()
		}
		s.registry.Close()
		return nil
	})

	return g.Wait()
}

// handleQueueSize reports the number of live sessions.
func (s *Server) handleQueueSize(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"queue_size": s.registry.Size()})
}

// handleHealth aggregates server and NATS health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	subs := []health.Status{
		health.Healthy("server", "serving").WithMetrics(&health.Metrics{
			Uptime:         time.Since(s.startTime),
			ActiveSessions: s.registry.Size(),
		}),
	}
	if s.natsClient != nil {
		if s.natsClient.Status() == natsclient.StatusConnected {
			subs = append(subs, health.Healthy("nats", "connected"))
		} else {
			subs = append(subs, health.Unhealthy("nats", s.natsClient.Status().String()))
		}
	}

	status := health.Aggregate("framestream", subs...)
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

// applyCORS allows any origin; the endpoints carry no credentials.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]interface{}{
		"error":  message,
		"status": statusCode,
	})
}
