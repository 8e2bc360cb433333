package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/engine"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/logger"
)

// Processor runs one forwarding invocation over a raw notification payload.
// transport names the ingest surface the payload arrived on ("http", "nats",
// "amqp", "kafka").
type Processor interface {
	Process(ctx context.Context, transport string, payload []byte) (engine.InvocationResult, error)
}

// Server is the HTTP ingest host: it accepts bucket notification payloads on
// POST /events and exposes health probes and Prometheus metrics.
type Server struct {
	srv  *http.Server
	proc Processor
	log  logger.Logger
}

func NewServer(addr string, proc Processor, log logger.Logger) *Server {
	s := &Server{
		proc: proc,
		log:  ensureLogger(log),
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.log.InfoObj("http ingest listening", "listen_addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "only POST is accepted")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		s.sendError(w, http.StatusBadRequest, "empty request body")
		return
	}

	result, err := s.proc.Process(r.Context(), "http", body)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidPayload) {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.ErrorObj("invocation failed", "http_ingest_error", map[string]interface{}{
			"error": err.Error(),
		})
		s.sendError(w, http.StatusServiceUnavailable, "forwarding unavailable")
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, map[string]string{
		"error": msg,
	})
}
