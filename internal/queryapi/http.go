package queryapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/chakraops/chakraops/internal/coreerrors"
	"github.com/chakraops/chakraops/internal/obsmetrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWrapper captures the status code written by a handler so the
// logging/metrics middleware can report it, mirroring the teacher's
// internal/interfaces/http.responseWrapper.
type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (rw *responseWrapper) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Server is the thin gorilla/mux HTTP adapter over Service (spec.md
// §6.3's "HTTP/REST layer is not part of the core spec"). Grounded on
// the teacher's internal/interfaces/http.Server: mux.Router + a
// middleware chain + JSON-only responses, narrowed to four decision and
// health routes plus a Prometheus /metrics route rather than the
// teacher's candidates/explain/regime surface.
type Server struct {
	router  *mux.Router
	svc     Service
	apiKey  string
	server  *http.Server
	metrics *obsmetrics.Registry
}

// NewServer constructs the HTTP adapter. apiKey, when non-empty,
// requires every request to carry a matching x-ui-key header (spec.md
// §6.4 UI_API_KEY). metrics is optional; pass nil to skip request
// instrumentation.
func NewServer(svc Service, apiKey string, addr string, metrics *obsmetrics.Registry) *Server {
	s := &Server{svc: svc, apiKey: apiKey, router: mux.NewRouter(), metrics: metrics}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.apiKeyMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/decisions/latest", s.handleLatest).Methods(http.MethodGet)
	s.router.HandleFunc("/decisions/{symbol}", s.handleSymbol).Methods(http.MethodGet)
	s.router.HandleFunc("/decisions/run/{runID}/{symbol}", s.handleByRun).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Start begins serving; blocks until the server stops or errors.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("queryapi: starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware stamps each request with a short unique ID,
// grounded on the teacher's internal/interfaces/http.requestIDMiddleware
// (uuid.New().String()[:8] truncated request ID in a header + context
// value).
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWrapper{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Info().Str("request_id", requestID).Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", wrapped.status).Dur("duration", duration).Msg("queryapi: request")

		if s.metrics != nil {
			s.metrics.RecordRequest(r.URL.Path, strconv.Itoa(wrapped.status), duration)
		}
	})
}

// apiKeyMiddleware enforces spec.md §6.4's UI_API_KEY rule: when a key
// is configured, every request must carry a matching x-ui-key header.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-ui-key") != s.apiKey {
			s.writeError(w, http.StatusUnauthorized, "unauthorized x-ui-key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.GetSchedulerHealth())
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.svc.GetLatestArtifact()
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	if artifact == nil {
		s.writeError(w, http.StatusNotFound, "no artifact has been written yet")
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	artifact, err := s.svc.GetLatestArtifact()
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	if artifact == nil {
		s.writeError(w, http.StatusNotFound, "no artifact has been written yet")
		return
	}
	for _, sym := range artifact.Symbols {
		if sym.Symbol == symbol {
			s.writeJSON(w, http.StatusOK, sym)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, fmt.Sprintf("symbol %s not in latest artifact", symbol))
}

func (s *Server) handleByRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	artifact, err := s.svc.GetArtifactByRun(vars["symbol"], vars["runID"])
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	if artifact == nil {
		s.writeError(w, http.StatusNotFound, "no artifact for that run")
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

// writeCoreError maps a coreerrors.Kind to the HTTP status spec.md §7
// assigns it; FreezeViolation is the one kind with an explicit
// "409-equivalent" mapping, everything else is a 500.
func (s *Server) writeCoreError(w http.ResponseWriter, err error) {
	if coreerrors.Is(err, coreerrors.KindFreezeViolation) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("queryapi: failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
