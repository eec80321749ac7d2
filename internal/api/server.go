package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SpanFreight/tracking/internal/config"
	"github.com/SpanFreight/tracking/internal/health"
	"github.com/SpanFreight/tracking/internal/metrics"
	"github.com/SpanFreight/tracking/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// CSRF token transport on mutating requests.
const (
	csrfHeader    = "X-CSRFToken"
	csrfFormField = "csrf_token"
)

const requestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// Server is the admin panel HTTP server: the container list page, the JSON
// API, bulk delete, and the health and metrics endpoints.
type Server struct {
	store       store.Store
	healthCheck *health.Checker
	metrics     *metrics.Collector
	httpServer  *http.Server
	startTime   time.Time
	listenCfg   config.ListenConfig

	mu        sync.RWMutex // guards csrfToken and maxIDs
	csrfToken string
	maxIDs    int
}

// NewServer creates a new API server.
func NewServer(st store.Store, hc *health.Checker, m *metrics.Collector, cfg *config.Config) *Server {
	s := &Server{
		store:       st,
		healthCheck: hc,
		metrics:     m,
		startTime:   time.Now(),
		listenCfg:   cfg.Listen,
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig applies the settings that can change without a restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrfToken = cfg.Security.CSRFToken
	s.maxIDs = cfg.Bulk.MaxIDs
}

func (s *Server) settings() (token string, maxIDs int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrfToken, s.maxIDs
}

// Handler builds the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	// Container list page
	r.HandleFunc("/", s.containersPageHandler).Methods("GET")
	r.HandleFunc("/containers", s.containersPageHandler).Methods("GET")

	// Form and script endpoints
	r.HandleFunc("/containers/bulk-delete", s.bulkDeleteHandler).Methods("POST")
	r.HandleFunc("/containers/bulk-status-update", s.bulkStatusHandler).Methods("POST")
	r.HandleFunc("/containers/{id:[0-9]+}/delete", s.deleteContainer).Methods("POST")

	// JSON API
	r.HandleFunc("/api/containers", s.listContainers).Methods("GET")
	r.HandleFunc("/api/containers", s.createContainer).Methods("POST")
	r.HandleFunc("/api/containers/{id:[0-9]+}", s.getContainer).Methods("GET")
	r.HandleFunc("/api/containers/{id:[0-9]+}/status", s.addStatus).Methods("POST")
	r.HandleFunc("/api/container-exists/{number}", s.containerExists).Methods("GET")
	r.HandleFunc("/api/search-containers/{query}", s.searchContainers).Methods("GET")

	// Server status
	r.HandleFunc("/status", s.statusHandler).Methods("GET")

	// Health & readiness
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")

	// Prometheus metrics
	if s.metrics != nil && s.metrics.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	return s.securityHeaders(s.requestID(s.csrfMiddleware(r)))
}

// Start starts the HTTP server in the background.
func (s *Server) Start(port int) error {
	bind := s.listenCfg.APIBind
	if bind == "" {
		bind = "127.0.0.1"
	}
	addr := fmt.Sprintf("%s:%d", bind, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if token, _ := s.settings(); token == "" {
		slog.Warn("CSRF token not configured, mutating endpoints are unprotected")
	}

	tls := s.listenCfg.TLSEnabled()
	slog.Info("admin panel listening", "addr", addr, "tls", tls)

	go func() {
		var err error
		if tls {
			err = s.httpServer.ListenAndServeTLS(s.listenCfg.TLSCert, s.listenCfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("admin panel server error", "err", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// --- Health Handlers ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	statuses := s.healthCheck.GetAllStatuses()
	allHealthy := s.healthCheck.OverallHealthy()

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status":     boolToStatus(allHealthy),
		"components": statuses,
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	// Ready when every registered component is healthy or not yet checked
	for _, name := range s.healthCheck.Components() {
		if !s.healthCheck.IsHealthy(name) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":    "not_ready",
				"component": name,
				"error":     s.healthCheck.GetStatus(name).LastError,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Status Handler ---

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime).Seconds()

	containers, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing containers: "+err.Error())
		return
	}
	token, maxIDs := s.settings()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"num_containers": len(containers),
		"listen": map[string]interface{}{
			"api_port": s.listenCfg.APIPort,
			"tls":      s.listenCfg.TLSEnabled(),
		},
		"csrf_protected": token != "",
		"bulk_max_ids":   maxIDs,
	})
}

// --- Middleware ---

// securityHeaders adds security-related HTTP headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// requestID echoes the caller's X-Request-ID or issues a new one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// csrfMiddleware rejects POST requests that do not carry the configured
// token in the X-CSRFToken header or the csrf_token form field. With no
// token configured every request passes.
func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := s.settings()
		if r.Method != http.MethodPost || token == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(csrfHeader)
		if got == "" && isForm(r) {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
			got = r.PostFormValue(csrfFormField)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			slog.Warn("rejected request with bad CSRF token", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
			writeError(w, http.StatusForbidden, "missing or invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrument records per-route request counts and latency.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tmpl, err := cr.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.metrics.HTTPRequest(route, rec.code, time.Since(start))
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
