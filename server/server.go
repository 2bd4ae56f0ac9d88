package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/srvreg"
	"github.com/cockroachdb/errors"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxJobBody = 32 << 20

// HealthChecker reports whether a dependency is usable
type HealthChecker func(ctx context.Context) error

// WebServer exposes the job API
type WebServer struct {
	httpAddr        string
	server          *http.Server
	serviceRegistry *srvreg.ServiceRegistry
	startTime       time.Time
	checks          map[string]HealthChecker
	logger          cmtlog.Logger
}

// NewWebServer creates the job API server. gatherer may be nil to skip /metrics.
func NewWebServer(httpPort string, serviceRegistry *srvreg.ServiceRegistry, gatherer prometheus.Gatherer, logger cmtlog.Logger) *WebServer {
	ws := &WebServer{
		httpAddr:        ":" + httpPort,
		serviceRegistry: serviceRegistry,
		startTime:       time.Now(),
		checks:          make(map[string]HealthChecker),
		logger:          logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/info", ws.handleInfo)
	r.Get("/health", ws.handleHealth)
	r.Post("/jobs/{taskType}", ws.handleJob)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	ws.server = &http.Server{
		Addr:              ws.httpAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// AddHealthCheck registers a named dependency check for /health
func (ws *WebServer) AddHealthCheck(name string, check HealthChecker) {
	ws.checks[name] = check
}

// Handler returns the router, for tests and embedding
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start starts the web server in the background
func (ws *WebServer) Start() error {
	ws.logger.Info("🚀 Starting job API server", "address", ws.httpAddr)

	go func() {
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.logger.Error("❌ Job API server error", "err", err)
		}
	}()

	ws.logger.Info("✓ Job API server started")
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down job API server...")
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleInfo(w http.ResponseWriter, _ *http.Request) {
	tasks := ws.serviceRegistry.TaskTypes()
	sort.Strings(tasks)
	writeJSON(w, http.StatusOK, map[string]any{
		"type":   "Carbon Ledger Worker",
		"status": "active",
		"uptime": time.Since(ws.startTime).Round(time.Second).String(),
		"tasks":  tasks,
	})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(ws.checks))
	for name, check := range ws.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": results})
}

func (ws *WebServer) handleJob(w http.ResponseWriter, r *http.Request) {
	taskType := chi.URLParam(r, "taskType")

	var req srvreg.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, &srvreg.Response{
			Status:       srvreg.StatusFailed,
			ErrorMessage: "Invalid request body: " + err.Error(),
			ErrorKind:    string(apperr.KindValidation),
		})
		return
	}
	req.TaskType = taskType

	resp, found := ws.serviceRegistry.Execute(r.Context(), &req)
	if !found {
		writeJSON(w, http.StatusNotFound, &srvreg.Response{
			Status:       srvreg.StatusFailed,
			ErrorMessage: "No handler for task type " + taskType,
		})
		return
	}
	writeJSON(w, statusFor(resp), resp)
}

func statusFor(resp *srvreg.Response) int {
	if resp.Status == srvreg.StatusCompleted {
		return http.StatusOK
	}
	switch apperr.Kind(resp.ErrorKind) {
	case apperr.KindValidation, apperr.KindContractViolation:
		return http.StatusUnprocessableEntity
	case apperr.KindNetwork:
		return http.StatusBadGateway
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
