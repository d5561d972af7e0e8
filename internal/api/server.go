package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/repository"
)

// Launcher executes persisted runs in the background.
type Launcher interface {
	Launch(run domain.Run)
	// Cancel stops a run started by this process. It reports false when
	// the run is not in flight here.
	Cancel(id string) bool
}

type Server struct {
	router    *mux.Router
	runs      repository.RunRepository
	results   repository.ResultRepository
	launcher  Launcher
	addr      string
	validator *validator.Validate
	server    *http.Server
	logger    *zap.SugaredLogger
}

func NewServer(runs repository.RunRepository, results repository.ResultRepository, launcher Launcher,
	addr string, logger *zap.SugaredLogger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		runs:      runs,
		results:   results,
		launcher:  launcher,
		addr:      addr,
		validator: validator.New(),
		logger:    logger,
	}

	s.setupRoutes()
	s.setupMiddleware()

	return s
}

func (s *Server) setupRoutes() {
	apiRouter := s.router.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/runs", s.createRun).Methods("POST")
	apiRouter.HandleFunc("/runs", s.listRuns).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}", s.getRun).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}/report", s.getReport).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}/results", s.listResults).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}", s.cancelRun).Methods("DELETE")

	s.router.HandleFunc("/health", s.healthCheck).Methods("GET")
	s.router.HandleFunc("/docs", s.apiDocs).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		if r.URL.Path != "/health" {
			s.logger.Infow("Request", "method", r.Method, "path", r.URL.Path,
				"remote", r.RemoteAddr, "duration", time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Errorw("Panic recovered", "path", r.URL.Path, "panic", err)
				s.respondWithError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req domain.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.validator.Struct(req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := &domain.Run{
		Mode:    req.Mode,
		Dataset: req.Dataset,
		Status:  domain.RunStatusPending,
		Request: req,
	}
	if err := s.runs.CreateRun(r.Context(), run); err != nil {
		s.logger.Errorw("Failed to create run", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to create run")
		return
	}

	s.launcher.Launch(*run)

	s.respondWithJSON(w, http.StatusAccepted, run)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.respondWithJSON(w, http.StatusOK, run)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if run.Report == "" {
		s.respondWithError(w, http.StatusConflict, "Report not available, run is "+string(run.Status))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+run.ID+`.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(run.Report)); err != nil {
		s.logger.Warnw("Failed to write report", zap.Error(err))
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Errorw("Failed to list runs", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}

	response := map[string]any{
		"runs":  runs,
		"count": len(runs),
		"limit": limit,
	}

	s.respondWithJSON(w, http.StatusOK, response)
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	records, err := s.results.ListResults(r.Context(), runID)
	if err != nil {
		s.logger.Errorw("Failed to list results", "run", runID, zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch results")
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"results": records,
		"count":   len(records),
	})
}

// cancelRun marks a run as cancelled instead of deleting it.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	switch run.Status {
	case domain.RunStatusSuccess, domain.RunStatusError, domain.RunStatusCancelled:
		s.respondWithError(w, http.StatusConflict, "Run already "+string(run.Status))
		return
	}

	s.launcher.Cancel(run.ID)

	updates := map[string]any{
		"status":       domain.RunStatusCancelled,
		"completed_at": time.Now().UTC(),
	}
	if err := s.runs.UpdateRun(r.Context(), run.ID, updates); err != nil {
		s.logger.Errorw("Failed to cancel run", "run", run.ID, zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to cancel run")
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Run cancelled"})
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*domain.Run, bool) {
	runID := mux.Vars(r)["id"]

	run, err := s.runs.GetRun(r.Context(), runID)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondWithError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		s.logger.Errorw("Failed to get run", "run", runID, zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch run")
		return nil, false
	}
	return run, true
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":    domain.NodeHealthy,
		"service":   "benchmark-api",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	s.respondWithJSON(w, http.StatusOK, response)
}

func (s *Server) apiDocs(w http.ResponseWriter, r *http.Request) {
	docs := map[string]any{
		"title":       "FTS Benchmark API",
		"description": "Distributed sliding-window benchmarks of fuzzy time series models",
		"version":     "1.0.0",
		"endpoints": map[string]any{
			"POST /api/v1/runs":             "Start a benchmark run",
			"GET /api/v1/runs":              "List runs",
			"GET /api/v1/runs/{id}":         "Get run by ID",
			"GET /api/v1/runs/{id}/report":  "Download the run report as CSV",
			"GET /api/v1/runs/{id}/results": "List the job results of a run",
			"DELETE /api/v1/runs/{id}":      "Cancel a run",
		},
		"modes": []domain.Mode{domain.ModePoint, domain.ModeInterval, domain.ModeAhead},
		"status_codes": []domain.RunStatus{
			domain.RunStatusPending,
			domain.RunStatusProcessing,
			domain.RunStatusSuccess,
			domain.RunStatusError,
			domain.RunStatusCancelled,
		},
	}

	s.respondWithJSON(w, http.StatusOK, docs)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithError(w, http.StatusNotFound, "Endpoint not found")
}

func (s *Server) respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warnw("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, status int, message string) {
	response := map[string]string{"error": message}
	s.respondWithJSON(w, status, response)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Infow("Starting REST API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		s.logger.Infow("Shutting down API server")
		return s.server.Shutdown(ctx)
	}
	return nil
}
