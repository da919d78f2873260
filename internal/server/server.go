// Package server is the HTTP + WebSocket API surface for Hashi.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/hashi/internal/app"
	"github.com/raysh454/hashi/internal/browser"
	"github.com/raysh454/hashi/internal/logging"
	"github.com/raysh454/hashi/internal/model"
	"github.com/raysh454/hashi/internal/reporter"
	"github.com/raysh454/hashi/internal/store"

	_ "modernc.org/sqlite" // SQLite driver
)

// Server wires the orchestrator, run store and driver backends behind
// the HTTP API.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	store        *store.Store
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
	db           *sql.DB
}

// NewServer creates a new Server with its own Orchestrator and store.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	browser.RegisterDefaultBackends()

	// Make sure storage root exists
	storageRoot, err := expandPath(cfg.AppConfig.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("expanding storage root path: %w", err)
	}
	cfg.AppConfig.StorageRoot = storageRoot
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(storageRoot, "hashi.db"))
	if err != nil {
		return nil, fmt.Errorf("opening run database: %w", err)
	}

	st, err := store.New(db, storageRoot, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	rep := reporter.New(cfg.AppConfig.WebhookTimeout, logger)
	orch := app.NewOrchestrator(cfg.AppConfig, st, rep, logger)

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		store:        st,
		router:       chi.NewRouter(),
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
		db: db,
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/execute-test", s.optionsHandler("POST"))
	r.Options("/results", s.optionsHandler("GET"))
	r.Options("/results/{testID}", s.optionsHandler("GET"))
	r.Options("/screenshots/{name}", s.optionsHandler("GET"))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	// Interactive docs
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})
	r.Get("/docs/doc.json", serveSwaggerJSON)
	r.Get("/docs/*", swaggerUIHandler())

	r.Post("/execute-test", s.handleExecuteTest)
	r.Get("/results", s.handleRecentResults)
	r.Get("/results/{testID}", s.handleResultsByTest)
	r.Get("/screenshots/{name}", s.handleScreenshot)

	// WebSocket for step-by-step progress
	r.Get("/ws/execute-test", s.handleExecuteTestWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && r.Method == http.MethodPost {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the orchestrator and underlying resources.
func (s *Server) Close() {
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // test runs can outlive any fixed write window
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// --- HTTP handlers ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BannerResponse{
		Service: "Hashi",
		Status:  "running",
		Version: s.cfg.AppConfig.Version,
		Docs:    "/docs",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		ActiveSessions: s.orchestrator.ActiveSessions(),
	})
}

func (s *Server) handleExecuteTest(w http.ResponseWriter, r *http.Request) {
	var req model.TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		s.logger.Warn("rejecting test request", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.orchestrator.ExecuteTest(r.Context(), &req)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecentResults(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}

	results, err := s.store.RecentResults(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing results", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []model.TestResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleResultsByTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")

	results, err := s.store.ResultsByTestID(r.Context(), testID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no runs for test "+testID)
			return
		}
		s.logger.Warn("listing results for test", logging.Field{Key: "test_id", Value: testID}, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	path, err := s.store.ScreenshotPath(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "screenshot not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

// handleExecuteTestWS runs a test submitted as the first websocket
// frame and streams run events until the final result.
func (s *Server) handleExecuteTestWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	var req model.TestRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: "invalid JSON"})
		return
	}
	if err := req.Validate(); err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	sess := s.orchestrator.StartRun(&req)
	s.logger.Info("started websocket run",
		logging.Field{Key: "session_id", Value: sess.ID},
		logging.Field{Key: "test_id", Value: req.TestID})
	_ = conn.WriteJSON(sess)

	for ev := range sess.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel the run
			s.orchestrator.CancelRun(sess.ID)
			return
		}
	}
}

func expandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
