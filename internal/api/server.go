package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"vid2doc/internal/config"
	"vid2doc/internal/guide"
	"vid2doc/internal/logging"
	"vid2doc/internal/queue"
	"vid2doc/internal/services"
)

const apiVersion = "1.0"

// stepMerger is the merge surface the merge-steps handler depends on.
type stepMerger interface {
	MergeSteps(ctx context.Context, steps []guide.ProcessedStep, projectID, sessionID string) (guide.ProcessedStep, error)
}

// Server hosts the vid2doc HTTP API.
type Server struct {
	bind           string
	token          string
	maxUploadBytes int64
	uploadDir      string
	store          *queue.Store
	merger         stepMerger
	logger         *slog.Logger

	listener net.Listener
	server   *http.Server
}

// New builds a server from the loaded configuration. The merger may be nil
// when merge-steps is not served.
func New(cfg *config.Config, store *queue.Store, merger stepMerger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		bind:           strings.TrimSpace(cfg.Paths.APIBind),
		token:          cfg.Paths.APIToken,
		maxUploadBytes: int64(cfg.Processing.MaxUploadMiB) << 20,
		uploadDir:      filepath.Join(cfg.Paths.WorkDir, "uploads"),
		store:          store,
		merger:         merger,
		logger:         logger.With(logging.String("component", "api-server")),
	}
}

// Router assembles the routes with CORS, auth, and request logging applied.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	video := router.PathPrefix("/api/video").Subrouter()
	video.Use(authMiddleware(s.token))
	video.HandleFunc("/test", s.handleTest).Methods(http.MethodGet)
	video.HandleFunc("/with-file", s.handleWithFile).Methods(http.MethodPost)
	video.HandleFunc("/with-url", s.handleWithURL).Methods(http.MethodPost)
	video.HandleFunc("/with-multi-urls", s.handleWithMultiURLs).Methods(http.MethodPost)
	video.HandleFunc("/merge-steps", s.handleMergeSteps).Methods(http.MethodPost)
	video.HandleFunc("/job/{jobId}", s.handleJob).Methods(http.MethodGet)
	video.HandleFunc("/get-all-jobs", s.handleGetAllJobs).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Webhook-Secret"}),
	)
	return cors(s.logRequests(router))
}

// Start begins serving on the configured bind address.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, allowing in-flight requests to finish.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version": apiVersion,
		"message": "Test route with Auth working",
	})
}

// logRequests assigns each request a correlation identifier, threads it
// through the request context, and logs the request once handled.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := services.WithRequestID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("request handled",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
