package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v66/github"

	"github.com/mattjoyce/github-hook/internal/runner"
)

// Server represents the webhook HTTP server.
type Server struct {
	config   Config
	verifier *Verifier
	launcher TaskLauncher
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new webhook server instance.
func New(config Config, repos RepositoryLookup, launcher TaskLauncher, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.Version == "" {
		config.Version = DefaultVersion
	}

	return &Server{
		config:   config,
		verifier: NewVerifier(repos, logger),
		launcher: launcher,
		logger:   logger,
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("github-hook listening", "listen", s.config.Listen, "version", s.config.Version)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverer)

	r.Get("/github-hook/version", s.handleVersion)
	r.Post("/github-hook/{repoID}", s.handleHook)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoverer turns a handler panic into a generic JSON 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic in request handler",
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
					"request_id", middleware.GetReqID(r.Context()),
				)
				s.respondError(w, errInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// handleHook handles incoming GitHub deliveries.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repoID")
	signature := r.Header.Get(SignatureHeader)
	logger := s.logger.With("repo_id", repoID, "delivery_id", github.DeliveryID(r))

	// Fail fast before reading the body.
	if _, err := s.verifier.Resolve(repoID, signature); err != nil {
		s.respondError(w, err)
		return
	}

	// Enforce body size limit
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		logger.Error("failed to read request body", "error", err)
		s.respondError(w, err)
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		logger.Warn("request body too large", "max_body_size", s.config.MaxBodySize)
		s.respondError(w, ErrPayloadTooLarge)
		return
	}

	repo, err := s.verifier.Verify(repoID, body, signature)
	if err != nil {
		s.respondError(w, err)
		return
	}

	// The body is only trusted, and only parsed, for push events.
	eventType := github.WebHookType(r)
	var event github.PushEvent
	if eventType == EventPush {
		if err := json.Unmarshal(body, &event); err != nil {
			logger.Warn("invalid push payload", "error", err)
			s.respondError(w, ErrInvalidPayload)
			return
		}
	}

	decision := ShouldRun(eventType, event.GetRef(), repo.Branch)
	if !decision.Run {
		if decision.Reason == ReasonBranchUnresolved {
			logger.Warn("no branch detected in ref", "ref", event.GetRef(), "branch", repo.Branch)
		}
		logger.Info("hook skipped",
			"event", eventType,
			"reason", decision.Reason,
			"ref", event.GetRef(),
		)
		s.respondText(w, http.StatusOK, ResponseIgnored)
		return
	}

	commit := event.GetHeadCommit()
	logger.Info("hook accepted",
		"repository", event.GetRepo().GetFullName(),
		"ref", event.GetRef(),
		"reason", decision.Reason,
		"commit_id", commit.GetID(),
		"commit_message", commit.GetMessage(),
		"author", commit.GetAuthor().GetLogin(),
	)

	task := s.launcher.Run(runner.Request{
		Repository: repo.ID,
		Command:    repo.Script,
		Dir:        repo.Dir,
		Serialize:  repo.Serialize,
	})

	logger.Info("task launched", "task_id", task.ID)
	s.respondText(w, http.StatusOK, ResponseExecuted)
}

// handleVersion handles GET /github-hook/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.respondText(w, http.StatusOK, s.config.Version)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, ErrNotFound)
}

// respondText sends a plain-text response.
func (s *Server) respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response. Errors that are not a *HookError
// are reported as a generic 500.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var hookErr *HookError
	if !errors.As(err, &hookErr) {
		hookErr = errInternal
	}
	s.respondJSON(w, hookErr.Status, ErrorResponse{Code: hookErr.Status, Error: hookErr.Message})
}
