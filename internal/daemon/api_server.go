package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"terport/internal/config"
	"terport/internal/logging"
	"terport/internal/scheduler"
	"terport/internal/terport"
)

// NonceHeader carries the anti-forgery token on status requests.
const NonceHeader = "X-Terport-Nonce"

const defaultHistoryLimit = 20

// StatusSurface is the read-only scheduler view served over HTTP.
type StatusSurface interface {
	CheckStatus(ctx context.Context, capability, token string) (*scheduler.Status, error)
	History(ctx context.Context, capability, token string, limit int) ([]terport.GenerationRecord, error)
	IssueStatusNonce() string
	InFlight() bool
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	status StatusSurface

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, status StatusSurface, logger *slog.Logger) *apiServer {
	if cfg == nil || status == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		status: status,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Security.AdminToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(adminToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(capabilityMiddleware(adminToken))
		r.Get("/api/nonce", s.handleNonce)
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/history", s.handleHistory)
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.status.InFlight(),
	})
}

func (s *apiServer) handleNonce(w http.ResponseWriter, r *http.Request) {
	if capabilityFrom(r.Context()) != scheduler.CapabilityManageOptions {
		s.writeError(w, http.StatusForbidden, "access denied")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"nonce": s.status.IssueStatusNonce()})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.CheckStatus(r.Context(), capabilityFrom(r.Context()), r.Header.Get(NonceHeader))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	runs, err := s.status.History(r.Context(), capabilityFrom(r.Context()), r.Header.Get(NonceHeader), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if runs == nil {
		runs = []terport.GenerationRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// writeFailure maps authorization failures to 403 with the fixed message and
// everything else to 500.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, scheduler.ErrUnauthorized) {
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}
	logging.ErrorWithContext(logging.WithContext(r.Context(), s.log()), "status query failed", "status_query_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the database file; the daemon keeps serving"),
	)
	s.writeError(w, http.StatusInternalServerError, "status unavailable")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
