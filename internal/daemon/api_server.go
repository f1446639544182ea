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
	"github.com/go-chi/chi/v5/middleware"

	"stockpile/internal/api"
	"stockpile/internal/enrichment"
	"stockpile/internal/logging"
	"stockpile/internal/refresh"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind, token string, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if d == nil {
		return nil, errors.New("api server requires a daemon")
	}
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	srv := &apiServer{bind: bind, logger: logger, daemon: d}
	srv.server = &http.Server{
		Handler:           srv.routes(token),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(token))
		r.Get("/status", s.handleStatus)
		r.Get("/inventory", s.handleInventory)
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/enrich", s.handleEnrich)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

func (s *apiServer) listen() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// serve runs until ctx is cancelled, then shuts the server down.
func (s *apiServer) serve(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		if err != nil {
			s.log().Error("api server error", logging.Error(err))
			return fmt.Errorf("api serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log().Warn("api shutdown incomplete", logging.Error(err))
	}
	return nil
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleInventory(w http.ResponseWriter, r *http.Request) {
	items, err := s.daemon.Inventory(r.Context())
	if err != nil {
		s.log().Error("inventory query failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read inventory")
		return
	}
	if items == nil {
		items = []api.InventoryItem{}
	}
	s.writeJSON(w, http.StatusOK, api.InventoryResponse{Items: items})
}

func (s *apiServer) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.Diagnostics(r.Context())
	if err != nil {
		s.log().Error("diagnostics failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to build diagnostics")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	wait, err := boolParam(r, "wait")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !wait {
		s.daemon.TriggerRefresh()
		s.writeJSON(w, http.StatusAccepted, api.RefreshResponse{Queued: true})
		return
	}

	summary, err := s.daemon.refresher.Refresh(r.Context())
	switch {
	case err == nil:
		payload := api.FromRefreshSummary(summary)
		s.writeJSON(w, http.StatusOK, api.RefreshResponse{Summary: &payload})
	case errors.Is(err, refresh.ErrRefreshInProgress):
		s.writeJSON(w, http.StatusAccepted, api.RefreshResponse{Queued: true})
	case errors.Is(err, refresh.ErrLocked):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.log().Error("refresh failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleEnrich(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r, "force")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trigger, err := s.daemon.Enrich(r.Context(), force)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, api.EnrichResponse{Trigger: string(trigger), Queued: true})
	case errors.Is(err, ErrEnrichmentDisabled), errors.Is(err, enrichment.ErrNotRunning):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q", name, raw)
	}
	return value, nil
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
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
