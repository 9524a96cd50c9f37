// Package api exposes the package manager over HTTP for the hosting
// application.
//
// The surface is a small JSON API mirroring the manager facade, plus
// /healthz for probes and /metrics for Prometheus scrapes. Handlers
// never leak internal error strings: responses carry the error code and
// the user-facing message.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/graphout"
	"github.com/depforge/depforge/pkg/manager"
)

// Server serves the package manager API.
type Server struct {
	mgr    *manager.Manager
	logger *log.Logger
}

// NewServer creates a Server over a wired manager.
func NewServer(mgr *manager.Manager, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{mgr: mgr, logger: logger}
}

// Router builds the HTTP routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/packages", s.handleList)
		r.Post("/packages", s.handleInstall)
		r.Get("/packages/{name}", s.handleInfo)
		r.Delete("/packages/{name}", s.handleUninstall)
		r.Post("/packages/{name}/update", s.handleUpdate)
		r.Get("/packages/{name}/verify", s.handleVerify)
		r.Post("/updates", s.handleUpdateAll)
		r.Get("/search", s.handleSearch)
		r.Post("/cleanup", s.handleCleanup)
		r.Get("/events", s.handleEvents)
		r.Get("/resolve", s.handleResolve)
	})
	return r
}

// shutdownGrace bounds how long in-flight requests get to finish once
// the context is cancelled.
const shutdownGrace = 10 * time.Second

// ListenAndServe runs the API server until the listener fails or ctx is
// cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("api listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("api shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh // always http.ErrServerClosed after a clean Shutdown
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	rows, err := s.mgr.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": rows})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	row, err := s.mgr.Info(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type installRequest struct {
	Spec  string `json:"spec"`
	Force bool   `json:"force"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidSpec, err, "decode install request"))
		return
	}
	res, err := s.mgr.Install(r.Context(), req.Spec, req.Force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	cascade, _ := strconv.ParseBool(r.URL.Query().Get("cascade"))
	res, err := s.mgr.Uninstall(r.Context(), chi.URLParam(r, "name"), cascade)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.Update(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.UpdateAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ok, err := s.mgr.Verify(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, errors.New(errors.ErrCodeInvalidSpec, "missing query parameter q"))
		return
	}
	hits, err := s.mgr.Search(r.Context(), query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.Cleanup(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.mgr.Events(r.Context(), r.URL.Query().Get("package"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("spec")
	if raw == "" {
		s.writeError(w, errors.New(errors.ErrCodeInvalidSpec, "missing query parameter spec"))
		return
	}
	res, err := s.mgr.Resolve(r.Context(), raw)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		_, _ = w.Write([]byte(graphout.ToDOT(res, graphout.Options{Detailed: true})))
		return
	}

	conflicts := make([]string, len(res.Conflicts))
	for i, c := range res.Conflicts {
		conflicts[i] = c.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":     res.Order,
		"conflicts": conflicts,
	})
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodePackageNotFound, errors.ErrCodeSourceNotFound, errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidSpec, errors.ErrCodeInvalidPackage, errors.ErrCodeInvalidConfig:
		status = http.StatusBadRequest
	case errors.ErrCodeDependentsExist, errors.ErrCodeVersionConflict,
		errors.ErrCodeCircularDependency, errors.ErrCodeUnsatisfiable:
		status = http.StatusConflict
	case errors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}

	var body errorBody
	body.Error.Code = string(code)
	body.Error.Message = errors.UserMessage(err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
