// Package server exposes the pour service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/history"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/pour"
	"github.com/entrhq/clippypour/pkg/template"
)

const shutdownTimeout = 10 * time.Second

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server is the HTTP API.
type Server struct {
	svc    *pour.Service
	logger *logging.Logger
	router chi.Router
}

// New builds the router over svc.
func New(svc *pour.Service, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/fill", s.handleFill)

		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{id}", s.handleSession)
		r.Delete("/sessions/{id}", s.handleCancel)

		r.Get("/templates", s.handleTemplates)
		r.Get("/templates/{name}", s.handleTemplate)
		r.Delete("/templates/{name}", s.handleDeleteTemplate)

		r.Get("/profiles", s.handleProfiles)
		r.Post("/profiles", s.handleSaveProfile)
		r.Get("/profiles/{name}", s.handleProfile)
		r.Delete("/profiles/{name}", s.handleDeleteProfile)

		r.Get("/history", s.handleHistory)
		r.Get("/history/{id}", s.handleHistoryEntry)
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Infof("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

type analyzeResponse struct {
	Forms []form.FormDescriptor `json:"forms"`
}

// POST /api/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req pour.AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FormURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("form_url is required"))
		return
	}

	forms, err := s.svc.Analyze(r.Context(), req)
	if err != nil {
		s.logger.Warnf("Analyze %s failed: %v", req.FormURL, err)
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if forms == nil {
		forms = []form.FormDescriptor{}
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Forms: forms})
}

type fillRequest struct {
	pour.FillRequest

	// Async starts the session and returns immediately with 202.
	Async bool `json:"async,omitempty"`
}

// POST /api/fill
func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	var req fillRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FormURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("form_url is required"))
		return
	}
	if _, err := fill.ParseMode(req.Mode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		res    pour.FillResult
		err    error
		status = http.StatusOK
	)
	if req.Async {
		res, err = s.svc.Start(r.Context(), req.FillRequest)
		status = http.StatusAccepted
	} else {
		res, err = s.svc.Fill(r.Context(), req.FillRequest)
	}
	if err != nil {
		var conflict *fill.SessionConflictError
		switch {
		case errors.As(err, &conflict):
			writeError(w, http.StatusConflict, err)
			return
		case errors.Is(err, template.ErrProfileNotFound), errors.Is(err, pour.ErrProfilesDisabled):
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.logger.Warnf("Fill %s failed: %v", req.FormURL, err)
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, status, res)
}

// GET /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.svc.Sessions()})
}

// GET /api/sessions/{id}
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DELETE /api/sessions/{id} cancels a running session.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	canceled, err := s.svc.Cancel(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "canceled": canceled})
}

func (s *Server) templates(w http.ResponseWriter) (*template.Store, bool) {
	store := s.svc.Templates()
	if store == nil {
		writeError(w, http.StatusNotFound, errors.New("templates are disabled"))
		return nil, false
	}
	return store, true
}

// GET /api/templates
func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	store, ok := s.templates(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": store.List()})
}

// GET /api/templates/{name}
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	store, ok := s.templates(w)
	if !ok {
		return
	}
	tpl, err := store.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// DELETE /api/templates/{name}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	store, ok := s.templates(w)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if err := store.Delete(name); err != nil {
		if errors.Is(err, template.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) profiles(w http.ResponseWriter) (*template.ProfileStore, bool) {
	store := s.svc.Profiles()
	if store == nil {
		writeError(w, http.StatusNotFound, pour.ErrProfilesDisabled)
		return nil, false
	}
	return store, true
}

// GET /api/profiles
func (s *Server) handleProfiles(w http.ResponseWriter, _ *http.Request) {
	store, ok := s.profiles(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": store.List()})
}

type saveProfileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// POST /api/profiles creates or replaces a profile.
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	store, ok := s.profiles(w)
	if !ok {
		return
	}
	var req saveProfileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := store.Save(req.Name, req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GET /api/profiles/{name}
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	store, ok := s.profiles(w)
	if !ok {
		return
	}
	p, err := store.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DELETE /api/profiles/{name}
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	store, ok := s.profiles(w)
	if !ok {
		return
	}
	if err := store.Delete(chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, template.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/history?limit=n
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	store := s.svc.History()
	if store == nil {
		writeError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	entries, err := store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": entries})
}

// GET /api/history/{id}
func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	store := s.svc.History()
	if store == nil {
		writeError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	e, err := store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
