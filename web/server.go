// Package web is the HTTP front end. Every route maps 1:1 onto one engine
// operation; no engine logic lives here.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ghyeongl/freeze/engine"
)

// Server serves the snapshot API.
type Server struct {
	mgr *engine.Manager
	log *slog.Logger
}

// NewServer creates a Server over the given manager.
func NewServer(mgr *engine.Manager, log *slog.Logger) *Server {
	return &Server{mgr: mgr, log: log}
}

// Router builds the API route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/snapshots", s.handleListSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/snapshots", s.handleCreateSnapshot).Methods(http.MethodPost)
	api.HandleFunc("/snapshots", s.handleClearSnapshots).Methods(http.MethodDelete)
	api.HandleFunc("/snapshots/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/{checksum}", s.handleViewSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/{checksum}/content", s.handleSnapshotContent).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/{checksum}/restore", s.handleRestoreSnapshot).Methods(http.MethodPost)
	api.HandleFunc("/snapshots/{checksum}/export", s.handleExportSnapshot).Methods(http.MethodPost)
	api.HandleFunc("/diff", s.handleDiff).Methods(http.MethodPost)
	api.HandleFunc("/check", s.handleCheck).Methods(http.MethodGet)
	api.HandleFunc("/inspect", s.handleInspect).Methods(http.MethodGet)
	api.HandleFunc("/exclusions", s.handleListExclusions).Methods(http.MethodGet)
	api.HandleFunc("/exclusions", s.handleAddExclusion).Methods(http.MethodPost)
	api.HandleFunc("/exclusions/{pattern}", s.handleRemoveExclusion).Methods(http.MethodDelete)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
