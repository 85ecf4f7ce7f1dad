// Package diag exposes a read-only HTTP diagnostics surface over a
// Multiplexer's statistics, following the access-logged, correlation-ID
// HTTP handler the rest of the module's tooling already uses for its
// servers.
package diag

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/dbernard/hdlc/httplog"
	"github.com/dbernard/hdlc/mux"
)

// StatsSource is the subset of *mux.Multiplexer the diagnostics server
// needs, kept narrow so tests can supply a fake.
type StatsSource interface {
	Stats() mux.Stats
}

// Server is a Runnable (Run/Close) HTTP server exposing GET /stats as
// JSON. It is meant to be registered with a process supervisor alongside
// the Multiplexer's own teardown.
type Server struct {
	source StatsSource
	log    *logrus.Entry

	listenAddr string
	httpServer *http.Server
}

// New creates a diagnostics Server bound to listenAddr (e.g. ":8080"),
// reporting statistics from source. log may be nil.
func New(listenAddr string, source StatsSource, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}

	s := &Server{
		source:     source,
		log:        log,
		listenAddr: listenAddr,
	}

	router := http.NewServeMux()
	router.HandleFunc("/stats", s.handleStats)

	access := httplog.HTTPLog{
		LogOut:            log.Debugf,
		ServerName:        "hdlcmux-diag",
		CorrelationHeader: "X-Request-Id",
		SkipInfo:          true,
	}

	s.httpServer = &http.Server{
		Addr:    listenAddr,
		Handler: access.GetHandler(router),
	}

	return s
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.source.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		corrID := httplog.CorrelationIDFromRequest(r)
		s.log.WithError(err).WithField("correlation_id", corrID).Error("failed to encode stats response")
	}
}

// Run starts the HTTP server and blocks until it stops or errors. It
// implements multirun.Runnable.
func (s *Server) Run() error {
	s.log.WithField("addr", s.listenAddr).Info("diagnostics server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the server down gracefully. It implements multirun.Runnable
// and is safe to call even if Run has not been called yet.
func (s *Server) Close() error {
	return s.httpServer.Shutdown(context.Background())
}

// Addr returns the listen address the server was configured with. For
// ":0" it returns ":0", not the port the system assigns once listening.
func (s *Server) Addr() string {
	return s.listenAddr
}
