// Package api exposes the replication operations over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/guidewire-oss/nosql2sql/internal/export"
	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxSyncBody caps the size of a stream record batch.
const maxSyncBody = 10 << 20

type ChangeSubmitter interface {
	Submit(ctx context.Context, batch []replication.Mutation) error
}

type ExportTrigger interface {
	Trigger(ctx context.Context, table string) (*export.Job, error)
}

type SnapshotImporter interface {
	Import(ctx context.Context) (replication.ImportResult, error)
}

type TableManager interface {
	DropTable(ctx context.Context, table string) error
	Schemas() []*mapping.TableSchema
}

// Deps are the operations behind the routes. A nil dependency leaves its
// routes unregistered.
type Deps struct {
	Queue    ChangeSubmitter
	Exporter ExportTrigger
	Importer SnapshotImporter
	Tables   TableManager
	// SourceTable is exported when a request names no table.
	SourceTable string
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux

	// Latest export job, guarded so that only one runs at a time.
	exportMu  sync.Mutex
	exportJob *export.Job
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		logger: logger.With("component", "api"),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Replication
	if s.deps.Queue != nil {
		s.mux.HandleFunc("POST /api/syncData", s.handleSyncData)
	}

	// Snapshot
	if s.deps.Exporter != nil {
		s.mux.HandleFunc("POST /api/exportTable", s.handleExportTable)
		s.mux.HandleFunc("GET /api/exportTable", s.handleExportStatus)
	}
	if s.deps.Importer != nil {
		s.mux.HandleFunc("POST /api/import", s.handleImport)
	}

	// Tables
	if s.deps.Tables != nil {
		s.mux.HandleFunc("GET /api/tables", s.handleListTables)
		s.mux.HandleFunc("DELETE /api/tables/{name}", s.handleDropTable)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
