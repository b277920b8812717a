package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/guidewire-oss/nosql2sql/internal/export"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"github.com/guidewire-oss/nosql2sql/internal/server"
	"github.com/guidewire-oss/nosql2sql/internal/snapshot"
)

type SyncResponse struct {
	Accepted int `json:"accepted"`
}

func (s *Server) handleSyncData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSyncBody))
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}

	batch, err := replication.DecodeStreamRecords(body)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid_records", err.Error())
		return
	}

	if err := s.deps.Queue.Submit(r.Context(), batch); err != nil {
		if errors.Is(err, replication.ErrQueueClosed) {
			server.WriteError(w, http.StatusServiceUnavailable, "queue_closed", "Change queue is not accepting records")
			return
		}
		server.WriteError(w, http.StatusServiceUnavailable, "queue_unavailable", err.Error())
		return
	}

	server.WriteJSON(w, http.StatusAccepted, SyncResponse{Accepted: len(batch)})
}

// handleExportTable starts an export unless the previous one is unresolved.
func (s *Server) handleExportTable(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("tableName")
	if table == "" {
		table = s.deps.SourceTable
	}
	if table == "" {
		server.WriteError(w, http.StatusBadRequest, "missing_table", "tableName is required")
		return
	}

	s.exportMu.Lock()
	defer s.exportMu.Unlock()

	if s.exportJob != nil && !s.exportJob.IsDone() {
		server.WriteError(w, http.StatusBadRequest, "export_running", "Export is already running")
		return
	}

	job, err := s.deps.Exporter.Trigger(r.Context(), table)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, export.ErrControllerStopped) {
			status = http.StatusServiceUnavailable
		}
		server.WriteError(w, status, "export_failed", err.Error())
		return
	}
	s.exportJob = job

	s.logger.Info("Export requested", "job", job.ID(), "table", table)
	server.WriteJSON(w, http.StatusAccepted, job.Status())
}

func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	s.exportMu.Lock()
	job := s.exportJob
	s.exportMu.Unlock()

	if job == nil {
		server.WriteError(w, http.StatusNotFound, "not_found", "No export has been requested")
		return
	}
	server.WriteJSON(w, http.StatusOK, job.Status())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Starting import to postgres")

	res, err := s.deps.Importer.Import(r.Context())
	if err != nil {
		if errors.Is(err, snapshot.ErrNoExport) {
			server.WriteError(w, http.StatusNotFound, "no_export", err.Error())
			return
		}
		s.logger.Error("Import failed", "error", err)
		server.WriteError(w, http.StatusInternalServerError, "import_failed", err.Error())
		return
	}

	s.logger.Info("Import completed", "elapsed", res.Elapsed, "documents", res.Documents)
	server.WriteJSON(w, http.StatusOK, res)
}

type ColumnResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableResponse struct {
	Name        string           `json:"name"`
	Columns     []ColumnResponse `json:"columns"`
	Unsupported []string         `json:"unsupported"`
}

// handleListTables reports the mapped schema of every table seen so far.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	schemas := s.deps.Tables.Schemas()
	out := make([]TableResponse, 0, len(schemas))
	for _, schema := range schemas {
		t := TableResponse{
			Name:        schema.TableName,
			Columns:     []ColumnResponse{},
			Unsupported: schema.UnsupportedAttributes(),
		}
		for _, c := range schema.Columns() {
			t.Columns = append(t.Columns, ColumnResponse{Name: c.Name, Type: c.Type.DatabaseType()})
		}
		out = append(out, t)
	}
	server.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleDropTable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.deps.Tables.DropTable(r.Context(), name); err != nil {
		server.WriteError(w, http.StatusInternalServerError, "drop_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
