package replication

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/guidewire-oss/nosql2sql/internal/mapping"
)

// DocumentStream is a lazy, single-pass sequence of snapshot documents.
type DocumentStream interface {
	Next(ctx context.Context) bool
	Document() mapping.Document
	Err() error
	Close() error
}

// StreamOpener opens the snapshot stored under prefix.
type StreamOpener interface {
	Open(ctx context.Context, prefix string) (DocumentStream, error)
}

// ImportResult summarizes one snapshot import.
type ImportResult struct {
	Prefix    string        `json:"prefix"`
	Documents int           `json:"documents"`
	Applied   int           `json:"applied"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Importer loads a completed export into the sink, applying every document
// as an INSERT on the calling goroutine.
type Importer struct {
	opener      StreamOpener
	sink        Sink
	prefix      string
	sourceTable string
	logger      *slog.Logger
}

// NewImporter reads from ImportPrefix(prefix, sourceTable).
func NewImporter(opener StreamOpener, sink Sink, prefix, sourceTable string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		opener:      opener,
		sink:        sink,
		prefix:      prefix,
		sourceTable: sourceTable,
		logger:      logger.With("component", "importer"),
	}
}

// ImportPrefix is the key prefix an export of sourceTable is written under.
func ImportPrefix(prefix, sourceTable string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return sourceTable + "/"
	}
	return prefix + "/" + sourceTable + "/"
}

// Prefix returns the key prefix Import reads from.
func (i *Importer) Prefix() string {
	return ImportPrefix(i.prefix, i.sourceTable)
}

// Import streams the snapshot into the sink. Per-document failures are logged
// and counted; only a failure to open the snapshot or a cancelled ctx aborts.
func (i *Importer) Import(ctx context.Context) (ImportResult, error) {
	start := time.Now()
	res := ImportResult{Prefix: i.Prefix()}

	i.logger.Info("starting import", "prefix", res.Prefix)

	stream, err := i.opener.Open(ctx, res.Prefix)
	if err != nil {
		return res, err
	}
	defer stream.Close()

	for stream.Next(ctx) {
		res.Documents++
		out, err := i.sink.Apply(ctx, stream.Document(), Insert)
		switch {
		case err != nil:
			res.Failed++
			i.logger.Error("failed to import document", "index", res.Documents-1, "error", err)
		case out.Skipped:
			res.Skipped++
		default:
			res.Applied++
		}
	}
	res.Elapsed = time.Since(start)

	if err := stream.Err(); err != nil {
		return res, err
	}

	i.logger.Info("import completed",
		"documents", res.Documents,
		"applied", res.Applied,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"elapsed", res.Elapsed,
	)
	return res, nil
}
