package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/guidewire-oss/nosql2sql/internal/metrics"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"github.com/klauspost/compress/gzip"
)

// ArtifactSuffix marks the data files of an export.
const ArtifactSuffix = ".ion.gz"

const (
	// exportDir is the folder every export writes its own <exportId>/ under.
	exportDir = "AWSDynamoDB/"
	// manifestSummary is written once an export has completed.
	manifestSummary = "manifest-summary.json"
)

var ErrNoExport = errors.New("no export provided")

// S3API is the subset of the S3 client the assembler uses.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Assembler joins the artifacts of an export into one document stream.
type Assembler struct {
	client S3API
	bucket string
	logger *slog.Logger
}

func NewAssembler(client S3API, bucket string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		client: client,
		bucket: bucket,
		logger: logger.With("component", "snapshot-assembler"),
	}
}

// ListArtifacts returns the artifact keys of the newest export under prefix,
// in listing order. Each export lives in its own AWSDynamoDB/<exportId>/
// folder; completed exports (those with a manifest summary) win over ones
// still being written, then the most recently modified folder is taken.
// Objects outside any export folder count as one folder of their own. It
// fails with ErrNoExport when nothing at all is stored under prefix.
func (a *Assembler) ListArtifacts(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})

	listed := 0
	folders := make(map[string]*exportFolder)
	var order []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", a.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			listed++
			key := aws.ToString(obj.Key)
			root := exportRoot(key)
			f, ok := folders[root]
			if !ok {
				f = &exportFolder{root: root}
				folders[root] = f
				order = append(order, root)
			}
			f.add(key, aws.ToTime(obj.LastModified))
		}
	}

	if listed == 0 {
		return nil, fmt.Errorf("%w: s3://%s/%s", ErrNoExport, a.bucket, prefix)
	}

	var chosen *exportFolder
	for _, root := range order {
		if f := folders[root]; chosen == nil || f.newerThan(chosen) {
			chosen = f
		}
	}
	if len(folders) > 1 {
		a.logger.Info("Several exports under prefix, importing the newest",
			"prefix", prefix, "exports", len(folders), "selected", chosen.root, "complete", chosen.complete)
	}
	a.logger.Info("Found export artifacts", "prefix", prefix, "objects", listed, "artifacts", len(chosen.artifacts))
	return chosen.artifacts, nil
}

// exportFolder gathers the objects of one export.
type exportFolder struct {
	root      string
	artifacts []string
	complete  bool
	modified  time.Time
}

func (f *exportFolder) add(key string, modified time.Time) {
	switch {
	case strings.HasSuffix(key, ArtifactSuffix):
		f.artifacts = append(f.artifacts, key)
	case strings.HasSuffix(key, "/"+manifestSummary) || key == manifestSummary:
		f.complete = true
	}
	if modified.After(f.modified) {
		f.modified = modified
	}
}

func (f *exportFolder) newerThan(other *exportFolder) bool {
	if f.complete != other.complete {
		return f.complete
	}
	if !f.modified.Equal(other.modified) {
		return f.modified.After(other.modified)
	}
	// Export ids start with a timestamp.
	return f.root > other.root
}

// exportRoot returns the key up to and including AWSDynamoDB/<exportId>/, or
// "" when key is not inside an export folder.
func exportRoot(key string) string {
	i := strings.Index(key, exportDir)
	if i < 0 {
		return ""
	}
	start := i + len(exportDir)
	j := strings.IndexByte(key[start:], '/')
	if j < 0 {
		return ""
	}
	return key[:start+j+1]
}

// Open lists the newest export under prefix and returns a lazy stream over the items
// of all its artifacts. Artifacts are fetched one at a time as the stream
// advances.
func (a *Assembler) Open(ctx context.Context, prefix string) (replication.DocumentStream, error) {
	keys, err := a.ListArtifacts(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return &Stream{assembler: a, keys: keys}, nil
}

// Stream is the concatenation of the decoded items of a list of artifacts.
type Stream struct {
	assembler *Assembler
	keys      []string
	next      int

	body io.ReadCloser
	gz   *gzip.Reader
	dec  *Decoder

	doc mapping.Document
	err error
}

func (s *Stream) Next(ctx context.Context) bool {
	for s.err == nil {
		if err := ctx.Err(); err != nil {
			s.err = err
			break
		}
		if s.dec != nil && s.dec.Next() {
			s.doc = s.dec.Document()
			return true
		}
		s.closeArtifact()

		if s.next >= len(s.keys) {
			return false
		}
		key := s.keys[s.next]
		s.next++
		if err := s.openArtifact(ctx, key); err != nil {
			metrics.SnapshotArtifacts.WithLabelValues(metrics.OutcomeFailed).Inc()
			s.err = err
		}
	}
	s.closeArtifact()
	return false
}

func (s *Stream) Document() mapping.Document { return s.doc }

func (s *Stream) Err() error { return s.err }

// Close releases the artifact currently open, if any.
func (s *Stream) Close() error {
	s.keys = nil
	return s.closeArtifact()
}

func (s *Stream) openArtifact(ctx context.Context, key string) error {
	a := s.assembler
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", a.bucket, key, err)
	}

	gz, err := gzip.NewReader(out.Body)
	if err != nil {
		out.Body.Close()
		return fmt.Errorf("decompress %s: %w", key, err)
	}

	a.logger.Debug("Reading artifact", "key", key)
	metrics.SnapshotArtifacts.WithLabelValues(metrics.OutcomeApplied).Inc()
	s.body = out.Body
	s.gz = gz
	s.dec = NewDecoder(gz, a.logger)
	return nil
}

func (s *Stream) closeArtifact() error {
	var errs []error
	if s.gz != nil {
		errs = append(errs, s.gz.Close())
	}
	if s.body != nil {
		errs = append(errs, s.body.Close())
	}
	s.body, s.gz, s.dec = nil, nil, nil
	return errors.Join(errs...)
}
