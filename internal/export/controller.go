package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/guidewire-oss/nosql2sql/internal/metrics"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
)

const (
	DefaultPollInterval = 5 * time.Second
	jobBacklog          = 16
)

var (
	ErrControllerStopped = errors.New("export controller is stopped")
	ErrPollLimitExceeded = errors.New("export did not finish within the poll limit")
)

// DynamoDBAPI is the subset of the DynamoDB client the controller uses.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	ExportTableToPointInTime(ctx context.Context, params *dynamodb.ExportTableToPointInTimeInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExportTableToPointInTimeOutput, error)
	DescribeExport(ctx context.Context, params *dynamodb.DescribeExportInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeExportOutput, error)
}

type Options struct {
	Bucket string
	// Prefix is joined with the table name to form the export's S3 prefix,
	// the same prefix a snapshot import reads from.
	Prefix       string
	PollInterval time.Duration
	// MaxPolls bounds the status checks of one export; 0 is unbounded.
	MaxPolls int
}

// Controller runs exports one at a time on a single background worker.
// It does not reject a trigger while another export is running; queued
// triggers run in order.
type Controller struct {
	client DynamoDBAPI
	opts   Options
	logger *slog.Logger
	jobs   chan *Job
	now    func() time.Time

	mu      sync.RWMutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewController(client DynamoDBAPI, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Controller{
		client: client,
		opts:   opts,
		logger: logger.With("component", "export-controller"),
		jobs:   make(chan *Job, jobBacklog),
		now:    time.Now,
	}
}

// Start launches the worker. It runs until Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.closed {
		return nil
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.run(workerCtx)

	c.logger.Info("export controller started", "poll_interval", c.opts.PollInterval, "max_polls", c.opts.MaxPolls)
	return nil
}

// Trigger queues an export of table and returns its job.
func (c *Controller) Trigger(ctx context.Context, table string) (*Job, error) {
	if table == "" {
		return nil, errors.New("table name is required")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running || c.closed {
		return nil, ErrControllerStopped
	}

	job := newJob(uuid.NewString(), table)
	select {
	case c.jobs <- job:
		c.logger.Info("export queued", "job", job.ID(), "table", table)
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop cancels the running export and fails queued ones with
// ErrControllerStopped.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.jobs)
	running := c.running
	c.running = false
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if !running {
		for job := range c.jobs {
			job.resolve(ErrControllerStopped)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("export controller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	for job := range c.jobs {
		if ctx.Err() != nil {
			job.resolve(ErrControllerStopped)
			continue
		}
		err := c.execute(ctx, job)
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrControllerStopped, err)
		}
		job.resolve(err)
	}
}

func (c *Controller) execute(ctx context.Context, job *Job) error {
	st := job.Status()
	log := c.logger.With("job", st.ID, "table", st.Table)

	desc, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(st.Table)})
	if err != nil {
		log.Error("Failed to describe table", "error", err)
		return fmt.Errorf("describe table %s: %w", st.Table, err)
	}
	if desc.Table == nil || desc.Table.TableArn == nil {
		return fmt.Errorf("describe table %s: no table arn", st.Table)
	}

	prefix := strings.TrimSuffix(replication.ImportPrefix(c.opts.Prefix, st.Table), "/")
	exportTime := c.now()

	log.Info("Beginning export", "bucket", c.opts.Bucket, "prefix", prefix)
	out, err := c.client.ExportTableToPointInTime(ctx, &dynamodb.ExportTableToPointInTimeInput{
		TableArn:     desc.Table.TableArn,
		S3Bucket:     aws.String(c.opts.Bucket),
		S3Prefix:     aws.String(prefix),
		ExportFormat: types.ExportFormatIon,
		ExportTime:   aws.Time(exportTime),
		ClientToken:  aws.String(st.ID),
	})
	if err != nil {
		log.Error("Failed to trigger export", "error", err)
		return fmt.Errorf("export table %s: %w", st.Table, err)
	}
	if out.ExportDescription == nil {
		return fmt.Errorf("export table %s: empty export description", st.Table)
	}

	exp := out.ExportDescription
	job.update(func(s *Status) {
		s.State = StateTriggered
		s.ExportArn = aws.ToString(exp.ExportArn)
		s.ExportTime = exportTime
		s.ExportStatus = string(exp.ExportStatus)
		s.S3Prefix = prefix
	})
	log.Info("Export triggered", "export_arn", aws.ToString(exp.ExportArn))

	return c.poll(ctx, job, exp, log)
}

// poll re-reads the export status every PollInterval until it leaves
// IN_PROGRESS.
func (c *Controller) poll(ctx context.Context, job *Job, exp *types.ExportDescription, log *slog.Logger) error {
	arn := exp.ExportArn
	polls := 0

	timer := time.NewTimer(c.opts.PollInterval)
	defer timer.Stop()

	for exp.ExportStatus == types.ExportStatusInProgress {
		if c.opts.MaxPolls > 0 && polls >= c.opts.MaxPolls {
			log.Error("Export poll limit reached", "polls", polls)
			return fmt.Errorf("%w: %d polls", ErrPollLimitExceeded, polls)
		}
		job.update(func(s *Status) { s.State = StatePolling })

		log.Info("Waiting for export to finish")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		out, err := c.client.DescribeExport(ctx, &dynamodb.DescribeExportInput{ExportArn: arn})
		polls++
		metrics.ExportPolls.Inc()
		if err != nil {
			log.Error("Failed to describe export", "error", err)
			return fmt.Errorf("describe export %s: %w", aws.ToString(arn), err)
		}
		if out.ExportDescription == nil {
			return fmt.Errorf("describe export %s: empty export description", aws.ToString(arn))
		}
		exp = out.ExportDescription

		job.update(func(s *Status) {
			s.Polls = polls
			s.ExportStatus = string(exp.ExportStatus)
		})
		timer.Reset(c.opts.PollInterval)
	}

	metrics.ExportsFinished.WithLabelValues(string(exp.ExportStatus)).Inc()
	if exp.ExportStatus == types.ExportStatusFailed {
		log.Warn("Export failed", "reason", aws.ToString(exp.FailureMessage))
		job.update(func(s *Status) {
			s.State = StateFailed
			s.FailureMessage = aws.ToString(exp.FailureMessage)
		})
		return nil
	}

	log.Info("Export completed", "polls", polls)
	job.update(func(s *Status) { s.State = StateCompleted })
	return nil
}
