package replication

import (
	"context"
	"log/slog"
	"sync"

	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/guidewire-oss/nosql2sql/internal/metrics"
)

// Sink applies a single mutation. *Applier satisfies it.
type Sink interface {
	Apply(ctx context.Context, doc mapping.Document, kind MutationKind) (Result, error)
}

// Queue applies submitted batches one record at a time on a single worker.
// Records of a batch are applied in order and batches in the order they were
// accepted. A failing record is logged and does not stop the rest.
type Queue struct {
	sink    Sink
	logger  *slog.Logger
	batches chan []Mutation

	mu      sync.RWMutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewQueue(sink Sink, bufferSize int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Queue{
		sink:    sink,
		logger:  logger.With("component", "change-queue"),
		batches: make(chan []Mutation, bufferSize),
	}
}

// Start launches the worker. Cancelling ctx does not stop it; Stop does.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running || q.closed {
		q.mu.Unlock()
		return nil
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	q.running = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(workerCtx)

	q.logger.Info("change queue started", "buffer", cap(q.batches))
	return nil
}

// Submit enqueues batch. It blocks while the buffer is full, until ctx is done.
func (q *Queue) Submit(ctx context.Context, batch []Mutation) error {
	if len(batch) == 0 {
		return nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.batches <- batch:
		metrics.QueueDepth.Set(float64(len(q.batches)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new batches, lets the worker drain what was accepted and waits
// for it. When ctx expires first the in-flight statement is cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.batches)
	running := q.running
	q.running = false
	q.mu.Unlock()

	if !running {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("change queue stopped")
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for batch := range q.batches {
		metrics.QueueDepth.Set(float64(len(q.batches)))
		q.applyBatch(ctx, batch)
	}
}

func (q *Queue) applyBatch(ctx context.Context, batch []Mutation) {
	failed := 0
	for i, m := range batch {
		if _, err := q.sink.Apply(ctx, m.Document, m.Kind); err != nil {
			failed++
			q.logger.Error("failed to apply record",
				"index", i,
				"kind", m.Kind.String(),
				"error", err,
			)
		}
	}
	q.logger.Debug("batch applied", "size", len(batch), "failed", failed)
}
