// Package export triggers point-in-time table exports to object storage and
// follows them to a terminal state.
package export

import (
	"context"
	"sync"
	"time"
)

// State is the controller-side lifecycle of an export.
type State string

const (
	StateQueued    State = "QUEUED"
	StateTriggered State = "TRIGGERED"
	StatePolling   State = "POLLING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Status is a point-in-time copy of a job.
type Status struct {
	ID             string    `json:"id"`
	Table          string    `json:"table"`
	State          State     `json:"state"`
	ExportArn      string    `json:"exportArn,omitempty"`
	ExportTime     time.Time `json:"exportTime"`
	ExportStatus   string    `json:"exportStatus,omitempty"`
	FailureMessage string    `json:"failureMessage,omitempty"`
	S3Prefix       string    `json:"s3Prefix,omitempty"`
	Polls          int       `json:"polls"`
	Error          string    `json:"error,omitempty"`
}

// Job resolves once its export reaches COMPLETED or FAILED, or an operational
// error ends it. An export that FAILED resolves without error.
type Job struct {
	mu     sync.RWMutex
	status Status
	err    error
	done   chan struct{}
}

func newJob(id, table string) *Job {
	return &Job{
		status: Status{ID: id, Table: table, State: StateQueued},
		done:   make(chan struct{}),
	}
}

func (j *Job) ID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status.ID
}

// Done is closed when the job resolves.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) IsDone() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the job resolves or ctx is done.
func (j *Job) Wait(ctx context.Context) (Status, error) {
	select {
	case <-j.done:
		j.mu.RLock()
		defer j.mu.RUnlock()
		return j.status, j.err
	case <-ctx.Done():
		return j.Status(), ctx.Err()
	}
}

func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) update(fn func(s *Status)) {
	j.mu.Lock()
	fn(&j.status)
	j.mu.Unlock()
}

// resolve ends the job. Later calls are ignored.
func (j *Job) resolve(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.IsDone() {
		return
	}
	j.err = err
	if err != nil {
		j.status.State = StateFailed
		j.status.Error = err.Error()
	}
	close(j.done)
}
