// Package queue runs background jobs with at-least-once delivery and
// exponential retry backoff.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GaretJax/bmcc/internal/metrics"
)

var ErrUnknownJobType = errors.New("unknown job type")

// Job is one unit of work. Attempts counts failed runs so far.
type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the job payload into dst.
func (j Job) Decode(dst any) error {
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// Queue accepts jobs for asynchronous execution.
type Queue interface {
	Submit(ctx context.Context, jobType string, payload any) (string, error)
}

// Handler runs a job. Returning an error schedules a retry unless the error
// is wrapped with Permanent.
type Handler func(ctx context.Context, job Job) error

// ExhaustedHandler is called once a job will not be retried again.
type ExhaustedHandler func(ctx context.Context, job Job, err error)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

func newJob(jobType string, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	return Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// RetryPolicy bounds retries and spaces them exponentially.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Hour
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.Reset()
	d := b.InitialInterval
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Dispatcher routes jobs to handlers by type.
type Dispatcher struct {
	logger    *zap.Logger
	timeout   time.Duration
	mu        sync.RWMutex
	handlers  map[string]Handler
	exhausted map[string]ExhaustedHandler
	timeouts  map[string]time.Duration
}

func NewDispatcher(logger *zap.Logger, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:    logger,
		timeout:   timeout,
		handlers:  map[string]Handler{},
		exhausted: map[string]ExhaustedHandler{},
		timeouts:  map[string]time.Duration{},
	}
}

func (d *Dispatcher) Handle(jobType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = h
}

func (d *Dispatcher) OnExhausted(jobType string, h ExhaustedHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exhausted[jobType] = h
}

// SetTimeout overrides the dispatcher timeout for one job type. Zero or
// less runs that type without a deadline.
func (d *Dispatcher) SetTimeout(jobType string, timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeouts[jobType] = timeout
}

// run executes job with the per-job timeout and a recovered panic.
func (d *Dispatcher) run(ctx context.Context, job Job) (err error) {
	d.mu.RLock()
	h, ok := d.handlers[job.Type]
	timeout, custom := d.timeouts[job.Type]
	d.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type))
	}
	if !custom {
		timeout = d.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Type, r)
		}
	}()

	metrics.QueueJobsInFlight.Inc()
	defer metrics.QueueJobsInFlight.Dec()
	return h(ctx, job)
}

func (d *Dispatcher) giveUp(ctx context.Context, job Job, err error) {
	metrics.DLQJobsTotal.WithLabelValues(job.Type).Inc()
	d.logger.Error("job exhausted retries",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempts", job.Attempts),
		zap.Error(err),
	)
	d.mu.RLock()
	h, ok := d.exhausted[job.Type]
	d.mu.RUnlock()
	if ok {
		h(ctx, job, err)
	}
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

// process runs job and decides what happens next. On retry it returns the
// job with Attempts incremented and the delay to wait.
func (d *Dispatcher) process(ctx context.Context, job Job, policy RetryPolicy) (Job, outcome, time.Duration) {
	err := d.run(ctx, job)
	if err == nil {
		metrics.QueueJobsProcessed.WithLabelValues(job.Type, "success").Inc()
		return job, outcomeDone, 0
	}
	job.Attempts++
	job.LastError = err.Error()
	if isPermanent(err) || job.Attempts > policy.MaxRetries {
		metrics.QueueJobsProcessed.WithLabelValues(job.Type, "dead").Inc()
		d.giveUp(ctx, job, err)
		return job, outcomeDead, 0
	}
	delay := policy.Delay(job.Attempts)
	metrics.QueueJobsProcessed.WithLabelValues(job.Type, "retry").Inc()
	d.logger.Warn("job failed, retry scheduled",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempts", job.Attempts),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	return job, outcomeRetry, delay
}
