package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrQueueStopped = errors.New("queue stopped")

// LocalQueue runs jobs in process. Pending jobs are lost on restart; it
// serves deployments without Redis and tests.
type LocalQueue struct {
	dispatcher *Dispatcher
	policy     RetryPolicy
	workers    int
	logger     *zap.Logger

	jobs    chan Job
	mu      sync.Mutex
	timers  map[string]*time.Timer
	running bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ Queue = (*LocalQueue)(nil)

func NewLocalQueue(dispatcher *Dispatcher, policy RetryPolicy, workers int, logger *zap.Logger) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalQueue{
		dispatcher: dispatcher,
		policy:     policy,
		workers:    workers,
		logger:     logger,
		jobs:       make(chan Job, 1024),
		timers:     map[string]*time.Timer{},
	}
}

func (q *LocalQueue) Submit(ctx context.Context, jobType string, payload any) (string, error) {
	job, err := newJob(jobType, payload)
	if err != nil {
		return "", err
	}
	if err := q.enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *LocalQueue) enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return ErrQueueStopped
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LocalQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}
	q.logger.Info("local queue started", zap.Int("workers", q.workers))
	return nil
}

func (q *LocalQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.stopped = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("local queue stopped")
}

func (q *LocalQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.handle(ctx, job)
		}
	}
}

func (q *LocalQueue) handle(ctx context.Context, job Job) {
	job, result, delay := q.dispatcher.process(ctx, job, q.policy)
	if result != outcomeRetry {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.timers[job.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, job.ID)
		q.mu.Unlock()
		if err := q.enqueue(context.Background(), job); err != nil {
			q.logger.Warn("dropping retry", zap.String("job_id", job.ID), zap.Error(err))
		}
	})
}
