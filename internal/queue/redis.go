package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize    = 10
	DefaultBlockTimeout = 5 * time.Second
	DefaultClaimMinIdle = 5 * time.Minute
	DefaultMaxLen       = 10000
)

// promoteScript moves due retries from the delay set back onto the stream.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, member in ipairs(due) do
  redis.call('ZREM', KEYS[1], member)
  redis.call('XADD', KEYS[2], 'MAXLEN', '~', ARGV[3], '*', 'data', member)
end
return #due
`)

type RedisConfig struct {
	Stream            string
	Group             string
	Consumer          string
	Workers           int
	BatchSize         int64
	BlockTimeout      time.Duration
	RetryPollInterval time.Duration
	ClaimMinIdle      time.Duration
	MaxLen            int64
	Retry             RetryPolicy
}

// RedisQueue keeps jobs in a Redis stream read through a consumer group.
// Failed jobs wait in a sorted set scored by their due time; jobs that
// exhaust their retries go to a dead-letter stream.
type RedisQueue struct {
	rdb        *redis.Client
	dispatcher *Dispatcher
	config     RedisConfig
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(rdb *redis.Client, dispatcher *Dispatcher, config RedisConfig, logger *zap.Logger) *RedisQueue {
	if config.Stream == "" {
		config.Stream = "bmcc:jobs"
	}
	if config.Group == "" {
		config.Group = "bmcc-workers"
	}
	if config.Consumer == "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = uuid.New().String()[:8]
		}
		config.Consumer = hostname
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultBlockTimeout
	}
	if config.RetryPollInterval <= 0 {
		config.RetryPollInterval = time.Second
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = DefaultClaimMinIdle
	}
	if config.MaxLen <= 0 {
		config.MaxLen = DefaultMaxLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{rdb: rdb, dispatcher: dispatcher, config: config, logger: logger}
}

func (q *RedisQueue) retryKey() string { return q.config.Stream + ":retry" }
func (q *RedisQueue) dlqKey() string   { return q.config.Stream + ":dlq" }

func (q *RedisQueue) Submit(ctx context.Context, jobType string, payload any) (string, error) {
	job, err := newJob(jobType, payload)
	if err != nil {
		return "", err
	}
	if err := q.add(ctx, job); err != nil {
		return "", err
	}
	q.logger.Debug("job submitted", zap.String("job_id", job.ID), zap.String("type", jobType))
	return job.ID, nil
}

func (q *RedisQueue) add(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.config.Stream,
		MaxLen: q.config.MaxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Err()
}

// Start creates the consumer group and launches the workers and the retry
// and reclaim loops. They stop when ctx is cancelled or Stop is called.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}
	err := q.rdb.XGroupCreateMkStream(ctx, q.config.Stream, q.config.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.consumeLoop(runCtx, q.config.Consumer+"-"+strconv.Itoa(i))
	}
	q.wg.Add(1)
	go q.retryLoop(runCtx)

	q.logger.Info("redis queue started",
		zap.String("stream", q.config.Stream),
		zap.String("group", q.config.Group),
		zap.String("consumer", q.config.Consumer),
		zap.Int("workers", q.config.Workers),
	)
	return nil
}

func (q *RedisQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("redis queue stopped")
}

func (q *RedisQueue) consumeLoop(ctx context.Context, consumer string) {
	defer q.wg.Done()
	lastClaim := time.Time{}
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= q.config.ClaimMinIdle/2 {
			q.reclaim(ctx, consumer)
			lastClaim = time.Now()
		}

		streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.config.Group,
			Consumer: consumer,
			Streams:  []string{q.config.Stream, ">"},
			Count:    q.config.BatchSize,
			Block:    q.config.BlockTimeout,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("failed to read jobs", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handle(ctx, msg)
			}
		}
	}
}

// reclaim takes over messages left pending by consumers that died mid-job.
func (q *RedisQueue) reclaim(ctx context.Context, consumer string) {
	msgs, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.config.Stream,
		Group:    q.config.Group,
		Consumer: consumer,
		MinIdle:  q.config.ClaimMinIdle,
		Start:    "0-0",
		Count:    q.config.BatchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Warn("failed to reclaim stale jobs", zap.Error(err))
		}
		return
	}
	if len(msgs) > 0 {
		q.logger.Info("reclaimed stale jobs", zap.Int("count", len(msgs)))
	}
	for _, msg := range msgs {
		q.handle(ctx, msg)
	}
}

func (q *RedisQueue) handle(ctx context.Context, msg redis.XMessage) {
	job, err := decodeMessage(msg)
	if err != nil {
		q.logger.Warn("dropping invalid job message", zap.String("message_id", msg.ID), zap.Error(err))
		q.ack(ctx, msg.ID)
		return
	}

	job, result, delay := q.dispatcher.process(ctx, job, q.config.Retry)
	switch result {
	case outcomeRetry:
		if err := q.scheduleRetry(ctx, job, delay); err != nil {
			// Left pending: the message is reclaimed after ClaimMinIdle.
			q.logger.Error("failed to schedule retry", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
	case outcomeDead:
		if err := q.deadLetter(ctx, job); err != nil {
			q.logger.Error("failed to dead-letter job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	q.ack(ctx, msg.ID)
}

func (q *RedisQueue) ack(ctx context.Context, id string) {
	if err := q.rdb.XAck(context.WithoutCancel(ctx), q.config.Stream, q.config.Group, id).Err(); err != nil {
		q.logger.Warn("failed to ack job message", zap.String("message_id", id), zap.Error(err))
	}
}

func (q *RedisQueue) scheduleRetry(ctx context.Context, job Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	return q.rdb.ZAdd(context.WithoutCancel(ctx), q.retryKey(), redis.Z{Score: float64(due), Member: string(data)}).Err()
}

func (q *RedisQueue) deadLetter(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: q.dlqKey(),
		MaxLen: q.config.MaxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Err()
}

func (q *RedisQueue) retryLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.config.RetryPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
				q.logger.Warn("failed to promote retries", zap.Error(err))
			}
		}
	}
}

// PromoteDue moves retries due at or before now back onto the stream.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	return promoteScript.Run(ctx, q.rdb,
		[]string{q.retryKey(), q.config.Stream},
		now.UnixMilli(), q.config.BatchSize*10, q.config.MaxLen,
	).Int()
}

// DeadLetters returns up to count jobs from the dead-letter stream, oldest
// first.
func (q *RedisQueue) DeadLetters(ctx context.Context, count int64) ([]Job, error) {
	msgs, err := q.rdb.XRangeN(ctx, q.dlqKey(), "-", "+", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(msgs))
	for _, msg := range msgs {
		job, err := decodeMessage(msg)
		if err != nil {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// Ping satisfies the readiness probe signature used by the health handler.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func decodeMessage(msg redis.XMessage) (Job, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return Job{}, errors.New("missing data field")
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return Job{}, err
	}
	if job.Type == "" {
		return Job{}, errors.New("missing job type")
	}
	return job, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
