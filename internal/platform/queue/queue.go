// Package queue implements the evaluation job queue over Redis. Evaluation
// requests are enqueued on check-in submission and by the nightly batch, and
// consumed by a bounded pool of workers. Failed units of work are retried
// with exponential backoff up to a fixed attempt count, then parked on a
// dead list visible to operators.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	queueKey = "mindlog:eval:queue"
	retryKey = "mindlog:eval:retry"
	deadKey  = "mindlog:eval:dead"
)

// TriggerSource identifies what initiated an evaluation request.
type TriggerSource string

const (
	TriggerImmediate    TriggerSource = "immediate"
	TriggerNightlyBatch TriggerSource = "nightly-batch"
)

// Job is one (patient, as-of-date) unit of evaluation work.
type Job struct {
	PatientID   uuid.UUID     `json:"patient_id"`
	OrgID       uuid.UUID     `json:"org_id"`
	EntryDate   time.Time     `json:"entry_date"`
	TriggeredBy TriggerSource `json:"triggered_by"`
	Attempt     int           `json:"attempt"`
}

// Handler processes one unit of work. A returned error causes the job to be
// retried with backoff.
type Handler interface {
	Process(ctx context.Context, job Job) error
}

// Queue wraps the Redis transport for evaluation jobs.
type Queue struct {
	client      *redis.Client
	maxAttempts int
	logger      zerolog.Logger
}

func New(client *redis.Client, maxAttempts int, logger zerolog.Logger) *Queue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Queue{client: client, maxAttempts: maxAttempts, logger: logger}
}

// Enqueue pushes a job onto the evaluation queue.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Length returns the number of jobs waiting on the main queue.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, queueKey).Result()
}

// DeadLength returns the number of jobs that exhausted their retries.
func (q *Queue) DeadLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, deadKey).Result()
}

// scheduleRetry parks a failed job. Jobs that exhausted their attempts go to
// the dead list; the next nightly batch naturally re-covers their patients.
func (q *Queue) scheduleRetry(ctx context.Context, job Job, cause error) {
	job.Attempt++
	data, err := json.Marshal(job)
	if err != nil {
		q.logger.Error().Err(err).Msg("failed to marshal job for retry")
		return
	}

	if job.Attempt >= q.maxAttempts {
		if err := q.client.LPush(ctx, deadKey, data).Err(); err != nil {
			q.logger.Error().Err(err).Msg("failed to park job on dead list")
			return
		}
		q.logger.Error().
			Err(cause).
			Str("patient_id", job.PatientID.String()).
			Int("attempts", job.Attempt).
			Msg("evaluation job exhausted retries")
		return
	}

	delay := backoff(job.Attempt)
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, retryKey, redis.Z{Score: due, Member: data}).Err(); err != nil {
		q.logger.Error().Err(err).Msg("failed to schedule job retry")
		return
	}
	q.logger.Warn().
		Err(cause).
		Str("patient_id", job.PatientID.String()).
		Int("attempt", job.Attempt).
		Dur("backoff", delay).
		Msg("evaluation job failed, retry scheduled")
}

// backoff computes the retry delay: 5s * 2^(attempt-1), capped at 10 minutes,
// with ±25% jitter.
func backoff(attempt int) time.Duration {
	d := float64(5*time.Second) * math.Pow(2, float64(attempt-1))
	if d > float64(10*time.Minute) {
		d = float64(10 * time.Minute)
	}
	d += d * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(d)
}

// Consumer runs a bounded pool of workers against the queue.
type Consumer struct {
	queue       *Queue
	handler     Handler
	concurrency int
	logger      zerolog.Logger
}

func NewConsumer(q *Queue, handler Handler, concurrency int, logger zerolog.Logger) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{queue: q, handler: handler, concurrency: concurrency, logger: logger}
}

// Run starts the worker pool and the retry pump, blocking until ctx is
// cancelled.
func (c *Consumer) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < c.concurrency; i++ {
		go func(worker int) {
			c.workerLoop(ctx, worker)
			done <- struct{}{}
		}(i)
	}
	go func() {
		c.retryPump(ctx)
		done <- struct{}{}
	}()

	for i := 0; i < c.concurrency+1; i++ {
		<-done
	}
}

func (c *Consumer) workerLoop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.queue.client.BRPop(ctx, time.Second, queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error().Err(err).Int("worker", worker).Msg("queue pop failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			c.logger.Error().Err(err).Msg("discarding malformed job payload")
			continue
		}

		if err := c.handler.Process(ctx, job); err != nil {
			c.queue.scheduleRetry(ctx, job, err)
		}
	}
}

// retryPump moves due retries back onto the main queue. ZRem before LPush so
// that concurrent engine instances never replay the same member twice.
func (c *Consumer) retryPump(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := fmt.Sprintf("%d", time.Now().UnixMilli())
		members, err := c.queue.client.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
			Min: "-inf", Max: now, Count: 100,
		}).Result()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Error().Err(err).Msg("retry scan failed")
			}
			continue
		}

		for _, member := range members {
			removed, err := c.queue.client.ZRem(ctx, retryKey, member).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := c.queue.client.LPush(ctx, queueKey, member).Err(); err != nil {
				c.logger.Error().Err(err).Msg("failed to requeue retry")
			}
		}
	}
}
