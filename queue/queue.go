// Package queue is a small Redis-backed job queue: producers LPUSH JSON
// jobs onto a list and workers BRPOP them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueue is the list every job goes to unless configured otherwise.
const DefaultQueue = "ria:queue:default"

// Job types handled by the worker.
const (
	TypeProcessResume = "process_resume"
	TypeUploadResume  = "upload_resume"
	TypeAnalyzeResume = "analyze_resume"
)

// ErrUnknownJobType is returned for jobs no handler is registered for.
var ErrUnknownJobType = errors.New("unknown job type")

// Job is the unit of work stored in the queue.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	RequestID  string          `json:"request_id"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", j.Type, err)
	}
	return nil
}

// Queue pushes and pops jobs on one Redis list.
type Queue struct {
	rdb   redis.Cmdable
	name  string
	newID func() string
	now   func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithName uses list name instead of DefaultQueue.
func WithName(name string) Option {
	return func(q *Queue) { q.name = name }
}

// New returns a Queue on rdb.
func New(rdb redis.Cmdable, opts ...Option) *Queue {
	q := &Queue{
		rdb:   rdb,
		name:  DefaultQueue,
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the Redis list name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue pushes a job of jobType carrying payload and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, jobType, requestID string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	job := Job{
		ID:         q.newID(),
		Type:       jobType,
		RequestID:  requestID,
		Payload:    raw,
		EnqueuedAt: q.now().UTC(),
	}
	if err := q.push(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *Queue) push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", job.Type, err)
	}
	return nil
}

// Dequeue waits up to timeout for a job. It returns nil, nil when the wait
// times out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue from %s: %w", q.name, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// Len returns the number of waiting jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}
