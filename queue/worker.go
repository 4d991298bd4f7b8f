package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/ria/logging"
)

// HandlerFunc processes one job. The context carries the job's request ID
// (see logging.RequestID).
type HandlerFunc func(ctx context.Context, job Job) error

// Worker pops jobs and dispatches them to handlers by type. Failed jobs are
// logged and dropped.
type Worker struct {
	queue       *Queue
	log         logrus.FieldLogger
	concurrency int
	pollTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets how many jobs run at once. Values below 1 mean 1.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) { w.concurrency = n }
}

// WithPollTimeout sets the BRPOP timeout.
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollTimeout = d }
}

// WithRegisterer records ria_worker_jobs_total and
// ria_worker_job_duration_seconds on reg.
func WithRegisterer(reg prometheus.Registerer) WorkerOption {
	return func(w *Worker) {
		factory := promauto.With(reg)
		w.processed = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ria",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Jobs processed by type and outcome",
		}, []string{"type", "status"})
		w.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ria",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Job handler duration",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"type"})
	}
}

// NewWorker returns a Worker consuming q.
func NewWorker(q *Queue, log logrus.FieldLogger, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       q,
		log:         log,
		concurrency: 1,
		pollTimeout: 5 * time.Second,
		handlers:    make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	return w
}

// Handle registers h for jobType, replacing any previous handler.
func (w *Worker) Handle(jobType string, h HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

// Run consumes jobs until ctx is cancelled. Jobs already started finish
// with the cancelled context. Run returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithFields(logrus.Fields{
		"queue":       w.queue.Name(),
		"concurrency": w.concurrency,
	}).Info("worker started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		id := i
		g.Go(func() error { return w.loop(gctx, id) })
	}
	err := g.Wait()

	w.log.Info("worker stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context, id int) error {
	log := w.log.WithField("worker", id)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			log.WithError(err).WithField("retry_in", wait.String()).Warn("failed to dequeue job")
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		bo.Reset()
		if job == nil {
			continue
		}

		_ = w.Process(ctx, *job)
	}
}

// Process runs the handler registered for job.Type. Errors and panics are
// logged and returned; the job is not retried.
func (w *Worker) Process(ctx context.Context, job Job) (err error) {
	w.mu.RLock()
	h, ok := w.handlers[job.Type]
	w.mu.RUnlock()

	ctx = logging.WithRequestID(ctx, job.RequestID)
	log := logging.FromContext(ctx, w.log).WithFields(logrus.Fields{
		"job_id":   job.ID,
		"job_type": job.Type,
	})

	if !ok {
		err = fmt.Errorf("%w: %q", ErrUnknownJobType, job.Type)
		log.WithError(err).Error("dropping job")
		w.observe(job.Type, "unknown", 0)
		return err
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
			log.WithField("stack", string(debug.Stack())).WithError(err).Error("job panicked")
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		w.observe(job.Type, status, time.Since(started))
	}()

	log.Info("job started")
	if err = h(ctx, job); err != nil {
		log.WithError(err).Error("job failed")
		return err
	}
	log.WithField("duration_ms", time.Since(started).Milliseconds()).Info("job finished")
	return nil
}

func (w *Worker) observe(jobType, status string, d time.Duration) {
	if w.processed == nil {
		return
	}
	w.processed.WithLabelValues(jobType, status).Inc()
	if status != "unknown" {
		w.duration.WithLabelValues(jobType).Observe(d.Seconds())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
