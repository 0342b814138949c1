package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/metrics"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Backoff returns the delay before retry number attempt (1-based):
// base, 2*base, 4*base, ... capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Job is a cache write that must eventually land.
type Job struct {
	ID       string
	Key      string
	Desc     string
	Apply    func(ctx context.Context) error
	Attempts int
	Queued   time.Time
}

// Queue retries failed cache writes with exponential backoff and no retry
// limit. Jobs are never dropped while the queue runs; on Close the ones still
// pending are logged.
type Queue struct {
	base, max time.Duration
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*Job
	count   atomic.Int64
}

func NewQueue(base, max time.Duration) *Queue {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max < base {
		max = DefaultMaxDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		base:    base,
		max:     max,
		timeout: 10 * time.Second,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*Job),
	}
}

// Enqueue schedules apply for retry. The first attempt happens after one base delay.
func (q *Queue) Enqueue(key, desc string, apply func(ctx context.Context) error) string {
	job := &Job{ID: uuid.NewString(), Key: key, Desc: desc, Apply: apply, Queued: time.Now()}
	q.mu.Lock()
	q.pending[job.ID] = job
	q.mu.Unlock()
	metrics.ReconcilePending.Set(float64(q.count.Add(1)))
	logger.Warnf("reconcile: queued cache write %s (%s) for %s", job.ID, desc, key)

	q.wg.Add(1)
	go q.run(job)
	return job.ID
}

func (q *Queue) run(job *Job) {
	defer q.wg.Done()
	for {
		job.Attempts++
		timer := time.NewTimer(Backoff(job.Attempts, q.base, q.max))
		select {
		case <-q.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
		err := job.Apply(ctx)
		cancel()
		if err == nil {
			metrics.ReconcileRetries.WithLabelValues("success").Inc()
			q.mu.Lock()
			delete(q.pending, job.ID)
			q.mu.Unlock()
			metrics.ReconcilePending.Set(float64(q.count.Add(-1)))
			logger.Infof("reconcile: %s (%s) applied after %d attempt(s)", job.ID, job.Desc, job.Attempts)
			return
		}
		metrics.ReconcileRetries.WithLabelValues("failure").Inc()
		logger.Warnf("reconcile: %s (%s) attempt %d failed: %v", job.ID, job.Desc, job.Attempts, err)
	}
}

// Pending returns the number of jobs not yet applied.
func (q *Queue) Pending() int {
	return int(q.count.Load())
}

// Close stops retrying and reports the jobs left behind.
func (q *Queue) Close() []Job {
	q.cancel()
	q.wg.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	left := make([]Job, 0, len(q.pending))
	for _, j := range q.pending {
		logger.Errorf("reconcile: shutdown with pending cache write %s (%s) for %s", j.ID, j.Desc, j.Key)
		left = append(left, *j)
	}
	return left
}
