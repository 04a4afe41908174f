// Package dispatch runs best-effort side effects (notifications, emails) off
// the request path. Tasks are queued on a bounded channel and drained by a
// fixed worker pool; a full queue drops the task rather than blocking the
// caller. Tasks are never retried.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// TaskFunc is a unit of side-effect work. The context it receives is detached
// from the submitting request and bounded by the dispatcher's task timeout.
type TaskFunc func(ctx context.Context) error

// Submitter accepts fire-and-forget tasks.
type Submitter interface {
	Submit(name string, fn TaskFunc)
}

type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 256, TaskTimeout: 15 * time.Second}
}

type task struct {
	name     string
	fn       TaskFunc
	enqueued time.Time
}

// Dispatcher is the asynchronous Submitter used by the server.
type Dispatcher struct {
	cfg    Config
	logger zerolog.Logger
	queue  chan task
	pool   *pool.Pool

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

// New starts cfg.Workers workers. Call Stop to drain and release them.
func New(cfg Config, logger zerolog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: logger.With().Str("component", "dispatch").Logger(),
		queue:  make(chan task, cfg.QueueSize),
		pool:   pool.New().WithMaxGoroutines(cfg.Workers),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.pool.Go(d.worker)
	}
	return d
}

// Submit enqueues fn without blocking. When the queue is full or the
// dispatcher is stopping the task is dropped and logged.
func (d *Dispatcher) Submit(name string, fn TaskFunc) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(name, "dispatcher stopped")
		return
	}
	select {
	case d.queue <- task{name: name, fn: fn, enqueued: time.Now()}:
		getMetrics().queueDepth.Set(float64(len(d.queue)))
	default:
		d.drop(name, "queue full")
	}
}

func (d *Dispatcher) drop(name, reason string) {
	getMetrics().tasks.WithLabelValues(name, outcomeDropped).Inc()
	d.logger.Warn().Str("task", name).Str("reason", reason).Msg("side effect dropped")
}

// Len reports the number of queued tasks.
func (d *Dispatcher) Len() int {
	return len(d.queue)
}

func (d *Dispatcher) worker() {
	for t := range d.queue {
		getMetrics().queueDepth.Set(float64(len(d.queue)))
		getMetrics().queueWait.Observe(time.Since(t.enqueued).Seconds())
		run(d.logger, d.cfg.TaskTimeout, t.name, t.fn)
	}
}

// Stop rejects new tasks and waits for queued ones to finish or for ctx to
// expire, whichever comes first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		go func() {
			d.pool.Wait()
			close(d.done)
		}()
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher drain: %d tasks abandoned: %w", len(d.queue), ctx.Err())
	}
}

// run executes one task with its own timeout, converting panics to failures.
func run(logger zerolog.Logger, timeout time.Duration, name string, fn TaskFunc) {
	m := getMetrics()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	outcome := outcomeSucceeded
	defer func() {
		if r := recover(); r != nil {
			var stack [4096]byte
			n := runtime.Stack(stack[:], false)
			logger.Error().
				Str("task", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(stack[:n])).
				Msg("side effect panicked")
			outcome = outcomePanicked
		}
		m.tasks.WithLabelValues(name, outcome).Inc()
		m.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	if err := fn(ctx); err != nil {
		outcome = outcomeFailed
		logger.Error().Err(err).Str("task", name).Dur("elapsed", time.Since(start)).Msg("side effect failed")
	}
}

// Sync runs tasks inline on Submit. It is used by tests and CLI commands
// where there is no long-lived worker pool.
type Sync struct {
	logger  zerolog.Logger
	timeout time.Duration
}

func NewSync(logger zerolog.Logger) *Sync {
	return &Sync{logger: logger, timeout: DefaultConfig().TaskTimeout}
}

func (s *Sync) Submit(name string, fn TaskFunc) {
	run(s.logger, s.timeout, name, fn)
}
