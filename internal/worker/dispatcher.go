package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/roastpage/internal/logger"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrStopped is returned by Submit after Shutdown has begun.
	ErrStopped = errors.New("worker dispatcher is stopped")
)

// Task is a unit of background work. ctx is cancelled when the dispatcher
// is forced to stop.
type Task func(ctx context.Context) error

type job struct {
	name   string
	fields logger.Fields
	fn     Task
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Dispatcher runs submitted tasks on a fixed pool of goroutines fed by a
// bounded queue.
type Dispatcher struct {
	workers int
	queue   chan job
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}

	mu      sync.RWMutex
	stopped bool

	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewDispatcher starts workers goroutines consuming a queue of queueSize.
// Tasks inherit parent's values (the logger included) but not its cancellation.
func NewDispatcher(parent context.Context, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	d := &Dispatcher{
		workers: workers,
		queue:   make(chan job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		group:   &errgroup.Group{},
		done:    make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		id := i
		d.group.Go(func() error {
			d.work(id)
			return nil
		})
	}
	go func() {
		_ = d.group.Wait()
		close(d.done)
	}()

	return d
}

// Submit enqueues fn without blocking.
func (d *Dispatcher) Submit(name string, fields logger.Fields, fn Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- job{name: name, fields: fields, fn: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for queued and running tasks. When ctx
// expires first, running tasks are cancelled, tasks still queued are
// dropped, and ctx's error is returned once the workers have exited.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Workers:   d.workers,
		Queued:    len(d.queue),
		Running:   d.running.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
	}
}

func (d *Dispatcher) work(id int) {
	for j := range d.queue {
		if d.ctx.Err() != nil {
			d.failed.Add(1)
			logger.With(j.fields).WithField("task", j.name).Warn(d.ctx, "Dropping task: dispatcher stopped")
			continue
		}
		d.run(id, j)
	}
}

func (d *Dispatcher) run(id int, j job) {
	ctx := logger.WithFields(d.ctx, j.fields)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldWorker: id,
		"task":             j.name,
	})

	start := time.Now()
	d.running.Add(1)
	defer d.running.Add(-1)

	err := d.safeCall(ctx, j.fn)
	if err != nil {
		d.failed.Add(1)
		logger.With(logger.Fields{logger.FieldStatus: "failed"}).
			WithDuration(start).
			Error(ctx, "Task failed: %v", err)
		return
	}
	d.completed.Add(1)
	logger.With(logger.Fields{logger.FieldStatus: "ok"}).
		WithDuration(start).
		Debug(ctx, "Task finished")
}

func (d *Dispatcher) safeCall(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Error("Task panicked")
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
