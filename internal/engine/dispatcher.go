package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type task struct {
	id   string
	name string
	fn   func(ctx context.Context)
}

// Dispatcher runs controller work units on a fixed pool of workers. Submit
// acknowledges immediately (up to the queue capacity); the work itself may
// block its worker on external commands or filesystem calls without stalling
// unrelated entities.
type Dispatcher struct {
	tasks  chan task
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewDispatcher starts workers goroutines consuming a queue of queueSize
// pending tasks.
func NewDispatcher(workers, queueSize int, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		tasks:  make(chan task, queueSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit enqueues a work unit. Each task gets a ulid so its log lines can be
// correlated. Submit blocks only when the queue is full, and must not be
// called after Shutdown.
func (d *Dispatcher) Submit(name string, fn func(ctx context.Context)) {
	queueDepth.Inc()
	d.tasks <- task{id: ulid.Make().String(), name: name, fn: fn}
}

// Shutdown stops accepting tasks and blocks until queued work drains. Tasks
// in flight are not cancelled; they run to completion.
func (d *Dispatcher) Shutdown() {
	close(d.tasks)
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.tasks {
		queueDepth.Dec()
		start := time.Now()
		d.logger.Debug("task start", "task_id", t.id, "task", t.name)

		// Background context: in-flight work is never cancelled, matching
		// the resolve-don't-abandon posture of the lifecycle controllers.
		t.fn(context.Background())

		tasksTotal.WithLabelValues(t.name).Inc()
		d.logger.Debug("task done", "task_id", t.id, "task", t.name,
			"duration_ms", time.Since(start).Milliseconds())
	}
}
