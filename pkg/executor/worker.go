package executor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dingodb/dingo-executor/pkg/log"
)

// ErrNotAvailable is returned by Worker.Execute when the worker has been
// destroyed. Pool Execute* methods report it as a false return.
var ErrNotAvailable = errors.New("executor: worker not available")

// ErrEnqueueFailed is returned when a task cannot be appended to a
// worker's private queue because it is already draining toward stop.
var ErrEnqueueFailed = errors.New("executor: enqueue failed")

// ErrAdmissionRejected names the rejection that occurs when a pool's
// max_pending bound has been exceeded. Pool Execute* methods do not return
// it; they report the rejection as a false return.
var ErrAdmissionRejected = errors.New("executor: admission rejected, pool over capacity")

// WorkerEventType is a Worker lifecycle event.
type WorkerEventType int

const (
	// EventAddTask fires synchronously from Execute once a task has been
	// accepted onto the worker's queue.
	EventAddTask WorkerEventType = iota
	// EventFinishTask fires from the drainer once a task's Run (or, for a
	// task drained during shutdown, its skip) has completed.
	EventFinishTask
)

// NotifyFunc receives Worker lifecycle events. It is called with no lock
// held and must not block.
type NotifyFunc func(WorkerEventType)

// Worker is a single execution engine: a private FIFO queue drained
// serially by one dedicated goroutine, with pending/total counters and a
// trace map for operator visibility.
type Worker struct {
	available atomic.Bool

	pendingCount atomic.Int32
	totalCount   atomic.Int64

	tracesMu sync.Mutex
	traces   map[int64]string

	mu            sync.Mutex
	cond          *sync.Cond
	queue         []*Task
	stopRequested bool

	runner Runner
	notify NotifyFunc
}

// NewWorker constructs a Worker. notify may be nil.
func NewWorker(notify NotifyFunc) *Worker {
	w := &Worker{
		traces: make(map[int64]string),
		runner: NewRunner(false),
		notify: notify,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Init starts the drainer goroutine and marks the worker available.
// Returns bool for parity with the other pool constructors, though
// starting the in-process queue cannot itself fail.
func (w *Worker) Init() bool {
	w.available.Store(true)
	w.runner.Spawn(w.drain)
	return true
}

// Execute enqueues task for serial execution on this worker. It fails
// with ErrNotAvailable if the worker has been destroyed, or
// ErrEnqueueFailed if the worker is mid-shutdown.
func (w *Worker) Execute(task *Task) error {
	if !w.available.Load() {
		return ErrNotAvailable
	}

	w.appendTrace(task)

	w.mu.Lock()
	if w.stopRequested {
		w.mu.Unlock()
		w.popTrace(task.ID())
		return ErrEnqueueFailed
	}
	w.queue = append(w.queue, task)
	w.mu.Unlock()
	w.cond.Signal()

	w.pendingCount.Add(1)
	w.totalCount.Add(1)
	w.fireNotify(EventAddTask)

	return nil
}

// drain runs on the worker's dedicated goroutine: it pulls tasks off the
// private queue in FIFO order and runs them to completion, one at a time.
// Once stop has been requested it keeps draining any already-queued tasks
// but skips calling Run on them — they are considered finished for
// bookkeeping purposes without having executed.
func (w *Worker) drain() {
	logger := log.WithComponent("execqueue")
	for {
		w.mu.Lock()
		for !w.stopRequested && len(w.queue) == 0 {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		task := w.queue[0]
		w.queue = w.queue[1:]
		stopping := w.stopRequested
		w.mu.Unlock()

		if task == nil {
			logger.Warn().Msg("execqueue: task is nil, skipping")
			continue
		}

		if stopping {
			logger.Info().Int64("task_id", task.ID()).Str("task_type", task.Type()).Msg("execqueue: task skipped, worker stopping")
		} else {
			start := time.Now()
			task.Run()
			logger.Debug().
				Int64("task_id", task.ID()).
				Str("task_type", task.Type()).
				Dur("elapsed", time.Since(start)).
				Msg("execqueue: task run complete")
		}

		w.popTrace(task.ID())
		w.pendingCount.Add(-1)
		w.fireNotify(EventFinishTask)
	}
}

// Destroy marks the worker unavailable, requests the drainer stop
// accepting waits, and blocks until every previously accepted task has
// completed (run or, if still queued when stop was requested, skipped).
func (w *Worker) Destroy() {
	w.available.Store(false)

	w.mu.Lock()
	w.stopRequested = true
	w.mu.Unlock()
	w.cond.Broadcast()

	w.runner.Join()
}

// PendingTaskCount returns the number of accepted-but-not-finished tasks.
func (w *Worker) PendingTaskCount() int32 { return w.pendingCount.Load() }

// TotalTaskCount returns the number of tasks ever accepted.
func (w *Worker) TotalTaskCount() int64 { return w.totalCount.Load() }

// GetPendingTraces returns a snapshot of trace strings for tasks that have
// been accepted but not yet finished.
func (w *Worker) GetPendingTraces() []string {
	w.tracesMu.Lock()
	defer w.tracesMu.Unlock()

	traces := make([]string, 0, len(w.traces))
	for _, trace := range w.traces {
		traces = append(traces, trace)
	}
	return traces
}

func (w *Worker) appendTrace(task *Task) {
	if task.Trace() == "" {
		return
	}
	w.tracesMu.Lock()
	w.traces[task.ID()] = task.Trace()
	w.tracesMu.Unlock()
}

func (w *Worker) popTrace(id int64) {
	w.tracesMu.Lock()
	delete(w.traces, id)
	w.tracesMu.Unlock()
}

func (w *Worker) fireNotify(event WorkerEventType) {
	if w.notify != nil {
		w.notify(event)
	}
}
