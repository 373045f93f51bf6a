package executor

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dingodb/dingo-executor/pkg/log"
	"github.com/dingodb/dingo-executor/pkg/metrics"
)

// PoolMode selects a SimpleWorkerPool's queue discipline and backing,
// derived at construction from use_os_thread and use_priority.
type PoolMode int

const (
	ThreadFifo PoolMode = iota
	FiberFifo
	ThreadPriority
	FiberPriority
)

func poolMode(useOSThread, usePriority bool) PoolMode {
	switch {
	case useOSThread && usePriority:
		return ThreadPriority
	case useOSThread:
		return ThreadFifo
	case usePriority:
		return FiberPriority
	default:
		return FiberFifo
	}
}

// SimpleWorkerPool is a pool with one shared queue (FIFO or priority
// heap), served by N OS-threads or N goroutines. ExecuteRR,
// ExecuteLeastQueue and ExecuteHashByKey all delegate to Execute: with a
// single shared queue, dispatch policy has nothing to select between.
type SimpleWorkerPool struct {
	name       string
	workerNum  uint32
	maxPending int64
	mode       PoolMode

	mu            sync.Mutex
	cond          *sync.Cond
	fifo          []*Task
	priorityQueue taskHeap
	pendingCount  int // guarded by mu; single source of truth for the wake predicate
	stopRequested bool

	destroyed      atomic.Bool
	stoppedWorkers atomic.Int32
	runner         Runner

	pendingCountTotal atomic.Int64
	totalCountTotal   atomic.Int64

	metrics *metrics.SimpleWorkerSetMetrics
}

// NewSimpleWorkerPool constructs a SimpleWorkerPool. maxPending <= 0 means
// unbounded admission. Call Init before use.
func NewSimpleWorkerPool(name string, workerNum uint32, maxPending int64, useOSThread, usePriority bool) *SimpleWorkerPool {
	p := &SimpleWorkerPool{
		name:       name,
		workerNum:  workerNum,
		maxPending: maxPending,
		mode:       poolMode(useOSThread, usePriority),
		runner:     NewRunner(useOSThread),
		metrics:    metrics.ForSimpleWorkerSet(name),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Init launches worker_num runner loops.
func (p *SimpleWorkerPool) Init() bool {
	for i := uint32(0); i < p.workerNum; i++ {
		idx := i
		p.runner.Spawn(func() { p.runLoop(idx) })
	}
	return true
}

func (p *SimpleWorkerPool) usesPriority() bool {
	return p.mode == ThreadPriority || p.mode == FiberPriority
}

func (p *SimpleWorkerPool) runLoop(index uint32) {
	logger := log.WithComponent("simple_worker_set").With().Str("pool", p.name).Uint32("worker", index).Logger()

	for {
		p.mu.Lock()
		for !p.stopRequested && p.pendingCount == 0 {
			p.cond.Wait()
		}
		if p.stopRequested && p.pendingCount == 0 {
			p.mu.Unlock()
			break
		}
		task := p.popLocked()
		p.mu.Unlock()

		if task != nil {
			waitUs := time.Now().UnixMicro() - task.CreatedAtUs()
			p.metrics.QueueWaitLatency.Observe(float64(waitUs))

			start := time.Now()
			task.Run()
			runUs := time.Since(start).Microseconds()
			p.metrics.QueueRunLatency.Observe(float64(runUs))

			logger.Debug().Int64("task_id", task.ID()).Dur("elapsed", time.Since(start)).Msg("simple_worker_set: task run complete")

			p.decPendingCount()
		}
	}

	p.stoppedWorkers.Add(1)
}

// popLocked must be called with mu held. It removes and returns the next
// task according to the pool's mode, or nil if the queue is empty.
func (p *SimpleWorkerPool) popLocked() *Task {
	if p.usesPriority() {
		if p.priorityQueue.Len() == 0 {
			return nil
		}
		return heap.Pop(&p.priorityQueue).(*Task)
	}
	if len(p.fifo) == 0 {
		return nil
	}
	task := p.fifo[0]
	p.fifo = p.fifo[1:]
	return task
}

// Execute admits task onto the shared queue. Admission uses the same
// strict-greater-than check as ExecqWorkerPool.
func (p *SimpleWorkerPool) Execute(task *Task) bool {
	if p.overCapacity() {
		return false
	}

	p.mu.Lock()
	if p.usesPriority() {
		heap.Push(&p.priorityQueue, task)
	} else {
		p.fifo = append(p.fifo, task)
	}
	p.pendingCount++
	p.mu.Unlock()

	p.incTotalCount()
	p.incPendingCount()
	p.cond.Signal()

	return true
}

// ExecuteRR delegates to Execute: the single shared queue makes dispatch
// policy moot.
func (p *SimpleWorkerPool) ExecuteRR(task *Task) bool { return p.Execute(task) }

// ExecuteLeastQueue delegates to Execute.
func (p *SimpleWorkerPool) ExecuteLeastQueue(task *Task) bool { return p.Execute(task) }

// ExecuteHashByKey delegates to Execute; key is ignored.
func (p *SimpleWorkerPool) ExecuteHashByKey(_ int64, task *Task) bool { return p.Execute(task) }

func (p *SimpleWorkerPool) overCapacity() bool {
	if p.maxPending <= 0 {
		return false
	}
	if p.pendingCountTotal.Load() > p.maxPending {
		log.WithComponent("simple_worker_set").Warn().
			Str("pool", p.name).
			Int64("pending", p.pendingCountTotal.Load()).
			Int64("max_pending", p.maxPending).
			Msg("simple_worker_set: exceed max pending task limit")
		return true
	}
	return false
}

// Destroy is idempotent: it requests stop, waits for every runner loop to
// observe it and drain its remaining queue, then joins them. A second
// call is a no-op.
func (p *SimpleWorkerPool) Destroy() {
	if !p.destroyed.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	p.stopRequested = true
	p.mu.Unlock()

	for p.stoppedWorkers.Load() < int32(p.workerNum) {
		p.cond.Broadcast()
		time.Sleep(100 * time.Millisecond)
	}

	p.runner.Join()
}

func (p *SimpleWorkerPool) decPendingCount() {
	p.mu.Lock()
	p.pendingCount--
	p.mu.Unlock()

	p.pendingCountTotal.Add(-1)
	p.metrics.PendingTaskCount.Dec()
}

func (p *SimpleWorkerPool) incPendingCount() {
	p.pendingCountTotal.Add(1)
	p.metrics.PendingTaskCount.Inc()
}

func (p *SimpleWorkerPool) incTotalCount() {
	p.totalCountTotal.Add(1)
	p.metrics.TotalTaskCount.Inc()
}

// PendingCount returns the number of accepted-but-not-finished tasks.
func (p *SimpleWorkerPool) PendingCount() int64 { return p.pendingCountTotal.Load() }

// TotalCount returns the number of tasks ever accepted.
func (p *SimpleWorkerPool) TotalCount() int64 { return p.totalCountTotal.Load() }

// PendingTaskTraces always returns an empty set: the shared-queue pool
// does not track per-task traces (only ExecqWorkerPool does).
func (p *SimpleWorkerPool) PendingTaskTraces() [][]string {
	return [][]string{}
}

// Name returns the pool's metric-key label.
func (p *SimpleWorkerPool) Name() string { return p.name }
