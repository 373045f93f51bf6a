package executor

import (
	"sync/atomic"

	"github.com/dingodb/dingo-executor/pkg/log"
	"github.com/dingodb/dingo-executor/pkg/metrics"
)

// ExecqWorkerPool is a fixed-size set of Workers, each with its own
// private FIFO queue and drainer goroutine, dispatched across by one of
// three policies (round-robin, least-loaded, hash-by-key) and bounded by
// an optional admission limit.
type ExecqWorkerPool struct {
	name       string
	workerNum  uint32
	maxPending int64

	workers     []*Worker
	activeIndex atomic.Uint64

	pendingCountTotal atomic.Int64
	totalCountTotal   atomic.Int64

	metrics *metrics.WorkerSetMetrics
}

// NewExecqWorkerPool constructs an ExecqWorkerPool with workerNum workers.
// maxPending <= 0 means unbounded admission. Call Init before use.
func NewExecqWorkerPool(name string, workerNum uint32, maxPending int64) *ExecqWorkerPool {
	return &ExecqWorkerPool{
		name:       name,
		workerNum:  workerNum,
		maxPending: maxPending,
		metrics:    metrics.ForWorkerSet(name),
	}
}

// Init starts every worker's drainer. Returns false if any worker fails
// to start.
func (p *ExecqWorkerPool) Init() bool {
	p.workers = make([]*Worker, 0, p.workerNum)
	for i := uint32(0); i < p.workerNum; i++ {
		w := NewWorker(p.watchWorker)
		if !w.Init() {
			return false
		}
		p.workers = append(p.workers, w)
	}
	return true
}

// Destroy destroys every worker, waiting for in-flight tasks to finish.
func (p *ExecqWorkerPool) Destroy() {
	for _, w := range p.workers {
		w.Destroy()
	}
}

// ExecuteRR dispatches task to the next worker in round-robin order.
func (p *ExecqWorkerPool) ExecuteRR(task *Task) bool {
	if p.overCapacity() {
		return false
	}
	idx := p.activeIndex.Add(1) - 1
	worker := p.workers[idx%uint64(p.workerNum)]
	return p.dispatch(worker, task)
}

// ExecuteLeastQueue dispatches task to the worker with the fewest pending
// tasks, ties broken by lowest index.
func (p *ExecqWorkerPool) ExecuteLeastQueue(task *Task) bool {
	if p.overCapacity() {
		return false
	}
	return p.dispatch(p.workers[p.leastPendingWorker()], task)
}

// ExecuteHashByKey dispatches task to worker[key % worker_num]. All tasks
// submitted with the same key therefore execute in submission order.
func (p *ExecqWorkerPool) ExecuteHashByKey(key int64, task *Task) bool {
	if p.overCapacity() {
		return false
	}
	idx := key % int64(p.workerNum)
	if idx < 0 {
		idx += int64(p.workerNum)
	}
	return p.dispatch(p.workers[idx], task)
}

func (p *ExecqWorkerPool) dispatch(worker *Worker, task *Task) bool {
	if err := worker.Execute(task); err != nil {
		log.WithComponent("execqueue").Warn().
			Err(err).Str("pool", p.name).Str("task_type", task.Type()).
			Msg("execqueue: dispatch failed")
		return false
	}
	p.incPendingCount()
	p.incTotalCount()
	return true
}

// overCapacity mirrors the strict-greater-than admission check: capacity
// is effectively max_pending+1 (see DESIGN.md Open Question 1).
func (p *ExecqWorkerPool) overCapacity() bool {
	if p.maxPending <= 0 {
		return false
	}
	if p.pendingCountTotal.Load() > p.maxPending {
		log.WithComponent("execqueue").Warn().
			Str("pool", p.name).
			Int64("pending", p.pendingCountTotal.Load()).
			Int64("max_pending", p.maxPending).
			Msg("execqueue: exceed max pending task limit")
		return true
	}
	return false
}

func (p *ExecqWorkerPool) leastPendingWorker() uint32 {
	index := uint32(0)
	minPending := int32(1<<31 - 1)
	for i, w := range p.workers {
		if pc := w.PendingTaskCount(); pc < minPending {
			minPending = pc
			index = uint32(i)
		}
	}
	return index
}

// watchWorker subscribes to every worker's lifecycle events so the pool's
// own pending-count aggregate stays in sync without taking any lock.
func (p *ExecqWorkerPool) watchWorker(event WorkerEventType) {
	if event == EventFinishTask {
		p.decPendingCount()
	}
}

func (p *ExecqWorkerPool) incTotalCount() {
	p.totalCountTotal.Add(1)
	p.metrics.TotalTaskCount.Inc()
}

func (p *ExecqWorkerPool) incPendingCount() {
	p.pendingCountTotal.Add(1)
	p.metrics.PendingTaskCount.Inc()
}

func (p *ExecqWorkerPool) decPendingCount() {
	p.pendingCountTotal.Add(-1)
	p.metrics.PendingTaskCount.Dec()
}

// PendingCount returns the number of accepted-but-not-finished tasks
// across all workers.
func (p *ExecqWorkerPool) PendingCount() int64 { return p.pendingCountTotal.Load() }

// TotalCount returns the number of tasks ever accepted by the pool.
func (p *ExecqWorkerPool) TotalCount() int64 { return p.totalCountTotal.Load() }

// PendingTaskTraces returns one trace slice per worker, in worker order.
func (p *ExecqWorkerPool) PendingTaskTraces() [][]string {
	traces := make([][]string, 0, len(p.workers))
	for _, w := range p.workers {
		traces = append(traces, w.GetPendingTraces())
	}
	return traces
}

// Name returns the pool's metric-key label.
func (p *ExecqWorkerPool) Name() string { return p.name }
