package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAndWait(t *testing.T, pool *ExecqWorkerPool, n int, submit func(done func())) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		submit(wg.Done)
	}
	waitTimeout(t, &wg, time.Second)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for tasks to complete")
	}
}

func TestExecqWorkerPool_RoundRobinDistributesAcrossWorkers(t *testing.T) {
	const workers = 4
	pool := NewExecqWorkerPool("rr", workers, 0)
	require.True(t, pool.Init())
	defer pool.Destroy()

	release := make(chan struct{})
	for i := 0; i < workers; i++ {
		task := NewTask("blocker", RunnableFunc(func() { <-release }), WithTrace("w"))
		require.True(t, pool.ExecuteRR(task))
	}

	// one blocking task per worker, submitted round-robin: every worker
	// must now hold exactly one pending trace.
	require.Eventually(t, func() bool {
		for _, traces := range pool.PendingTaskTraces() {
			if len(traces) != 1 {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	close(release)
	assert.Equal(t, int64(workers), pool.TotalCount())
}

func TestExecqWorkerPool_HashByKeyPreservesFIFOPerKey(t *testing.T) {
	pool := NewExecqWorkerPool("hash", 4, 0)
	require.True(t, pool.Init())
	defer pool.Destroy()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	const n = 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		task := NewTask("probe", RunnableFunc(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
		require.True(t, pool.ExecuteHashByKey(7, task))
	}
	waitTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, order[i], "tasks submitted with the same hash key must run in submission order")
	}
}

func TestExecqWorkerPool_AdmissionBoundIsStrictlyGreaterThan(t *testing.T) {
	pool := NewExecqWorkerPool("bounded", 1, 2)
	require.True(t, pool.Init())
	defer pool.Destroy()

	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	first := NewTask("blocker", RunnableFunc(func() {
		once.Do(func() { close(started) })
		<-block
	}))
	require.True(t, pool.ExecuteRR(first))
	<-started

	// pending == 1 (<=2, admitted), pending == 2 (<=2, admitted), pending == 3 (>2, rejected)
	require.True(t, pool.ExecuteRR(NewTask("queued", RunnableFunc(func() { <-block }))))
	require.True(t, pool.ExecuteRR(NewTask("queued", RunnableFunc(func() { <-block }))))
	assert.False(t, pool.ExecuteRR(NewTask("overflow", RunnableFunc(func() {}))), "a pending count exceeding max_pending must be rejected")

	close(block)
}

func TestExecqWorkerPool_PendingTaskTracesReflectsInFlightWork(t *testing.T) {
	pool := NewExecqWorkerPool("traces", 1, 0)
	require.True(t, pool.Init())
	defer pool.Destroy()

	release := make(chan struct{})
	started := make(chan struct{})
	task := NewTask("slow", RunnableFunc(func() {
		close(started)
		<-release
	}), WithTrace("trace-1"))
	require.True(t, pool.ExecuteRR(task))

	<-started
	traces := pool.PendingTaskTraces()
	require.Len(t, traces, 1)
	assert.Contains(t, traces[0], "trace-1")

	close(release)
}

func TestExecqWorkerPool_DestroyDrainsQueuedTasksWithoutRunningThem(t *testing.T) {
	pool := NewExecqWorkerPool("destroy", 1, 0)
	require.True(t, pool.Init())

	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Bool

	blocker := NewTask("blocker", RunnableFunc(func() {
		close(started)
		<-release
	}))
	require.True(t, pool.ExecuteRR(blocker))
	<-started

	queued := NewTask("skip-me", RunnableFunc(func() { ran.Store(true) }))
	require.True(t, pool.ExecuteRR(queued))

	doneDestroy := make(chan struct{})
	go func() {
		pool.Destroy()
		close(doneDestroy)
	}()

	// release the blocker only once Destroy has requested stop, so the
	// queued task is still waiting when the drainer sees the stop flag.
	w := pool.workers[0]
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.stopRequested
	}, time.Second, time.Millisecond)

	close(release)
	select {
	case <-doneDestroy:
	case <-time.After(time.Second):
		t.Fatal("Destroy did not return")
	}
	assert.False(t, ran.Load(), "a task still queued when stop was requested must be skipped, not run")
}
