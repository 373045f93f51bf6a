/*
Package executor implements the task execution substrate used by every
service in the cluster (coordinator, store, index, document): a Task
abstraction plus two interchangeable pool implementations.

# Two pool shapes

	ExecqWorkerPool                    SimpleWorkerPool
	┌─────────────────────────┐        ┌─────────────────────────┐
	│ worker 0: [FIFO] → run  │        │                         │
	│ worker 1: [FIFO] → run  │        │   shared FIFO / heap    │
	│ worker 2: [FIFO] → run  │        │         │               │
	│ worker N: [FIFO] → run  │        │   N threads or fibers   │
	└─────────────────────────┘        └─────────────────────────┘
	 dispatch: RR / least-queue /        dispatch: ignored, all
	 hash-by-key pick a worker           policies share one queue

Both are bounded by an optional max_pending admission check (strict
greater-than, so effective capacity is max_pending+1 — see DESIGN.md) and
publish per-pool task-count gauges under pkg/metrics; SimpleWorkerPool
additionally records queue-wait and run latency histograms.

# Choosing one

Use ExecqWorkerPool when same-key tasks must serialize relative to each
other (hash-by-key) or per-worker FIFO ordering matters. Use
SimpleWorkerPool when a single global queue is enough and priority
ordering or OS-thread backing is wanted.
*/
package executor
