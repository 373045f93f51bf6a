package executor

// Pool is the dispatch surface both pool implementations share, a
// language-neutral task-submission API independent of the dispatch
// policy or worker-loop backing underneath it.
type Pool interface {
	Init() bool
	Destroy()
	ExecuteRR(task *Task) bool
	ExecuteLeastQueue(task *Task) bool
	ExecuteHashByKey(key int64, task *Task) bool
	PendingCount() int64
	TotalCount() int64
	PendingTaskTraces() [][]string
	Name() string
}

var (
	_ Pool = (*ExecqWorkerPool)(nil)
	_ Pool = (*SimpleWorkerPool)(nil)
)
