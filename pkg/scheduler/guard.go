package scheduler

import "sync/atomic"

// guards holds one atomic.Bool per periodic task class, replacing the
// original's file-scope `static std::atomic<bool> g_*_running` globals:
// a Scheduler instance owns its guards, so two Schedulers in the same
// test process never share guard state.
type guards struct {
	updateState        atomic.Bool
	jobListProcess     atomic.Bool
	recycleOrphan      atomic.Bool
	metaWatchClean     atomic.Bool
	removeOneTimeWatch atomic.Bool
	calcMetrics        atomic.Bool
	lease              atomic.Bool
	compaction         atomic.Bool
	scrubVectorIndex   atomic.Bool
	balanceLeader      atomic.Bool
	balanceRegion      atomic.Bool
}

func newGuards() *guards { return &guards{} }
