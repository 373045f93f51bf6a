// Package scheduler implements the heartbeat scheduler: a single-worker
// pool exposing typed trigger methods, each constructing a task and
// submitting it, modeled on heartbeat.cc's Heartbeat class.
package scheduler

import (
	"github.com/google/uuid"

	"github.com/dingodb/dingo-executor/pkg/coordination"
	"github.com/dingodb/dingo-executor/pkg/executor"
	"github.com/dingodb/dingo-executor/pkg/heartbeat"
	"github.com/dingodb/dingo-executor/pkg/log"
)

// FeatureFlags gates the two balance triggers behind config, mirroring
// FLAGS_enable_balance_leader / FLAGS_enable_balance_region: checked once
// at trigger time, before a task is even constructed, distinct from the
// per-task IsLeader() check each guarded task makes internally.
type FeatureFlags struct {
	EnableBalanceLeader bool
	EnableBalanceRegion bool
}

// Scheduler owns a single-worker ExecqWorkerPool and the per-task-class
// guards the original expressed as file-scope atomics. Exposes typed
// Trigger* methods; each builds a task and submits it via ExecuteRR.
type Scheduler struct {
	pool     *executor.ExecqWorkerPool
	guards   *guards
	flags    FeatureFlags
	coord    coordination.Control
	storeIO  heartbeat.CoordinatorInteraction
	storeMeta *heartbeat.StoreMetaManager
	hbConfig heartbeat.Config

	coordinatorControl heartbeat.CoordinatorControl
	kvControl          heartbeat.KvControl
	indexControl       heartbeat.IndexControl

	regions         heartbeat.RegionMetaProvider
	regionMetrics   heartbeat.RegionMetricsProvider
	raftStatus      heartbeat.RaftStatusProvider
	indexStatus     heartbeat.IndexStatusProvider
	documentStatus  heartbeat.DocumentStatusProvider
}

// Deps bundles every collaborator the scheduler's trigger methods
// delegate to. Any may be left nil if the corresponding triggers are
// never called (e.g. an index-role process has no CoordinatorControl).
type Deps struct {
	StoreMeta          *heartbeat.StoreMetaManager
	CoordinatorIO      heartbeat.CoordinatorInteraction
	HeartbeatConfig    heartbeat.Config
	Coord              coordination.Control
	CoordinatorControl heartbeat.CoordinatorControl
	KvControl          heartbeat.KvControl
	IndexControl       heartbeat.IndexControl
	Regions            heartbeat.RegionMetaProvider
	RegionMetrics      heartbeat.RegionMetricsProvider
	RaftStatus         heartbeat.RaftStatusProvider
	IndexStatus        heartbeat.IndexStatusProvider
	DocumentStatus     heartbeat.DocumentStatusProvider
}

// New constructs a Scheduler. Call Init before triggering anything.
func New(deps Deps, flags FeatureFlags) *Scheduler {
	return &Scheduler{
		pool:               executor.NewExecqWorkerPool("heartbeat", 1, 0),
		guards:             newGuards(),
		flags:              flags,
		coord:              deps.Coord,
		storeIO:            deps.CoordinatorIO,
		storeMeta:          deps.StoreMeta,
		hbConfig:           deps.HeartbeatConfig,
		coordinatorControl: deps.CoordinatorControl,
		kvControl:          deps.KvControl,
		indexControl:       deps.IndexControl,
		regions:            deps.Regions,
		regionMetrics:      deps.RegionMetrics,
		raftStatus:         deps.RaftStatus,
		indexStatus:        deps.IndexStatus,
		documentStatus:     deps.DocumentStatus,
	}
}

// Init starts the underlying single-worker pool.
func (s *Scheduler) Init() bool { return s.pool.Init() }

// IsLeader reports whether the coordination.Control given in Deps
// currently reports leadership (false when none was given). The Trigger*
// methods do not consult it; each leader-gated task performs its own
// IsLeader() check against its control collaborator.
func (s *Scheduler) IsLeader() bool {
	if s.coord == nil {
		return false
	}
	return s.coord.IsLeader()
}

// Destroy stops the underlying pool, draining any in-flight task.
func (s *Scheduler) Destroy() { s.pool.Destroy() }

func (s *Scheduler) submit(taskType string, r executor.Runnable) bool {
	task := executor.NewTask(taskType, r, executor.WithTrace(uuid.NewString()))
	return s.pool.ExecuteRR(task)
}

// TriggerStoreHeartbeat submits a store-heartbeat task. No guard:
// concurrent submissions are allowed, matching the original.
func (s *Scheduler) TriggerStoreHeartbeat(regionIDs []int64, updateEpochVersion bool) bool {
	task := &heartbeat.StoreHeartbeatTask{
		RegionIDs:            regionIDs,
		UpdateEpochVersion:   updateEpochVersion,
		Coordinator:          s.storeIO,
		StoreMeta:            s.storeMeta,
		Regions:              s.regions,
		RegionMetricsSource:  s.regionMetrics,
		RaftStatusSource:     s.raftStatus,
		IndexStatusSource:    s.indexStatus,
		DocumentStatusSource: s.documentStatus,
		Config:               s.hbConfig,
	}
	return s.submit("store_heartbeat", task)
}

// TriggerCoordinatorUpdateState submits a state-refresh task.
func (s *Scheduler) TriggerCoordinatorUpdateState() bool {
	return s.submit("state_refresh", heartbeat.NewStateRefreshTask(&s.guards.updateState, s.coordinatorControl))
}

// TriggerCoordinatorJobListProcess submits a job-list-processor task.
func (s *Scheduler) TriggerCoordinatorJobListProcess() bool {
	return s.submit("job_list_process", heartbeat.NewJobListProcessTask(&s.guards.jobListProcess, s.coordinatorControl))
}

// TriggerCoordinatorRecycleOrphan submits a recycle-orphan task.
func (s *Scheduler) TriggerCoordinatorRecycleOrphan() bool {
	return s.submit("recycle_orphan", heartbeat.NewRecycleOrphanTask(&s.guards.recycleOrphan, s.coordinatorControl))
}

// TriggerCoordinatorMetaWatchClean submits a meta-watch-clean task.
func (s *Scheduler) TriggerCoordinatorMetaWatchClean() bool {
	return s.submit("meta_watch_clean", heartbeat.NewMetaWatchCleanTask(&s.guards.metaWatchClean, s.coordinatorControl))
}

// TriggerKvRemoveOneTimeWatch submits a one-time-watch-sweeper task.
func (s *Scheduler) TriggerKvRemoveOneTimeWatch() bool {
	return s.submit("kv_remove_one_time_watch", heartbeat.NewOneTimeWatchSweepTask(&s.guards.removeOneTimeWatch, s.kvControl))
}

// TriggerCalculateTableMetrics submits a metrics-calculator task.
func (s *Scheduler) TriggerCalculateTableMetrics() bool {
	return s.submit("calculate_table_metrics", heartbeat.NewCalculateTableMetricsTask(&s.guards.calcMetrics, s.coordinatorControl))
}

// TriggerLeaseTask submits a lease-tick task.
func (s *Scheduler) TriggerLeaseTask() bool {
	return s.submit("lease", heartbeat.NewLeaseTask(&s.guards.lease, s.kvControl))
}

// TriggerCompactionTask submits a kv-compaction task.
func (s *Scheduler) TriggerCompactionTask() bool {
	return s.submit("compaction", heartbeat.NewCompactionTask(&s.guards.compaction, s.kvControl))
}

// TriggerScrubVectorIndex submits a vector-index-scrubber task.
func (s *Scheduler) TriggerScrubVectorIndex() bool {
	return s.submit("vector_index_scrub", heartbeat.NewScrubVectorIndexTask(&s.guards.scrubVectorIndex, s.indexControl))
}

// TriggerBalanceLeader submits a balance-leader task iterating
// {Store, Index, Document}, unless disabled by config.
func (s *Scheduler) TriggerBalanceLeader() bool {
	if !s.flags.EnableBalanceLeader {
		log.WithComponent("scheduler").Info().Msg("balance leader disabled")
		return false
	}
	roles := []heartbeat.NodeRole{heartbeat.RoleStore, heartbeat.RoleIndex, heartbeat.RoleDocument}
	return s.submit("balance_leader", heartbeat.NewBalanceLeaderTask(&s.guards.balanceLeader, s.coordinatorControl, roles))
}

// TriggerBalanceRegion submits a balance-region task iterating
// {Store, Index}, unless disabled by config.
func (s *Scheduler) TriggerBalanceRegion() bool {
	if !s.flags.EnableBalanceRegion {
		log.WithComponent("scheduler").Info().Msg("balance region disabled")
		return false
	}
	roles := []heartbeat.NodeRole{heartbeat.RoleStore, heartbeat.RoleIndex}
	return s.submit("balance_region", heartbeat.NewBalanceRegionTask(&s.guards.balanceRegion, s.coordinatorControl, roles))
}
