package heartbeat

import (
	"context"
	"sync/atomic"

	"github.com/dingodb/dingo-executor/pkg/log"
)

// RegionMetaProvider resolves region definitions for this store; it is
// the collaborator StoreHeartbeatTask asks for "all my regions" (full
// heartbeat) or "these specific regions" (partial heartbeat).
type RegionMetaProvider interface {
	AllRegions() []Region
	Region(id int64) (Region, bool)
}

// RegionMetricsProvider supplies the previously-collected runtime
// metrics for a region, merged into the heartbeat payload alongside its
// static definition.
type RegionMetricsProvider interface {
	RegionMetrics(id int64) (RegionMetrics, bool)
}

// RaftStatusProvider supplies live raft status for a region whose engine
// is EngineRaftStore.
type RaftStatusProvider interface {
	RaftStatus(regionID int64) (RaftStatus, bool)
}

// IndexStatusProvider and DocumentStatusProvider supply the optional
// per-role status blocks a heartbeat attaches, mirroring the original's
// role-gated vector_index_status/document_index_status population.
type IndexStatusProvider interface {
	IndexStatus(regionID int64) (IndexStatus, bool)
}

type DocumentStatusProvider interface {
	DocumentStatus(regionID int64) (DocumentStatus, bool)
}

// heartbeatCounter backs the report-region-metrics cadence: a process-wide
// monotonic counter, incremented only on full (non-partial) heartbeats,
// mirroring heartbeat_counter from the original. Unlike the original
// there is no inert 524287 sentinel value substituted for partial
// heartbeats — a partial heartbeat always reports, so the counter value
// used to gate that decision is simply never consulted for it.
var heartbeatCounter atomic.Uint64

// StoreHeartbeatTask implements executor.Runnable, reporting this
// store's liveness and (on the configured cadence) its regions' metrics
// to the coordinator, then reconciling the local store view from the
// response. Grounded on HeartbeatTask::SendStoreHeartbeat.
type StoreHeartbeatTask struct {
	RegionIDs           []int64
	UpdateEpochVersion  bool
	Coordinator         CoordinatorInteraction
	StoreMeta           *StoreMetaManager
	Regions             RegionMetaProvider
	RegionMetricsSource RegionMetricsProvider
	RaftStatusSource    RaftStatusProvider
	IndexStatusSource   IndexStatusProvider
	DocumentStatusSource DocumentStatusProvider
	Config              Config
}

func (t *StoreHeartbeatTask) Run() {
	logger := log.WithComponent("heartbeat.store_heartbeat")

	self := t.StoreMeta.Self()
	req := StoreHeartbeatRequest{
		SelfStoremapEpoch: t.StoreMeta.Epoch(),
		Store:             self,
		StoreMetrics: StoreMetrics{
			StoreID:              self.ID,
			IsUpdateEpochVersion: t.UpdateEpochVersion,
			RegionMetrics:        map[int64]RegionMetrics{},
		},
	}

	isPartial := len(t.RegionIDs) > 0
	var count uint64
	if !isPartial {
		count = heartbeatCounter.Add(1)
	}
	needReportRegionMetrics := isPartial ||
		(t.Config.ReportRegionMultiple > 0 && count%uint64(t.Config.ReportRegionMultiple) == 0)

	if needReportRegionMetrics {
		req.StoreMetrics.IsPartialRegionMetrics = isPartial
		for _, region := range t.regionsToReport() {
			if region.State == RegionSplitting || region.State == RegionMerging {
				logger.Warn().Int64("region_id", region.ID).Msg("heartbeat: region state not suited for heartbeat, skipped")
				continue
			}
			req.StoreMetrics.RegionMetrics[region.ID] = t.buildRegionMetrics(region)
		}
	}

	resp, err := t.Coordinator.SendStoreHeartbeat(context.Background(), req)
	if err != nil {
		logger.Warn().Err(err).Msg("heartbeat: store heartbeat failed")
		return
	}

	t.StoreMeta.Reconcile(resp.Stores)

	if err := t.StoreMeta.SetClusterState(resp.ClusterState); err != nil {
		logger.Warn().Err(err).Msg("heartbeat: persist cluster read-only state failed")
	}
}

func (t *StoreHeartbeatTask) regionsToReport() []Region {
	if len(t.RegionIDs) == 0 {
		if t.Regions == nil {
			return nil
		}
		return t.Regions.AllRegions()
	}

	regions := make([]Region, 0, len(t.RegionIDs))
	for _, id := range t.RegionIDs {
		if t.Regions == nil {
			continue
		}
		if r, ok := t.Regions.Region(id); ok {
			regions = append(regions, r)
		}
	}
	return regions
}

func (t *StoreHeartbeatTask) buildRegionMetrics(region Region) RegionMetrics {
	metrics := RegionMetrics{RegionID: region.ID, State: region.State}
	if t.RegionMetricsSource != nil {
		if existing, ok := t.RegionMetricsSource.RegionMetrics(region.ID); ok {
			metrics = existing
			metrics.RegionID = region.ID
			metrics.State = region.State
		}
	}

	if t.Config.RaftSnapshotPolicy == RaftSnapshotPolicyDingo {
		metrics.SnapshotEpochVersion = DingoSnapshotEpoch
	}

	raftEligible := region.State == RegionNormal || region.State == RegionStandby || region.State == RegionTombstone
	if raftEligible && region.Engine == EngineRaftStore && t.RaftStatusSource != nil {
		if status, ok := t.RaftStatusSource.RaftStatus(region.ID); ok {
			metrics.RaftStatus = &status
		}
	}

	switch t.Config.Role {
	case RoleIndex:
		if t.IndexStatusSource != nil {
			if status, ok := t.IndexStatusSource.IndexStatus(region.ID); ok {
				metrics.IndexStatus = &status
			}
		}
	case RoleDocument:
		if t.DocumentStatusSource != nil {
			if status, ok := t.DocumentStatusSource.DocumentStatus(region.ID); ok {
				metrics.DocumentStatus = &status
			}
		}
	}

	return metrics
}

// guardedTask runs body only if the class-wide guard is not already
// held, mirroring the original's g_*_running atomic plus AtomicGuard
// RAII release, but with each task class owning its own *atomic.Bool
// rather than a C-style file-scope global, so pools under test don't
// share guard state across unrelated test cases.
type guardedTask struct {
	running *atomic.Bool
	name    string
	// gate, if set, is consulted before the guard is touched at all. A
	// leader-only task sets this to ctl.IsLeader so a follower's call
	// returns without ever CAS-ing the guard, matching the original's
	// per-task-class `if (!ctl->IsLeader()) return;` check, which runs
	// ahead of the g_*_running guard in every leader-gated branch.
	gate func() bool
	body func(ctx context.Context) error
}

func (g *guardedTask) Run() {
	logger := log.WithComponent("heartbeat." + g.name)

	if g.gate != nil && !g.gate() {
		return
	}

	if !g.running.CompareAndSwap(false, true) {
		logger.Info().Msg("already running, skip")
		return
	}
	defer g.running.Store(false)

	if err := g.body(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("task failed")
	}
}

// leaderGate returns a gate function reporting whether ctl currently
// sees this node as leader, for use as a guardedTask's gate so a
// leader-only task's guard is never touched on a follower.
func leaderGate(ctl interface{ IsLeader() bool }) func() bool {
	return ctl.IsLeader
}

// NewStateRefreshTask periodically refreshes coordinator-held node/table
// state. Leader-only, per the original.
func NewStateRefreshTask(guard *atomic.Bool, ctl CoordinatorControl) *guardedTask {
	return &guardedTask{running: guard, name: "state_refresh", gate: leaderGate(ctl), body: ctl.UpdateState}
}

// NewJobListProcessTask processes the coordinator's pending job list.
// Leader-only, per the original.
func NewJobListProcessTask(guard *atomic.Bool, ctl CoordinatorControl) *guardedTask {
	return &guardedTask{running: guard, name: "job_list_process", gate: leaderGate(ctl), body: ctl.ProcessJobList}
}

// NewRecycleOrphanTask recycles orphaned regions/metrics/tables.
func NewRecycleOrphanTask(guard *atomic.Bool, ctl CoordinatorControl) *guardedTask {
	return &guardedTask{running: guard, name: "recycle_orphan", body: ctl.RecycleOrphan}
}

// NewMetaWatchCleanTask trims outdated meta watchers and their event lists.
func NewMetaWatchCleanTask(guard *atomic.Bool, ctl CoordinatorControl) *guardedTask {
	return &guardedTask{running: guard, name: "meta_watch_clean", body: ctl.MetaWatchClean}
}

// NewCalculateTableMetricsTask recomputes table-level metrics.
// Leader-only, per the original.
func NewCalculateTableMetricsTask(guard *atomic.Bool, ctl CoordinatorControl) *guardedTask {
	return &guardedTask{
		running: guard, name: "calculate_table_metrics", gate: leaderGate(ctl), body: ctl.CalculateTableMetrics,
	}
}

// NewOneTimeWatchSweepTask removes expired one-time KV watches.
// Leader-only, per the original.
func NewOneTimeWatchSweepTask(guard *atomic.Bool, ctl KvControl) *guardedTask {
	return &guardedTask{
		running: guard, name: "kv_remove_one_time_watch", gate: leaderGate(ctl), body: ctl.RemoveOneTimeWatch,
	}
}

// NewLeaseTask ticks KV lease expiry. No leader check, per the original.
func NewLeaseTask(guard *atomic.Bool, ctl KvControl) *guardedTask {
	return &guardedTask{running: guard, name: "lease", body: ctl.LeaseTick}
}

// NewCompactionTask runs one KV compaction pass. Leader-only, per the
// original.
func NewCompactionTask(guard *atomic.Bool, ctl KvControl) *guardedTask {
	return &guardedTask{running: guard, name: "compaction", gate: leaderGate(ctl), body: ctl.Compaction}
}

// NewScrubVectorIndexTask scrubs stale vector index state.
func NewScrubVectorIndexTask(guard *atomic.Bool, ctl IndexControl) *guardedTask {
	return &guardedTask{running: guard, name: "vector_index_scrub", body: ctl.ScrubVectorIndex}
}

// NewBalanceLeaderTask rebalances region leaders across the given roles,
// in order, stopping at the first error. Leader-only, per the original;
// the enable_balance_leader feature flag is checked by the scheduler's
// trigger, not here, matching Heartbeat::TriggerBalanceLeader.
func NewBalanceLeaderTask(guard *atomic.Bool, ctl CoordinatorControl, roles []NodeRole) *guardedTask {
	return &guardedTask{
		running: guard,
		name:    "balance_leader",
		gate:    leaderGate(ctl),
		body: func(ctx context.Context) error {
			for _, role := range roles {
				if err := ctl.BalanceLeader(ctx, role); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// NewBalanceRegionTask rebalances region placement across the given
// roles, in order, stopping at the first error. Leader-only, per the
// original; enable_balance_region is a scheduler-trigger concern.
func NewBalanceRegionTask(guard *atomic.Bool, ctl CoordinatorControl, roles []NodeRole) *guardedTask {
	return &guardedTask{
		running: guard,
		name:    "balance_region",
		gate:    leaderGate(ctl),
		body: func(ctx context.Context) error {
			for _, role := range roles {
				if err := ctl.BalanceRegion(ctx, role); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
