package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinatorInteraction struct {
	lastReq StoreHeartbeatRequest
	resp    StoreHeartbeatResponse
	err     error
	calls   atomic.Int32
}

func (f *fakeCoordinatorInteraction) SendStoreHeartbeat(_ context.Context, req StoreHeartbeatRequest) (StoreHeartbeatResponse, error) {
	f.calls.Add(1)
	f.lastReq = req
	return f.resp, f.err
}

type fakeRegions struct {
	regions map[int64]Region
}

func (f *fakeRegions) AllRegions() []Region {
	out := make([]Region, 0, len(f.regions))
	for _, r := range f.regions {
		out = append(out, r)
	}
	return out
}

func (f *fakeRegions) Region(id int64) (Region, bool) {
	r, ok := f.regions[id]
	return r, ok
}

func newStoreHeartbeatTask(t *testing.T, coord *fakeCoordinatorInteraction, regions *fakeRegions, cfg Config) (*StoreHeartbeatTask, *StoreMetaManager) {
	t.Helper()
	meta := openTestStoreMeta(t, 1)
	require.NoError(t, meta.SetSelf(Store{Host: "10.0.0.1", Port: 19000, State: StoreUp}))
	return &StoreHeartbeatTask{
		Coordinator: coord,
		StoreMeta:   meta,
		Regions:     regions,
		Config:      cfg,
	}, meta
}

func TestStoreHeartbeatTask_FullHeartbeatReportsAllNonSkippedRegions(t *testing.T) {
	coord := &fakeCoordinatorInteraction{}
	regions := &fakeRegions{regions: map[int64]Region{
		1: {ID: 1, State: RegionNormal},
		2: {ID: 2, State: RegionSplitting},
		3: {ID: 3, State: RegionMerging},
	}}
	task, _ := newStoreHeartbeatTask(t, coord, regions, Config{ReportRegionMultiple: 1})

	task.Run()

	require.EqualValues(t, 1, coord.calls.Load())
	assert.Contains(t, coord.lastReq.StoreMetrics.RegionMetrics, int64(1))
	assert.NotContains(t, coord.lastReq.StoreMetrics.RegionMetrics, int64(2), "SPLITTING regions must be skipped")
	assert.NotContains(t, coord.lastReq.StoreMetrics.RegionMetrics, int64(3), "MERGING regions must be skipped")
}

func TestStoreHeartbeatTask_PartialHeartbeatAlwaysReportsRegardlessOfCadence(t *testing.T) {
	coord := &fakeCoordinatorInteraction{}
	regions := &fakeRegions{regions: map[int64]Region{5: {ID: 5, State: RegionNormal}}}
	// ReportRegionMultiple of 0 would normally never gate a full heartbeat in,
	// but a partial (explicit region_ids) heartbeat must report anyway.
	task, _ := newStoreHeartbeatTask(t, coord, regions, Config{ReportRegionMultiple: 0})
	task.RegionIDs = []int64{5}

	task.Run()

	assert.Contains(t, coord.lastReq.StoreMetrics.RegionMetrics, int64(5))
	assert.True(t, coord.lastReq.StoreMetrics.IsPartialRegionMetrics)
}

func TestStoreHeartbeatTask_DingoPolicyPinsSnapshotEpoch(t *testing.T) {
	coord := &fakeCoordinatorInteraction{}
	regions := &fakeRegions{regions: map[int64]Region{1: {ID: 1, State: RegionNormal}}}
	task, _ := newStoreHeartbeatTask(t, coord, regions, Config{ReportRegionMultiple: 1, RaftSnapshotPolicy: RaftSnapshotPolicyDingo})

	task.Run()

	assert.Equal(t, DingoSnapshotEpoch, coord.lastReq.StoreMetrics.RegionMetrics[1].SnapshotEpochVersion)
}

func TestStoreHeartbeatTask_ReconcilesStoreViewOnSuccess(t *testing.T) {
	coord := &fakeCoordinatorInteraction{resp: StoreHeartbeatResponse{
		Stores: []Store{{ID: 1, Host: "10.0.0.1", Port: 19000, State: StoreUp}, {ID: 2, Host: "10.0.0.2", Port: 19000, State: StoreUp}},
	}}
	task, meta := newStoreHeartbeatTask(t, coord, &fakeRegions{regions: map[int64]Region{}}, Config{})

	task.Run()

	assert.Contains(t, meta.AllStores(), int64(2))
}

func TestStoreHeartbeatTask_PropagatesClusterStateToStoreMeta(t *testing.T) {
	coord := &fakeCoordinatorInteraction{resp: StoreHeartbeatResponse{
		ClusterState: ClusterState{IsReadOnly: true, ReadOnlyReason: "disk low"},
	}}
	task, meta := newStoreHeartbeatTask(t, coord, &fakeRegions{regions: map[int64]Region{}}, Config{})

	task.Run()

	assert.Equal(t, ClusterState{IsReadOnly: true, ReadOnlyReason: "disk low"}, meta.ClusterState())
}

func TestGuardedTask_SkipsReentrantRun(t *testing.T) {
	var guard atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32

	task := &guardedTask{
		running: &guard,
		name:    "test",
		body: func(context.Context) error {
			runs.Add(1)
			close(started)
			<-release
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		task.Run()
		close(done)
	}()
	<-started

	// a second Run while the first is still in flight must be a no-op.
	task.Run()
	close(release)
	<-done

	assert.EqualValues(t, 1, runs.Load())
}

func TestLeaderGate_ReportsFollowerAndLeader(t *testing.T) {
	assert.False(t, leaderGate(NewRecordingControl(false))())
	assert.True(t, leaderGate(NewRecordingControl(true))())
}

func TestGuardedTask_LeaderGateSkipsWithoutTouchingGuard(t *testing.T) {
	var guard atomic.Bool
	var called bool
	task := &guardedTask{
		running: &guard,
		name:    "test",
		gate:    leaderGate(NewRecordingControl(false)),
		body: func(context.Context) error {
			called = true
			return nil
		},
	}

	task.Run()

	assert.False(t, called, "a follower must not run a leader-gated task's body")
	assert.False(t, guard.Load(), "a follower call must never touch the guard")
}

func TestNewRecycleOrphanTask_HasNoLeaderCheck(t *testing.T) {
	var guard atomic.Bool
	ctl := NewRecordingControl(false)
	task := NewRecycleOrphanTask(&guard, ctl)
	task.Run()
	assert.Equal(t, []string{"RecycleOrphan"}, ctl.Calls)
}

func TestNewStateRefreshTask_IsLeaderGated(t *testing.T) {
	var guard atomic.Bool
	follower := NewRecordingControl(false)
	task := NewStateRefreshTask(&guard, follower)
	task.Run()
	assert.Empty(t, follower.Calls, "a follower must not run the leader-only state refresh")

	var guard2 atomic.Bool
	leader := NewRecordingControl(true)
	task2 := NewStateRefreshTask(&guard2, leader)
	task2.Run()
	assert.Equal(t, []string{"UpdateState"}, leader.Calls)
}

func TestNewBalanceLeaderTask_IteratesRolesInOrder(t *testing.T) {
	var guard atomic.Bool
	ctl := NewRecordingControl(true)
	task := NewBalanceLeaderTask(&guard, ctl, []NodeRole{RoleStore, RoleIndex, RoleDocument})
	task.Run()
	assert.Equal(t, []string{"BalanceLeader:store", "BalanceLeader:index", "BalanceLeader:document"}, ctl.Calls)
}
