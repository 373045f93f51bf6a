package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-executor/pkg/coordination"
	"github.com/dingodb/dingo-executor/pkg/heartbeat"
)

func waitForCalls(t *testing.T, ctl *heartbeat.RecordingControl, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return ctl.CallCount() >= n }, time.Second, time.Millisecond)
}

func TestScheduler_TriggerCoordinatorUpdateStateRunsOnlyOnLeader(t *testing.T) {
	ctl := heartbeat.NewRecordingControl(true)
	sched := New(Deps{CoordinatorControl: ctl}, FeatureFlags{})
	require.True(t, sched.Init())
	defer sched.Destroy()

	require.True(t, sched.TriggerCoordinatorUpdateState())
	waitForCalls(t, ctl, 1)
	assert.Equal(t, []string{"UpdateState"}, ctl.Calls)
}

func TestScheduler_TriggerCoordinatorUpdateStateSkippedOnFollower(t *testing.T) {
	ctl := heartbeat.NewRecordingControl(false)
	sched := New(Deps{CoordinatorControl: ctl}, FeatureFlags{})
	require.True(t, sched.Init())
	defer sched.Destroy()

	require.True(t, sched.TriggerCoordinatorUpdateState())
	require.True(t, sched.TriggerCoordinatorRecycleOrphan())
	waitForCalls(t, ctl, 1)
	assert.Equal(t, []string{"RecycleOrphan"}, ctl.Calls, "the leader-only task must be skipped; the unconditional one still runs")
}

func TestScheduler_BalanceTriggersRespectFeatureFlags(t *testing.T) {
	ctl := heartbeat.NewRecordingControl(true)
	sched := New(Deps{CoordinatorControl: ctl}, FeatureFlags{EnableBalanceLeader: false, EnableBalanceRegion: false})
	require.True(t, sched.Init())
	defer sched.Destroy()

	assert.False(t, sched.TriggerBalanceLeader(), "disabled balance-leader trigger must not even submit a task")
	assert.False(t, sched.TriggerBalanceRegion())
	assert.Equal(t, 0, ctl.CallCount())
}

func TestScheduler_BalanceLeaderRunsAllRolesWhenEnabled(t *testing.T) {
	ctl := heartbeat.NewRecordingControl(true)
	sched := New(Deps{CoordinatorControl: ctl}, FeatureFlags{EnableBalanceLeader: true})
	require.True(t, sched.Init())
	defer sched.Destroy()

	require.True(t, sched.TriggerBalanceLeader())
	waitForCalls(t, ctl, 3)
	assert.Equal(t, []string{"BalanceLeader:store", "BalanceLeader:index", "BalanceLeader:document"}, ctl.Calls)
}

func TestScheduler_SingleWorkerRunsBackToBackTriggersOfSameClassSequentially(t *testing.T) {
	ctl := heartbeat.NewRecordingControl(false)
	sched := New(Deps{KvControl: ctl}, FeatureFlags{})
	require.True(t, sched.Init())
	defer sched.Destroy()

	// LeaseTask has no leader check; submit it twice back-to-back on the
	// single-worker heartbeat pool. Because the pool itself only has one
	// worker, tasks run strictly one at a time regardless of the guard —
	// this asserts the dispatch still happens for both, sequentially.
	require.True(t, sched.TriggerLeaseTask())
	require.True(t, sched.TriggerLeaseTask())
	waitForCalls(t, ctl, 2)
	assert.Equal(t, []string{"LeaseTick", "LeaseTick"}, ctl.Calls)
}

func TestScheduler_IsLeaderDelegatesToControlCollaborator(t *testing.T) {
	sched := New(Deps{Coord: coordination.StaticControl{Leader: true}}, FeatureFlags{})
	assert.True(t, sched.IsLeader())

	schedNoCoord := New(Deps{}, FeatureFlags{})
	assert.False(t, schedNoCoord.IsLeader(), "a scheduler with no coordination.Control must report not-leader")
}
