package heartbeat

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStoreMeta(t *testing.T, selfID int64) *StoreMetaManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store-meta.db")
	m, err := OpenStoreMetaManager(path, selfID)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestStoreMetaManager_SelfRoundTripsThroughReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store-meta.db")

	m, err := OpenStoreMetaManager(path, 1)
	require.NoError(t, err)
	require.NoError(t, m.SetSelf(Store{Host: "10.0.0.1", Port: 19000, State: StoreUp}))
	require.NoError(t, m.Close())

	reopened, err := OpenStoreMetaManager(path, 1)
	require.NoError(t, err)
	defer reopened.Close()

	self := reopened.Self()
	assert.Equal(t, int64(1), self.ID)
	assert.Equal(t, "10.0.0.1", self.Host)
	assert.Equal(t, int32(19000), self.Port)
}

func TestStoreMetaManager_ReconcileAddsChangesAndDeletes(t *testing.T) {
	m := openTestStoreMeta(t, 1)
	require.NoError(t, m.SetSelf(Store{Host: "10.0.0.1", Port: 19000, State: StoreUp}))
	require.NoError(t, m.upsert(Store{ID: 2, Host: "10.0.0.2", Port: 19000, State: StoreUp}))
	require.NoError(t, m.upsert(Store{ID: 3, Host: "10.0.0.3", Port: 19000, State: StoreUp}))

	remote := []Store{
		m.Self(),
		{ID: 2, Host: "10.0.0.2", Port: 19001, State: StoreUp}, // port changed
		{ID: 4, Host: "10.0.0.4", Port: 19000, State: StoreUp}, // new
		// store 3 is absent from the remote view entirely: must be deleted
	}

	newCount, changedCount, deletedCount := m.Reconcile(remote)
	assert.Equal(t, 1, newCount)
	assert.Equal(t, 1, changedCount)
	assert.Equal(t, 1, deletedCount)

	all := m.AllStores()
	assert.Contains(t, all, int64(4))
	assert.NotContains(t, all, int64(3))
	assert.Equal(t, int32(19001), all[2].Port)
}

func TestStoreMetaManager_ReconcileNeverDeletesSelf(t *testing.T) {
	m := openTestStoreMeta(t, 1)
	require.NoError(t, m.SetSelf(Store{Host: "10.0.0.1", Port: 19000, State: StoreUp}))

	_, _, deletedCount := m.Reconcile(nil)
	assert.Equal(t, 0, deletedCount)
	assert.Contains(t, m.AllStores(), int64(1))
}

func TestStoreMetaManager_ClusterStateRoundTripsThroughReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store-meta.db")

	m, err := OpenStoreMetaManager(path, 1)
	require.NoError(t, err)
	assert.Equal(t, ClusterState{}, m.ClusterState(), "no state reported yet")

	cs := ClusterState{IsReadOnly: true, ReadOnlyReason: "disk low", IsForceReadOnly: true, ForceReadOnlyReason: "quota exceeded"}
	require.NoError(t, m.SetClusterState(cs))
	assert.Equal(t, cs, m.ClusterState())
	require.NoError(t, m.Close())

	reopened, err := OpenStoreMetaManager(path, 1)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, cs, reopened.ClusterState())
}
