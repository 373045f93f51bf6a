package heartbeat

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/dingodb/dingo-executor/pkg/log"
)

var storesBucket = []byte("stores")
var clusterStateBucket = []byte("cluster_state")
var clusterStateKey = []byte("current")

// StoreMetaManager owns this node's cached view of cluster membership:
// who the known stores are. The store records are persisted to bbolt so
// a restart does not forget the cluster it last saw; this is
// distinct from (and does not violate) the non-goal against persisting
// queued tasks, which never touches disk.
type StoreMetaManager struct {
	selfID int64
	db     *bbolt.DB

	mu           sync.RWMutex
	epoch        int64
	stores       map[int64]Store
	clusterState ClusterState
}

// OpenStoreMetaManager opens (creating if absent) the bbolt file at path
// and loads the last-known store view into memory.
func OpenStoreMetaManager(path string, selfID int64) (*StoreMetaManager, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: open store view db: %w", err)
	}

	m := &StoreMetaManager{selfID: selfID, db: db, stores: make(map[int64]Store)}

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(storesBucket)
		if err != nil {
			return err
		}
		if err := bucket.ForEach(func(k, v []byte) error {
			var s Store
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("heartbeat: decode stored store %s: %w", k, err)
			}
			m.stores[s.ID] = s
			return nil
		}); err != nil {
			return err
		}

		csBucket, err := tx.CreateBucketIfNotExists(clusterStateBucket)
		if err != nil {
			return err
		}
		if data := csBucket.Get(clusterStateKey); data != nil {
			if err := json.Unmarshal(data, &m.clusterState); err != nil {
				return fmt.Errorf("heartbeat: decode stored cluster state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return m, nil
}

// Close releases the underlying bbolt handle.
func (m *StoreMetaManager) Close() error { return m.db.Close() }

// Epoch returns the in-memory storemap epoch. Nothing in this package sets
// or persists it, so it stays 0.
func (m *StoreMetaManager) Epoch() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// Self returns this node's own store record, as last known locally.
func (m *StoreMetaManager) Self() Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stores[m.selfID]
}

// SetSelf seeds or refreshes this node's own store record.
func (m *StoreMetaManager) SetSelf(s Store) error {
	s.ID = m.selfID
	return m.upsert(s)
}

// AllStores returns a snapshot copy of the known store view.
func (m *StoreMetaManager) AllStores() map[int64]Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]Store, len(m.stores))
	for k, v := range m.stores {
		out[k] = v
	}
	return out
}

// ClusterState returns the last-known coordinator-reported read-only
// gating, as of the most recent successful heartbeat.
func (m *StoreMetaManager) ClusterState() ClusterState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clusterState
}

// SetClusterState records cs as the current read-only/force-read-only
// gating, persisting it so a restart does not forget a coordinator-wide
// read-only flag raised before the node went down.
func (m *StoreMetaManager) SetClusterState(cs ClusterState) error {
	m.mu.Lock()
	m.clusterState = cs
	m.mu.Unlock()

	return m.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(cs)
		if err != nil {
			return err
		}
		return tx.Bucket(clusterStateBucket).Put(clusterStateKey, data)
	})
}

func (m *StoreMetaManager) upsert(s Store) error {
	m.mu.Lock()
	m.stores[s.ID] = s
	m.mu.Unlock()

	return m.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		return tx.Bucket(storesBucket).Put(storeKey(s.ID), data)
	})
}

func (m *StoreMetaManager) delete(id int64) error {
	m.mu.Lock()
	delete(m.stores, id)
	m.mu.Unlock()

	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(storesBucket).Delete(storeKey(id))
	})
}

func storeKey(id int64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

// Reconcile applies a heartbeat response to the local store view,
// following GetNewStore/GetChangedStore/GetDeletedStore from the
// original's HandleStoreHeartbeatResponse: add stores the coordinator
// knows about that we don't, update ones whose address changed, and
// drop ones the coordinator no longer lists — except self, which is
// never deleted locally (a self-delete here would mean every future
// heartbeat ships a store record for an id the coordinator just
// evicted).
func (m *StoreMetaManager) Reconcile(remote []Store) (newCount, changedCount, deletedCount int) {
	logger := log.WithComponent("heartbeat.store_meta")

	local := m.AllStores()
	remoteByID := make(map[int64]Store, len(remote))
	for _, rs := range remote {
		remoteByID[rs.ID] = rs
	}

	for _, rs := range remote {
		if _, ok := local[rs.ID]; !ok {
			if err := m.upsert(rs); err != nil {
				logger.Warn().Err(err).Int64("store_id", rs.ID).Msg("heartbeat: add new store failed")
				continue
			}
			newCount++
		}
	}

	for _, rs := range remote {
		if rs.ID == 0 {
			continue
		}
		ls, ok := local[rs.ID]
		if !ok {
			continue
		}
		if ls.Host != rs.Host || ls.Port != rs.Port {
			if err := m.upsert(rs); err != nil {
				logger.Warn().Err(err).Int64("store_id", rs.ID).Msg("heartbeat: update changed store failed")
				continue
			}
			changedCount++
		}
	}

	for id := range local {
		if _, ok := remoteByID[id]; ok {
			continue
		}
		if id == m.selfID {
			logger.Error().Int64("store_id", id).Msg("heartbeat: coordinator deleted self store id, skip")
			continue
		}
		if err := m.delete(id); err != nil {
			logger.Warn().Err(err).Int64("store_id", id).Msg("heartbeat: delete stale store failed")
			continue
		}
		deletedCount++
	}

	logger.Info().
		Int("new", newCount).Int("changed", changedCount).Int("deleted", deletedCount).Int("local", len(local)).
		Msg("heartbeat: store view reconciled")

	return newCount, changedCount, deletedCount
}
