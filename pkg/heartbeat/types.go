// Package heartbeat implements the store-side heartbeat task and its
// supporting domain types, modeled on heartbeat.cc's Heartbeat class.
package heartbeat

import "math"

// RegionState mirrors the lifecycle a region moves through between
// heartbeats; SPLITTING and MERGING regions are skipped when a heartbeat
// attaches region metrics (see StoreHeartbeatTask.Run).
type RegionState int

const (
	RegionNormal RegionState = iota
	RegionStandby
	RegionSplitting
	RegionMerging
	RegionTombstone
)

// StorageEngine distinguishes raft-replicated regions (which carry a
// RaftStatus in their metrics) from other backends.
type StorageEngine int

const (
	EngineRaftStore StorageEngine = iota
	EngineOther
)

// NodeRole identifies which cluster role a heartbeat or balance
// operation concerns.
type NodeRole int

const (
	RoleStore NodeRole = iota
	RoleIndex
	RoleDocument
)

func (r NodeRole) String() string {
	switch r {
	case RoleStore:
		return "store"
	case RoleIndex:
		return "index"
	case RoleDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Range is a half-open key range [Start, End).
type Range struct {
	Start []byte
	End   []byte
}

// Region is one shard of the keyspace, replicated across Peers.
type Region struct {
	ID     int64
	State  RegionState
	Epoch  int64
	Range  Range
	Peers  []int64
	Engine StorageEngine
}

// IndexStatus reports a vector/scalar index's build and serving state,
// populated only for index-role regions.
type IndexStatus struct {
	IsStop                bool
	IsReady               bool
	IsOwnReady            bool
	IsBuildError          bool
	IsRebuildError        bool
	IsSwitching           bool
	ApplyLogID            int64
	SnapshotLogID         int64
	LastBuildEpochVersion int64
}

// DocumentStatus mirrors IndexStatus for document-role regions.
type DocumentStatus struct {
	IsStop                bool
	IsReady               bool
	IsOwnReady            bool
	IsBuildError          bool
	IsRebuildError        bool
	IsSwitching           bool
	ApplyLogID            int64
	SnapshotLogID         int64
	LastBuildEpochVersion int64
}

// RaftStatus is attached to a region's metrics when its engine is
// raft-backed; it comes from the task's RaftStatusProvider, never
// hand-constructed by heartbeat logic itself.
type RaftStatus struct {
	Term        uint64
	CommitIndex uint64
	AppliedIndex uint64
	LeaderID    string
}

// RegionMetrics is one region's contribution to a StoreHeartbeatRequest.
// SnapshotEpochVersion is pinned to math.MaxInt64 when the configured
// raft snapshot policy is "dingo" (see Config.RaftSnapshotPolicy),
// matching the original's INT64_MAX sentinel meaning "never expire".
type RegionMetrics struct {
	RegionID             int64
	LeaderStoreID        int64
	State                RegionState
	SnapshotEpochVersion int64
	IndexStatus          *IndexStatus
	DocumentStatus       *DocumentStatus
	RaftStatus           *RaftStatus
}

// DingoSnapshotEpoch is the sentinel SnapshotEpochVersion assigned when
// raft_snapshot_policy == "dingo": region snapshots never expire under
// that policy, so the epoch is pinned at the largest representable
// value rather than tracked.
const DingoSnapshotEpoch = int64(math.MaxInt64)

// Store describes one member of the cluster as seen by the coordinator.
type Store struct {
	ID    int64
	Host  string
	Port  int32
	State StoreState
}

// StoreState is the coordinator's view of a store's liveness.
type StoreState int

const (
	StoreUp StoreState = iota
	StoreOffline
	StoreNew
	StoreDeleted
)

// StoreMetrics is the store-wide payload of a heartbeat: optionally
// partial (only the regions in StoreHeartbeatTask.RegionIDs) and
// optionally signalling an epoch-version bump for the store itself.
type StoreMetrics struct {
	StoreID               int64
	IsUpdateEpochVersion  bool
	IsPartialRegionMetrics bool
	RegionMetrics         map[int64]RegionMetrics
}

// ClusterState reports coordinator-driven read-only gating, propagated
// back to callers through StoreMetaManager after each heartbeat.
type ClusterState struct {
	IsReadOnly         bool
	ReadOnlyReason     string
	IsForceReadOnly    bool
	ForceReadOnlyReason string
}

// StoreHeartbeatRequest is what StoreHeartbeatTask sends to the
// coordinator on each run.
type StoreHeartbeatRequest struct {
	SelfStoremapEpoch int64
	Store             Store
	StoreMetrics      StoreMetrics
}

// StoreHeartbeatResponse is the coordinator's reply: the current store
// list (for local view reconciliation) plus cluster-wide read-only
// state.
type StoreHeartbeatResponse struct {
	Stores       []Store
	ClusterState ClusterState
}
