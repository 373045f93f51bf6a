package heartbeat

// Config is the slice of process configuration StoreHeartbeatTask needs
// at Run time, snapshotted once per task rather than read from a global
// so tests can vary it per case.
type Config struct {
	// RaftSnapshotPolicy pins SnapshotEpochVersion to DingoSnapshotEpoch
	// when set to "dingo" (the default); any other value reports the
	// region's own tracked snapshot epoch instead.
	RaftSnapshotPolicy string

	// ReportRegionMultiple: a full (non-partial) heartbeat attaches
	// region metrics only on every Nth call, to bound heartbeat size and
	// CPU cost. Partial heartbeats (explicit region_ids) always report.
	ReportRegionMultiple int64

	// Role selects which per-region status block (index or document) a
	// heartbeat attaches, if any.
	Role NodeRole
}

const RaftSnapshotPolicyDingo = "dingo"
