// Package coordination provides the leader-election backing that
// scheduler.Scheduler consults before running any coordinator-only
// maintenance job.
package coordination

// Control is the collaborator surface the heartbeat scheduler depends
// on: "am I the leader" and "who is". Everything else a real raft node
// exposes (log replication, snapshots, voter membership) lives behind
// it but is not part of this contract.
type Control interface {
	IsLeader() bool
	LeaderAddr() string
}

// StaticControl is a fixed-answer Control for single-node deployments
// and tests, where standing up a raft cluster is unnecessary.
type StaticControl struct {
	Leader bool
	Addr   string
}

func (c StaticControl) IsLeader() bool    { return c.Leader }
func (c StaticControl) LeaderAddr() string { return c.Addr }

var _ Control = StaticControl{}
