package heartbeat

import (
	"context"
	"sync"
)

// CoordinatorControl is the narrow business-logic boundary the
// coordinator-only periodic tasks delegate to. Every method here mirrors
// one call the original's heartbeat.cc task classes make directly
// against CoordinatorControl/Server; this package only sequences when
// they run and guards against re-entrancy.
type CoordinatorControl interface {
	IsLeader() bool
	UpdateState(ctx context.Context) error
	ProcessJobList(ctx context.Context) error
	RecycleOrphan(ctx context.Context) error
	MetaWatchClean(ctx context.Context) error
	CalculateTableMetrics(ctx context.Context) error
	BalanceLeader(ctx context.Context, role NodeRole) error
	BalanceRegion(ctx context.Context, role NodeRole) error
}

// KvControl is the KV-store-only collaborator boundary.
type KvControl interface {
	IsLeader() bool
	RemoveOneTimeWatch(ctx context.Context) error
	LeaseTick(ctx context.Context) error
	Compaction(ctx context.Context) error
}

// IndexControl is the index/document-role collaborator boundary.
type IndexControl interface {
	ScrubVectorIndex(ctx context.Context) error
}

// RecordingControl is an in-memory CoordinatorControl/KvControl/
// IndexControl test double: every call appends its name to Calls and
// returns Err (nil unless set), letting pkg/scheduler's tests assert on
// dispatch order and guard mutual exclusion without a live coordinator.
type RecordingControl struct {
	mu    sync.Mutex
	Calls []string
	Err   error

	leader bool
}

// NewRecordingControl builds a RecordingControl; leader controls the
// answer IsLeader() gives every leader-gated task.
func NewRecordingControl(leader bool) *RecordingControl {
	return &RecordingControl{leader: leader}
}

func (r *RecordingControl) record(name string) error {
	r.mu.Lock()
	r.Calls = append(r.Calls, name)
	r.mu.Unlock()
	return r.Err
}

// CallCount returns how many calls have been recorded so far.
func (r *RecordingControl) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

func (r *RecordingControl) IsLeader() bool { return r.leader }

func (r *RecordingControl) UpdateState(context.Context) error          { return r.record("UpdateState") }
func (r *RecordingControl) ProcessJobList(context.Context) error       { return r.record("ProcessJobList") }
func (r *RecordingControl) RecycleOrphan(context.Context) error        { return r.record("RecycleOrphan") }
func (r *RecordingControl) MetaWatchClean(context.Context) error       { return r.record("MetaWatchClean") }
func (r *RecordingControl) CalculateTableMetrics(context.Context) error {
	return r.record("CalculateTableMetrics")
}

func (r *RecordingControl) BalanceLeader(_ context.Context, role NodeRole) error {
	return r.record("BalanceLeader:" + role.String())
}

func (r *RecordingControl) BalanceRegion(_ context.Context, role NodeRole) error {
	return r.record("BalanceRegion:" + role.String())
}

func (r *RecordingControl) RemoveOneTimeWatch(context.Context) error { return r.record("RemoveOneTimeWatch") }
func (r *RecordingControl) LeaseTick(context.Context) error         { return r.record("LeaseTick") }
func (r *RecordingControl) Compaction(context.Context) error        { return r.record("Compaction") }

func (r *RecordingControl) ScrubVectorIndex(context.Context) error { return r.record("ScrubVectorIndex") }

var (
	_ CoordinatorControl = (*RecordingControl)(nil)
	_ KvControl          = (*RecordingControl)(nil)
	_ IndexControl       = (*RecordingControl)(nil)
)
