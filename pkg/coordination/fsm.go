package coordination

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// Command is one replicated log entry: an opaque operation name plus its
// JSON payload, applied to the FSM's in-memory key/value view.
type Command struct {
	Op    string          `json:"op"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// fsm replicates a flat key/value view across the raft group. It backs
// coordination state written through Node.Put that must agree
// cluster-wide regardless of which node is leader at a given moment; it
// is deliberately not the task queue itself, which stays per-node and
// unreplicated.
type fsm struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func newFSM() *fsm {
	return &fsm{data: make(map[string]json.RawMessage)}
}

func (f *fsm) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("coordination: unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "put":
		f.data[cmd.Key] = cmd.Value
		return nil
	case "delete":
		delete(f.data, cmd.Key)
		return nil
	default:
		return fmt.Errorf("coordination: unknown command %q", cmd.Op)
	}
}

func (f *fsm) get(key string) (json.RawMessage, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	copied := make(map[string]json.RawMessage, len(f.data))
	for k, v := range f.data {
		copied[k] = v
	}
	return &fsmSnapshot{data: copied}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var data map[string]json.RawMessage
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("coordination: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	return nil
}

type fsmSnapshot struct {
	data map[string]json.RawMessage
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.data); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
