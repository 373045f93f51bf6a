package coordination

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Node is a raft-backed Control: the scheduler asks it IsLeader() before
// running any coordinator-only maintenance job, the same way the
// original process consulted its embedded braft node.
type Node struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *fsm
}

// Config configures a single raft node. DataDir holds the raft log,
// stable store and snapshots (distinct from heartbeat's bbolt store-view
// file).
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// NewNode builds a Node without starting raft; call Bootstrap or Join.
func NewNode(cfg Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("coordination: create data dir: %w", err)
	}
	return &Node{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      newFSM(),
	}, nil
}

func (n *Node) raftConfig() *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(n.nodeID)
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	return cfg
}

func (n *Node) newRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", n.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("coordination: resolve bind addr: %w", err)
	}

	transport, err := raft.NewTCPTransport(n.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("coordination: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(n.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("coordination: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("coordination: create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("coordination: create stable store: %w", err)
	}

	r, err := raft.NewRaft(n.raftConfig(), n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("coordination: create raft: %w", err)
	}
	return r, transport, nil
}

// Bootstrap starts a new single-node raft cluster rooted at this node.
func (n *Node) Bootstrap() error {
	r, transport, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	cfg := raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(n.nodeID), Address: transport.LocalAddr()}},
	}
	if err := n.raft.BootstrapCluster(cfg).Error(); err != nil {
		return fmt.Errorf("coordination: bootstrap cluster: %w", err)
	}
	return nil
}

// Join starts raft without bootstrapping a cluster and returns at once.
// It sends no join request: the node takes part in the group only after
// the current leader admits it with AddVoter.
func (n *Node) Join() error {
	r, _, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r
	return nil
}

// AddVoter admits nodeID/addr as a full raft voter. Only the leader may
// call this successfully.
func (n *Node) AddVoter(nodeID, addr string) error {
	if n.raft == nil {
		return fmt.Errorf("coordination: raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("coordination: not leader, current leader %s", n.LeaderAddr())
	}
	return n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second).Error()
}

// RemoveServer evicts a node from the raft group.
func (n *Node) RemoveServer(nodeID string) error {
	if n.raft == nil {
		return fmt.Errorf("coordination: raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("coordination: not leader")
	}
	return n.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error()
}

// IsLeader implements Control.
func (n *Node) IsLeader() bool {
	if n.raft == nil {
		return false
	}
	return n.raft.State() == raft.Leader
}

// LeaderAddr implements Control.
func (n *Node) LeaderAddr() string {
	if n.raft == nil {
		return ""
	}
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// Put replicates a key/value pair through the raft log, for
// coordinator-only state that must survive a leadership change. Only the
// leader's Apply succeeds.
func (n *Node) Put(key string, value any) error {
	if n.raft == nil {
		return fmt.Errorf("coordination: raft not initialized")
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("coordination: marshal value: %w", err)
	}
	cmd, err := json.Marshal(Command{Op: "put", Key: key, Value: payload})
	if err != nil {
		return err
	}
	return n.raft.Apply(cmd, 5*time.Second).Error()
}

// Get reads a replicated key from this node's local FSM view. Reads are
// local and may be stale on a follower; callers that need linearizable
// reads should route through the leader.
func (n *Node) Get(key string, out any) (bool, error) {
	raw, ok := n.fsm.get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("coordination: unmarshal value: %w", err)
	}
	return true, nil
}

// Shutdown stops the raft node.
func (n *Node) Shutdown() error {
	if n.raft == nil {
		return nil
	}
	if err := n.raft.Shutdown().Error(); err != nil {
		return fmt.Errorf("coordination: shutdown raft: %w", err)
	}
	return nil
}

// NodeID returns this node's raft server ID.
func (n *Node) NodeID() string { return n.nodeID }

var _ Control = (*Node)(nil)
