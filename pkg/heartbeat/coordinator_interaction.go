package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dingodb/dingo-executor/pkg/log"
)

// CoordinatorInteraction is the RPC boundary StoreHeartbeatTask sends
// through, mirroring the original's CoordinatorInteraction::SendRequest.
// No .proto file ships with this package; requests are round-tripped
// through structpb.Struct, a genuine proto.Message every grpc codec
// already knows how to marshal, instead of generated stubs.
type CoordinatorInteraction interface {
	SendStoreHeartbeat(ctx context.Context, req StoreHeartbeatRequest) (StoreHeartbeatResponse, error)
}

// GRPCCoordinatorInteraction sends heartbeats over a grpc.ClientConn to
// a fixed method path.
type GRPCCoordinatorInteraction struct {
	conn       *grpc.ClientConn
	methodPath string
}

// NewGRPCCoordinatorInteraction wraps an established connection to a
// coordinator. methodPath follows grpc's "/service/Method" convention,
// e.g. "/dingodb.pb.coordinator.CoordinatorService/StoreHeartbeat".
func NewGRPCCoordinatorInteraction(conn *grpc.ClientConn, methodPath string) *GRPCCoordinatorInteraction {
	return &GRPCCoordinatorInteraction{conn: conn, methodPath: methodPath}
}

// SendStoreHeartbeat marshals req into a structpb envelope and invokes
// the coordinator's heartbeat RPC.
func (c *GRPCCoordinatorInteraction) SendStoreHeartbeat(ctx context.Context, req StoreHeartbeatRequest) (StoreHeartbeatResponse, error) {
	envelope, err := encodeEnvelope(req)
	if err != nil {
		return StoreHeartbeatResponse{}, fmt.Errorf("heartbeat: encode request: %w", err)
	}

	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, c.methodPath, envelope, reply); err != nil {
		return StoreHeartbeatResponse{}, fmt.Errorf("heartbeat: coordinator RPC failed: %w", err)
	}

	var resp StoreHeartbeatResponse
	if err := decodeEnvelope(reply, &resp); err != nil {
		return StoreHeartbeatResponse{}, fmt.Errorf("heartbeat: decode response: %w", err)
	}
	return resp, nil
}

var _ CoordinatorInteraction = (*GRPCCoordinatorInteraction)(nil)

// LoggingCoordinatorInteraction wraps another CoordinatorInteraction and
// logs every call; useful for local single-node runs with no real
// coordinator reachable.
type LoggingCoordinatorInteraction struct {
	Inner CoordinatorInteraction
}

func (l *LoggingCoordinatorInteraction) SendStoreHeartbeat(ctx context.Context, req StoreHeartbeatRequest) (StoreHeartbeatResponse, error) {
	logger := log.WithComponent("heartbeat.coordinator_interaction")
	resp, err := l.Inner.SendStoreHeartbeat(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Int64("store_id", req.Store.ID).Msg("heartbeat: store heartbeat failed")
		return resp, err
	}
	logger.Debug().Int64("store_id", req.Store.ID).Int("store_count", len(resp.Stores)).Msg("heartbeat: store heartbeat ok")
	return resp, nil
}

var _ CoordinatorInteraction = (*LoggingCoordinatorInteraction)(nil)

// encodeEnvelope round-trips v through JSON into a structpb.Struct: the
// cheapest way to get a real proto.Message onto the wire for a domain
// type that has no generated .proto counterpart.
func encodeEnvelope(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	return structpb.NewStruct(asMap)
}

func decodeEnvelope(s *structpb.Struct, out any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
