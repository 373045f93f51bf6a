package heartbeat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelope_RoundTripsStoreHeartbeatRequest(t *testing.T) {
	req := StoreHeartbeatRequest{
		SelfStoremapEpoch: 7,
		Store:             Store{ID: 1, Host: "10.0.0.1", Port: 19000, State: StoreUp},
		StoreMetrics: StoreMetrics{
			StoreID:       1,
			RegionMetrics: map[int64]RegionMetrics{10: {RegionID: 10, State: RegionNormal}},
		},
	}

	envelope, err := encodeEnvelope(req)
	require.NoError(t, err)

	var decoded StoreHeartbeatRequest
	require.NoError(t, decodeEnvelope(envelope, &decoded))

	assert.Equal(t, req.SelfStoremapEpoch, decoded.SelfStoremapEpoch)
	assert.Equal(t, req.Store, decoded.Store)
	assert.Equal(t, req.StoreMetrics.RegionMetrics[10].RegionID, decoded.StoreMetrics.RegionMetrics[10].RegionID)
}

func TestEncodeDecodeEnvelope_RoundTripsStoreHeartbeatResponse(t *testing.T) {
	resp := StoreHeartbeatResponse{
		Stores:       []Store{{ID: 1, Host: "10.0.0.1", Port: 19000, State: StoreUp}},
		ClusterState: ClusterState{IsReadOnly: true, ReadOnlyReason: "disk low"},
	}

	envelope, err := encodeEnvelope(resp)
	require.NoError(t, err)

	var decoded StoreHeartbeatResponse
	require.NoError(t, decodeEnvelope(envelope, &decoded))

	assert.Equal(t, resp.Stores, decoded.Stores)
	assert.Equal(t, resp.ClusterState, decoded.ClusterState)
}

type fakeCoordinatorInteractionStub struct {
	resp StoreHeartbeatResponse
	err  error
}

func (f *fakeCoordinatorInteractionStub) SendStoreHeartbeat(context.Context, StoreHeartbeatRequest) (StoreHeartbeatResponse, error) {
	return f.resp, f.err
}

func TestLoggingCoordinatorInteraction_PropagatesInnerResultAndError(t *testing.T) {
	ok := &LoggingCoordinatorInteraction{Inner: &fakeCoordinatorInteractionStub{resp: StoreHeartbeatResponse{Stores: []Store{{ID: 1}}}}}
	resp, err := ok.SendStoreHeartbeat(context.Background(), StoreHeartbeatRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Stores, 1)

	failing := &LoggingCoordinatorInteraction{Inner: &fakeCoordinatorInteractionStub{err: errors.New("boom")}}
	_, err = failing.SendStoreHeartbeat(context.Background(), StoreHeartbeatRequest{})
	assert.Error(t, err)
}
