package grpcadmin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

func TestNewServer_StartsServing(t *testing.T) {
	_, hs := NewServer(func() (domain.NMState, domain.NMFlags) { return domain.NMIdle, 0 })
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestWatchState_MarksNotServingWhenStuck(t *testing.T) {
	_, hs := NewServer(func() (domain.NMState, domain.NMFlags) { return domain.NMIdle, 0 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go WatchState(ctx, hs, func() (domain.NMState, domain.NMFlags) { return domain.NMWaitForProtocol, 0 },
		func(s domain.NMState, _ domain.NMFlags) bool { return s == domain.NMWaitForProtocol })

	require.Eventually(t, func() bool {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 3*time.Second, 50*time.Millisecond)
}
