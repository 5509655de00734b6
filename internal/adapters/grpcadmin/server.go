// Package grpcadmin exposes the gateway's liveness over gRPC health
// checking, grounded on the teacher's NewGrpcServer
// (internal/core/services/grpc/grpc_server.go) - a thin wrapper
// constructing a *grpc.Server and registering one service - adapted
// from the teacher's streaming telemetry ingestion RPC to a health
// surface suited to an always-on gateway process with no inbound RPC
// traffic of its own.
package grpcadmin

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// healthPollInterval matches the teacher's cleanup-loop cadence order of
// magnitude (internal/core/services/network/network_service.go's
// StartCleanupLoop ticks once a minute; health state changes far faster
// than that, so this ticks once a second instead).
const healthPollInterval = time.Second

// StateFunc reports the network management state for the health check's
// serving-status decision.
type StateFunc func() (domain.NMState, domain.NMFlags)

// NewServer constructs a *grpc.Server with the standard health service
// registered and reporting SERVING. stateFn is not consulted here;
// WatchState updates the serving status afterwards, and the decision
// of which states count as stuck belongs to the isStuck predicate its
// caller passes in - this package only wires the reporting surface.
func NewServer(stateFn StateFunc) (*grpc.Server, *health.Server) {
	s := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

// WatchState polls stateFn and sets the health server's serving status
// to NOT_SERVING whenever isStuck reports the polled state as stuck, and
// SERVING otherwise, until ctx is cancelled.
func WatchState(ctx context.Context, hs *health.Server, stateFn StateFunc, isStuck func(domain.NMState, domain.NMFlags) bool) {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, flags := stateFn()
			if isStuck(state, flags) {
				hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			} else {
				hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			}
		}
	}
}
