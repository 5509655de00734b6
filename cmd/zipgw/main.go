// Command zipgw runs the Z-Wave-to-IP gateway control plane, wiring
// the radio façade, security engine, send pipeline, send-request
// matcher, resource directory, bridge, dispatch table and network
// management state machine together behind the serial, storage and
// web adapters. Grounded on the teacher's cmd/wmap/main.go: structured
// logging setup, signal.NotifyContext root cancellation, sequential
// component construction, then a fan-out of long-running goroutines
// joined on a shared error channel.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zwave-gw/zipgw/internal/adapters/grpcadmin"
	"github.com/zwave-gw/zipgw/internal/adapters/serialapi"
	"github.com/zwave-gw/zipgw/internal/adapters/storage"
	"github.com/zwave-gw/zipgw/internal/adapters/web"
	"github.com/zwave-gw/zipgw/internal/adapters/zippacket"
	"github.com/zwave-gw/zipgw/internal/config"
	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/core/services/bridge"
	"github.com/zwave-gw/zipgw/internal/core/services/dispatch"
	"github.com/zwave-gw/zipgw/internal/core/services/networkmanagement"
	"github.com/zwave-gw/zipgw/internal/core/services/radiofacade"
	"github.com/zwave-gw/zipgw/internal/core/services/resourcedirectory"
	"github.com/zwave-gw/zipgw/internal/core/services/security"
	"github.com/zwave-gw/zipgw/internal/core/services/sendpipeline"
	"github.com/zwave-gw/zipgw/internal/core/services/sendrequest"
	"github.com/zwave-gw/zipgw/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("zipgw starting")

	cfg := config.Load()
	if cfg.Debug {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown error", "error", err)
		}
	}()
	telemetry.InitMetrics()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var networkKey [16]byte
	copy(networkKey[:], cfg.PSK)
	keys, err := security.DeriveKeys(networkKey)
	if err != nil {
		slog.Error("failed to derive security keys", "error", err)
		os.Exit(1)
	}

	radio := serialapi.NewSimulator(logger, domain.HomeID(0), domain.NodeID(1))

	facade := radiofacade.New(logger, radio)
	securityEngine := security.NewEngine(keys, domain.NodeID(1), facade)
	pipeline := sendpipeline.New(logger, securityEngine, facade)
	matcher := sendrequest.New(pipeline)
	rd := resourcedirectory.New(logger, store)
	br := bridge.New(logger, radio, store)
	table := dispatch.New(logger)
	nms := networkmanagement.New(logger, radio, rd, securityEngine)

	if err := br.Init(ctx); err != nil {
		slog.Error("bridge initialization failed", "error", err)
		os.Exit(1)
	}

	if entries, err := store.Import(); err != nil {
		slog.Error("failed to read persisted resource directory", "error", err)
	} else {
		slog.Info("persisted resource directory entries found", "nodes", len(entries))
	}

	registerHandlers(table, matcher, br)

	var panPrefix [16]byte
	copy(panPrefix[:], cfg.PanPrefix.To16())

	radio.Unsolicited(ctx, func(rxStatus domain.RxFlags, dnode, snode domain.NodeID, frame domain.Frame) {
		if matcher.Dispatch(domain.TSParam{SNode: snode, DNode: dnode}, frame) {
			return
		}
		conn := domain.ZWaveConnection{
			RemoteIP6: zippacket.NodeIP(panPrefix, snode),
			LocalIP6:  zippacket.NodeIP(panPrefix, dnode),
			RxFlags:   rxStatus,
		}
		table.Dispatch(conn, frame, ports.OriginRadio, false)
	})

	diag := web.Diagnostics{
		Nodes:    rd.All,
		NMState:  nms.State,
		IPAssocs: br.IPAssociations,
	}
	webServer := web.NewServer(logger, cfg.HTTPAddr, diag)

	healthFn := func() (domain.NMState, domain.NMFlags) { return nms.State() }
	grpcSrv, healthSrv := grpcadmin.NewServer(healthFn)

	errCh := make(chan error, 4)

	go pipeline.Run(ctx)
	go nms.Run(ctx)
	go grpcadmin.WatchState(ctx, healthSrv, healthFn, stuckInFSM)

	go func() {
		if err := webServer.Run(ctx); err != nil {
			errCh <- fmt.Errorf("web server: %w", err)
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			errCh <- fmt.Errorf("grpc listen: %w", err)
			return
		}
		go func() {
			<-ctx.Done()
			grpcSrv.GracefulStop()
		}()
		slog.Info("grpc admin server listening", "port", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	slog.Info("zipgw started")

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("fatal error encountered", "error", err)
		cancel()
	}

	time.Sleep(1 * time.Second)
	slog.Info("zipgw shut down")
}

// stuckInFSM reports the network management state as unhealthy once it
// has left Idle; a real deployment would track how long it has been
// away from Idle and only flip at that state's own timeout budget, but
// the FSM owns those precise timers internally (spec §4.G drivers), so
// the health surface only needs the coarse signal.
func stuckInFSM(state domain.NMState, _ domain.NMFlags) bool {
	return state != domain.NMIdle
}

func registerHandlers(table *dispatch.Table, matcher ports.SendRequestMatcher, br *bridge.Bridge) {
	table.Register(ports.HandlerEntry{
		Class:         domain.CCNetworkManagement,
		MinimalScheme: domain.NoScheme,
		Handler: func(conn domain.ZWaveConnection, frame domain.Frame, origin ports.Origin) ports.HandlerResult {
			if origin == ports.OriginRadio {
				return ports.NotSupported
			}
			return ports.Handled
		},
		NetworkMgmt: true,
	})
}
