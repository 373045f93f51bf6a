package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/spf13/cobra"

	"github.com/dingodb/dingo-executor/pkg/config"
	"github.com/dingodb/dingo-executor/pkg/coordination"
	"github.com/dingodb/dingo-executor/pkg/heartbeat"
	"github.com/dingodb/dingo-executor/pkg/log"
	"github.com/dingodb/dingo-executor/pkg/metrics"
	"github.com/dingodb/dingo-executor/pkg/scheduler"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dingo-executor",
	Short: "dingo-executor runs the task execution pool and heartbeat scheduler",
	Long: `dingo-executor is the standalone task execution substrate: a
round-robin/least-queue/hash-keyed worker pool, a priority-queue worker
pool, and a heartbeat scheduler. This command submits the periodic store
heartbeat when a coordinator address is given; it does not trigger the
coordinator/KV maintenance jobs.`,
	Version: Version,
	RunE:    run,
}

var (
	configFile      string
	nodeID          string
	raftBindAddr    string
	raftBootstrap   bool
	coordinatorAddr string
	storeID         int64
	storeHost       string
	storePort       int32
	nodeRole        string
)

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dingo-executor version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	config.BindFlags(rootCmd)

	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML config file (optional; defaults to ./dingo-executor.yaml if present)")
	flags.StringVar(&nodeID, "node-id", "node-1", "This process's raft server ID")
	flags.StringVar(&raftBindAddr, "raft-bind-addr", "127.0.0.1:17000", "Address the raft transport listens on")
	flags.BoolVar(&raftBootstrap, "raft-bootstrap", true, "Bootstrap a new single-node raft cluster rooted at this node")
	flags.StringVar(&coordinatorAddr, "coordinator-addr", "", "gRPC address of the coordinator (blank disables store heartbeats)")
	flags.Int64Var(&storeID, "store-id", 1, "This store's numeric ID")
	flags.StringVar(&storeHost, "store-host", "127.0.0.1", "This store's advertised host")
	flags.Int32Var(&storePort, "store-port", 19000, "This store's advertised port")
	flags.StringVar(&nodeRole, "role", "store", "Node role: store, index or document")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd, configFile)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := log.WithComponent("main")
	logger.Info().Str("version", Version).Msg("dingo-executor starting")

	node, err := coordination.NewNode(coordination.Config{
		NodeID:   nodeID,
		BindAddr: raftBindAddr,
		DataDir:  filepath.Join(cfg.DataDir, "raft"),
	})
	if err != nil {
		return fmt.Errorf("coordination: %w", err)
	}
	if raftBootstrap {
		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("coordination: bootstrap: %w", err)
		}
	} else if err := node.Join(); err != nil {
		return fmt.Errorf("coordination: join: %w", err)
	}
	defer node.Shutdown()

	storeMeta, err := heartbeat.OpenStoreMetaManager(filepath.Join(cfg.DataDir, "store-meta.db"), storeID)
	if err != nil {
		return fmt.Errorf("heartbeat: open store meta: %w", err)
	}
	defer storeMeta.Close()
	if err := storeMeta.SetSelf(heartbeat.Store{ID: storeID, Host: storeHost, Port: storePort, State: heartbeat.StoreUp}); err != nil {
		return fmt.Errorf("heartbeat: set self store: %w", err)
	}

	var coordinatorIO heartbeat.CoordinatorInteraction
	if coordinatorAddr != "" {
		conn, err := grpc.NewClient(coordinatorAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("heartbeat: dial coordinator: %w", err)
		}
		defer conn.Close()
		coordinatorIO = &heartbeat.LoggingCoordinatorInteraction{
			Inner: heartbeat.NewGRPCCoordinatorInteraction(conn, "/dingodb.coordinator.Coordinator/StoreHeartbeat"),
		}
	}

	role := heartbeat.RoleStore
	switch nodeRole {
	case "index":
		role = heartbeat.RoleIndex
	case "document":
		role = heartbeat.RoleDocument
	}

	sched := scheduler.New(scheduler.Deps{
		StoreMeta:     storeMeta,
		CoordinatorIO: coordinatorIO,
		HeartbeatConfig: heartbeat.Config{
			RaftSnapshotPolicy:   cfg.RaftSnapshotPolicy,
			ReportRegionMultiple: cfg.StoreHeartbeatReportRegionMultiple,
			Role:                 role,
		},
		Coord: node,
	}, scheduler.FeatureFlags{
		EnableBalanceLeader: cfg.EnableBalanceLeader,
		EnableBalanceRegion: cfg.EnableBalanceRegion,
	})
	if !sched.Init() {
		return fmt.Errorf("scheduler: init failed")
	}
	defer sched.Destroy()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	stop := make(chan struct{})
	if coordinatorIO != nil {
		go storeHeartbeatLoop(sched, cfg.StoreHeartbeatTimeout, stop)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	close(stop)
	return metricsSrv.Close()
}

// storeHeartbeatLoop submits a full store heartbeat on the configured
// cadence, mirroring the original's timer-driven Heartbeat::Run.
func storeHeartbeatLoop(sched *scheduler.Scheduler, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sched.TriggerStoreHeartbeat(nil, false)
		case <-stop:
			return
		}
	}
}
