package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/cmd/function-master/version"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/config"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/telemetry"
)

const shutdownTracingTimeout = 5 * time.Second

// NewMetastore, NewScheduler and NewLocalCtrlInvoker are the deployment's
// extension points. This repo implements the lifecycle controller that
// consumes the metadata store, the global scheduler and the per-node
// local controllers (spec.md §1 Non-goals), not the wire clients for
// those systems -- no .proto pipeline or etcd client is vendored here.
// A real deployment overrides these before calling NewServeCommand, e.g.
// in an init() in a build-tag-guarded file that links in the concrete
// etcd/gRPC clients. Left unset, Serve fails fast with a clear error
// instead of starting against a nil collaborator.
var (
	NewMetastore        func(cfg *config.Config) (metastore.Client, error)
	NewScheduler        func(cfg *config.Config) (scheduler.Scheduler, error)
	NewLocalCtrlInvoker func(cfg *config.Config) (localctrl.Invoker, error)
	// NewElection constructs the lease/election client this process
	// campaigns for master role through (spec.md §1, §4.H).
	NewElection func(cfg *config.Config) (metastore.Election, error)
)

// NewServeCommand builds the "serve" subcommand that loads configuration,
// wires every component and runs until an interrupt or terminate signal
// arrives.
func NewServeCommand() *cobra.Command {
	var configFile string
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the function-master lifecycle controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				if err := cfg.LoadFile(configFile); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return Serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	cfg.AddFlags(fs)
	fs.StringVar(&configFile, "config-file", "", "Optional YAML file overlaid onto the default/flag configuration.")
	return cmd
}

// Serve builds every component against cfg and cc, then runs until ctx
// is cancelled or an interrupt/terminate signal is received.
func Serve(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger("function-master", cfg.Debug)

	shutdownTracing, err := telemetry.ConfigureTracing(ctx, "function-master", version.Get().GitVersion)
	if err != nil {
		return fmt.Errorf("configure tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTracingTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("tracing shutdown failed", "err", err)
		}
	}()

	cc, err := buildControllerContext(cfg)
	if err != nil {
		return err
	}

	components, err := Build(cfg, cc, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("function-master starting",
		"grpcListenAddress", cfg.GRPCListenAddress,
		"httpListenAddress", cfg.HTTPListenAddress,
		"metricsListenAddress", cfg.MetricsListenAddress,
	)
	return components.Run(ctx, cfg, cc, logger)
}

func buildControllerContext(cfg *config.Config) (ControllerContext, error) {
	if NewMetastore == nil || NewScheduler == nil || NewLocalCtrlInvoker == nil || NewElection == nil {
		return ControllerContext{}, fmt.Errorf("app: no metastore/scheduler/local-controller/election client wired into this build; " +
			"set app.NewMetastore, app.NewScheduler, app.NewLocalCtrlInvoker and app.NewElection before calling NewServeCommand")
	}

	store, err := NewMetastore(cfg)
	if err != nil {
		return ControllerContext{}, fmt.Errorf("construct metastore client: %w", err)
	}
	sched, err := NewScheduler(cfg)
	if err != nil {
		return ControllerContext{}, fmt.Errorf("construct scheduler client: %w", err)
	}
	invoker, err := NewLocalCtrlInvoker(cfg)
	if err != nil {
		return ControllerContext{}, fmt.Errorf("construct local-controller invoker: %w", err)
	}
	election, err := NewElection(cfg)
	if err != nil {
		return ControllerContext{}, fmt.Errorf("construct election client: %w", err)
	}

	return ControllerContext{
		Metastore: store,
		Scheduler: sched,
		LocalCtrl: localctrl.NewGRPCClient(invoker),
		Election:  election,
	}, nil
}
