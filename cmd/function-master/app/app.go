// Package app wires every function-master component into a runnable
// process, grounded on milo's cmd/milo/controller-manager/core.go
// pattern of a context struct fed into a start function.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/config"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/familycache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/groupmanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/httpapi"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/instancemanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/killretry"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/reconciler"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/resourcegroup"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rolegate"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/roster"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/telemetry"
)

// ControllerContext is the set of external collaborators this system
// consumes but does not implement (spec.md §1 Non-goals: "the actor
// runtime, RPC transport, and HTTP server" and "the metadata store,
// scheduler, local-node controllers" are provided, not built here).
// A concrete deployment supplies these -- e.g. an etcd-backed
// metastore.Client, a scheduler.Scheduler RPC client, a localctrl.Client
// wired to generated protobuf stubs once a wire format is chosen, and an
// Election backed by the same store's lease API.
type ControllerContext struct {
	Metastore metastore.Client
	Scheduler scheduler.Scheduler
	LocalCtrl localctrl.Client
	Election  metastore.Election
}

// Components holds every wired actor, ready to Run.
type Components struct {
	Instances  *instancemanager.Controller
	Groups     *groupmanager.Manager
	Bundles    *resourcegroup.Manager
	Reconciler *reconciler.Reconciler
	Families   *familycache.Cache
	HTTP       *httpapi.Server
	Metrics    *telemetry.Metrics
	Gate       *rolegate.Gate
	Nodes      *roster.NodeRoster
	Abnormal   *roster.AbnormalSet
}

// Build wires every component of spec.md §4 together against cfg and
// cc, following the dependency order of DESIGN.md's component table
// (families/roster first, then the actors that index into them, then
// the reconciler that sweeps all of them).
func Build(cfg *config.Config, cc ControllerContext, logger *slog.Logger, reg prometheus.Registerer) (*Components, error) {
	if cc.Metastore == nil || cc.Scheduler == nil || cc.LocalCtrl == nil || cc.Election == nil {
		return nil, fmt.Errorf("app: Metastore, Scheduler, LocalCtrl and Election must all be supplied by the deployment")
	}

	metrics := telemetry.NewMetrics(reg)
	gate := rolegate.New()
	opcache := operatecache.New()
	families := familycache.New(logger)
	nodes := roster.NewNodeRoster()
	abnormal := roster.NewAbnormalSet()

	groups := groupmanager.New(cc.Metastore, opcache, cc.LocalCtrl, cc.Scheduler, families, gate, logger)

	bundles := resourcegroup.New(cc.Metastore, opcache, cc.LocalCtrl, cc.Scheduler, gate, logger)
	bundles.SetMetrics(metrics)

	// instances is assigned below; kills only invokes ForceDelete on a
	// goroutine spawned after Build returns, so the forward reference is
	// always resolved by the time it is called.
	var instances *instancemanager.Controller
	kills := killretry.NewEngine(cc.LocalCtrl, cc.Scheduler, func(ctx context.Context, instanceID string) error {
		return instances.ForceDelete(ctx, instanceID)
	}, killretry.Options{
		RetryInterval: cfg.RetryKillInterval(),
		KillTimeout:   cfg.KillTimeout(),
		Logger:        logger,
		Metrics:       metrics,
	})

	instances = instancemanager.New(families, groups, kills, cc.Metastore, opcache, cc.Scheduler, nodes, abnormal, bundles, gate, instancemanager.Options{
		RuntimeRecoverEnable: cfg.RuntimeRecoverEnable,
		FunctionMetaScope:    cfg.FunctionMetaScope,
		Logger:               logger,
		Metrics:              metrics,
	})

	rec := reconciler.New(cc.Metastore, opcache,
		[]reconciler.KeyedTarget{
			&reconciler.InstanceTarget{Controller: instances, Families: families, Logger: logger},
			&reconciler.GroupTarget{Manager: groups, Logger: logger},
			&reconciler.FunctionMetaTarget{Controller: instances},
		},
		[]reconciler.SnapshotTarget{
			&reconciler.ResourceGroupTarget{Manager: bundles, Logger: logger},
		},
		reconciler.Options{Period: cfg.WatchSyncPeriod(), Logger: logger, Metrics: metrics},
	)

	httpServer := &httpapi.Server{Families: families, Bundles: bundles, Nodes: nodes, Store: cc.Metastore, Logger: logger}

	return &Components{
		Instances:  instances,
		Groups:     groups,
		Bundles:    bundles,
		Reconciler: rec,
		Families:   families,
		HTTP:       httpServer,
		Metrics:    metrics,
		Gate:       gate,
		Nodes:      nodes,
		Abnormal:   abnormal,
	}, nil
}

// Run seeds the node roster from the scheduler, starts the reconciler's
// sweep loop and serves the HTTP/metrics endpoints until ctx is
// cancelled.
func (c *Components) Run(ctx context.Context, cfg *config.Config, cc ControllerContext, logger *slog.Logger) error {
	seed, err := cc.Scheduler.QueryNodes(ctx)
	if err != nil {
		return fmt.Errorf("app: seed node roster: %w", err)
	}
	seedMap := make(map[string]string, len(seed))
	for _, n := range seed {
		seedMap[n.NodeID] = n.Address
	}
	c.Nodes.Seed(seedMap)

	go c.Reconciler.Run(ctx)
	go c.WatchLoop(ctx, cc, logger)
	go c.electionLoop(ctx, cc, logger)

	httpSrv := &http.Server{Addr: cfg.HTTPListenAddress, Handler: c.HTTP.Router()}
	metricsSrv := &http.Server{Addr: cfg.MetricsListenAddress, Handler: promhttp.Handler()}

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	go func() { errCh <- metricsSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		_ = httpSrv.Close()
		_ = metricsSrv.Close()
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
