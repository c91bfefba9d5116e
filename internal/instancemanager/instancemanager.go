// Package instancemanager implements spec.md §4.D, the
// FamilyLifecycleController: the hardest component, driving the family
// cache in response to instance watch events and node-abnormal reports.
package instancemanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/config"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/familycache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/groupmanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/killretry"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/resourcegroup"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/roster"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rolegate"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/telemetry"
)

const instancePrefix = "instance"
const abnormalPrefix = "abnormal-scheduler"

// Options configures a Controller.
type Options struct {
	// RuntimeRecoverEnable gates whether an instance on a failed node is
	// rescheduled in place (true) or marked FATAL outright (false).
	RuntimeRecoverEnable bool
	// FunctionMetaScope gates which function-meta deletes cascade a
	// shutdown through OnFunctionMetaDelete. Zero value takes
	// config.FunctionMetaScopeLatestOnly.
	FunctionMetaScope config.FunctionMetaScope
	Logger            *slog.Logger
	Metrics           *telemetry.Metrics
}

// Controller is the FamilyLifecycleController of spec.md §4.D.
type Controller struct {
	families *familycache.Cache
	groups   *groupmanager.Manager
	kills    *killretry.Engine
	store    metastore.Client
	opcache  *operatecache.Cache
	sched    scheduler.Scheduler
	nodes    *roster.NodeRoster
	abnormal *roster.AbnormalSet
	bundles  *resourcegroup.Manager
	gate     *rolegate.Gate

	runtimeRecoverEnable bool
	functionMetaScope    config.FunctionMetaScope
	functionMetaMu       sync.Mutex
	functionMeta         map[string]struct{}
	logger               *slog.Logger
	metrics              *telemetry.Metrics
}

// New builds a Controller. bundles may be nil if the deployment runs
// without resource groups; OnDemoted then skips the resource-group cache
// wipe.
func New(
	families *familycache.Cache,
	groups *groupmanager.Manager,
	kills *killretry.Engine,
	store metastore.Client,
	opcache *operatecache.Cache,
	sched scheduler.Scheduler,
	nodes *roster.NodeRoster,
	abnormal *roster.AbnormalSet,
	bundles *resourcegroup.Manager,
	gate *rolegate.Gate,
	opts Options,
) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FunctionMetaScope == "" {
		opts.FunctionMetaScope = config.FunctionMetaScopeLatestOnly
	}
	return &Controller{
		families:             families,
		groups:               groups,
		kills:                kills,
		store:                store,
		opcache:              opcache,
		sched:                sched,
		nodes:                nodes,
		abnormal:             abnormal,
		bundles:              bundles,
		gate:                 gate,
		runtimeRecoverEnable: opts.RuntimeRecoverEnable,
		functionMetaScope:    opts.FunctionMetaScope,
		functionMeta:         make(map[string]struct{}),
		logger:               opts.Logger,
		metrics:              opts.Metrics,
	}
}

// OnInstancePut handles a watch/reconciler put for an instance record.
func (c *Controller) OnInstancePut(ctx context.Context, key string, info *model.InstanceInfo) error {
	existing, existed := c.families.Get(info.InstanceID)
	if existed && existing.Version > info.Version {
		c.logger.Debug("stale instance put ignored", "instanceId", info.InstanceID,
			"cachedVersion", existing.Version, "incomingVersion", info.Version)
		return nil
	}

	if !existed && info.FunctionProxyID != "" && info.FunctionProxyID != model.InstanceManagerOwner && !c.nodes.Contains(info.FunctionProxyID) {
		stale := info.Clone()
		stale.FunctionProxyID = model.InstanceManagerOwner
		stale.State = model.InstanceStateFatal
		info = stale
	}

	c.families.Add(info)
	if info.GroupID != "" {
		c.groups.OnInstancePut(info.GroupID, info.InstanceID)
	}

	if !c.gate.IsMaster() {
		return nil
	}

	if !existed {
		if orphan, reason := c.isOrphan(info); orphan {
			c.logger.Info("killing orphaned instance on insert", "instanceId", info.InstanceID, "reason", reason)
			c.killOrphan(ctx, key, info)
			return nil
		}
	}

	becameFatal := info.State == model.InstanceStateFatal && (!existed || existing.State != model.InstanceStateFatal)
	if becameFatal {
		return c.cascadeFatal(ctx, info)
	}
	return nil
}

func (c *Controller) isOrphan(info *model.InstanceInfo) (bool, string) {
	if info.ParentID == "" {
		return false, ""
	}
	parent, ok := c.families.Get(info.ParentID)
	if !ok {
		return true, "parent absent"
	}
	if parent.State == model.InstanceStateFatal {
		return true, "parent fatal"
	}
	return false, ""
}

func (c *Controller) killOrphan(ctx context.Context, key string, info *model.InstanceInfo) {
	c.kills.KillInstanceWithRetry(ctx, info.InstanceID, info.FunctionProxyID, signal.CustomSignalRequest{
		Signal: signal.ShutDownSignal, InstanceID: info.InstanceID,
	})
	if err := c.store.Delete(ctx, key); err != nil {
		c.opcache.AddDeleteEvent(instancePrefix, key)
		c.logger.Error("delete orphan instance metadata failed, queued for reconciliation",
			"instanceId", info.InstanceID, "err", err)
	}
}

// cascadeFatal implements the FATAL-transition branch of OnInstancePut:
// an app-driver that finished successfully cascades with SHUT_DOWN_SIGNAL
// (orderly), everything else cascades with FAMILY_EXIT_SIGNAL and fails
// the owning group.
func (c *Controller) cascadeFatal(ctx context.Context, info *model.InstanceInfo) error {
	sig := signal.FamilyExitSignal
	if info.AppDriverSucceeded() {
		sig = signal.ShutDownSignal
	} else if info.GroupID != "" {
		if err := c.groups.OnInstanceAbnormal(ctx, info.GroupID); err != nil {
			return fmt.Errorf("mark group %s failed during fatal cascade: %w", info.GroupID, err)
		}
	}

	for _, d := range c.families.GetAllDescendantsOf(info.InstanceID, true) {
		if d.State.IsTerminal() {
			continue
		}
		c.kills.KillInstanceWithRetry(ctx, d.InstanceID, d.FunctionProxyID, signal.CustomSignalRequest{
			Signal: sig, InstanceID: d.InstanceID,
		})
	}
	return nil
}

// OnInstanceDelete handles a watch/reconciler delete for an instance
// record.
func (c *Controller) OnInstanceDelete(ctx context.Context, key string, info *model.InstanceInfo) {
	c.families.Remove(info.InstanceID)
	c.kills.OnInstanceDeleted(info.InstanceID)
	if info.GroupID != "" {
		c.groups.OnInstanceDelete(ctx, info.GroupID, info.InstanceID)
	} else {
		c.groups.OnInstanceDelete(ctx, "", info.InstanceID)
	}
}

// OnLocalSchedFault implements the node-fault handling of spec.md §4.D:
// persist the node into the abnormal-scheduler set (exactly once per
// concurrent callers), hand over group ownership, then either reschedule
// or fatally mark every instance that lived on the node.
func (c *Controller) OnLocalSchedFault(ctx context.Context, nodeID string) error {
	if !c.gate.IsMaster() {
		return nil
	}
	if c.abnormal.Add(nodeID) {
		key := model.AbnormalSchedulerKey(nodeID)
		if err := c.store.Put(ctx, key, []byte(nodeID)); err != nil {
			c.opcache.AddPutEvent(abnormalPrefix, key, []byte(nodeID))
			c.logger.Error("persist abnormal scheduler entry failed, queued for reconciliation",
				"nodeId", nodeID, "err", err)
		}
		if c.metrics != nil {
			c.metrics.AbnormalNodes.Set(float64(len(c.abnormal.Members())))
		}
	}

	if err := c.groups.HandOverOwnerFromNode(ctx, nodeID); err != nil {
		return fmt.Errorf("hand over group ownership from node %s: %w", nodeID, err)
	}

	for _, inst := range c.families.WithProxy(nodeID) {
		if inst.State == model.InstanceStateFatal {
			c.forceDeleteInstance(ctx, inst)
			continue
		}
		if c.runtimeRecoverEnable && inst.RecoverRetryTimes() > 0 {
			c.rescheduleInstance(ctx, inst)
			continue
		}
		if err := c.markFatal(ctx, inst); err != nil {
			c.logger.Error("mark instance fatal after node fault failed", "instanceId", inst.InstanceID, "err", err)
		}
	}
	return nil
}

func (c *Controller) rescheduleInstance(ctx context.Context, inst *model.InstanceInfo) {
	updated := inst.Clone()
	updated.FunctionProxyID = model.InstanceManagerOwner
	updated.State = model.InstanceStateScheduling
	if err := c.persistInstance(ctx, instanceKeyFor(updated), updated); err != nil {
		c.logger.Error("persist instance during recovery failed", "instanceId", inst.InstanceID, "err", err)
		return
	}
	c.families.Add(updated)
	if _, err := c.sched.RescheduleInstance(ctx, inst.InstanceID); err != nil {
		c.logger.Warn("reschedule request failed, instance remains SCHEDULING for next fault/reconciliation",
			"instanceId", inst.InstanceID, "err", err)
	}
}

func (c *Controller) markFatal(ctx context.Context, inst *model.InstanceInfo) error {
	updated := inst.Clone()
	updated.State = model.InstanceStateFatal
	key := instanceKeyFor(updated)
	if err := c.persistInstance(ctx, key, updated); err != nil {
		return err
	}
	return c.OnInstancePut(ctx, key, updated)
}

func (c *Controller) forceDeleteInstance(ctx context.Context, inst *model.InstanceInfo) {
	key := instanceKeyFor(inst)
	if err := c.store.Delete(ctx, key); err != nil {
		c.opcache.AddDeleteEvent(instancePrefix, key)
		c.logger.Error("force-delete already-fatal instance after node fault failed",
			"instanceId", inst.InstanceID, "err", err)
		return
	}
	c.OnInstanceDelete(ctx, key, inst)
}

// ForceDelete implements killretry.ForceDeleteFunc: force-deletes an
// instance's metadata record when a kill target turns out to already be
// gone (ERR_INSTANCE_NOT_FOUND).
func (c *Controller) ForceDelete(ctx context.Context, instanceID string) error {
	inst, ok := c.families.Get(instanceID)
	if !ok {
		return nil
	}
	key := instanceKeyFor(inst)
	if err := c.store.Delete(ctx, key); err != nil {
		c.opcache.AddDeleteEvent(instancePrefix, key)
		return err
	}
	c.OnInstanceDelete(ctx, key, inst)
	return nil
}

// KillJob fans SHUT_DOWN_SIGNAL_ALL out to every non-terminal instance
// whose JobID matches jobID, independent of family structure. Unlike
// cascadeFatal this is not triggered by any single instance's state
// transition; it is a caller-driven, job-scoped kill.
func (c *Controller) KillJob(ctx context.Context, jobID string) {
	for _, inst := range c.families.All() {
		if inst.JobID != jobID || inst.State.IsTerminal() {
			continue
		}
		c.kills.KillInstanceWithRetry(ctx, inst.InstanceID, inst.FunctionProxyID, signal.CustomSignalRequest{
			Signal: signal.ShutDownSignalAll, InstanceID: inst.InstanceID,
		})
	}
}

// CompleteKillInstance marks instanceID's kill as done without waiting on
// a fresh delete watch event: it resolves any in-flight kill promise and
// drives the same family/group cleanup OnInstanceDelete would, trusting
// the caller (e.g. a synchronous CLI driver) that the instance is
// actually gone. Unlike ForceDelete it does not itself delete the store
// record -- the caller owns that.
func (c *Controller) CompleteKillInstance(ctx context.Context, instanceID string) {
	inst, ok := c.families.Get(instanceID)
	c.kills.OnInstanceDeleted(instanceID)
	if !ok {
		return
	}
	c.OnInstanceDelete(ctx, instanceKeyFor(inst), inst)
}

// OnFunctionMetaPut records key as a currently-known function-meta entry,
// for the reconciler's cache-vs-upstream key diff. Function-meta records
// are watched, not written, by this system (spec.md §6), so nothing
// beyond the key itself is retained.
func (c *Controller) OnFunctionMetaPut(_ context.Context, key string, _ []byte) error {
	c.functionMetaMu.Lock()
	c.functionMeta[key] = struct{}{}
	c.functionMetaMu.Unlock()
	return nil
}

// FunctionMetaKeys returns a snapshot of every function-meta key currently
// tracked, for the reconciler's cache-vs-upstream key diff.
func (c *Controller) FunctionMetaKeys() map[string]struct{} {
	c.functionMetaMu.Lock()
	defer c.functionMetaMu.Unlock()
	out := make(map[string]struct{}, len(c.functionMeta))
	for k := range c.functionMeta {
		out[k] = struct{}{}
	}
	return out
}

// OnFunctionMetaDelete cascades SHUT_DOWN_SIGNAL to every non-terminal
// instance of the deleted function's key, gated by FunctionMetaScope: in
// FunctionMetaScopeLatestOnly (the default) only the $latest alias's
// deletion cascades, leaving pinned-version deletes as a no-op.
func (c *Controller) OnFunctionMetaDelete(ctx context.Context, key string) {
	c.functionMetaMu.Lock()
	delete(c.functionMeta, key)
	c.functionMetaMu.Unlock()

	if c.functionMetaScope == config.FunctionMetaScopeLatestOnly && !model.IsLatestFunctionMetaKey(key) {
		c.logger.Debug("function-meta delete outside latest-only scope, ignored", "key", key)
		return
	}
	functionID := model.FunctionIDFromFunctionMetaKey(key)
	if functionID == "" {
		return
	}
	for _, inst := range c.families.All() {
		if inst.Function != functionID || inst.State.IsTerminal() {
			continue
		}
		c.kills.KillInstanceWithRetry(ctx, inst.InstanceID, inst.FunctionProxyID, signal.CustomSignalRequest{
			Signal: signal.ShutDownSignal, InstanceID: inst.InstanceID,
		})
	}
}

// OnDemoted implements the leader-demotion cache reset: when the metadata
// store cannot resume a broken watch from its last observed revision,
// every in-memory cache is wiped so the next reconciliation sweep rebuilds
// it from a clean upstream snapshot instead of healing against state that
// accumulated while this process held no write/signal responsibility.
func (c *Controller) OnDemoted(ctx context.Context) {
	if c.store.SupportsResume() {
		return
	}
	c.families.SyncAll(ctx, nil)
	c.groups.Caches().Reset()
	if c.bundles != nil {
		c.bundles.Caches().Reset()
	}
	c.abnormal.Seed(nil)
	c.functionMetaMu.Lock()
	c.functionMeta = make(map[string]struct{})
	c.functionMetaMu.Unlock()
	c.logger.InfoContext(ctx, "leader demoted, in-memory caches wiped pending resync")
}

func (c *Controller) persistInstance(ctx context.Context, key string, info *model.InstanceInfo) error {
	value, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, key, value); err != nil {
		c.opcache.AddPutEvent(instancePrefix, key, value)
		return err
	}
	return nil
}

// KeyFor returns the metadata-store key instanceKeyFor would compute for
// info, exported for the reconciler's cache-vs-upstream key diff.
func KeyFor(info *model.InstanceInfo) string {
	return instanceKeyFor(info)
}

// instanceKeyFor reconstructs the metadata-store key for an instance. The
// controller does not otherwise persist the full key layout components
// (tenant/function/version/az) outside of RequestID, so this helper only
// supports the fields actually carried on InstanceInfo; callers that need
// the exact upstream key should prefer the key observed on the original
// watch event.
func instanceKeyFor(info *model.InstanceInfo) string {
	return model.InstanceKey("default", "default", info.Function, "$latest", "default", info.RequestID, info.InstanceID)
}
