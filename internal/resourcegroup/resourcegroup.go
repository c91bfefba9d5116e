// Package resourcegroup implements spec.md §4.F: pre-scheduled bundle
// pools placed via the global scheduler, rescheduled on node failure.
package resourcegroup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/reqid"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rolegate"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/telemetry"
)

const resourceGroupPrefix = "resource-group"

// Caches holds the resource-group indices: name -> info, bundleId ->
// info, nodeId -> set<bundleId> (the inverse of bundleInfos.functionProxyId).
type Caches struct {
	mu      sync.RWMutex
	groups  map[string]*model.ResourceGroupInfo
	bundles map[string]*model.BundleInfo
	byProxy map[string]map[string]struct{}
}

// NewCaches returns an empty Caches.
func NewCaches() *Caches {
	return &Caches{
		groups:  make(map[string]*model.ResourceGroupInfo),
		bundles: make(map[string]*model.BundleInfo),
		byProxy: make(map[string]map[string]struct{}),
	}
}

func (c *Caches) putGroup(info *model.ResourceGroupInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[info.Name] = info.Clone()
}

func (c *Caches) removeGroup(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, name)
}

func (c *Caches) group(name string) (*model.ResourceGroupInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[name]
	return g, ok
}

func (c *Caches) putBundle(b *model.BundleInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.bundles[b.BundleID]; ok && old.FunctionProxyID != "" {
		removeFromProxyIndex(c.byProxy, old.FunctionProxyID, b.BundleID)
	}
	c.bundles[b.BundleID] = b.Clone()
	if b.FunctionProxyID != "" {
		addToProxyIndex(c.byProxy, b.FunctionProxyID, b.BundleID)
	}
}

func (c *Caches) removeBundle(bundleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bundles[bundleID]; ok && b.FunctionProxyID != "" {
		removeFromProxyIndex(c.byProxy, b.FunctionProxyID, bundleID)
	}
	delete(c.bundles, bundleID)
}

func (c *Caches) bundle(id string) (*model.BundleInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bundles[id]
	return b, ok
}

// AllBundles returns a snapshot of every cached bundle, for the
// /global-scheduler/resources debug query.
func (c *Caches) AllBundles() []*model.BundleInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.BundleInfo, 0, len(c.bundles))
	for _, b := range c.bundles {
		out = append(out, b.Clone())
	}
	return out
}

func (c *Caches) bundlesOnProxy(nodeID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.byProxy[nodeID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func addToProxyIndex(idx map[string]map[string]struct{}, nodeID, bundleID string) {
	set, ok := idx[nodeID]
	if !ok {
		set = make(map[string]struct{})
		idx[nodeID] = set
	}
	set[bundleID] = struct{}{}
}

func removeFromProxyIndex(idx map[string]map[string]struct{}, nodeID, bundleID string) {
	if set, ok := idx[nodeID]; ok {
		delete(set, bundleID)
		if len(set) == 0 {
			delete(idx, nodeID)
		}
	}
}

// Reset clears every resource-group and bundle index. Used on leader
// demotion when the metadata store cannot resume a broken watch from its
// last revision, so the next reconciliation sweep rebuilds the cache from
// a clean upstream snapshot instead of healing against stale entries.
func (c *Caches) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[string]*model.ResourceGroupInfo)
	c.bundles = make(map[string]*model.BundleInfo)
	c.byProxy = make(map[string]map[string]struct{})
}

// Manager implements spec.md §4.F.
type Manager struct {
	caches  *Caches
	store   metastore.Client
	opcache *operatecache.Cache
	rpc     localctrl.Client
	sched   scheduler.Scheduler
	gate    *rolegate.Gate
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu             sync.Mutex
	pendingDeletes map[string]bool
}

// SetMetrics attaches an optional metrics bundle. Unset, reschedule
// counters are simply not recorded.
func (m *Manager) SetMetrics(metrics *telemetry.Metrics) {
	m.metrics = metrics
}

// New builds a Manager.
func New(store metastore.Client, opcache *operatecache.Cache, rpc localctrl.Client, sched scheduler.Scheduler, gate *rolegate.Gate, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		caches:         NewCaches(),
		store:          store,
		opcache:        opcache,
		rpc:            rpc,
		sched:          sched,
		gate:           gate,
		logger:         logger,
		pendingDeletes: make(map[string]bool),
	}
}

// CreateResourceGroup places req's bundles via the scheduler, transitioning
// PENDING -> CREATED on success or PENDING -> FAILED on scheduler error.
func (m *Manager) CreateResourceGroup(ctx context.Context, req *model.ResourceGroupInfo) error {
	if !m.gate.IsMaster() {
		return fmt.Errorf("resourcegroup: not leader, CreateResourceGroup rejected")
	}
	pending := req.Clone()
	pending.Status = model.ResourceGroupStatusPending
	if err := m.persistGroup(ctx, pending); err != nil {
		return fmt.Errorf("persist pending resource group %s: %w", req.Name, err)
	}
	m.caches.putGroup(pending)

	placement, err := m.sched.ScheduleBundles(ctx, req.Name, req.Bundles)
	if err != nil {
		failed := pending.Clone()
		failed.Status = model.ResourceGroupStatusFailed
		if perr := m.persistGroup(ctx, failed); perr != nil {
			m.logger.Error("persist failed resource group status failed", "name", req.Name, "err", perr)
		}
		m.caches.putGroup(failed)
		m.mu.Lock()
		queued := m.pendingDeletes[req.Name]
		delete(m.pendingDeletes, req.Name)
		m.mu.Unlock()
		if queued {
			if derr := m.DeleteResourceGroup(ctx, req.Name); derr != nil {
				m.logger.Error("queued delete of failed resource group failed", "name", req.Name, "err", derr)
			}
		}
		return fmt.Errorf("schedule bundles for %s: %w", req.Name, err)
	}

	for _, bundleID := range req.Bundles {
		b := &model.BundleInfo{
			BundleID:        bundleID,
			RGroupName:      req.Name,
			TenantID:        req.TenantID,
			FunctionProxyID: placement[bundleID],
			State:           model.BundleStateCreated,
		}
		m.caches.putBundle(b)
	}

	created := pending.Clone()
	created.Status = model.ResourceGroupStatusCreated
	if err := m.persistGroup(ctx, created); err != nil {
		return fmt.Errorf("persist created resource group %s: %w", req.Name, err)
	}
	m.caches.putGroup(created)

	m.mu.Lock()
	queued := m.pendingDeletes[req.Name]
	delete(m.pendingDeletes, req.Name)
	m.mu.Unlock()
	if queued {
		return m.DeleteResourceGroup(ctx, req.Name)
	}
	return nil
}

// DeleteResourceGroup releases every bundle via the owning node's
// BundleManager, then deletes the metadata entry once all are gone. A
// request arriving while the group is still PENDING is deferred until
// CreateResourceGroup finishes.
func (m *Manager) DeleteResourceGroup(ctx context.Context, name string) error {
	if !m.gate.IsMaster() {
		return fmt.Errorf("resourcegroup: not leader, DeleteResourceGroup rejected")
	}
	g, ok := m.caches.group(name)
	if !ok {
		return nil
	}
	if g.Status == model.ResourceGroupStatusPending {
		m.mu.Lock()
		m.pendingDeletes[name] = true
		m.mu.Unlock()
		return nil
	}

	for _, bundleID := range g.Bundles {
		b, ok := m.caches.bundle(bundleID)
		if !ok {
			continue
		}
		address, resolved, err := m.sched.GetLocalAddress(ctx, b.FunctionProxyID)
		if err != nil || !resolved {
			m.logger.Warn("DeleteResourceGroup: address unresolvable, bundle left for reconciliation",
				"bundleId", bundleID, "nodeId", b.FunctionProxyID)
			continue
		}
		reqID := reqid.NewBase()
		if _, err := m.rpc.RemoveBundle(ctx, address, signal.RemoveBundleRequest{
			RGroupName: name, BundleID: bundleID, RequestID: reqID,
		}); err != nil {
			m.logger.Warn("DeleteResourceGroup: RemoveBundle failed", "bundleId", bundleID, "err", err)
			continue
		}
		m.caches.removeBundle(bundleID)
	}

	if err := m.store.Delete(ctx, model.ResourceGroupKey(g.TenantID, name)); err != nil {
		m.opcache.AddDeleteEvent(resourceGroupPrefix, model.ResourceGroupKey(g.TenantID, name))
		return fmt.Errorf("delete resource group %s: %w", name, err)
	}
	m.caches.removeGroup(name)
	return nil
}

// OnLocalAbnormal reschedules every bundle placed on nodeID.
func (m *Manager) OnLocalAbnormal(ctx context.Context, nodeID string) {
	if !m.gate.IsMaster() {
		return
	}
	for _, bundleID := range m.caches.bundlesOnProxy(nodeID) {
		m.rescheduleBundle(ctx, bundleID)
	}
}

// ForwardReportUnitAbnormal reschedules the named bundles directly,
// identical in effect to OnLocalAbnormal but triggered by a bundle-level
// health signal instead of a node-level fault.
func (m *Manager) ForwardReportUnitAbnormal(ctx context.Context, bundleIDs []string) {
	if !m.gate.IsMaster() {
		return
	}
	for _, bundleID := range bundleIDs {
		m.rescheduleBundle(ctx, bundleID)
	}
}

func (m *Manager) rescheduleBundle(ctx context.Context, bundleID string) {
	b, ok := m.caches.bundle(bundleID)
	if !ok {
		return
	}
	newNode, err := m.sched.RescheduleBundle(ctx, bundleID)
	if err != nil {
		m.logger.Warn("rescheduleBundle failed, left for next fault/reconciliation", "bundleId", bundleID, "err", err)
		if m.metrics != nil {
			m.metrics.BundleReschedules.WithLabelValues("failure").Inc()
		}
		return
	}
	if m.metrics != nil {
		m.metrics.BundleReschedules.WithLabelValues("success").Inc()
	}
	updated := b.Clone()
	updated.FunctionProxyID = newNode
	updated.State = model.BundleStateCreated
	m.caches.putBundle(updated)

	if g, ok := m.caches.group(b.RGroupName); ok {
		if err := m.persistGroup(ctx, g); err != nil {
			m.logger.Error("rescheduleBundle: persisting new placement failed", "bundleId", bundleID, "err", err)
		}
	}
}

// SyncResourceGroups diffs the cache against a fresh metadata snapshot:
// in-cache entries absent upstream are deleted, upstream entries absent
// locally are added.
func (m *Manager) SyncResourceGroups(upstream []*model.ResourceGroupInfo) {
	upstreamNames := make(map[string]struct{}, len(upstream))
	for _, g := range upstream {
		upstreamNames[g.Name] = struct{}{}
		if _, ok := m.caches.group(g.Name); !ok {
			m.caches.putGroup(g)
		}
	}

	m.caches.mu.RLock()
	var stale []string
	for name := range m.caches.groups {
		if _, ok := upstreamNames[name]; !ok {
			stale = append(stale, name)
		}
	}
	m.caches.mu.RUnlock()
	for _, name := range stale {
		m.caches.removeGroup(name)
	}
}

func (m *Manager) persistGroup(ctx context.Context, info *model.ResourceGroupInfo) error {
	value, err := json.Marshal(info)
	if err != nil {
		return err
	}
	key := model.ResourceGroupKey(info.TenantID, info.Name)
	if err := m.store.Put(ctx, key, value); err != nil {
		m.opcache.AddPutEvent(resourceGroupPrefix, key, value)
		return err
	}
	return nil
}

// Caches exposes the resource-group index for debug queries.
func (m *Manager) Caches() *Caches {
	return m.caches
}
