// Package groupmanager implements spec.md §4.E: the group index caches
// and the lifecycle rules layered over the instance family -- kill-group
// fan-out, parent-instance linkage, and the sameRunningLifecycle cascade
// rule.
package groupmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/familycache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/reqid"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rolegate"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rpcerrors"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
)

// Caches holds the group indices of spec.md §3: groupId -> (metaKey,
// info), nodeId -> set<groupId>, parentInstanceId -> set<groupId>,
// groupId -> set<instanceId>.
type Caches struct {
	mu       sync.RWMutex
	groups   map[string]*entry
	byNode   map[string]map[string]struct{}
	byParent map[string]map[string]struct{}
	members  map[string]map[string]struct{}
}

type entry struct {
	metaKey string
	info    *model.GroupInfo
}

// NewCaches returns an empty Caches.
func NewCaches() *Caches {
	return &Caches{
		groups:   make(map[string]*entry),
		byNode:   make(map[string]map[string]struct{}),
		byParent: make(map[string]map[string]struct{}),
		members:  make(map[string]map[string]struct{}),
	}
}

func (c *Caches) add(metaKey string, info *model.GroupInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.groups[info.GroupID]; ok {
		removeFromIndex(c.byNode, old.info.OwnerProxy, info.GroupID)
		removeFromIndex(c.byParent, old.info.ParentID, info.GroupID)
	}
	c.groups[info.GroupID] = &entry{metaKey: metaKey, info: info.Clone()}
	addToIndex(c.byNode, info.OwnerProxy, info.GroupID)
	if info.ParentID != "" {
		addToIndex(c.byParent, info.ParentID, info.GroupID)
	}
}

func (c *Caches) remove(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.groups[groupID]
	if !ok {
		return
	}
	removeFromIndex(c.byNode, e.info.OwnerProxy, groupID)
	removeFromIndex(c.byParent, e.info.ParentID, groupID)
	delete(c.groups, groupID)
	delete(c.members, groupID)
}

func (c *Caches) get(groupID string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.groups[groupID]
	return e, ok
}

// Get returns a copy of the cached GroupInfo for groupID, for debug
// queries and tests of dependent components.
func (c *Caches) Get(groupID string) (*model.GroupInfo, bool) {
	e, ok := c.get(groupID)
	if !ok {
		return nil, false
	}
	return e.info.Clone(), true
}

// MetaKeys returns the groupID -> metadata-store key mapping currently
// cached, for the reconciler's cache-vs-upstream key diff.
func (c *Caches) MetaKeys() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.groups))
	for id, e := range c.groups {
		out[id] = e.metaKey
	}
	return out
}

// Reset clears every group index. Used on leader demotion when the
// metadata store cannot resume a broken watch from its last revision, so
// the next reconciliation sweep rebuilds the cache from a clean upstream
// snapshot instead of healing against stale entries.
func (c *Caches) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[string]*entry)
	c.byNode = make(map[string]map[string]struct{})
	c.byParent = make(map[string]map[string]struct{})
	c.members = make(map[string]map[string]struct{})
}

func (c *Caches) addMember(groupID, instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addToIndex(c.members, groupID, instanceID)
}

func (c *Caches) removeMember(groupID, instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removeFromIndex(c.members, groupID, instanceID)
}

func (c *Caches) memberIDs(groupID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.members[groupID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (c *Caches) groupsParentedBy(instanceID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.byParent[instanceID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func addToIndex(idx map[string]map[string]struct{}, key, member string) {
	if key == "" {
		return
	}
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[member] = struct{}{}
}

func removeFromIndex(idx map[string]map[string]struct{}, key, member string) {
	if set, ok := idx[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(idx, key)
		}
	}
}

// Manager implements spec.md §4.E over Caches.
type Manager struct {
	caches *Caches

	store    metastore.Client
	opcache  *operatecache.Cache
	rpc      localctrl.Client
	sched    scheduler.Scheduler
	families *familycache.Cache
	gate     *rolegate.Gate
	logger   *slog.Logger
}

// New builds a Manager.
func New(store metastore.Client, opcache *operatecache.Cache, rpc localctrl.Client, sched scheduler.Scheduler, families *familycache.Cache, gate *rolegate.Gate, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		caches:   NewCaches(),
		store:    store,
		opcache:  opcache,
		rpc:      rpc,
		sched:    sched,
		families: families,
		gate:     gate,
		logger:   logger,
	}
}

const groupPrefix = "group"

// OnGroupPut handles a watch/reconciler put for a group record.
func (m *Manager) OnGroupPut(ctx context.Context, key string, info *model.GroupInfo) error {
	m.caches.add(key, info)
	if !m.gate.IsMaster() {
		return nil
	}
	if info.ParentID == "" {
		return nil
	}

	parent, ok := m.families.Get(info.ParentID)
	parentFatal := ok && parent.State == model.InstanceStateFatal
	if ok && !parentFatal {
		return nil
	}

	if err := m.deleteGroupKey(ctx, key); err != nil {
		return fmt.Errorf("delete orphaned group %s: %w", info.GroupID, err)
	}
	sig := signal.ShutDownSignal
	if parentFatal {
		sig = signal.GroupExitSignal
	}
	m.signalMembers(ctx, info.GroupID, sig, "")
	return nil
}

// OnGroupDelete handles a watch/reconciler delete for a group record.
func (m *Manager) OnGroupDelete(ctx context.Context, key string, info *model.GroupInfo) {
	m.caches.remove(info.GroupID)
	if !m.gate.IsMaster() {
		return
	}
	m.clearGroupOnNode(ctx, info.OwnerProxy, info.GroupID)
}

// HandOverOwnerFromNode reassigns every group owned by nodeID to
// GroupManagerOwner, persisting the change before any fault cascade runs,
// per spec.md §4.D's owner hand-over rule. It returns the first persist
// error so the caller can fail the whole fault-processing step and let
// the reconciler retry it.
func (m *Manager) HandOverOwnerFromNode(ctx context.Context, nodeID string) error {
	m.caches.mu.RLock()
	groupIDs := make([]string, 0, len(m.caches.byNode[nodeID]))
	for id := range m.caches.byNode[nodeID] {
		groupIDs = append(groupIDs, id)
	}
	m.caches.mu.RUnlock()

	for _, gid := range groupIDs {
		e, ok := m.caches.get(gid)
		if !ok {
			continue
		}
		updated := e.info.Clone()
		updated.OwnerProxy = model.GroupManagerOwner
		if err := m.putGroup(ctx, e.metaKey, updated); err != nil {
			return fmt.Errorf("hand over group %s owner from node %s: %w", gid, nodeID, err)
		}
		m.caches.add(e.metaKey, updated)
	}
	return nil
}

// OnInstancePut indexes an instance under its group.
func (m *Manager) OnInstancePut(groupID, instanceID string) {
	if groupID == "" {
		return
	}
	m.caches.addMember(groupID, instanceID)
}

// OnInstanceAbnormal marks the owning group FAILED and kills remaining
// non-detached members with GROUP_EXIT_SIGNAL.
func (m *Manager) OnInstanceAbnormal(ctx context.Context, groupID string) error {
	if !m.gate.IsMaster() || groupID == "" {
		return nil
	}
	e, ok := m.caches.get(groupID)
	if !ok {
		return nil
	}
	updated := e.info.Clone()
	updated.State = model.GroupStateFailed
	if err := m.putGroup(ctx, e.metaKey, updated); err != nil {
		return fmt.Errorf("mark group %s failed: %w", groupID, err)
	}
	m.caches.add(e.metaKey, updated)
	m.signalMembers(ctx, groupID, signal.GroupExitSignal, "")
	return nil
}

// OnInstanceDelete drops the instance's group index entry and, if it
// parented any sameRunningLifecycle group, deletes that group too.
func (m *Manager) OnInstanceDelete(ctx context.Context, groupID, instanceID string) {
	if groupID != "" {
		m.caches.removeMember(groupID, instanceID)
	}
	if !m.gate.IsMaster() {
		return
	}
	for _, gid := range m.caches.groupsParentedBy(instanceID) {
		e, ok := m.caches.get(gid)
		if !ok || !e.info.GroupOpts.SameRunningLifecycle {
			continue
		}
		if err := m.deleteGroupKey(ctx, e.metaKey); err != nil {
			m.logger.Error("delete sameRunningLifecycle group on parent delete failed",
				"groupId", gid, "parentInstanceId", instanceID, "err", err)
			continue
		}
		m.clearGroupOnNode(ctx, e.info.OwnerProxy, gid)
		m.caches.remove(gid)
	}
}

// KillGroupResult is the outcome of an external KillGroup request.
type KillGroupResult struct {
	OK      bool
	Message string
}

// KillGroup fans out SHUT_DOWN_SIGNAL to every member. The group key is
// deleted only once every member has acked OK or NOT_FOUND; a single hard
// failure fails the whole call without a partial delete.
func (m *Manager) KillGroup(ctx context.Context, groupID string) (KillGroupResult, error) {
	e, ok := m.caches.get(groupID)
	if !ok {
		return KillGroupResult{}, fmt.Errorf("group %s not found", groupID)
	}
	members := m.caches.memberIDs(groupID)

	type outcome struct {
		instanceID string
		status     rpcerrors.ErrorCode
		err        error
	}
	results := make(chan outcome, len(members))
	var wg sync.WaitGroup
	for _, instanceID := range members {
		instanceID := instanceID
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- outcome{instanceID: instanceID, status: m.sendKill(ctx, instanceID)}
		}()
	}
	wg.Wait()
	close(results)

	for o := range results {
		if rpcerrors.ClassifyForKill(o.status) != rpcerrors.PolicyTreatAsSuccess {
			return KillGroupResult{OK: false, Message: fmt.Sprintf("member %s kill failed: %s", o.instanceID, o.status)}, nil
		}
	}

	if err := m.deleteGroupKey(ctx, e.metaKey); err != nil {
		return KillGroupResult{}, fmt.Errorf("delete group %s after kill: %w", groupID, err)
	}
	return KillGroupResult{OK: true}, nil
}

func (m *Manager) sendKill(ctx context.Context, instanceID string) rpcerrors.ErrorCode {
	inst, ok := m.families.Get(instanceID)
	if !ok {
		return rpcerrors.ErrInstanceNotFound
	}
	address, ok, err := m.sched.GetLocalAddress(ctx, inst.FunctionProxyID)
	if err != nil || !ok {
		return rpcerrors.ErrInnerSystemError
	}
	reqID := reqid.NewBase()
	resp, err := m.rpc.ForwardCustomSignal(ctx, address, signal.ForwardCustomSignalRequest{
		RequestID:         reqID,
		InstanceRequestID: reqID,
		Req:               signal.CustomSignalRequest{Signal: signal.ShutDownSignal, InstanceID: instanceID},
	})
	if err != nil {
		return rpcerrors.ErrInnerCommunication
	}
	return rpcerrors.ErrorCode(resp.Code)
}

// signalMembers fans FAMILY_EXIT/GROUP_EXIT-family signals out to every
// member of groupID, skipping instances that are detached.
func (m *Manager) signalMembers(ctx context.Context, groupID string, sig signal.Signal, srcInstanceID string) {
	for _, instanceID := range m.caches.memberIDs(groupID) {
		inst, ok := m.families.Get(instanceID)
		if !ok || inst.Detached {
			continue
		}
		address, resolved, err := m.sched.GetLocalAddress(ctx, inst.FunctionProxyID)
		if err != nil || !resolved {
			m.logger.Warn("signalMembers: address unresolvable", "instanceId", instanceID, "signal", sig.String())
			continue
		}
		reqID := reqid.NewBase()
		if _, err := m.rpc.ForwardCustomSignal(ctx, address, signal.ForwardCustomSignalRequest{
			RequestID:         reqID,
			SrcInstanceID:     srcInstanceID,
			InstanceRequestID: reqID,
			Req:               signal.CustomSignalRequest{Signal: sig, InstanceID: instanceID},
		}); err != nil {
			m.logger.Warn("signalMembers: forward failed", "instanceId", instanceID, "signal", sig.String(), "err", err)
		}
	}
}

func (m *Manager) clearGroupOnNode(ctx context.Context, ownerProxy, groupID string) {
	if ownerProxy == "" || ownerProxy == model.GroupManagerOwner {
		return
	}
	address, ok, err := m.sched.GetLocalAddress(ctx, ownerProxy)
	if err != nil || !ok {
		m.logger.Warn("clearGroupOnNode: address unresolvable", "groupId", groupID, "ownerProxy", ownerProxy)
		return
	}
	if err := m.rpc.ClearGroup(ctx, address, groupID); err != nil {
		m.logger.Warn("clearGroupOnNode: best-effort ClearGroup failed", "groupId", groupID, "err", err)
	}
}

func (m *Manager) putGroup(ctx context.Context, key string, info *model.GroupInfo) error {
	value, err := marshalGroup(info)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, key, value); err != nil {
		m.opcache.AddPutEvent(groupPrefix, key, value)
		return err
	}
	return nil
}

func (m *Manager) deleteGroupKey(ctx context.Context, key string) error {
	if err := m.store.Delete(ctx, key); err != nil {
		m.opcache.AddDeleteEvent(groupPrefix, key)
		return err
	}
	return nil
}

func marshalGroup(info *model.GroupInfo) ([]byte, error) {
	return json.Marshal(info)
}

// Caches exposes the group index for the reconciler and debug queries.
func (m *Manager) Caches() *Caches {
	return m.caches
}
