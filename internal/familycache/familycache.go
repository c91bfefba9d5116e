// Package familycache maintains the in-memory parent/child forest of
// scheduled instances. Every instance hangs off either its real parent or,
// once that parent is missing from the cache, a dummy root so descendant
// lookups never have to special-case an absent ancestor. The cache is a
// single-writer structure: callers are expected to serialize Add/Remove
// through the owning controller's actor loop.
package familycache

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
)

// RootInstanceID is the synthetic ancestor every instance with an unknown
// or not-yet-seen parent is attached to.
const RootInstanceID = ""

// Cache is the instance family forest. Read operations return a snapshot
// copy of the requested InstanceInfo so callers can never mutate cache
// state through a returned pointer.
type Cache struct {
	mu        sync.RWMutex
	instances map[string]*model.InstanceInfo
	children  map[string]map[string]struct{}
	parentOf  map[string]string // instanceId -> effective attachment point (real parent or root)
	logger    *slog.Logger
}

// New returns an empty Cache. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		instances: make(map[string]*model.InstanceInfo),
		children:  make(map[string]map[string]struct{}),
		parentOf:  make(map[string]string),
		logger:    logger,
	}
}

// Add inserts inst. If instanceId is already present, only the InstanceInfo
// pointer is replaced -- the cache is authoritative over tree structure
// once established, so a later Add never re-parents an existing entry even
// if its declared ParentID changed upstream. If ParentID is absent or not
// currently cached, inst attaches under RootInstanceID and a warning is
// logged.
func (c *Cache) Add(inst *model.InstanceInfo) {
	if inst == nil || inst.InstanceID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	clone := inst.Clone()
	if _, exists := c.instances[inst.InstanceID]; exists {
		c.instances[inst.InstanceID] = clone
		return
	}
	c.insertLocked(clone)
}

func (c *Cache) insertLocked(inst *model.InstanceInfo) {
	parent := inst.ParentID
	if parent == "" {
		parent = RootInstanceID
	} else if _, ok := c.instances[parent]; !ok {
		c.logger.Warn("family cache attaching instance under dummy root: parent not present",
			"instanceId", inst.InstanceID, "parentId", parent)
		parent = RootInstanceID
	}
	c.instances[inst.InstanceID] = inst
	c.parentOf[inst.InstanceID] = parent
	c.attachToParentLocked(inst.InstanceID, parent)
}

func (c *Cache) attachToParentLocked(childID, parentID string) {
	set, ok := c.children[parentID]
	if !ok {
		set = make(map[string]struct{})
		c.children[parentID] = set
	}
	set[childID] = struct{}{}
}

func (c *Cache) detachFromParentLocked(childID, parentID string) {
	if set, ok := c.children[parentID]; ok {
		delete(set, childID)
		if len(set) == 0 {
			delete(c.children, parentID)
		}
	}
}

// Remove deletes instanceId from the cache. Idempotent on unknown ids.
// Surviving children are reparented under RootInstanceID, so after the
// removal they are reachable via GetAllDescendantsOf(RootInstanceID) but no
// longer from the removed entry's former ancestors. As a defensive cleanup, instanceId is also unlinked from the root's children
// set even if it was not actually attached there.
func (c *Cache) Remove(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, tracked := c.parentOf[instanceID]
	if tracked {
		c.detachFromParentLocked(instanceID, parent)
	}
	c.detachFromParentLocked(instanceID, RootInstanceID)

	for childID := range c.children[instanceID] {
		c.parentOf[childID] = RootInstanceID
		c.attachToParentLocked(childID, RootInstanceID)
	}
	delete(c.children, instanceID)
	delete(c.parentOf, instanceID)
	delete(c.instances, instanceID)
}

// Exists reports whether instanceId is currently cached.
func (c *Cache) Exists(instanceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.instances[instanceID]
	return ok
}

// Get returns a copy of the cached InstanceInfo for instanceId.
func (c *Cache) Get(instanceID string) (*model.InstanceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[instanceID]
	if !ok {
		return nil, false
	}
	return inst.Clone(), true
}

// GetAllDescendantsOf returns every instance reachable from instanceId by
// following the child relation, in breadth-first order, excluding
// instanceId itself. Unknown ids yield an empty, non-nil slice. When
// excludeDetached is true, any instance with Detached set is skipped along
// with its entire subtree. Sibling order is broken by sorted instance id --
// a Go-specific addition over unordered map iteration, needed so cascade
// signaling fan-out is deterministic across runs.
func (c *Cache) GetAllDescendantsOf(instanceID string, excludeDetached bool) []*model.InstanceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.InstanceInfo, 0)
	queue := []string{instanceID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		childIDs := make([]string, 0, len(c.children[cur]))
		for id := range c.children[cur] {
			childIDs = append(childIDs, id)
		}
		sort.Strings(childIDs)

		for _, id := range childIDs {
			inst, ok := c.instances[id]
			if !ok {
				continue
			}
			if excludeDetached && inst.Detached {
				continue
			}
			out = append(out, inst.Clone())
			queue = append(queue, id)
		}
	}
	return out
}

// SyncAll replaces the cache contents with a fresh metadata-store snapshot.
// Instances in EXITING, EXITED or FATAL state are skipped entirely -- they
// no longer participate in family reconciliation and would otherwise
// resurrect stale cascade targets after a leader failover.
func (c *Cache) SyncAll(ctx context.Context, snapshot []*model.InstanceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.instances = make(map[string]*model.InstanceInfo)
	c.children = make(map[string]map[string]struct{})
	c.parentOf = make(map[string]string)

	for _, inst := range snapshot {
		if inst == nil || inst.State.IsTerminal() {
			continue
		}
		c.insertLocked(inst.Clone())
	}
	c.logger.DebugContext(ctx, "family cache synced", "count", len(c.instances))
}

// Size returns the number of cached instances (excluding the dummy root).
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instances)
}

// All returns a snapshot copy of every cached instance, for callers that
// need to scan (e.g. finding every instance on a faulted node).
func (c *Cache) All() []*model.InstanceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.InstanceInfo, 0, len(c.instances))
	for _, inst := range c.instances {
		out = append(out, inst.Clone())
	}
	return out
}

// WithProxy returns a snapshot copy of every cached instance whose
// FunctionProxyID equals nodeID.
func (c *Cache) WithProxy(nodeID string) []*model.InstanceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.InstanceInfo, 0)
	for _, inst := range c.instances {
		if inst.FunctionProxyID == nodeID {
			out = append(out, inst.Clone())
		}
	}
	return out
}
