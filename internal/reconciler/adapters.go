package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/familycache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/groupmanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/instancemanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/resourcegroup"
)

// InstanceTarget adapts the FamilyLifecycleController and its family
// cache into a KeyedTarget.
type InstanceTarget struct {
	Controller *instancemanager.Controller
	Families   *familycache.Cache
	Logger     *slog.Logger
}

func (t *InstanceTarget) Prefix() string { return "instance" }

func (t *InstanceTarget) CachedKeys() map[string]struct{} {
	out := make(map[string]struct{})
	for _, inst := range t.Families.All() {
		out[instancemanager.KeyFor(inst)] = struct{}{}
	}
	return out
}

func (t *InstanceTarget) ApplyPut(ctx context.Context, key string, value []byte) error {
	var info model.InstanceInfo
	if err := json.Unmarshal(value, &info); err != nil {
		t.logger().Error("reconciler: malformed instance record skipped", "key", key, "err", err)
		return nil
	}
	return t.Controller.OnInstancePut(ctx, key, &info)
}

func (t *InstanceTarget) ApplyAbsent(ctx context.Context, key string) {
	id := model.InstanceIDFromKey(key)
	inst, ok := t.Families.Get(id)
	if !ok {
		return
	}
	t.Controller.OnInstanceDelete(ctx, key, inst)
}

func (t *InstanceTarget) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// GroupTarget adapts the GroupManager into a KeyedTarget.
type GroupTarget struct {
	Manager *groupmanager.Manager
	Logger  *slog.Logger
}

func (t *GroupTarget) Prefix() string { return "group" }

func (t *GroupTarget) CachedKeys() map[string]struct{} {
	out := make(map[string]struct{})
	for _, metaKey := range t.Manager.Caches().MetaKeys() {
		out[metaKey] = struct{}{}
	}
	return out
}

func (t *GroupTarget) ApplyPut(ctx context.Context, key string, value []byte) error {
	var info model.GroupInfo
	if err := json.Unmarshal(value, &info); err != nil {
		t.logger().Error("reconciler: malformed group record skipped", "key", key, "err", err)
		return nil
	}
	return t.Manager.OnGroupPut(ctx, key, &info)
}

func (t *GroupTarget) ApplyAbsent(ctx context.Context, key string) {
	groupID := model.GroupIDFromKey(key)
	info, ok := t.Manager.Caches().Get(groupID)
	if !ok {
		return
	}
	t.Manager.OnGroupDelete(ctx, key, info)
}

func (t *GroupTarget) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// FunctionMetaTarget adapts the FamilyLifecycleController's function-meta
// key tracking into a KeyedTarget. Function-meta records are watched, not
// written, by this system (spec.md §6), so ApplyPut only records the
// key's existence and ApplyAbsent drives the shutdown-cascade decision.
type FunctionMetaTarget struct {
	Controller *instancemanager.Controller
}

func (t *FunctionMetaTarget) Prefix() string { return "function-meta" }

func (t *FunctionMetaTarget) CachedKeys() map[string]struct{} {
	return t.Controller.FunctionMetaKeys()
}

func (t *FunctionMetaTarget) ApplyPut(ctx context.Context, key string, value []byte) error {
	return t.Controller.OnFunctionMetaPut(ctx, key, value)
}

func (t *FunctionMetaTarget) ApplyAbsent(ctx context.Context, key string) {
	t.Controller.OnFunctionMetaDelete(ctx, key)
}

// ResourceGroupTarget adapts the ResourceGroupManager into a
// SnapshotTarget: the manager already diffs its cache against a full
// upstream snapshot internally.
type ResourceGroupTarget struct {
	Manager *resourcegroup.Manager
	Logger  *slog.Logger
}

func (t *ResourceGroupTarget) Prefix() string { return "resource-group" }

func (t *ResourceGroupTarget) Sync(_ context.Context, values [][]byte) {
	upstream := make([]*model.ResourceGroupInfo, 0, len(values))
	for _, v := range values {
		var info model.ResourceGroupInfo
		if err := json.Unmarshal(v, &info); err != nil {
			t.logger().Error("reconciler: malformed resource group record skipped", "err", err)
			continue
		}
		upstream = append(upstream, &info)
	}
	t.Manager.SyncResourceGroups(upstream)
}

func (t *ResourceGroupTarget) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
