package resourcegroup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl/localctrlmock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore/metastoremock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rolegate"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler/schedulermock"
)

func newTestManager(t *testing.T) (*Manager, *metastoremock.MockClient, *localctrlmock.MockClient, *schedulermock.MockScheduler) {
	ctrl := gomock.NewController(t)
	store := metastoremock.NewMockClient(ctrl)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)
	gate := rolegate.New()
	gate.Promote()
	return New(store, operatecache.New(), rpc, sched, gate, nil), store, rpc, sched
}

func TestResourceGroupManager_CreateResourceGroupHappyPath(t *testing.T) {
	mgr, store, _, sched := newTestManager(t)

	store.EXPECT().Put(gomock.Any(), "/resource-group/t1/rg1", gomock.Any()).Return(nil).Times(2)
	sched.EXPECT().ScheduleBundles(gomock.Any(), "rg1", []string{"b1", "b2"}).
		Return(map[string]string{"b1": "n1", "b2": "n2"}, nil)

	err := mgr.CreateResourceGroup(context.Background(), &model.ResourceGroupInfo{
		Name: "rg1", TenantID: "t1", Bundles: []string{"b1", "b2"},
	})
	require.NoError(t, err)

	g, ok := mgr.caches.group("rg1")
	require.True(t, ok)
	assert.Equal(t, model.ResourceGroupStatusCreated, g.Status)

	b1, ok := mgr.caches.bundle("b1")
	require.True(t, ok)
	assert.Equal(t, "n1", b1.FunctionProxyID)
	assert.True(t, b1.HasProxyBinding())
}

func TestResourceGroupManager_CreateResourceGroupSchedulerErrorMarksFailed(t *testing.T) {
	mgr, store, _, sched := newTestManager(t)

	store.EXPECT().Put(gomock.Any(), "/resource-group/t1/rg1", gomock.Any()).Return(nil).Times(2)
	sched.EXPECT().ScheduleBundles(gomock.Any(), "rg1", []string{"b1"}).
		Return(nil, errors.New("no capacity"))

	err := mgr.CreateResourceGroup(context.Background(), &model.ResourceGroupInfo{
		Name: "rg1", TenantID: "t1", Bundles: []string{"b1"},
	})
	require.Error(t, err)

	g, ok := mgr.caches.group("rg1")
	require.True(t, ok)
	assert.Equal(t, model.ResourceGroupStatusFailed, g.Status)
}

func TestResourceGroupManager_OnLocalAbnormalReschedulesBundlesOnFailedNode(t *testing.T) {
	mgr, store, _, sched := newTestManager(t)

	mgr.caches.putGroup(&model.ResourceGroupInfo{Name: "rg1", TenantID: "t1", Bundles: []string{"b1", "b2"}})
	mgr.caches.putBundle(&model.BundleInfo{BundleID: "b1", RGroupName: "rg1", FunctionProxyID: "n2", State: model.BundleStateCreated})
	mgr.caches.putBundle(&model.BundleInfo{BundleID: "b2", RGroupName: "rg1", FunctionProxyID: "n2", State: model.BundleStateCreated})

	sched.EXPECT().RescheduleBundle(gomock.Any(), "b1").Return("n1", nil)
	sched.EXPECT().RescheduleBundle(gomock.Any(), "b2").Return("n1", nil)
	store.EXPECT().Put(gomock.Any(), "/resource-group/t1/rg1", gomock.Any()).Return(nil).AnyTimes()

	mgr.OnLocalAbnormal(context.Background(), "n2")

	b1, _ := mgr.caches.bundle("b1")
	assert.Equal(t, "n1", b1.FunctionProxyID)
	assert.Equal(t, model.BundleStateCreated, b1.State)
	b2, _ := mgr.caches.bundle("b2")
	assert.Equal(t, "n1", b2.FunctionProxyID)
}

func TestResourceGroupManager_SyncResourceGroupsDiffsCacheAgainstUpstream(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	mgr.caches.putGroup(&model.ResourceGroupInfo{Name: "stale", TenantID: "t1"})

	mgr.SyncResourceGroups([]*model.ResourceGroupInfo{
		{Name: "fresh", TenantID: "t1"},
	})

	_, staleExists := mgr.caches.group("stale")
	assert.False(t, staleExists)
	_, freshExists := mgr.caches.group("fresh")
	assert.True(t, freshExists)
}

func TestResourceGroupManager_DeleteResourceGroupDeferredWhilePending(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	mgr.caches.putGroup(&model.ResourceGroupInfo{Name: "rg1", TenantID: "t1", Status: model.ResourceGroupStatusPending})

	err := mgr.DeleteResourceGroup(context.Background(), "rg1")
	require.NoError(t, err)

	mgr.mu.Lock()
	queued := mgr.pendingDeletes["rg1"]
	mgr.mu.Unlock()
	assert.True(t, queued)
}

func TestResourceGroupCaches_ResetClearsGroupsAndBundles(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	mgr.caches.putGroup(&model.ResourceGroupInfo{Name: "rg1", TenantID: "t1"})
	mgr.caches.putBundle(&model.BundleInfo{BundleID: "b1", FunctionProxyID: "n1"})

	mgr.caches.Reset()

	_, groupExists := mgr.caches.group("rg1")
	assert.False(t, groupExists)
	_, bundleExists := mgr.caches.bundle("b1")
	assert.False(t, bundleExists)
	assert.Empty(t, mgr.caches.bundlesOnProxy("n1"))
}
