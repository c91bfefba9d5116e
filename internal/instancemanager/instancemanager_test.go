package instancemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/config"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/familycache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/groupmanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/killretry"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl/localctrlmock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore/metastoremock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/resourcegroup"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/roster"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rolegate"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rpcerrors"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler/schedulermock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
)

const waitTimeout = 2 * time.Second

type fixture struct {
	ctrl     *Controller
	store    *metastoremock.MockClient
	rpc      *localctrlmock.MockClient
	sched    *schedulermock.MockScheduler
	gate     *rolegate.Gate
	families *familycache.Cache
	groups   *groupmanager.Manager
	bundles  *resourcegroup.Manager
	nodes    *roster.NodeRoster
	abnormal *roster.AbnormalSet
}

func newFixture(t *testing.T, recoverEnable bool) *fixture {
	return newFixtureWithScope(t, recoverEnable, config.FunctionMetaScopeLatestOnly)
}

func newFixtureWithScope(t *testing.T, recoverEnable bool, scope config.FunctionMetaScope) *fixture {
	mockCtrl := gomock.NewController(t)
	store := metastoremock.NewMockClient(mockCtrl)
	rpc := localctrlmock.NewMockClient(mockCtrl)
	sched := schedulermock.NewMockScheduler(mockCtrl)
	gate := rolegate.New()
	gate.Promote()
	families := familycache.New(nil)
	nodes := roster.NewNodeRoster()
	nodes.Add("n1", "n1:9000")
	nodes.Add("n2", "n2:9000")
	abnormal := roster.NewAbnormalSet()
	opcache := operatecache.New()
	groups := groupmanager.New(store, opcache, rpc, sched, families, gate, nil)
	bundles := resourcegroup.New(store, opcache, rpc, sched, gate, nil)

	f := &fixture{store: store, rpc: rpc, sched: sched, gate: gate, families: families, groups: groups, bundles: bundles, nodes: nodes, abnormal: abnormal}
	kills := killretry.NewEngine(rpc, sched, func(ctx context.Context, instanceID string) error {
		return f.ctrl.ForceDelete(ctx, instanceID)
	}, killretry.Options{})

	f.ctrl = New(families, groups, kills, store, opcache, sched, nodes, abnormal, bundles, gate, Options{
		RuntimeRecoverEnable: recoverEnable,
		FunctionMetaScope:    scope,
	})
	return f
}

func TestInstanceManager_FatalCascadeAppDriverShutsDownChildren(t *testing.T) {
	f := newFixture(t, false)
	f.families.Add(&model.InstanceInfo{InstanceID: "driver", Type: model.InstanceTypeAppDriver, State: model.InstanceStateRunning})
	f.families.Add(&model.InstanceInfo{InstanceID: "child", ParentID: "driver", FunctionProxyID: "n1", State: model.InstanceStateRunning})

	done := make(chan signal.Signal, 1)
	f.sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	f.rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
			done <- req.Req.Signal
			return signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil
		})

	fatalDriver := &model.InstanceInfo{
		InstanceID: "driver", Type: model.InstanceTypeAppDriver, State: model.InstanceStateFatal,
		CreateOptions: map[string]string{model.CreateOptionAppEntrypoint: "main.py"},
	}
	err := f.ctrl.OnInstancePut(context.Background(), "/instance/business/driver", fatalDriver)
	require.NoError(t, err)

	select {
	case sig := <-done:
		assert.Equal(t, signal.ShutDownSignal, sig)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for kill-retry to forward the cascade signal")
	}
}

func TestInstanceManager_FatalCascadeRegularFailsGroup(t *testing.T) {
	f := newFixture(t, false)
	f.families.Add(&model.InstanceInfo{InstanceID: "p1", GroupID: "g1", State: model.InstanceStateRunning})
	err := f.ctrl.groups.OnGroupPut(context.Background(), "/group/ns/g1", &model.GroupInfo{GroupID: "g1", ParentID: "p1"})
	require.NoError(t, err)
	f.families.Add(&model.InstanceInfo{InstanceID: "child", ParentID: "p1", FunctionProxyID: "n1", State: model.InstanceStateRunning})

	f.store.EXPECT().Put(gomock.Any(), "/group/ns/g1", gomock.Any()).Return(nil)
	f.sched.EXPECT().GetLocalAddress(gomock.Any(), "").Return("", false, nil)

	done := make(chan signal.Signal, 1)
	f.sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	f.rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
			done <- req.Req.Signal
			return signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil
		})

	fatal := &model.InstanceInfo{InstanceID: "p1", GroupID: "g1", State: model.InstanceStateFatal}
	err = f.ctrl.OnInstancePut(context.Background(), "/instance/business/p1", fatal)
	require.NoError(t, err)

	select {
	case sig := <-done:
		assert.Equal(t, signal.FamilyExitSignal, sig)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for kill-retry to forward the cascade signal")
	}

	g, ok := f.ctrl.groups.Caches().Get("g1")
	require.True(t, ok)
	assert.Equal(t, model.GroupStateFailed, g.State)
}

func TestInstanceManager_LocalFaultNoRecoveryMarksFatal(t *testing.T) {
	f := newFixture(t, false)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", FunctionProxyID: "n2", State: model.InstanceStateRunning})

	f.store.EXPECT().Put(gomock.Any(), "/abnormal/localscheduler/n2", gomock.Any()).Return(nil)
	f.store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	err := f.ctrl.OnLocalSchedFault(context.Background(), "n2")
	require.NoError(t, err)

	inst, ok := f.families.Get("i1")
	require.True(t, ok)
	assert.Equal(t, model.InstanceStateFatal, inst.State)
	assert.True(t, f.abnormal.Contains("n2"))
}

func TestInstanceManager_LocalFaultWithRecoveryReschedules(t *testing.T) {
	f := newFixture(t, true)
	f.families.Add(&model.InstanceInfo{
		InstanceID: "i1", FunctionProxyID: "n2", State: model.InstanceStateRunning,
		CreateOptions: map[string]string{model.CreateOptionRecoverRetryTimes: "2"},
	})

	f.store.EXPECT().Put(gomock.Any(), "/abnormal/localscheduler/n2", gomock.Any()).Return(nil)
	f.store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.sched.EXPECT().RescheduleInstance(gomock.Any(), "i1").Return("n1", nil)

	err := f.ctrl.OnLocalSchedFault(context.Background(), "n2")
	require.NoError(t, err)

	inst, ok := f.families.Get("i1")
	require.True(t, ok)
	assert.Equal(t, model.InstanceStateScheduling, inst.State)
	assert.Equal(t, model.InstanceManagerOwner, inst.FunctionProxyID)
}

func TestInstanceManager_OnInstancePutKillsOrphanWithMissingParent(t *testing.T) {
	f := newFixture(t, false)

	f.store.EXPECT().Delete(gomock.Any(), "/instance/business/child").Return(nil)
	done := make(chan signal.Signal, 1)
	f.sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	f.rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
			done <- req.Req.Signal
			return signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil
		})

	orphan := &model.InstanceInfo{InstanceID: "child", ParentID: "ghost", FunctionProxyID: "n1", State: model.InstanceStateScheduling}
	err := f.ctrl.OnInstancePut(context.Background(), "/instance/business/child", orphan)
	require.NoError(t, err)

	select {
	case sig := <-done:
		assert.Equal(t, signal.ShutDownSignal, sig)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for orphan kill to be forwarded")
	}
}

func TestInstanceManager_OnInstanceDeleteRemovesFromFamilyAndKillRetry(t *testing.T) {
	f := newFixture(t, false)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", FunctionProxyID: "n1", State: model.InstanceStateRunning})

	f.ctrl.OnInstanceDelete(context.Background(), "/instance/business/i1", &model.InstanceInfo{InstanceID: "i1"})
	assert.False(t, f.families.Exists("i1"))
}

func TestInstanceManager_KillJobOnlySignalsMatchingJob(t *testing.T) {
	f := newFixture(t, false)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", JobID: "j1", FunctionProxyID: "n1", State: model.InstanceStateRunning})
	f.families.Add(&model.InstanceInfo{InstanceID: "i2", JobID: "j2", FunctionProxyID: "n1", State: model.InstanceStateRunning})
	f.families.Add(&model.InstanceInfo{InstanceID: "i3", JobID: "j1", FunctionProxyID: "n1", State: model.InstanceStateFatal})

	done := make(chan signal.Signal, 1)
	f.sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	f.rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
			done <- req.Req.Signal
			return signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil
		})

	f.ctrl.KillJob(context.Background(), "j1")

	select {
	case sig := <-done:
		assert.Equal(t, signal.ShutDownSignalAll, sig)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for job-scoped kill to be forwarded")
	}
}

func TestInstanceManager_CompleteKillInstanceResolvesAndRemoves(t *testing.T) {
	f := newFixture(t, false)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", FunctionProxyID: "n1", State: model.InstanceStateRunning})

	f.sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	unblock := make(chan struct{})
	f.rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
			<-unblock
			return signal.ForwardCustomSignalResponse{}, context.Canceled
		}).AnyTimes()

	promise := f.ctrl.kills.KillInstanceWithRetry(context.Background(), "i1", "n1", signal.CustomSignalRequest{
		Signal: signal.ShutDownSignal, InstanceID: "i1",
	})

	f.ctrl.CompleteKillInstance(context.Background(), "i1")
	close(unblock)

	status, err := promise.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.False(t, f.families.Exists("i1"))
}

func TestInstanceManager_OnFunctionMetaDeleteLatestOnlyIgnoresPinnedVersion(t *testing.T) {
	f := newFixtureWithScope(t, false, config.FunctionMetaScopeLatestOnly)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", Function: "fn1", FunctionProxyID: "n1", State: model.InstanceStateRunning})

	f.ctrl.OnFunctionMetaDelete(context.Background(), model.FunctionMetaKey("fn1", "v1"))

	assert.False(t, f.ctrl.kills.InFlight("i1"))
}

func TestInstanceManager_OnFunctionMetaDeleteLatestOnlyCascadesLatest(t *testing.T) {
	f := newFixtureWithScope(t, false, config.FunctionMetaScopeLatestOnly)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", Function: "fn1", FunctionProxyID: "n1", State: model.InstanceStateRunning})

	done := make(chan signal.Signal, 1)
	f.sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	f.rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
			done <- req.Req.Signal
			return signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil
		})

	f.ctrl.OnFunctionMetaDelete(context.Background(), model.FunctionMetaKey("fn1", "$latest"))

	select {
	case sig := <-done:
		assert.Equal(t, signal.ShutDownSignal, sig)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for function-meta delete cascade")
	}
}

func TestInstanceManager_OnFunctionMetaDeleteAllScopeCascadesPinnedVersion(t *testing.T) {
	f := newFixtureWithScope(t, false, config.FunctionMetaScopeAll)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", Function: "fn1", FunctionProxyID: "n1", State: model.InstanceStateRunning})

	done := make(chan signal.Signal, 1)
	f.sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	f.rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
			done <- req.Req.Signal
			return signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil
		})

	f.ctrl.OnFunctionMetaDelete(context.Background(), model.FunctionMetaKey("fn1", "v1"))

	select {
	case sig := <-done:
		assert.Equal(t, signal.ShutDownSignal, sig)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for function-meta delete cascade")
	}
}

func TestInstanceManager_FunctionMetaKeysTracksPutAndDelete(t *testing.T) {
	f := newFixture(t, false)
	key := model.FunctionMetaKey("fn1", "$latest")
	require.NoError(t, f.ctrl.OnFunctionMetaPut(context.Background(), key, []byte(`{}`)))
	assert.Contains(t, f.ctrl.FunctionMetaKeys(), key)

	f.ctrl.OnFunctionMetaDelete(context.Background(), key)
	assert.NotContains(t, f.ctrl.FunctionMetaKeys(), key)
}

func TestInstanceManager_OnDemotedWipesCachesWhenResumeUnsupported(t *testing.T) {
	f := newFixture(t, false)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", FunctionProxyID: "n1", State: model.InstanceStateRunning})
	require.NoError(t, f.ctrl.OnFunctionMetaPut(context.Background(), model.FunctionMetaKey("fn1", "$latest"), []byte(`{}`)))
	f.abnormal.Add("n2")

	f.store.EXPECT().SupportsResume().Return(false)

	f.ctrl.OnDemoted(context.Background())

	assert.Equal(t, 0, f.families.Size())
	assert.Empty(t, f.ctrl.FunctionMetaKeys())
	assert.Empty(t, f.abnormal.Members())
}

func TestInstanceManager_OnDemotedLeavesCachesWhenResumeSupported(t *testing.T) {
	f := newFixture(t, false)
	f.families.Add(&model.InstanceInfo{InstanceID: "i1", FunctionProxyID: "n1", State: model.InstanceStateRunning})

	f.store.EXPECT().SupportsResume().Return(true)

	f.ctrl.OnDemoted(context.Background())

	assert.Equal(t, 1, f.families.Size())
}
