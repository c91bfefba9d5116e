package rpcserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/familycache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/groupmanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/instancemanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/killretry"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl/localctrlmock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore/metastoremock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/resourcegroup"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rolegate"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/roster"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler/schedulermock"
)

func newTestHandlers(t *testing.T) (*Handlers, *metastoremock.MockClient, *schedulermock.MockScheduler) {
	ctrl := gomock.NewController(t)
	store := metastoremock.NewMockClient(ctrl)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)
	gate := rolegate.New()
	gate.Promote()

	families := familycache.New(nil)
	opcache := operatecache.New()
	nodes := roster.NewNodeRoster()
	abnormal := roster.NewAbnormalSet()
	groups := groupmanager.New(store, opcache, rpc, sched, families, gate, nil)
	bundles := resourcegroup.New(store, opcache, rpc, sched, gate, nil)
	kills := killretry.NewEngine(rpc, sched, nil, killretry.Options{})
	instances := instancemanager.New(families, groups, kills, store, opcache, sched, nodes, abnormal, bundles, gate, instancemanager.Options{})

	return &Handlers{Instances: instances, Groups: groups, Bundles: bundles}, store, sched
}

func TestReportLocalSchedFault_RejectsEmptyNodeID(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	err := h.ReportLocalSchedFault(context.Background(), ReportLocalSchedFaultRequest{})
	assert.Error(t, err)
}

func TestReportLocalSchedFault_DrivesInstanceAndBundleControllers(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	err := h.ReportLocalSchedFault(context.Background(), ReportLocalSchedFaultRequest{NodeID: "n1"})
	require.NoError(t, err)
}

func TestKillGroup_RejectsEmptyGroupID(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	_, err := h.KillGroup(context.Background(), KillGroupRequest{})
	assert.Error(t, err)
}

func TestForwardCustomSignal_AlwaysRejected(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	_, err := h.ForwardCustomSignal(context.Background(), ForwardCustomSignalRequest{})
	assert.Error(t, err)
}

func TestKillJob_RejectsEmptyJobID(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	err := h.KillJob(context.Background(), KillJobRequest{})
	assert.Error(t, err)
}

func TestKillJob_AcceptsNonEmptyJobID(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	err := h.KillJob(context.Background(), KillJobRequest{JobID: "j1"})
	assert.NoError(t, err)
}

func TestCompleteKillInstance_RejectsEmptyInstanceID(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	err := h.CompleteKillInstance(context.Background(), CompleteKillInstanceRequest{})
	assert.Error(t, err)
}

func TestCompleteKillInstance_AcceptsUnknownInstanceID(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	err := h.CompleteKillInstance(context.Background(), CompleteKillInstanceRequest{InstanceID: "ghost"})
	assert.NoError(t, err)
}
