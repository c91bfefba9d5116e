// Package schedulermock provides a gomock-style test double for the
// scheduler.Scheduler collaborator interface.
package schedulermock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler"
)

// MockScheduler is a mock of the scheduler.Scheduler interface.
type MockScheduler struct {
	ctrl     *gomock.Controller
	recorder *MockSchedulerMockRecorder
}

type MockSchedulerMockRecorder struct {
	mock *MockScheduler
}

func NewMockScheduler(ctrl *gomock.Controller) *MockScheduler {
	mock := &MockScheduler{ctrl: ctrl}
	mock.recorder = &MockSchedulerMockRecorder{mock}
	return mock
}

func (m *MockScheduler) EXPECT() *MockSchedulerMockRecorder {
	return m.recorder
}

func (m *MockScheduler) QueryNodes(ctx context.Context) ([]scheduler.NodeInfo, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "QueryNodes", ctx)
	ret0, _ := ret[0].([]scheduler.NodeInfo)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockSchedulerMockRecorder) QueryNodes(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "QueryNodes", reflect.TypeOf((*MockScheduler)(nil).QueryNodes), ctx)
}

func (m *MockScheduler) SubscribeNodeEvents(ctx context.Context) (<-chan scheduler.NodeEvent, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SubscribeNodeEvents", ctx)
	ret0, _ := ret[0].(<-chan scheduler.NodeEvent)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockSchedulerMockRecorder) SubscribeNodeEvents(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SubscribeNodeEvents", reflect.TypeOf((*MockScheduler)(nil).SubscribeNodeEvents), ctx)
}

func (m *MockScheduler) SubscribeLocalSchedFault(ctx context.Context) (<-chan string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SubscribeLocalSchedFault", ctx)
	ret0, _ := ret[0].(<-chan string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockSchedulerMockRecorder) SubscribeLocalSchedFault(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SubscribeLocalSchedFault", reflect.TypeOf((*MockScheduler)(nil).SubscribeLocalSchedFault), ctx)
}

func (m *MockScheduler) GetLocalAddress(ctx context.Context, nodeID string) (string, bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetLocalAddress", ctx, nodeID)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(bool)
	ret2, _ := ret[2].(error)
	return ret0, ret1, ret2
}

func (mr *MockSchedulerMockRecorder) GetLocalAddress(ctx, nodeID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetLocalAddress", reflect.TypeOf((*MockScheduler)(nil).GetLocalAddress), ctx, nodeID)
}

func (m *MockScheduler) RescheduleInstance(ctx context.Context, instanceID string) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RescheduleInstance", ctx, instanceID)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockSchedulerMockRecorder) RescheduleInstance(ctx, instanceID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RescheduleInstance", reflect.TypeOf((*MockScheduler)(nil).RescheduleInstance), ctx, instanceID)
}

func (m *MockScheduler) ScheduleBundles(ctx context.Context, rGroupName string, bundleIDs []string) (map[string]string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ScheduleBundles", ctx, rGroupName, bundleIDs)
	ret0, _ := ret[0].(map[string]string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockSchedulerMockRecorder) ScheduleBundles(ctx, rGroupName, bundleIDs any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ScheduleBundles", reflect.TypeOf((*MockScheduler)(nil).ScheduleBundles), ctx, rGroupName, bundleIDs)
}

func (m *MockScheduler) RescheduleBundle(ctx context.Context, bundleID string) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RescheduleBundle", ctx, bundleID)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockSchedulerMockRecorder) RescheduleBundle(ctx, bundleID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RescheduleBundle", reflect.TypeOf((*MockScheduler)(nil).RescheduleBundle), ctx, bundleID)
}
