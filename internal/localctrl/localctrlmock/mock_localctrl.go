// Package localctrlmock provides a gomock-style test double for the
// localctrl.Client collaborator interface.
package localctrlmock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
)

// MockClient is a mock of the localctrl.Client interface.
type MockClient struct {
	ctrl     *gomock.Controller
	recorder *MockClientMockRecorder
}

type MockClientMockRecorder struct {
	mock *MockClient
}

func NewMockClient(ctrl *gomock.Controller) *MockClient {
	mock := &MockClient{ctrl: ctrl}
	mock.recorder = &MockClientMockRecorder{mock}
	return mock
}

func (m *MockClient) EXPECT() *MockClientMockRecorder {
	return m.recorder
}

func (m *MockClient) ForwardCustomSignal(ctx context.Context, address string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ForwardCustomSignal", ctx, address, req)
	ret0, _ := ret[0].(signal.ForwardCustomSignalResponse)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockClientMockRecorder) ForwardCustomSignal(ctx, address, req any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ForwardCustomSignal", reflect.TypeOf((*MockClient)(nil).ForwardCustomSignal), ctx, address, req)
}

func (m *MockClient) KillGroup(ctx context.Context, address string, req signal.KillGroupRequest) (signal.KillGroupResponse, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "KillGroup", ctx, address, req)
	ret0, _ := ret[0].(signal.KillGroupResponse)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockClientMockRecorder) KillGroup(ctx, address, req any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "KillGroup", reflect.TypeOf((*MockClient)(nil).KillGroup), ctx, address, req)
}

func (m *MockClient) ClearGroup(ctx context.Context, address string, groupID string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ClearGroup", ctx, address, groupID)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockClientMockRecorder) ClearGroup(ctx, address, groupID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ClearGroup", reflect.TypeOf((*MockClient)(nil).ClearGroup), ctx, address, groupID)
}

func (m *MockClient) RemoveBundle(ctx context.Context, address string, req signal.RemoveBundleRequest) (signal.RemoveBundleResponse, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RemoveBundle", ctx, address, req)
	ret0, _ := ret[0].(signal.RemoveBundleResponse)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockClientMockRecorder) RemoveBundle(ctx, address, req any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RemoveBundle", reflect.TypeOf((*MockClient)(nil).RemoveBundle), ctx, address, req)
}
