// Package metastoremock provides gomock-style test doubles for the
// metastore.Client/Txn/Election interfaces, hand-written in the same
// shape `mockgen` would generate (this repo has no `go generate` pipeline
// wired for protoc/mockgen, so the doubles are authored directly).
package metastoremock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
)

// MockClient is a mock of the metastore.Client interface.
type MockClient struct {
	ctrl     *gomock.Controller
	recorder *MockClientMockRecorder
}

// MockClientMockRecorder is the mock recorder for MockClient.
type MockClientMockRecorder struct {
	mock *MockClient
}

// NewMockClient creates a new mock instance.
func NewMockClient(ctrl *gomock.Controller) *MockClient {
	mock := &MockClient{ctrl: ctrl}
	mock.recorder = &MockClientMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockClient) EXPECT() *MockClientMockRecorder {
	return m.recorder
}

func (m *MockClient) Get(ctx context.Context, key string) (metastore.KeyValue, bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", ctx, key)
	ret0, _ := ret[0].(metastore.KeyValue)
	ret1, _ := ret[1].(bool)
	ret2, _ := ret[2].(error)
	return ret0, ret1, ret2
}

func (mr *MockClientMockRecorder) Get(ctx, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockClient)(nil).Get), ctx, key)
}

func (m *MockClient) List(ctx context.Context, prefix string) ([]metastore.KeyValue, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "List", ctx, prefix)
	ret0, _ := ret[0].([]metastore.KeyValue)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockClientMockRecorder) List(ctx, prefix any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "List", reflect.TypeOf((*MockClient)(nil).List), ctx, prefix)
}

func (m *MockClient) Put(ctx context.Context, key string, value []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Put", ctx, key, value)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockClientMockRecorder) Put(ctx, key, value any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Put", reflect.TypeOf((*MockClient)(nil).Put), ctx, key, value)
}

func (m *MockClient) Delete(ctx context.Context, key string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Delete", ctx, key)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockClientMockRecorder) Delete(ctx, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Delete", reflect.TypeOf((*MockClient)(nil).Delete), ctx, key)
}

func (m *MockClient) Txn(ctx context.Context) metastore.Txn {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Txn", ctx)
	ret0, _ := ret[0].(metastore.Txn)
	return ret0
}

func (mr *MockClientMockRecorder) Txn(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Txn", reflect.TypeOf((*MockClient)(nil).Txn), ctx)
}

func (m *MockClient) Watch(ctx context.Context, prefix string, fromRevision int64) (<-chan metastore.WatchEvent, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Watch", ctx, prefix, fromRevision)
	ret0, _ := ret[0].(<-chan metastore.WatchEvent)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockClientMockRecorder) Watch(ctx, prefix, fromRevision any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Watch", reflect.TypeOf((*MockClient)(nil).Watch), ctx, prefix, fromRevision)
}

func (m *MockClient) SupportsResume() bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SupportsResume")
	ret0, _ := ret[0].(bool)
	return ret0
}

func (mr *MockClientMockRecorder) SupportsResume() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SupportsResume", reflect.TypeOf((*MockClient)(nil).SupportsResume))
}

// MockTxn is a mock of the metastore.Txn interface.
type MockTxn struct {
	ctrl     *gomock.Controller
	recorder *MockTxnMockRecorder
}

type MockTxnMockRecorder struct {
	mock *MockTxn
}

func NewMockTxn(ctrl *gomock.Controller) *MockTxn {
	mock := &MockTxn{ctrl: ctrl}
	mock.recorder = &MockTxnMockRecorder{mock}
	return mock
}

func (m *MockTxn) EXPECT() *MockTxnMockRecorder {
	return m.recorder
}

func (m *MockTxn) Put(key string, value []byte) metastore.Txn {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Put", key, value)
	ret0, _ := ret[0].(metastore.Txn)
	return ret0
}

func (mr *MockTxnMockRecorder) Put(key, value any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Put", reflect.TypeOf((*MockTxn)(nil).Put), key, value)
}

func (m *MockTxn) Delete(key string) metastore.Txn {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Delete", key)
	ret0, _ := ret[0].(metastore.Txn)
	return ret0
}

func (mr *MockTxnMockRecorder) Delete(key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Delete", reflect.TypeOf((*MockTxn)(nil).Delete), key)
}

func (m *MockTxn) Commit(ctx context.Context) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Commit", ctx)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTxnMockRecorder) Commit(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Commit", reflect.TypeOf((*MockTxn)(nil).Commit), ctx)
}

// MockElection is a mock of the metastore.Election interface.
type MockElection struct {
	ctrl     *gomock.Controller
	recorder *MockElectionMockRecorder
}

type MockElectionMockRecorder struct {
	mock *MockElection
}

func NewMockElection(ctrl *gomock.Controller) *MockElection {
	mock := &MockElection{ctrl: ctrl}
	mock.recorder = &MockElectionMockRecorder{mock}
	return mock
}

func (m *MockElection) EXPECT() *MockElectionMockRecorder {
	return m.recorder
}

func (m *MockElection) Campaign(ctx context.Context) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Campaign", ctx)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockElectionMockRecorder) Campaign(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Campaign", reflect.TypeOf((*MockElection)(nil).Campaign), ctx)
}

func (m *MockElection) Resign(ctx context.Context) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Resign", ctx)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockElectionMockRecorder) Resign(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Resign", reflect.TypeOf((*MockElection)(nil).Resign), ctx)
}

func (m *MockElection) Observe(ctx context.Context) <-chan bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Observe", ctx)
	ret0, _ := ret[0].(<-chan bool)
	return ret0
}

func (mr *MockElectionMockRecorder) Observe(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Observe", reflect.TypeOf((*MockElection)(nil).Observe), ctx)
}
