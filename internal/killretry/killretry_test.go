package killretry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl/localctrlmock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rpcerrors"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler/schedulermock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
)

// immediateAfterFunc runs f synchronously instead of scheduling it on the
// wall clock, so retry tests do not need to sleep.
func immediateAfterFunc(calls *int, mu *sync.Mutex) func(time.Duration, func()) *time.Timer {
	return func(_ time.Duration, f func()) *time.Timer {
		mu.Lock()
		*calls++
		mu.Unlock()
		go f()
		return time.NewTimer(time.Hour) // never fires; f already ran
	}
}

func TestKillRetry_SuccessOnFirstAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)

	sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		Return(signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil)

	e := NewEngine(rpc, sched, nil, Options{})
	p := e.KillInstanceWithRetry(context.Background(), "i1", "n1", signal.CustomSignalRequest{
		Signal: signal.ShutDownSignal, InstanceID: "i1",
	})

	status, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rpcerrors.ErrNone, status.Code)
	assert.False(t, e.InFlight("i1"))
}

func TestKillRetry_InstanceNotFoundForceDeletesAndSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)

	sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil)
	rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		Return(signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrInstanceNotFound)}, nil)

	var forceDeleted string
	forceDelete := func(_ context.Context, instanceID string) error {
		forceDeleted = instanceID
		return nil
	}

	e := NewEngine(rpc, sched, forceDelete, Options{})
	p := e.KillInstanceWithRetry(context.Background(), "i1", "n1", signal.CustomSignalRequest{
		Signal: signal.ShutDownSignal, InstanceID: "i1",
	})

	status, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.Eventually(t, func() bool { return forceDeleted == "i1" }, time.Second, time.Millisecond)
}

func TestKillRetry_RetriesOnNonTerminalCodeThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)

	sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil).Times(2)
	gomock.InOrder(
		rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
			Return(signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrInnerCommunication)}, nil),
		rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
			Return(signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil),
	)

	var mu sync.Mutex
	retryCalls := 0
	e := NewEngine(rpc, sched, nil, Options{})
	e.afterFunc = immediateAfterFunc(&retryCalls, &mu)

	p := e.KillInstanceWithRetry(context.Background(), "i1", "n1", signal.CustomSignalRequest{
		Signal: signal.ShutDownSignal, InstanceID: "i1",
	})

	status, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rpcerrors.ErrNone, status.Code)
	mu.Lock()
	assert.Equal(t, 1, retryCalls)
	mu.Unlock()
}

func TestKillRetry_UnresolvableAddressSchedulesRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)

	gomock.InOrder(
		sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("", false, nil),
		sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").Return("n1:9000", true, nil),
	)
	rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		Return(signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil)

	var mu sync.Mutex
	retryCalls := 0
	e := NewEngine(rpc, sched, nil, Options{})
	e.afterFunc = immediateAfterFunc(&retryCalls, &mu)

	p := e.KillInstanceWithRetry(context.Background(), "i1", "n1", signal.CustomSignalRequest{
		Signal: signal.ShutDownSignal, InstanceID: "i1",
	})

	status, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rpcerrors.ErrNone, status.Code)
}

func TestKillRetry_SecondKillForSameInstanceReusesPromise(t *testing.T) {
	ctrl := gomock.NewController(t)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)

	block := make(chan struct{})
	sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").DoAndReturn(
		func(context.Context, string) (string, bool, error) {
			<-block
			return "n1:9000", true, nil
		})
	rpc.EXPECT().ForwardCustomSignal(gomock.Any(), "n1:9000", gomock.Any()).
		Return(signal.ForwardCustomSignalResponse{Code: int32(rpcerrors.ErrNone)}, nil)

	e := NewEngine(rpc, sched, nil, Options{})
	req := signal.CustomSignalRequest{Signal: signal.ShutDownSignal, InstanceID: "i1"}
	p1 := e.KillInstanceWithRetry(context.Background(), "i1", "n1", req)
	p2 := e.KillInstanceWithRetry(context.Background(), "i1", "n1", req)
	assert.Same(t, p1, p2)

	close(block)
	_, err := p1.Wait(context.Background())
	require.NoError(t, err)
}

func TestKillRetry_OnInstanceDeletedResolvesOutstandingKillAsOK(t *testing.T) {
	ctrl := gomock.NewController(t)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)

	block := make(chan struct{})
	sched.EXPECT().GetLocalAddress(gomock.Any(), "n1").DoAndReturn(
		func(context.Context, string) (string, bool, error) {
			<-block
			return "n1:9000", true, nil
		}).AnyTimes()

	e := NewEngine(rpc, sched, nil, Options{})
	p := e.KillInstanceWithRetry(context.Background(), "i1", "n1", signal.CustomSignalRequest{
		Signal: signal.ShutDownSignal, InstanceID: "i1",
	})

	e.OnInstanceDeleted("i1")

	status, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.False(t, e.InFlight("i1"))
	close(block)
}
