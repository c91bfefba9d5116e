// Package killretry implements KillInstanceWithRetry, the promise/retry
// engine behind spec.md §4.C: it forwards SHUT_DOWN_SIGNAL-family messages
// to a local node controller, retries on any non-terminal response, and
// resolves its promise either on a successful response or when the
// controller observes the target instance's own delete event.
package killretry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/reqid"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rpcerrors"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/telemetry"
)

// DefaultRetryInterval is retryKillIntervalMs's default from spec.md §4.C.
const DefaultRetryInterval = 15 * time.Second

// DefaultKillTimeout is g_killTimeout's default, the per-attempt RPC
// deadline used by every signal except the unbounded killInstanceSync
// variant (spec.md §5).
const DefaultKillTimeout = 30 * time.Second

// Status is the terminal outcome of a kill request.
type Status struct {
	Code    rpcerrors.ErrorCode
	Message string
}

// OK reports whether Status represents a successful (or success-equivalent)
// outcome.
func (s Status) OK() bool {
	return s.Code == rpcerrors.ErrNone || s.Code == rpcerrors.ErrInstanceNotFound
}

// Promise is a one-shot slot resolved exactly once, per spec.md §9:
// "resolving twice logs and discards the second outcome."
type Promise struct {
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	status   Status
	resolved bool
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func (p *Promise) resolve(logger *slog.Logger, instanceID string, status Status) {
	resolvedNow := false
	p.once.Do(func() {
		p.mu.Lock()
		p.status = status
		p.resolved = true
		p.mu.Unlock()
		resolvedNow = true
		close(p.done)
	})
	if !resolvedNow {
		logger.Warn("kill promise already resolved, discarding second outcome",
			"instanceId", instanceID, "code", status.Code.String())
	}
}

// Wait blocks until the promise resolves or ctx is canceled.
func (p *Promise) Wait(ctx context.Context) (Status, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.status, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// ForceDeleteFunc force-deletes an instance's metadata record, used when a
// kill target turns out to already be gone.
type ForceDeleteFunc func(ctx context.Context, instanceID string) error

// Options configures an Engine. Zero values take the documented defaults.
type Options struct {
	RetryInterval time.Duration
	KillTimeout   time.Duration
	Logger        *slog.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *telemetry.Metrics
}

type pending struct {
	instanceID string
	nodeID     string
	req        signal.CustomSignalRequest
	base       string
	seq        int
	promise    *Promise
	timer      *time.Timer
}

// Engine is the kill-retry engine. One Engine instance is shared by the
// actor that owns the family cache; callers must themselves not issue
// overlapping kills for the same instance from multiple goroutines, since
// the per-instance promise slot assumes a single-threaded caller per
// spec.md §5.
type Engine struct {
	rpc         localctrl.Client
	sched       scheduler.Scheduler
	forceDelete ForceDeleteFunc

	retryInterval time.Duration
	killTimeout   time.Duration
	logger        *slog.Logger
	metrics       *telemetry.Metrics

	// afterFunc is substituted by tests to avoid real wall-clock waits.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu               sync.Mutex
	activeByInstance map[string]*pending
	promisesByReqID  map[string]*pending
}

// NewEngine builds an Engine. forceDelete may be nil if the caller never
// routes INSTANCE_NOT_FOUND-classified kills through this engine.
func NewEngine(rpc localctrl.Client, sched scheduler.Scheduler, forceDelete ForceDeleteFunc, opts Options) *Engine {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		rpc:              rpc,
		sched:            sched,
		forceDelete:      forceDelete,
		retryInterval:    opts.RetryInterval,
		killTimeout:      opts.KillTimeout,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		afterFunc:        time.AfterFunc,
		activeByInstance: make(map[string]*pending),
		promisesByReqID:  make(map[string]*pending),
	}
}

// KillInstanceWithRetry sends req to the local controller that owns
// instanceID (currently scheduled on nodeID), retrying on any
// non-terminal response at retryKillIntervalMs. A second call for an
// instance already being killed returns the in-flight promise instead of
// starting a redundant attempt.
func (e *Engine) KillInstanceWithRetry(ctx context.Context, instanceID, nodeID string, req signal.CustomSignalRequest) *Promise {
	e.mu.Lock()
	if p, ok := e.activeByInstance[instanceID]; ok {
		e.mu.Unlock()
		return p.promise
	}
	p := &pending{
		instanceID: instanceID,
		nodeID:     nodeID,
		req:        req,
		base:       reqid.NewBase(),
		promise:    newPromise(),
	}
	e.activeByInstance[instanceID] = p
	e.mu.Unlock()

	go e.attempt(ctx, p)
	return p.promise
}

func (e *Engine) attempt(ctx context.Context, p *pending) {
	ctx, span := otel.Tracer("").Start(ctx, "killretry.attempt", trace.WithAttributes(
		attribute.String("instance_id", p.instanceID),
		attribute.String("node_id", p.nodeID),
		attribute.String("signal", p.req.Signal.String()),
		attribute.Int("attempt_seq", p.seq),
	))
	defer span.End()

	if e.metrics != nil {
		e.metrics.KillAttemptsTotal.WithLabelValues(p.req.Signal.String()).Inc()
	}
	address, ok, err := e.sched.GetLocalAddress(ctx, p.nodeID)
	if err != nil || !ok {
		span.AddEvent("local address unresolvable, retry scheduled")
		e.logger.Warn("kill retry: local address unresolvable, will retry",
			"instanceId", p.instanceID, "nodeId", p.nodeID, "err", err)
		e.scheduleRetry(ctx, p)
		return
	}

	reqID := reqid.WithSeq(p.base, p.seq)
	e.mu.Lock()
	e.promisesByReqID[reqID] = p
	e.mu.Unlock()

	callCtx := ctx
	var cancel context.CancelFunc
	var timeout *durationpb.Duration
	if p.req.Signal != signal.KillInstanceSync {
		callCtx, cancel = context.WithTimeout(ctx, e.killTimeout)
		timeout = durationpb.New(e.killTimeout)
	}
	resp, err := e.rpc.ForwardCustomSignal(callCtx, address, signal.ForwardCustomSignalRequest{
		RequestID:         reqID,
		InstanceRequestID: reqID,
		Req:               p.req,
		Timeout:           timeout,
	})
	if cancel != nil {
		cancel()
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("kill retry: transport error, will retry", "instanceId", p.instanceID, "err", err)
		e.scheduleRetry(ctx, p)
		return
	}

	code := rpcerrors.ErrorCode(resp.Code)
	span.SetAttributes(attribute.String("response_code", code.String()))
	switch rpcerrors.ClassifyForKill(code) {
	case rpcerrors.PolicyTreatAsSuccess:
		if code == rpcerrors.ErrInstanceNotFound && e.forceDelete != nil {
			if err := e.forceDelete(ctx, p.instanceID); err != nil {
				span.SetStatus(codes.Error, err.Error())
				e.logger.Error("kill retry: force-delete after INSTANCE_NOT_FOUND failed",
					"instanceId", p.instanceID, "err", err)
			}
		}
		e.finish(p, Status{Code: code, Message: resp.Message})
	default:
		span.AddEvent("non-terminal response, retry scheduled")
		e.logger.Info("kill retry: non-terminal response, scheduling retry",
			"instanceId", p.instanceID, "code", code.String())
		e.scheduleRetry(ctx, p)
	}
}

func (e *Engine) scheduleRetry(ctx context.Context, p *pending) {
	p.seq++
	e.mu.Lock()
	// Still the active attempt for this instance? A concurrent delete
	// notification may have already finished and removed it.
	if e.activeByInstance[p.instanceID] != p {
		e.mu.Unlock()
		return
	}
	p.timer = e.afterFunc(e.retryInterval, func() {
		e.attempt(ctx, p)
	})
	e.mu.Unlock()
}

func (e *Engine) finish(p *pending, status Status) {
	e.mu.Lock()
	if e.activeByInstance[p.instanceID] == p {
		delete(e.activeByInstance, p.instanceID)
	}
	reqID := reqid.WithSeq(p.base, p.seq)
	delete(e.promisesByReqID, reqID)
	if p.timer != nil {
		p.timer.Stop()
	}
	e.mu.Unlock()
	if e.metrics != nil {
		outcome := "failure"
		if status.OK() {
			outcome = "success"
		}
		e.metrics.KillOutcomesTotal.WithLabelValues(outcome).Inc()
	}
	p.promise.resolve(e.logger, p.instanceID, status)
}

// OnInstanceDeleted resolves any outstanding kill promise for instanceID
// as OK and cancels its pending retry timer, per spec.md §4.C step 5: the
// controller observing the instance's own delete event is itself proof
// the kill succeeded.
func (e *Engine) OnInstanceDeleted(instanceID string) {
	e.mu.Lock()
	p, ok := e.activeByInstance[instanceID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.activeByInstance, instanceID)
	reqID := reqid.WithSeq(p.base, p.seq)
	delete(e.promisesByReqID, reqID)
	if p.timer != nil {
		p.timer.Stop()
	}
	e.mu.Unlock()
	p.promise.resolve(e.logger, instanceID, Status{Code: rpcerrors.ErrNone, Message: "instance deleted"})
}

// InFlight reports whether a kill is currently outstanding for instanceID,
// for tests and debug queries.
func (e *Engine) InFlight(instanceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.activeByInstance[instanceID]
	return ok
}
