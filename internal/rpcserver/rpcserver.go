// Package rpcserver implements the inbound half of spec.md §6's RPC
// surface: the handlers local schedulers and bundle managers call into
// the master with (node-fault reports, bundle-abnormal reports, group
// kill requests), mirroring the Invoker abstraction already used by
// internal/localctrl for the outbound direction. No .proto pipeline ships
// with this system, so Handlers exposes plain Go methods instead of a
// generated service interface. This package does not bind them onto a
// *grpc.Server; it has no ServiceDesc or registration function.
package rpcserver

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/groupmanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/instancemanager"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/resourcegroup"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rpcerrors"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
)

// Handlers wires the inbound RPC surface onto the three actor
// controllers, translating each call into the controller method and a
// wire-ready status.
type Handlers struct {
	Instances *instancemanager.Controller
	Groups    *groupmanager.Manager
	Bundles   *resourcegroup.Manager
	Logger    *slog.Logger
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// ReportLocalSchedFaultRequest reports a node's local scheduler has
// stopped responding.
type ReportLocalSchedFaultRequest struct {
	NodeID string
}

// ReportLocalSchedFault drives OnLocalSchedFault on both the instance
// and resource-group controllers, the two that key state off node
// identity (spec.md §4.D, §4.F).
func (h *Handlers) ReportLocalSchedFault(ctx context.Context, req ReportLocalSchedFaultRequest) error {
	if req.NodeID == "" {
		return rpcerrors.New(rpcerrors.ErrParamInvalid, "nodeId is required").Err()
	}
	if err := h.Instances.OnLocalSchedFault(ctx, req.NodeID); err != nil {
		h.logger().Error("ReportLocalSchedFault: instance manager failed", "nodeId", req.NodeID, "err", err)
		return rpcerrors.New(rpcerrors.ErrInnerSystemError, err.Error()).Err()
	}
	h.Bundles.OnLocalAbnormal(ctx, req.NodeID)
	return nil
}

// ReportUnitAbnormalRequest reports bundle-level health signals.
type ReportUnitAbnormalRequest struct {
	BundleIDs []string
}

// ReportUnitAbnormal drives the resource-group bundle reschedule path
// (spec.md §4.F).
func (h *Handlers) ReportUnitAbnormal(ctx context.Context, req ReportUnitAbnormalRequest) error {
	h.Bundles.ForwardReportUnitAbnormal(ctx, req.BundleIDs)
	return nil
}

// KillGroupRequest asks the master to tear a group down.
type KillGroupRequest struct {
	GroupID string
}

// KillGroupResponse mirrors signal.KillGroupResponse.
type KillGroupResponse struct {
	GroupID string
	Code    int32
	Message string
}

// KillGroup drives GroupManager.KillGroup and shapes its result onto the
// wire response, per spec.md §6's KillGroupResponse.
func (h *Handlers) KillGroup(ctx context.Context, req KillGroupRequest) (KillGroupResponse, error) {
	if req.GroupID == "" {
		return KillGroupResponse{}, rpcerrors.New(rpcerrors.ErrParamInvalid, "groupId is required").Err()
	}
	result, err := h.Groups.KillGroup(ctx, req.GroupID)
	if err != nil {
		h.logger().Error("KillGroup failed", "groupId", req.GroupID, "err", err)
		return KillGroupResponse{}, rpcerrors.New(rpcerrors.ErrInnerSystemError, err.Error()).Err()
	}
	resp := KillGroupResponse{GroupID: req.GroupID, Message: result.Message}
	if !result.OK {
		resp.Code = int32(rpcerrors.ErrInnerSystemError)
	}
	return resp, nil
}

// KillJobRequest asks the master to kill every instance of jobID,
// independent of family structure (SUPPLEMENTED: spec.md names
// SHUT_DOWN_SIGNAL_ALL but no job-scoped operation that emits it).
type KillJobRequest struct {
	JobID string
}

// KillJob drives InstanceManager.KillJob.
func (h *Handlers) KillJob(ctx context.Context, req KillJobRequest) error {
	if req.JobID == "" {
		return rpcerrors.New(rpcerrors.ErrParamInvalid, "jobId is required").Err()
	}
	h.Instances.KillJob(ctx, req.JobID)
	return nil
}

// CompleteKillInstanceRequest explicitly marks a kill as done, for
// synchronous callers that cannot wait on the next delete watch event
// (SUPPLEMENTED, grounded on the same-named original test).
type CompleteKillInstanceRequest struct {
	InstanceID string
}

// CompleteKillInstance drives InstanceManager.CompleteKillInstance.
func (h *Handlers) CompleteKillInstance(ctx context.Context, req CompleteKillInstanceRequest) error {
	if req.InstanceID == "" {
		return rpcerrors.New(rpcerrors.ErrParamInvalid, "instanceId is required").Err()
	}
	h.Instances.CompleteKillInstance(ctx, req.InstanceID)
	return nil
}

// ForwardCustomSignalRequest lets a driver ask the master to relay a
// signal to one of its own instances, reusing the same request shape the
// master uses outbound toward local controllers.
type ForwardCustomSignalRequest = signal.ForwardCustomSignalRequest

// ForwardCustomSignal is accepted for wire-compatibility with spec.md §6
// but has no master-side effect: signal forwarding always originates
// from the master toward a local controller (internal/localctrl), never
// the reverse, so a driver-submitted forward request is rejected.
func (h *Handlers) ForwardCustomSignal(_ context.Context, _ ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
	return signal.ForwardCustomSignalResponse{}, rpcerrors.New(rpcerrors.ErrParamInvalid,
		"ForwardCustomSignal is master-to-local-controller only").Err()
}

// UnaryServerInterceptors returns the interceptor chain every rpcserver
// RPC is expected to run under: panic recovery, then request/response
// logging.
func UnaryServerInterceptors(logger *slog.Logger) []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		RecoveryUnaryServerInterceptor(logger),
		LoggingUnaryServerInterceptor(logger),
	}
}

// RecoveryUnaryServerInterceptor converts a handler panic into an
// Internal status instead of crashing the process. A hand-rolled
// recover() is used in place of go-grpc-middleware's recovery package:
// panic recovery is the only middleware feature this chain uses, so the
// middleware package's per-call configuration surface buys nothing here.
func RecoveryUnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("rpcserver: handler panic recovered", "method", info.FullMethod, "panic", p)
				err = rpcerrors.New(rpcerrors.ErrInnerSystemError, "internal error").Err()
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingUnaryServerInterceptor logs every request's method and outcome.
func LoggingUnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "rpcserver: request failed", "method", info.FullMethod, "err", err)
		} else {
			logger.InfoContext(ctx, "rpcserver: request completed", "method", info.FullMethod)
		}
		return resp, err
	}
}
