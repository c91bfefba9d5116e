// Package rpcerrors defines the ErrorCode taxonomy of spec.md §7 and
// helpers to translate it to gRPC statuses, following the pattern of
// the teacher's internal/grpc/errors package (status.New + errdetails).
package rpcerrors

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
)

// ErrorCode is the public contract enum named by spec.md §7. Numeric
// values are part of the wire contract and must not be renumbered.
type ErrorCode int32

const (
	ErrNone ErrorCode = iota
	ErrInstanceNotFound
	ErrResourceNotEnough
	ErrInnerCommunication
	ErrInnerSystemError
	ErrEtcdOperationError
	ErrParamInvalid
	ErrFunctionMasterTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "ERR_NONE"
	case ErrInstanceNotFound:
		return "ERR_INSTANCE_NOT_FOUND"
	case ErrResourceNotEnough:
		return "ERR_RESOURCE_NOT_ENOUGH"
	case ErrInnerCommunication:
		return "ERR_INNER_COMMUNICATION"
	case ErrInnerSystemError:
		return "ERR_INNER_SYSTEM_ERROR"
	case ErrEtcdOperationError:
		return "ERR_ETCD_OPERATION_ERROR"
	case ErrParamInvalid:
		return "ERR_PARAM_INVALID"
	case ErrFunctionMasterTimeout:
		return "ERR_FUNCTION_MASTER_TIMEOUT"
	default:
		return "ERR_UNKNOWN"
	}
}

// GRPCCode maps an ErrorCode to the closest standard gRPC code.
func (c ErrorCode) GRPCCode() codes.Code {
	switch c {
	case ErrNone:
		return codes.OK
	case ErrInstanceNotFound:
		return codes.NotFound
	case ErrResourceNotEnough:
		return codes.ResourceExhausted
	case ErrInnerCommunication, ErrInnerSystemError, ErrEtcdOperationError:
		return codes.Internal
	case ErrParamInvalid:
		return codes.InvalidArgument
	case ErrFunctionMasterTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Unknown
	}
}

// New builds a *status.Status carrying the given code/message plus any
// protobuf detail messages, discarding to a generic Internal status if
// attaching details fails — identical shape to the teacher's
// internal/grpc/errors.New.
func New(code ErrorCode, msg string, details ...protoadapt.MessageV1) *status.Status {
	s, err := status.New(code.GRPCCode(), msg).WithDetails(details...)
	if err != nil {
		return status.New(codes.Internal, "internal error")
	}
	return s
}

// WithStackTrace augments a terminal status with a stack-trace-info list,
// per spec.md §7: "augmented with a stack-trace-info list when the
// underlying code ran remotely and returned it."
func WithStackTrace(s *status.Status, frames []string) *status.Status {
	if len(frames) == 0 {
		return s
	}
	info := &errdetails.DebugInfo{StackEntries: frames}
	withDetail, err := s.WithDetails(info)
	if err != nil {
		return s
	}
	return withDetail
}

// RetryPolicy describes how the local handling policy table of spec.md §7
// classifies a given error code.
type RetryPolicy int

const (
	// PolicyTreatAsSuccess: e.g. INSTANCE_NOT_FOUND on a kill target.
	PolicyTreatAsSuccess RetryPolicy = iota
	// PolicyRetryBounded: transient RPC errors, retried with backoff.
	PolicyRetryBounded
	// PolicyQueueForReconciliation: metadata-store write rejected.
	PolicyQueueForReconciliation
	// PolicySurfaceImmediately: malformed client request.
	PolicySurfaceImmediately
	// PolicyCancelAndAwaitLeader: leader unreachable from a driver client.
	PolicyCancelAndAwaitLeader
	// PolicyMarkFailedOrRetryBudget: resource-not-enough; resource groups
	// mark FAILED, instances retry against RECOVER_RETRY_TIMES.
	PolicyMarkFailedOrRetryBudget
)

// ClassifyForKill implements the kill classification table of spec.md
// §4.C step 4.
func ClassifyForKill(code ErrorCode) RetryPolicy {
	switch code {
	case ErrNone:
		return PolicyTreatAsSuccess
	case ErrInstanceNotFound:
		return PolicyTreatAsSuccess
	default:
		return PolicyRetryBounded
	}
}

// Classify implements the general handling policy of spec.md §7's table.
func Classify(code ErrorCode) RetryPolicy {
	switch code {
	case ErrNone, ErrInstanceNotFound:
		return PolicyTreatAsSuccess
	case ErrResourceNotEnough:
		return PolicyMarkFailedOrRetryBudget
	case ErrInnerCommunication, ErrInnerSystemError:
		return PolicyRetryBounded
	case ErrEtcdOperationError:
		return PolicyQueueForReconciliation
	case ErrParamInvalid:
		return PolicySurfaceImmediately
	case ErrFunctionMasterTimeout:
		return PolicyCancelAndAwaitLeader
	default:
		return PolicyRetryBounded
	}
}
