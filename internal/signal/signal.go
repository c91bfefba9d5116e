// Package signal defines the wire signal constants and RPC message
// shapes exchanged with local per-node controllers, per spec.md §6.
// Signal numeric values are part of the contract and must be preserved.
package signal

import "google.golang.org/protobuf/types/known/durationpb"

// Signal identifies the kind of control message forwarded to a local
// instance/group controller.
type Signal int32

const (
	ShutDownSignal Signal = iota + 1
	ShutDownSignalAll
	GroupExitSignal
	FamilyExitSignal
	KillInstanceSync
	ErasePendingThread
	Update
	UpdateManager
	Subscribe
	GetInstance
	QueryDsAddress
	Accelerate
)

func (s Signal) String() string {
	switch s {
	case ShutDownSignal:
		return "SHUT_DOWN_SIGNAL"
	case ShutDownSignalAll:
		return "SHUT_DOWN_SIGNAL_ALL"
	case GroupExitSignal:
		return "GROUP_EXIT_SIGNAL"
	case FamilyExitSignal:
		return "FAMILY_EXIT_SIGNAL"
	case KillInstanceSync:
		return "killInstanceSync"
	case ErasePendingThread:
		return "ErasePendingThread"
	case Update:
		return "Update"
	case UpdateManager:
		return "UpdateManager"
	case Subscribe:
		return "Subscribe"
	case GetInstance:
		return "GetInstance"
	case QueryDsAddress:
		return "QueryDsAddress"
	case Accelerate:
		return "Accelerate"
	default:
		return "UNKNOWN_SIGNAL"
	}
}

// CustomSignalRequest is the inner req payload of a ForwardCustomSignal
// call: which signal, which instance, and an opaque payload.
type CustomSignalRequest struct {
	Signal     Signal
	InstanceID string
	Payload    string
}

// ForwardCustomSignalRequest is the outer RPC envelope sent to
// <nodeId>-LocalSchedInstanceCtrlActor@<address>.
type ForwardCustomSignalRequest struct {
	RequestID         string
	SrcInstanceID     string
	InstanceRequestID string
	Req               CustomSignalRequest
	// Timeout carries the caller's per-attempt deadline to the remote
	// local controller, wire-compatible with the gRPC call deadline
	// already enforced on callCtx. Nil for synchronous kill signals
	// that intentionally carry no deadline.
	Timeout *durationpb.Duration
}

// ForwardCustomSignalResponse is the reply to a ForwardCustomSignalRequest.
type ForwardCustomSignalResponse struct {
	RequestID string
	Code      int32
	Message   string
}

// ForwardKillRequest/ForwardKillResponse share the ForwardCustomSignal
// shape and are used for kill-group and kill-all flows.
type ForwardKillRequest = ForwardCustomSignalRequest
type ForwardKillResponse = ForwardCustomSignalResponse

// KillGroupRequest targets a group controller directly.
type KillGroupRequest struct {
	GroupID string
}

// KillGroupResponse is the reply to a KillGroupRequest.
type KillGroupResponse struct {
	GroupID string
	Code    int32
	Message string
}

// RemoveBundleRequest instructs a node's BundleManager to release a
// reservation.
type RemoveBundleRequest struct {
	RGroupName string
	BundleID   string
	RequestID  string
}

// RemoveBundleResponse is the reply to a RemoveBundleRequest.
type RemoveBundleResponse struct {
	RGroupName string
	RequestID  string
	Code       int32
}
