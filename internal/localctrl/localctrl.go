// Package localctrl declares the RPC surface this system uses to reach
// per-node local schedulers and runtime managers (spec.md §1: "remote
// peers reached by named address; the core sends them signal messages").
// A gRPC-backed implementation lives in client.go; the RPC transport
// itself remains an external collaborator (spec.md §1 Non-goals).
package localctrl

import (
	"context"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
)

// Client is the RPC surface exposed by a local node's
// LocalSchedInstanceCtrlActor and BundleManager.
type Client interface {
	// ForwardCustomSignal sends req to
	// <nodeId>-LocalSchedInstanceCtrlActor@<address>, per spec.md §4.C.
	ForwardCustomSignal(ctx context.Context, address string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error)

	// KillGroup sends req to the local group controller actor at address
	// and returns its KillGroupResponse.
	KillGroup(ctx context.Context, address string, req signal.KillGroupRequest) (signal.KillGroupResponse, error)

	// ClearGroup notifies the local group controller actor that a group
	// has been deleted, best-effort (no response is awaited by callers
	// beyond error logging).
	ClearGroup(ctx context.Context, address string, groupID string) error

	// RemoveBundle instructs a node's BundleManager to release a
	// reservation.
	RemoveBundle(ctx context.Context, address string, req signal.RemoveBundleRequest) (signal.RemoveBundleResponse, error)
}
