// Package scheduler declares the collaborator surface of the global
// scheduler: node membership queries/callbacks, instance placement and
// reschedule, and resource-group bundle placement. The scheduler's
// placement policy is out of scope (spec.md §1 Non-goals); only the
// interface it must satisfy lives here.
package scheduler

import "context"

// NodeInfo describes one member of the node roster.
type NodeInfo struct {
	NodeID  string
	Address string
}

// NodeEventType distinguishes a roster change notification.
type NodeEventType int

const (
	NodeAdded NodeEventType = iota
	NodeDeleted
)

// NodeEvent is a roster membership change.
type NodeEvent struct {
	Type NodeEventType
	Node NodeInfo
}

// Scheduler is the global scheduler collaborator.
type Scheduler interface {
	// QueryNodes returns the current node roster snapshot, consumed once
	// at startup per spec.md §4.I.
	QueryNodes(ctx context.Context) ([]NodeInfo, error)

	// SubscribeNodeEvents streams roster add/delete events; node-abnormal
	// reports arrive on SubscribeLocalSchedFault instead.
	SubscribeNodeEvents(ctx context.Context) (<-chan NodeEvent, error)

	// SubscribeLocalSchedFault streams node-abnormal reports (distinct
	// from roster deletion: a node can go abnormal while still present
	// in the roster).
	SubscribeLocalSchedFault(ctx context.Context) (<-chan string, error)

	// GetLocalAddress resolves a node id to its reachable address. A
	// false second return means the address is not currently known and
	// the caller must retry (spec.md §4.C step 1).
	GetLocalAddress(ctx context.Context, nodeID string) (address string, ok bool, err error)

	// RescheduleInstance resubmits a SCHEDULING instance for placement,
	// returning the node it landed on.
	RescheduleInstance(ctx context.Context, instanceID string) (nodeID string, err error)

	// ScheduleBundles places the bundles of a resource group, returning
	// the node each bundle landed on keyed by bundle id.
	ScheduleBundles(ctx context.Context, rGroupName string, bundleIDs []string) (placement map[string]string, err error)

	// RescheduleBundle re-places a single bundle after its node went
	// abnormal, returning its new node.
	RescheduleBundle(ctx context.Context, bundleID string) (nodeID string, err error)
}
