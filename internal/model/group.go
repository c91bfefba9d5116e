package model

import "google.golang.org/protobuf/types/known/timestamppb"

// GroupState is the lifecycle state of a gang-scheduled group.
type GroupState int32

const (
	GroupStateScheduling GroupState = iota
	GroupStateRunning
	GroupStateFailed
)

func (s GroupState) String() string {
	switch s {
	case GroupStateScheduling:
		return "SCHEDULING"
	case GroupStateRunning:
		return "RUNNING"
	case GroupStateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// GroupOpts carries the gang-scheduling policy knobs of a group.
type GroupOpts struct {
	SameRunningLifecycle bool
}

// GroupInfo is a named collection of instances with gang-scheduling
// semantics, owned by either a parent instance or the master itself.
type GroupInfo struct {
	GroupID    string
	OwnerProxy string
	ParentID   string
	State      GroupState
	GroupOpts  GroupOpts
	RequestID  string
	// CreatedAt mirrors InstanceInfo.CreatedAt; nil for records
	// predating this field.
	CreatedAt *timestamppb.Timestamp
}

// Clone returns a copy that shares no pointer with g: CreatedAt, the only
// reference field, is copied too (GroupOpts is a value type).
func (g *GroupInfo) Clone() *GroupInfo {
	if g == nil {
		return nil
	}
	out := *g
	if g.CreatedAt != nil {
		out.CreatedAt = timestamppb.New(g.CreatedAt.AsTime())
	}
	return &out
}

// HasNoAuthoritativeOwner reports whether ownerProxy == GroupManagerOwner,
// i.e. no node is currently authoritative for the group.
func (g *GroupInfo) HasNoAuthoritativeOwner() bool {
	return g != nil && g.OwnerProxy == GroupManagerOwner
}
