// Package model holds the wire-and-cache data model shared by every
// function-master component: instances, groups, bundles, resource groups
// and the debug sidecar record.
package model

import "google.golang.org/protobuf/types/known/timestamppb"

// InstanceState is the lifecycle state of a scheduled function instance.
type InstanceState int32

const (
	InstanceStateScheduling InstanceState = iota
	InstanceStateRunning
	InstanceStateExiting
	InstanceStateExited
	InstanceStateFatal
)

func (s InstanceState) String() string {
	switch s {
	case InstanceStateScheduling:
		return "SCHEDULING"
	case InstanceStateRunning:
		return "RUNNING"
	case InstanceStateExiting:
		return "EXITING"
	case InstanceStateExited:
		return "EXITED"
	case InstanceStateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the state no longer participates in
// scheduling decisions (EXITING/EXITED/FATAL).
func (s InstanceState) IsTerminal() bool {
	switch s {
	case InstanceStateExiting, InstanceStateExited, InstanceStateFatal:
		return true
	default:
		return false
	}
}

// InstanceType distinguishes a regular function instance from the root
// "app driver" instance of an application.
type InstanceType int32

const (
	InstanceTypeRegular InstanceType = iota
	InstanceTypeAppDriver
)

// Well-known sentinel node ids.
const (
	// InstanceManagerOwner marks an instance as currently held by the
	// master (e.g. during recovery) rather than by any local node.
	InstanceManagerOwner = "InstanceManagerOwner"
	// GroupManagerOwner marks a group as currently authoritatively owned
	// by the master rather than by any local node.
	GroupManagerOwner = "GroupManagerOwner"
	// PrimaryTag marks a resource group as owned by the master.
	PrimaryTag = "PrimaryTag"
)

// Well-known createOptions / extensions keys.
const (
	CreateOptionRecoverRetryTimes      = "RECOVER_RETRY_TIMES"
	CreateOptionAppEntrypoint          = "APP_ENTRYPOINT"
	CreateOptionFunctionGroupRunning   = "FUNCTION_GROUP_RUNNING_INFO"
	ExtensionNamed                     = "NAMED"
	ExtensionSource                    = "source"
)

// InstanceInfo is the unit of scheduling managed by the family cache and
// lifecycle controller.
type InstanceInfo struct {
	InstanceID       string
	RequestID        string
	ParentID         string
	GroupID          string
	FunctionProxyID  string
	Function         string
	JobID            string
	State            InstanceState
	Type             InstanceType
	Detached         bool
	Version          int64
	CreateOptions    map[string]string
	Extensions       map[string]string
	// CreatedAt is set by the originating driver/client on first
	// registration and is otherwise opaque to the master; nil for
	// records predating this field.
	CreatedAt *timestamppb.Timestamp
}

// Clone returns a deep copy suitable for handing out from a snapshot read.
func (i *InstanceInfo) Clone() *InstanceInfo {
	if i == nil {
		return nil
	}
	out := *i
	out.CreateOptions = cloneStringMap(i.CreateOptions)
	out.Extensions = cloneStringMap(i.Extensions)
	if i.CreatedAt != nil {
		out.CreatedAt = timestamppb.New(i.CreatedAt.AsTime())
	}
	return &out
}

// IsAppDriver reports whether this instance is the root of an application.
func (i *InstanceInfo) IsAppDriver() bool {
	return i != nil && i.Type == InstanceTypeAppDriver
}

// AppDriverSucceeded reports whether a FATAL app-driver instance finished
// its application successfully, per spec.md §4.D: type == app-driver and
// APP_ENTRYPOINT present in createOptions.
func (i *InstanceInfo) AppDriverSucceeded() bool {
	if i == nil || !i.IsAppDriver() {
		return false
	}
	_, ok := i.CreateOptions[CreateOptionAppEntrypoint]
	return ok
}

// RecoverRetryTimes parses CreateOptions[RECOVER_RETRY_TIMES], defaulting
// to 0 (no more recovery attempts) when absent or malformed.
func (i *InstanceInfo) RecoverRetryTimes() int {
	if i == nil {
		return 0
	}
	v, ok := i.CreateOptions[CreateOptionRecoverRetryTimes]
	if !ok {
		return 0
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// IsNamed reports whether extensions[NAMED] == "true".
func (i *InstanceInfo) IsNamed() bool {
	return i != nil && i.Extensions[ExtensionNamed] == "true"
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
