package model

import "strings"

// Metadata-store prefixes, fixed per spec.md §6. The trailing id segment
// is always last.
const (
	InstancePrefix        = "/instance/business"
	GroupPrefix           = "/group"
	ResourceGroupPrefix   = "/resource-group"
	AbnormalSchedulerPrefix = "/abnormal/localscheduler"
	DebugInstancePrefix   = "/debug"
	FunctionMetaPrefix    = "/functions"
)

// InstanceKey builds the function-partitioned instance key:
// /instance/business/<tenant>/tenant/<tenantId>/function/<functionId>/version/<ver>/<az>/<requestId>/<instanceId>
func InstanceKey(tenant, tenantID, functionID, version, az, requestID, instanceID string) string {
	return strings.Join([]string{
		InstancePrefix, tenant, "tenant", tenantID, "function", functionID,
		"version", version, az, requestID, instanceID,
	}, "/")
}

// InstanceIDFromKey extracts the trailing instanceId segment of an
// instance key.
func InstanceIDFromKey(key string) string {
	return lastSegment(key)
}

// GroupKey builds /group/<subNs>/<groupId>.
func GroupKey(subNs, groupID string) string {
	return strings.Join([]string{GroupPrefix, subNs, groupID}, "/")
}

// GroupIDFromKey extracts the trailing groupId segment of a group key.
func GroupIDFromKey(key string) string {
	return lastSegment(key)
}

// ResourceGroupKey builds /resource-group/<tenantId>/<name>.
func ResourceGroupKey(tenantID, name string) string {
	return strings.Join([]string{ResourceGroupPrefix, tenantID, name}, "/")
}

// AbnormalSchedulerKey builds /abnormal/localscheduler/<nodeId>.
func AbnormalSchedulerKey(nodeID string) string {
	return strings.Join([]string{AbnormalSchedulerPrefix, nodeID}, "/")
}

// DebugInstanceKey builds /debug/<instanceId>.
func DebugInstanceKey(instanceID string) string {
	return strings.Join([]string{DebugInstancePrefix, instanceID}, "/")
}

// IsLatestFunctionMetaKey reports whether a function-meta key names the
// "$latest" version alias, per the Open Question resolution recorded in
// DESIGN.md.
func IsLatestFunctionMetaKey(key string) bool {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	for i, p := range parts {
		if p == "version" && i+1 < len(parts) {
			return parts[i+1] == "$latest"
		}
	}
	return false
}

// FunctionMetaKey builds /functions/<functionId>/version/<ver>.
func FunctionMetaKey(functionID, version string) string {
	return strings.Join([]string{FunctionMetaPrefix, functionID, "version", version}, "/")
}

// FunctionIDFromFunctionMetaKey extracts the functionId segment from a
// function-meta key, the segment immediately following FunctionMetaPrefix.
func FunctionIDFromFunctionMetaKey(key string) string {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func lastSegment(key string) string {
	key = strings.TrimRight(key, "/")
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}
