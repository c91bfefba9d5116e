// Package metastore declares the collaborator surface this system consumes
// from the replicated metadata store (spec.md §1: "we consume its
// Get/Put/Delete/Watch/Transaction surface and a lease/election API"). The
// store's own implementation is an external collaborator and out of scope;
// only the interface it must satisfy lives here.
package metastore

import "context"

// KeyValue is a single metadata-store record.
type KeyValue struct {
	Key     string
	Value   []byte
	Version int64
}

// EventType distinguishes a watch notification kind.
type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

// WatchEvent is a single metadata-store watch notification. Events from a
// single watch stream arrive in Revision order and must not be reordered
// by the consumer.
type WatchEvent struct {
	Type     EventType
	KV       KeyValue
	Revision int64
}

// Txn is a multi-key, multi-op transaction, committed atomically.
type Txn interface {
	Put(key string, value []byte) Txn
	Delete(key string) Txn
	Commit(ctx context.Context) error
}

// Client is the subset of the metadata store's surface this system
// consumes: point reads/writes, prefix snapshot reads, and a watch
// stream, plus transactions for atomic multi-key writes.
type Client interface {
	Get(ctx context.Context, key string) (KeyValue, bool, error)
	List(ctx context.Context, prefix string) ([]KeyValue, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Txn(ctx context.Context) Txn

	// Watch streams events for everything under prefix starting at
	// fromRevision (0 means "current revision"). The returned channel is
	// closed when ctx is cancelled or the watch is permanently broken.
	Watch(ctx context.Context, prefix string, fromRevision int64) (<-chan WatchEvent, error)

	// SupportsResume reports whether Watch can resume from a specific
	// revision after a reconnect without missing events, informing the
	// leader-demotion cache-wipe decision (DESIGN.md Open Question #2).
	SupportsResume() bool
}

// Election is the lease/election API this system consumes to determine
// master/slave role, per spec.md §1 and §4.H.
type Election interface {
	// Campaign blocks until this process becomes leader or ctx is
	// cancelled.
	Campaign(ctx context.Context) error
	// Resign gives up leadership voluntarily.
	Resign(ctx context.Context) error
	// Observe streams leadership-change notifications; true means this
	// process is (or became) the leader.
	Observe(ctx context.Context) <-chan bool
}
