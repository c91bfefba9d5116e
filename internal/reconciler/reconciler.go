// Package reconciler implements the WatchSyncReconciler of spec.md §4.G:
// a periodic sweep per metadata-store prefix that replays any buffered
// operatecache writes and then diffs the in-memory cache against a fresh
// upstream snapshot, healing whatever the watch stream missed.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/telemetry"
)

// DefaultSweepPeriod is watchSyncPeriod's default from spec.md §9.
const DefaultSweepPeriod = 30 * time.Second

// KeyedTarget is a reconciliation source keyed by individual metadata
// keys: instances and groups, whose controllers already expose a
// per-event Put/Delete handler and an id-keyed cache.
type KeyedTarget interface {
	// Prefix identifies both the metadata-store prefix to list and the
	// operatecache prefix to drain.
	Prefix() string
	// CachedKeys returns every metadata-store key the in-memory cache
	// currently claims to represent.
	CachedKeys() map[string]struct{}
	// ApplyPut feeds one upstream (key, value) pair through the same
	// handler the watch stream uses; handlers are expected to ignore
	// stale versions themselves.
	ApplyPut(ctx context.Context, key string, value []byte) error
	// ApplyAbsent handles a key the cache holds but upstream no longer
	// has, per spec.md §4.G: treated as a delete that was missed.
	ApplyAbsent(ctx context.Context, key string)
}

// SnapshotTarget is a reconciliation source that prefers a single
// whole-snapshot sync call over a per-key diff, used by resource groups
// whose manager already performs this diff internally.
type SnapshotTarget interface {
	Prefix() string
	Sync(ctx context.Context, values [][]byte)
}

// Reconciler owns the set of targets swept on each tick.
type Reconciler struct {
	store    metastore.Client
	opcache  *operatecache.Cache
	keyed    []KeyedTarget
	snapshot []SnapshotTarget
	period   time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// Options configures a Reconciler. A zero Period takes DefaultSweepPeriod.
type Options struct {
	Period  time.Duration
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// New builds a Reconciler over the given keyed and snapshot targets.
func New(store metastore.Client, opcache *operatecache.Cache, keyed []KeyedTarget, snapshot []SnapshotTarget, opts Options) *Reconciler {
	if opts.Period <= 0 {
		opts.Period = DefaultSweepPeriod
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		opcache:  opcache,
		keyed:    keyed,
		snapshot: snapshot,
		period:   opts.Period,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Run sweeps on every tick until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single reconciliation pass over every target.
func (r *Reconciler) SweepOnce(ctx context.Context) {
	ctx, span := otel.Tracer("").Start(ctx, "reconciler.SweepOnce")
	defer span.End()
	for _, t := range r.keyed {
		r.sweepKeyed(ctx, t)
	}
	for _, t := range r.snapshot {
		r.sweepSnapshot(ctx, t)
	}
}

func (r *Reconciler) sweepKeyed(ctx context.Context, t KeyedTarget) {
	prefix := t.Prefix()
	r.replayPending(ctx, prefix)

	upstream, err := r.store.List(ctx, metastorePrefixFor(prefix))
	if err != nil {
		r.logger.Error("reconciler: list upstream failed, sweep skipped", "prefix", prefix, "err", err)
		return
	}

	upstreamKeys := make(map[string]struct{}, len(upstream))
	for _, kv := range upstream {
		upstreamKeys[kv.Key] = struct{}{}
		r.applyPutTraced(ctx, t, prefix, kv.Key, kv.Value)
	}

	healedMissing := 0
	for key := range t.CachedKeys() {
		if _, ok := upstreamKeys[key]; !ok {
			r.applyAbsentTraced(ctx, t, prefix, key)
			healedMissing++
		}
	}
	if r.metrics != nil {
		r.metrics.ReconcileDriftKeys.WithLabelValues(prefix, "applied").Set(float64(len(upstream)))
		r.metrics.ReconcileDriftKeys.WithLabelValues(prefix, "healed_missing").Set(float64(healedMissing))
	}
}

// applyPutTraced runs one upstream (key, value) pair through the target's
// ApplyPut in its own span, one per watch-equivalent event applied during
// a sweep.
func (r *Reconciler) applyPutTraced(ctx context.Context, t KeyedTarget, prefix, key string, value []byte) {
	ctx, span := otel.Tracer("").Start(ctx, "reconciler.ApplyPut", trace.WithAttributes(
		attribute.String("reconciler.prefix", prefix),
		attribute.String("reconciler.key", key),
	))
	defer span.End()
	if err := t.ApplyPut(ctx, key, value); err != nil {
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("reconciler: applying upstream entry failed", "prefix", prefix, "key", key, "err", err)
	}
}

// applyAbsentTraced runs one cached-but-missing key through the target's
// ApplyAbsent in its own span.
func (r *Reconciler) applyAbsentTraced(ctx context.Context, t KeyedTarget, prefix, key string) {
	ctx, span := otel.Tracer("").Start(ctx, "reconciler.ApplyAbsent", trace.WithAttributes(
		attribute.String("reconciler.prefix", prefix),
		attribute.String("reconciler.key", key),
	))
	defer span.End()
	t.ApplyAbsent(ctx, key)
}

func (r *Reconciler) sweepSnapshot(ctx context.Context, t SnapshotTarget) {
	prefix := t.Prefix()
	r.replayPending(ctx, prefix)

	upstream, err := r.store.List(ctx, metastorePrefixFor(prefix))
	if err != nil {
		r.logger.Error("reconciler: list upstream failed, sweep skipped", "prefix", prefix, "err", err)
		return
	}
	values := make([][]byte, 0, len(upstream))
	for _, kv := range upstream {
		values = append(values, kv.Value)
	}
	t.Sync(ctx, values)
}

// replayPending drains operatecache's buffered writes for prefix and
// retries them directly against the metadata store. A write that fails
// again is re-buffered so the next sweep retries it.
func (r *Reconciler) replayPending(ctx context.Context, prefix string) {
	puts, deletes := r.opcache.Drain(prefix)
	for _, p := range puts {
		if err := r.store.Put(ctx, p.Key, p.Value); err != nil {
			r.opcache.AddPutEvent(prefix, p.Key, p.Value)
			r.logger.Warn("reconciler: replaying buffered put failed, re-queued", "prefix", prefix, "key", p.Key, "err", err)
		}
	}
	for _, key := range deletes {
		if err := r.store.Delete(ctx, key); err != nil {
			r.opcache.AddDeleteEvent(prefix, key)
			r.logger.Warn("reconciler: replaying buffered delete failed, re-queued", "prefix", prefix, "key", key, "err", err)
		}
	}
}

func metastorePrefixFor(opcachePrefix string) string {
	switch opcachePrefix {
	case "instance":
		return model.InstancePrefix
	case "group":
		return model.GroupPrefix
	case "resource-group":
		return model.ResourceGroupPrefix
	case "abnormal-scheduler":
		return model.AbnormalSchedulerPrefix
	case "function-meta":
		return model.FunctionMetaPrefix
	default:
		return "/" + opcachePrefix
	}
}
