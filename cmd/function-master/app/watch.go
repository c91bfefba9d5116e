package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
)

// watchRestartBackoff is how long WatchLoop waits before re-opening a
// watch stream that failed to start or closed unexpectedly.
const watchRestartBackoff = 2 * time.Second

// watchedPrefix pairs a metadata-store prefix with the dispatcher that
// turns its watch events into the same controller calls the reconciler's
// sweep uses, per spec.md §2/§4.G: the watch stream is the primary
// event-delivery path, the reconciler sweep the backstop for whatever it
// misses.
type watchedPrefix struct {
	prefix   string
	dispatch func(ctx context.Context, ev metastore.WatchEvent, logger *slog.Logger)
}

// WatchLoop opens one watch stream per reconciled prefix and dispatches
// every event to the same OnInstancePut/OnInstanceDelete/OnGroupPut/
// OnGroupDelete/OnFunctionMetaPut/OnFunctionMetaDelete handlers the
// reconciler's periodic sweep calls. It runs until ctx is cancelled.
func (c *Components) WatchLoop(ctx context.Context, cc ControllerContext, logger *slog.Logger) {
	prefixes := []watchedPrefix{
		{model.InstancePrefix, c.dispatchInstanceEvent},
		{model.GroupPrefix, c.dispatchGroupEvent},
		{model.FunctionMetaPrefix, c.dispatchFunctionMetaEvent},
	}

	var wg sync.WaitGroup
	for _, p := range prefixes {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.watchPrefix(ctx, cc, logger, p)
		}()
	}
	wg.Wait()
}

func (c *Components) watchPrefix(ctx context.Context, cc ControllerContext, logger *slog.Logger, p watchedPrefix) {
	for ctx.Err() == nil {
		events, err := cc.Metastore.Watch(ctx, p.prefix, 0)
		if err != nil {
			logger.Error("watch stream failed to start, relying on reconciliation sweep until retry",
				"prefix", p.prefix, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(watchRestartBackoff):
				continue
			}
		}

		for ev := range events {
			c.dispatchTraced(ctx, p, ev, logger)
		}

		if ctx.Err() != nil {
			return
		}
		logger.Warn("watch stream closed, reopening", "prefix", p.prefix)
		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRestartBackoff):
		}
	}
}

// dispatchTraced runs one watch event through its dispatcher in its own
// span, one span per watch event.
func (c *Components) dispatchTraced(ctx context.Context, p watchedPrefix, ev metastore.WatchEvent, logger *slog.Logger) {
	ctx, span := otel.Tracer("").Start(ctx, "watch.dispatch", trace.WithAttributes(
		attribute.String("watch.prefix", p.prefix),
		attribute.String("watch.key", ev.KV.Key),
		attribute.Int64("watch.revision", ev.Revision),
		attribute.Bool("watch.delete", ev.Type == metastore.EventDelete),
	))
	defer span.End()
	p.dispatch(ctx, ev, logger)
}

func (c *Components) dispatchInstanceEvent(ctx context.Context, ev metastore.WatchEvent, logger *slog.Logger) {
	switch ev.Type {
	case metastore.EventPut:
		var info model.InstanceInfo
		if err := json.Unmarshal(ev.KV.Value, &info); err != nil {
			logger.Error("watch: malformed instance record skipped", "key", ev.KV.Key, "err", err)
			return
		}
		if err := c.Instances.OnInstancePut(ctx, ev.KV.Key, &info); err != nil {
			logger.Error("watch: apply instance put failed, reconciliation sweep will retry", "key", ev.KV.Key, "err", err)
		}
	case metastore.EventDelete:
		id := model.InstanceIDFromKey(ev.KV.Key)
		inst, ok := c.Families.Get(id)
		if !ok {
			return
		}
		c.Instances.OnInstanceDelete(ctx, ev.KV.Key, inst)
	}
}

func (c *Components) dispatchGroupEvent(ctx context.Context, ev metastore.WatchEvent, logger *slog.Logger) {
	switch ev.Type {
	case metastore.EventPut:
		var info model.GroupInfo
		if err := json.Unmarshal(ev.KV.Value, &info); err != nil {
			logger.Error("watch: malformed group record skipped", "key", ev.KV.Key, "err", err)
			return
		}
		if err := c.Groups.OnGroupPut(ctx, ev.KV.Key, &info); err != nil {
			logger.Error("watch: apply group put failed, reconciliation sweep will retry", "key", ev.KV.Key, "err", err)
		}
	case metastore.EventDelete:
		groupID := model.GroupIDFromKey(ev.KV.Key)
		info, ok := c.Groups.Caches().Get(groupID)
		if !ok {
			return
		}
		c.Groups.OnGroupDelete(ctx, ev.KV.Key, info)
	}
}

func (c *Components) dispatchFunctionMetaEvent(ctx context.Context, ev metastore.WatchEvent, logger *slog.Logger) {
	switch ev.Type {
	case metastore.EventPut:
		if err := c.Instances.OnFunctionMetaPut(ctx, ev.KV.Key, ev.KV.Value); err != nil {
			logger.Error("watch: apply function-meta put failed", "key", ev.KV.Key, "err", err)
		}
	case metastore.EventDelete:
		c.Instances.OnFunctionMetaDelete(ctx, ev.KV.Key)
	}
}

// electionLoop observes leadership changes and switches the role gate
// accordingly, per spec.md §4.H: "the switch must be instantaneous from
// the caller's point of view". Losing leadership also triggers the
// instance manager's cache wipe when the metadata store cannot resume a
// broken watch.
func (c *Components) electionLoop(ctx context.Context, cc ControllerContext, logger *slog.Logger) {
	leaderCh := cc.Election.Observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case leader, ok := <-leaderCh:
			if !ok {
				return
			}
			if leader {
				c.Gate.Promote()
				logger.Info("leadership acquired, switching to master role")
			} else {
				c.Gate.Demote()
				logger.Info("leadership lost, switching to slave role")
				c.Instances.OnDemoted(ctx)
			}
		}
	}
}
