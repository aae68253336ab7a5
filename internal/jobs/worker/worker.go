package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
	"github.com/yungbote/bookrec-backend/internal/services"
)

type Options struct {
	// PollTimeout bounds each blocking pop; the loop re-checks ctx between pops.
	PollTimeout time.Duration
	// Subscribe additionally listens on the pub/sub channels and handles
	// high-priority and incremental messages as they arrive.
	Subscribe bool
	Limit     int
}

// Worker consumes invalidation events and refreshes the affected users'
// cached recommendations.
type Worker struct {
	kv      kvstore.Store
	bus     services.EventBus
	cache   services.CacheManager
	impact  services.ImpactAnalyzer
	compute services.ComputeFunc
	log     *logger.Logger
	metrics *observability.Metrics
	opts    Options
}

// NewWorker builds a worker. A nil compute makes every event a plain cache
// invalidation so the next read recomputes synchronously.
func NewWorker(
	kv kvstore.Store,
	bus services.EventBus,
	cache services.CacheManager,
	impact services.ImpactAnalyzer,
	compute services.ComputeFunc,
	baseLog *logger.Logger,
	metrics *observability.Metrics,
	opts Options,
) *Worker {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	return &Worker{
		kv:      kv,
		bus:     bus,
		cache:   cache,
		impact:  impact,
		compute: compute,
		log:     baseLog.With("component", "RecomputeWorker"),
		metrics: metrics,
		opts:    opts,
	}
}

func (w *Worker) String() string { return "recompute-worker" }

// Serve implements suture.Service.
func (w *Worker) Serve(ctx context.Context) error {
	w.log.Info("Starting recompute worker", "subscribe", w.opts.Subscribe, "poll_timeout", w.opts.PollTimeout.String())
	if !w.opts.Subscribe {
		w.runQueue(ctx)
		return ctx.Err()
	}

	sub, err := w.kv.Subscribe(ctx, kvstore.InvalidationChannel, kvstore.UpdateChannel)
	if err != nil {
		return fmt.Errorf("recompute worker subscribe: %w", err)
	}
	defer sub.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.runQueue(gctx)
		return nil
	})
	g.Go(func() error {
		return w.runSubscription(gctx, sub)
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

func (w *Worker) runQueue(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.log.Info("Queue loop stopped")
			return
		}
		ev, err := w.bus.Pop(ctx, w.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Warn("Queue pop failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.opts.PollTimeout):
			}
			continue
		}
		if ev == nil {
			continue
		}
		w.handle(ctx, ev)
	}
}

func (w *Worker) runSubscription(ctx context.Context, sub *kvstore.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return errors.New("recompute worker: subscription closed")
			}
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes high-priority invalidations and incremental
// updates immediately. Lower priorities are left to the durable queue, which
// producers write alongside every publish.
func (w *Worker) handleMessage(ctx context.Context, msg kvstore.Message) {
	switch msg.Channel {
	case kvstore.UpdateChannel:
		var up IncrementalMessage
		if err := json.Unmarshal([]byte(msg.Payload), &up); err != nil {
			w.log.Warn("Dropping malformed update message", "error", err)
			return
		}
		start := time.Now()
		err := w.safely(func() error { return w.ProcessIncremental(ctx, up) })
		w.observe(err, start)
	default:
		var ev types.InvalidationEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			w.log.Warn("Dropping malformed invalidation message", "error", err)
			return
		}
		if ev.Priority < types.PriorityHigh {
			return
		}
		w.handle(ctx, &ev)
	}
}

func (w *Worker) handle(ctx context.Context, ev *types.InvalidationEvent) {
	start := time.Now()
	err := w.safely(func() error { return w.Process(ctx, ev) })
	w.observe(err, start)
	if err != nil {
		w.log.Warn("Event processing failed", "user_id", ev.UserID, "event_type", ev.EventType, "error", err)
	}
}

func (w *Worker) observe(err error, start time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	w.metrics.ObserveWorkerEvent(result, time.Since(start))
}

// safely runs fn and turns a panic into an error.
func (w *Worker) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Recompute panic", "panic", r)
			err = errFromRecover(r)
		}
	}()
	return fn()
}

// Process refreshes one user's cache for ev. Redelivery is harmless: the
// cache write is last-writer-wins.
func (w *Worker) Process(ctx context.Context, ev *types.InvalidationEvent) (err error) {
	if ev == nil || ev.UserID <= 0 {
		return nil
	}
	ctx, span := observability.StartSpan(ctx, "worker.process",
		attribute.Int64("user_id", ev.UserID),
		attribute.String("event_type", ev.EventType),
	)
	defer func() { observability.EndSpan(span, err) }()

	if w.compute == nil {
		w.cache.Invalidate(ctx, ev.UserID)
		return nil
	}

	fresh, err := w.compute(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		return nil
	}

	affected := int64List(ev.ExtraData["affected_books"])
	switch {
	case boolValue(ev.ExtraData["incremental"]) && w.impact != nil:
		if old, ok := w.cache.Get(ctx, ev.UserID); ok {
			fresh = w.impact.IncrementalUpdate(old, affected, scoreMap(fresh), w.opts.Limit)
		}
	case ev.ExtraData["recompute_scope"] == types.ScopePartial && len(affected) > 0:
		fresh = w.cache.Merge(ctx, ev.UserID, fresh, affected)
	}
	if !w.cache.Set(ctx, ev.UserID, fresh) {
		return fmt.Errorf("cache write failed for user %d", ev.UserID)
	}
	w.log.Debug("Cache refreshed", "user_id", ev.UserID, "event_type", ev.EventType, "items", len(fresh))
	return nil
}

// ProcessIncremental blends fresh scores into the cached list for the books
// an interaction touched. Without a cached list it falls back to a full write.
func (w *Worker) ProcessIncremental(ctx context.Context, up IncrementalMessage) error {
	if up.UserID <= 0 {
		return nil
	}
	if w.compute == nil || w.impact == nil {
		w.cache.Invalidate(ctx, up.UserID)
		return nil
	}
	fresh, err := w.compute(ctx, up.UserID)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		return nil
	}
	if old, ok := w.cache.Get(ctx, up.UserID); ok {
		fresh = w.impact.IncrementalUpdate(old, up.AffectedBooks, scoreMap(fresh), w.opts.Limit)
	}
	if !w.cache.Set(ctx, up.UserID, fresh) {
		return fmt.Errorf("cache write failed for user %d", up.UserID)
	}
	return nil
}

// ProcessQueue drains at most batch events without blocking and returns how
// many were processed.
func (w *Worker) ProcessQueue(ctx context.Context, batch int) (int, error) {
	processed := 0
	for processed < batch {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ev, err := w.bus.Pop(ctx, 0)
		if err != nil {
			return processed, err
		}
		if ev == nil {
			break
		}
		w.handle(ctx, ev)
		processed++
	}
	return processed, nil
}

// IncrementalMessage is the payload published on the update channel.
type IncrementalMessage struct {
	UserID        int64   `json:"user_id"`
	EventType     string  `json:"event_type"`
	BookID        int64   `json:"book_id"`
	ActionType    string  `json:"action_type"`
	AffectedBooks []int64 `json:"affected_books"`
	Timestamp     string  `json:"timestamp"`
}

func scoreMap(recs []types.CachedRecommendation) map[int64]float64 {
	out := make(map[int64]float64, len(recs))
	for _, r := range recs {
		out[r.BookID] = r.Score
	}
	return out
}

// int64List reads an id list from decoded extra_data, where numbers arrive
// as float64.
func int64List(v any) []int64 {
	switch xs := v.(type) {
	case []int64:
		return xs
	case []any:
		out := make([]int64, 0, len(xs))
		for _, x := range xs {
			switch n := x.(type) {
			case float64:
				out = append(out, int64(n))
			case int64:
				out = append(out, n)
			case int:
				out = append(out, int64(n))
			}
		}
		return out
	}
	return nil
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
