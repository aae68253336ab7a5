package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

// EventBus publishes invalidation events. Every emitted event lands on a
// durable two-lane queue; priority 3 goes to the high lane, which consumers
// always drain first. Producers LPUSH and consumers pop from the right, so
// each lane is FIFO.
type EventBus interface {
	// Publish reports whether the event was accepted. Clicks below the
	// threshold are accepted without being emitted.
	Publish(ctx context.Context, userID int64, eventType string, bookID *int64, priority int, extra map[string]any) bool
	PublishIncremental(ctx context.Context, userID, bookID int64, action string, affected []int64) bool
	Enqueue(ctx context.Context, ev *types.InvalidationEvent) error
	// Pop returns the next event, or nil when both lanes are empty. A zero
	// timeout does not block.
	Pop(ctx context.Context, timeout time.Duration) (*types.InvalidationEvent, error)
	PendingCount(ctx context.Context) (int64, error)
	LaneDepths(ctx context.Context) (map[string]int64, error)
}

type EventBusOptions struct {
	ClickThreshold int
	ClickWindow    time.Duration
}

type eventBus struct {
	kv      kvstore.Store
	log     *logger.Logger
	metrics *observability.Metrics
	opts    EventBusOptions
	now     func() time.Time
}

func NewEventBus(kv kvstore.Store, baseLog *logger.Logger, metrics *observability.Metrics, opts EventBusOptions) EventBus {
	if opts.ClickThreshold <= 0 {
		opts.ClickThreshold = 3
	}
	if opts.ClickWindow <= 0 {
		opts.ClickWindow = time.Hour
	}
	return &eventBus{
		kv:      kv,
		log:     baseLog.With("service", "EventBus"),
		metrics: metrics,
		opts:    opts,
		now:     time.Now,
	}
}

func laneFor(priority int) string {
	if priority >= types.PriorityHigh {
		return kvstore.LaneHigh
	}
	return kvstore.LaneNormal
}

func laneKeys() []string {
	return []string{
		kvstore.QueueKey(kvstore.InvalidationChannel, kvstore.LaneHigh),
		kvstore.QueueKey(kvstore.InvalidationChannel, kvstore.LaneNormal),
	}
}

func (b *eventBus) Publish(ctx context.Context, userID int64, eventType string, bookID *int64, priority int, extra map[string]any) bool {
	if priority < types.PriorityLow {
		priority = types.PriorityLow
	}
	if priority > types.PriorityHigh {
		priority = types.PriorityHigh
	}
	ev := &types.InvalidationEvent{
		UserID:    userID,
		EventType: eventType,
		BookID:    bookID,
		Priority:  priority,
		Timestamp: b.now(),
		ExtraData: map[string]any{},
	}
	for k, v := range extra {
		ev.ExtraData[k] = v
	}
	if _, ok := ev.ExtraData["event_id"]; !ok {
		ev.ExtraData["event_id"] = uuid.NewString()
	}

	if eventType == types.EventClick {
		if !b.clickReachedThreshold(ctx, userID, bookID) {
			b.metrics.IncEventCoalesced()
			return true
		}
		return b.Enqueue(ctx, ev) == nil
	}

	queued := b.Enqueue(ctx, ev) == nil
	published := b.publish(ctx, kvstore.InvalidationChannel, ev)
	return queued || published
}

// clickReachedThreshold counts clicks per book in a one-hour hash. The
// increment, expiry and reset at the threshold run as one atomic script. A
// store error counts as reached.
func (b *eventBus) clickReachedThreshold(ctx context.Context, userID int64, bookID *int64) bool {
	field := "total"
	if bookID != nil {
		field = strconv.FormatInt(*bookID, 10)
	}
	_, reached, err := b.kv.HIncrByThreshold(ctx, kvstore.ClickCountKey(userID), field, int64(b.opts.ClickThreshold), b.opts.ClickWindow)
	if err != nil {
		b.log.Warn("Click count failed, invalidating", "user_id", userID, "error", err)
		return true
	}
	return reached
}

func (b *eventBus) Enqueue(ctx context.Context, ev *types.InvalidationEvent) error {
	if ev == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	lane := laneFor(ev.Priority)
	if err := b.kv.LPush(ctx, kvstore.QueueKey(kvstore.InvalidationChannel, lane), string(raw)); err != nil {
		b.log.Warn("Event enqueue failed", "user_id", ev.UserID, "event_type", ev.EventType, "lane", lane, "error", err)
		return err
	}
	b.metrics.IncEventPublished(ev.EventType, "queue_"+lane)
	b.log.Debug("Event enqueued", "user_id", ev.UserID, "event_type", ev.EventType, "lane", lane)
	return nil
}

func (b *eventBus) publish(ctx context.Context, channel string, v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		b.log.Warn("Event encode failed", "channel", channel, "error", err)
		return false
	}
	if err := b.kv.Publish(ctx, channel, raw); err != nil {
		b.log.Warn("Event publish failed", "channel", channel, "error", err)
		return false
	}
	return true
}

func (b *eventBus) PublishIncremental(ctx context.Context, userID, bookID int64, action string, affected []int64) bool {
	if affected == nil {
		affected = []int64{}
	}
	ok := b.publish(ctx, kvstore.UpdateChannel, map[string]any{
		"user_id":        userID,
		"event_type":     types.EventIncremental,
		"book_id":        bookID,
		"action_type":    action,
		"affected_books": affected,
		"timestamp":      b.now().Format("2006-01-02T15:04:05.999999"),
	})
	if ok {
		b.metrics.IncEventPublished(types.EventIncremental, "pubsub")
	}
	return ok
}

func (b *eventBus) Pop(ctx context.Context, timeout time.Duration) (*types.InvalidationEvent, error) {
	var raw string
	if timeout <= 0 {
		for _, key := range laneKeys() {
			v, err := b.kv.RPop(ctx, key)
			if errors.Is(err, kvstore.ErrMiss) {
				continue
			}
			if err != nil {
				return nil, err
			}
			raw = v
			break
		}
		if raw == "" {
			return nil, nil
		}
	} else {
		_, v, err := b.kv.BRPop(ctx, timeout, laneKeys()...)
		if errors.Is(err, kvstore.ErrMiss) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		raw = v
	}

	var ev types.InvalidationEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		b.log.Warn("Dropping malformed queued event", "error", err)
		return nil, nil
	}
	return &ev, nil
}

func (b *eventBus) LaneDepths(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	for _, lane := range []string{kvstore.LaneHigh, kvstore.LaneNormal} {
		n, err := b.kv.LLen(ctx, kvstore.QueueKey(kvstore.InvalidationChannel, lane))
		if err != nil {
			return nil, err
		}
		out[lane] = n
	}
	return out, nil
}

func (b *eventBus) PendingCount(ctx context.Context) (int64, error) {
	depths, err := b.LaneDepths(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range depths {
		total += n
	}
	return total, nil
}
