package recs

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventRating           = "rating"
	EventCollect          = "collect"
	EventClick            = "click"
	EventSearch           = "search"
	EventNegativeFeedback = "negative_feedback"
	EventIncremental      = "incremental"
)

const (
	PriorityLow    = 1
	PriorityNormal = 2
	PriorityHigh   = 3
)

// InvalidationEvent is the wire record carried on the invalidation channel
// and its durable queue.
type InvalidationEvent struct {
	UserID    int64          `json:"user_id"`
	EventType string         `json:"event_type"`
	BookID    *int64         `json:"book_id"`
	Priority  int            `json:"priority"`
	Timestamp time.Time      `json:"-"`
	ExtraData map[string]any `json:"extra_data"`
}

type invalidationEventWire struct {
	UserID    int64          `json:"user_id"`
	EventType string         `json:"event_type"`
	BookID    *int64         `json:"book_id"`
	Priority  int            `json:"priority"`
	Timestamp string         `json:"timestamp"`
	ExtraData map[string]any `json:"extra_data"`
}

const wireTimeLayout = "2006-01-02T15:04:05.999999"

func (e InvalidationEvent) MarshalJSON() ([]byte, error) {
	extra := e.ExtraData
	if extra == nil {
		extra = map[string]any{}
	}
	return json.Marshal(invalidationEventWire{
		UserID:    e.UserID,
		EventType: e.EventType,
		BookID:    e.BookID,
		Priority:  e.Priority,
		Timestamp: e.Timestamp.Format(wireTimeLayout),
		ExtraData: extra,
	})
}

// UnmarshalJSON accepts ISO-8601 timestamps with or without a zone.
func (e *InvalidationEvent) UnmarshalJSON(raw []byte) error {
	var w invalidationEventWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	e.UserID = w.UserID
	e.EventType = w.EventType
	e.BookID = w.BookID
	e.Priority = w.Priority
	e.ExtraData = w.ExtraData
	e.Timestamp = time.Time{}
	if w.Timestamp != "" {
		ts, err := parseWireTime(w.Timestamp)
		if err != nil {
			return err
		}
		e.Timestamp = ts
	}
	return nil
}

func parseWireTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, wireTimeLayout, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid event timestamp %q", s)
}
