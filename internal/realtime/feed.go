// Package realtime fans table change events out over Redis pub/sub. Delivery
// is at-most-once: a subscriber that reconnects does not get missed events.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

type ChangeEvent struct {
	Type            string          `json:"eventType"`
	Table           string          `json:"table"`
	New             json.RawMessage `json:"new,omitempty"`
	Old             json.RawMessage `json:"old,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// NewChangeEvent encodes the row images of one change. A nil row is omitted.
func NewChangeEvent(table, eventType string, newRow, oldRow any, at time.Time) (ChangeEvent, error) {
	ev := ChangeEvent{Type: eventType, Table: table, CommitTimestamp: at.UTC()}
	var err error
	if newRow != nil {
		if ev.New, err = json.Marshal(newRow); err != nil {
			return ChangeEvent{}, err
		}
	}
	if oldRow != nil {
		if ev.Old, err = json.Marshal(oldRow); err != nil {
			return ChangeEvent{}, err
		}
	}
	return ev, nil
}

type Publisher interface {
	Publish(ctx context.Context, table, eventType string, newRow, oldRow any) error
}

// Stream delivers the events published after it was opened.
type Stream interface {
	Events() <-chan ChangeEvent
	Close() error
}

type Feed struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewFeed(rdb *redis.Client, prefix string) *Feed {
	return &Feed{rdb: rdb, prefix: prefix, now: time.Now}
}

func (f *Feed) Channel(table string) string { return f.prefix + "changes:" + table }

func (f *Feed) Publish(ctx context.Context, table, eventType string, newRow, oldRow any) error {
	ev, err := NewChangeEvent(table, eventType, newRow, oldRow, f.now())
	if err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.Channel(table), b).Err()
}

type subscription struct {
	ps     *redis.PubSub
	events chan ChangeEvent
}

// Subscribe listens on table's channel until ctx ends or Close is called.
// Malformed payloads are skipped.
func (f *Feed) Subscribe(ctx context.Context, table string) (Stream, error) {
	ps := f.rdb.Subscribe(ctx, f.Channel(table))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	s := &subscription{ps: ps, events: make(chan ChangeEvent, 64)}
	go func() {
		defer close(s.events)
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case s.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return s, nil
}

func (s *subscription) Events() <-chan ChangeEvent { return s.events }

func (s *subscription) Close() error { return s.ps.Close() }
