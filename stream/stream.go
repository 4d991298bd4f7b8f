// Package stream carries analysis progress from workers to HTTP clients
// through a Redis stream per job.
//
// Workers append entries with Publisher; the API relays them as
// Server-Sent Events with Listen and FormatSSE. Every entry has two fields:
// type (status, delta, done or error) and payload (a JSON object).
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	EventStatus = "status"
	EventDelta  = "delta"
	EventDone   = "done"
	EventError  = "error"
)

// StartID reads a stream from its first entry.
const StartID = "0-0"

// Read defaults.
const (
	DefaultBlock = 5 * time.Second
	DefaultCount = 10
)

// Key returns the Redis key of the stream of jobID.
func Key(jobID string) string {
	return "analysis:stream:" + jobID
}

// Event is one stream entry.
type Event struct {
	ID      string
	Type    string
	Payload json.RawMessage
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Publisher appends events to job streams.
type Publisher struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithTTL expires a stream ttl after its last event. Zero keeps streams.
func WithTTL(ttl time.Duration) PublisherOption {
	return func(p *Publisher) { p.ttl = ttl }
}

// NewPublisher returns a Publisher writing through rdb.
func NewPublisher(rdb redis.Cmdable, opts ...PublisherOption) *Publisher {
	p := &Publisher{rdb: rdb}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish XADDs an event of eventType with data encoded as JSON. A nil data
// is published as an empty object.
func (p *Publisher) Publish(ctx context.Context, jobID, eventType string, data any) error {
	if data == nil {
		data = struct{}{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	key := Key(jobID)
	if err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: []any{"type", eventType, "payload", string(payload)},
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event to %s: %w", eventType, key, err)
	}

	if p.ttl > 0 {
		if err := p.rdb.Expire(ctx, key, p.ttl).Err(); err != nil {
			return fmt.Errorf("failed to set ttl on %s: %w", key, err)
		}
	}
	return nil
}

// Reader reads job streams.
type Reader struct {
	rdb   redis.Cmdable
	block time.Duration
	count int64
}

// NewReader returns a Reader blocking DefaultBlock per read and returning at
// most DefaultCount entries.
func NewReader(rdb redis.Cmdable) *Reader {
	return &Reader{rdb: rdb, block: DefaultBlock, count: DefaultCount}
}

// Read returns the entries after lastID, waiting up to the block time for
// new ones. An empty result with a nil error means the wait timed out. The
// returned ID is where the next Read should continue.
func (r *Reader) Read(ctx context.Context, jobID, lastID string) ([]Event, string, error) {
	res, err := r.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{Key(jobID), lastID},
		Count:   r.count,
		Block:   r.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, fmt.Errorf("failed to read %s: %w", Key(jobID), err)
	}

	var events []Event
	for _, s := range res {
		for _, msg := range s.Messages {
			lastID = msg.ID
			events = append(events, decode(msg))
		}
	}
	return events, lastID, nil
}

func decode(msg redis.XMessage) Event {
	ev := Event{ID: msg.ID}
	if t, ok := msg.Values["type"].(string); ok {
		ev.Type = t
	}
	if p, ok := msg.Values["payload"].(string); ok && json.Valid([]byte(p)) {
		ev.Payload = json.RawMessage(p)
	} else {
		ev.Payload = json.RawMessage("{}")
	}
	return ev
}

// Listen delivers every event of jobID to fn, starting from the beginning
// of the stream, until a terminal event has been delivered. It returns nil
// after a terminal event, the first error from fn, or the context error.
func (r *Reader) Listen(ctx context.Context, jobID string, fn func(Event) error) error {
	lastID := StartID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, next, err := r.Read(ctx, jobID, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		lastID = next

		for _, ev := range events {
			if err := fn(ev); err != nil {
				return err
			}
			if ev.Terminal() {
				return nil
			}
		}
	}
}
