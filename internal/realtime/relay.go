package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-study/internal/content"
)

// DefaultChannel is the Redis channel events are relayed on.
const DefaultChannel = "study:events"

const publishTimeout = 3 * time.Second

// envelope is the message published on the channel. Origin lets a
// process ignore its own events.
type envelope struct {
	Origin string            `json:"origin"`
	Event  content.EventKind `json:"event"`
}

// Relay publishes local events to Redis and delivers events published by
// other processes to a local handler.
type Relay struct {
	client  redis.UniversalClient
	channel string
	origin  string

	wg sync.WaitGroup
}

// NewRelay creates a relay on channel, or DefaultChannel.
func NewRelay(client redis.UniversalClient, channel string) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel, origin: uuid.NewString()}
}

// Forward publishes ev on its own goroutine. Suitable as a store
// subscriber; a failed publish is logged.
func (r *Relay) Forward(ev content.Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := r.Publish(ctx, ev); err != nil {
			slog.Warn("event relay publish failed", "event", ev.Kind, "error", err)
		}
	}()
}

// Publish sends ev to the channel.
func (r *Relay) Publish(ctx context.Context, ev content.Event) error {
	data, err := json.Marshal(envelope{Origin: r.origin, Event: ev.Kind})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Run subscribes to the channel and calls handle for every event from
// another process until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, handle func(content.Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	slog.Info("event relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, remote := r.decode(msg.Payload)
			if remote {
				handle(ev)
			}
		}
	}
}

// Wait blocks until in-flight publishes finish or ctx is done.
func (r *Relay) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) decode(payload string) (content.Event, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		slog.Warn("ignoring malformed relay message", "error", err)
		return content.Event{}, false
	}
	if env.Origin == r.origin {
		return content.Event{}, false
	}
	switch env.Event {
	case content.FoldersChanged, content.MaterialsChanged:
		return content.Event{Kind: env.Event}, true
	default:
		slog.Warn("ignoring unknown relay event", "event", env.Event)
		return content.Event{}, false
	}
}
