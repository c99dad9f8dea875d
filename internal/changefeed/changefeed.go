// Package changefeed carries submission change events between processes.
// Several service instances (and the operator CLI) share one store; each
// instance's live directory listens here so it can refresh as soon as any
// instance writes, instead of waiting for its poll.
//
// Events are Redis pub/sub messages: fire-and-forget, no replay. Missing one
// is harmless because the poll re-derives everything.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-community-directory/internal/domain"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "community-directory:submissions"

// Feed publishes and consumes change events.
type Feed interface {
	Notify(ctx context.Context, ev domain.Event) error
	Listen(ctx context.Context, h func(domain.Event)) error
	Close() error
}

// message is the wire form of an event.
type message struct {
	Type   domain.EventType `json:"type"`
	ID     string           `json:"id"`
	Origin string           `json:"origin,omitempty"`
	At     time.Time        `json:"at"`
}

// Redis is a Feed over Redis pub/sub.
type Redis struct {
	client  *redis.Client
	channel string
	origin  string
}

// NewRedis connects to the Redis server at url (redis://...) and verifies the
// connection with PING. origin tags outgoing messages for diagnostics.
func NewRedis(ctx context.Context, url, channel, origin string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(client, channel, origin), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, channel, origin string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel, origin: origin}
}

// Notify publishes ev.
func (r *Redis) Notify(ctx context.Context, ev domain.Event) error {
	b, err := json.Marshal(message{Type: ev.Type, ID: ev.ID, Origin: r.origin, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Listen subscribes and calls h for every event until ctx ends or the
// subscription breaks. Malformed payloads are logged and skipped.
func (r *Redis) Listen(ctx context.Context, h func(domain.Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so callers know we are live.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("change feed closed")
			}
			ev, err := Decode([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Str("channel", r.channel).Msg("dropping malformed change event")
				continue
			}
			h(ev)
		}
	}
}

// Close releases the Redis client.
func (r *Redis) Close() error { return r.client.Close() }

// Decode parses a wire message.
func Decode(b []byte) (domain.Event, error) {
	var m message
	if err := json.Unmarshal(b, &m); err != nil {
		return domain.Event{}, err
	}
	if m.Type == "" || m.ID == "" {
		return domain.Event{}, errors.New("change event missing type or id")
	}
	return domain.Event{Type: m.Type, ID: m.ID}, nil
}

// Nop is a Feed that drops notifications and listens until ctx ends. It is
// used when no Redis URL is configured.
type Nop struct{}

func (Nop) Notify(context.Context, domain.Event) error { return nil }

func (Nop) Listen(ctx context.Context, _ func(domain.Event)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (Nop) Close() error { return nil }

var (
	_ Feed = (*Redis)(nil)
	_ Feed = Nop{}
)
