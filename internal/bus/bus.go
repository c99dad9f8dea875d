// Package bus is a process-local publish/subscribe hub for submission change
// signals. It exists so that readers in the same process (the live directory
// projection, websocket pushes) react right after an admin action instead of
// waiting for the next poll. The poll stays the consistency backstop: nothing
// here is persisted, replayed, or guaranteed.
//
// Publish delivers synchronously on the caller's goroutine. A handler that
// panics is recovered and logged, and delivery continues to the remaining
// handlers.
package bus

import (
	"strconv"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-community-directory/internal/domain"
)

// Handler receives published events.
type Handler func(domain.Event)

// Bus fans events out to the handlers subscribed at publish time.
// The zero value is not usable; construct with New.
type Bus struct {
	subs   *xsync.MapOf[string, Handler]
	nextID atomic.Uint64
	logger zerolog.Logger
}

// New returns an empty bus. Pass zerolog.Nop() to silence handler panics.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   xsync.NewMapOf[Handler](),
		logger: logger.With().Str("component", "bus").Logger(),
	}
}

// NewDefault returns a bus that logs through the global zerolog logger.
func NewDefault() *Bus { return New(log.Logger) }

// Subscribe registers h and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	key := strconv.FormatUint(b.nextID.Add(1), 10)
	b.subs.Store(key, h)
	return func() { b.subs.Delete(key) }
}

// Publish hands ev to every current subscriber. With no subscribers it does
// nothing.
func (b *Bus) Publish(ev domain.Event) {
	b.subs.Range(func(key string, h Handler) bool {
		b.deliver(key, h, ev)
		return true
	})
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int { return b.subs.Size() }

func (b *Bus) deliver(key string, h Handler, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("subscriber", key).
				Str("event", string(ev.Type)).
				Str("submission_id", ev.ID).
				Msg("bus handler panicked")
		}
	}()
	h(ev)
}
