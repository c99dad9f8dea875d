// Package directory maintains the live directory: the public list of
// communities derived from approved submissions plus a static seed list.
//
// The Projection owns the only cached copy of that list. It is rebuilt from
// scratch on start, on every propagation bus event, on every change feed
// event, and on a periodic timer. The timer is the consistency backstop; the
// bus and the feed only shorten the delay. Reads never fail: when the store
// cannot be reached the last good list (or the seeds alone) is served.
package directory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-community-directory/internal/bus"
	"github.com/tbourn/go-community-directory/internal/domain"
)

// DefaultInterval is the default poll period.
const DefaultInterval = 20 * time.Second

var (
	// ErrStarted is returned by Start on a running projection.
	ErrStarted = errors.New("projection already started")

	recomputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_recomputes_total",
			Help: "Live directory recomputes by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	liveSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "directory_live_communities",
			Help: "Number of communities in the current live list.",
		},
	)

	lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "directory_last_success_timestamp_seconds",
			Help: "Unix time of the last successful recompute.",
		},
	)
)

func init() {
	prometheus.MustRegister(recomputes, liveSize, lastSuccess)
}

// Recompute triggers, used as metric labels.
const (
	TriggerStart = "start"
	TriggerBus   = "bus"
	TriggerFeed  = "feed"
	TriggerPoll  = "poll"
	TriggerRead  = "read"
)

// Source lists submissions by status, newest first.
// *services.SubmissionRepository satisfies it.
type Source interface {
	ListByStatus(ctx context.Context, status domain.Status) ([]domain.Submission, error)
}

// EventSource is an in-process event hub. *bus.Bus satisfies it.
type EventSource interface {
	Subscribe(h bus.Handler) (unsubscribe func())
}

// Listener streams change events from other processes until ctx ends.
// *changefeed.Redis satisfies it.
type Listener interface {
	Listen(ctx context.Context, h func(domain.Event)) error
}

// Callback receives a fresh copy of the live list.
type Callback func([]domain.LiveCommunity)

// Options configures a Projection. Zero values select defaults.
type Options struct {
	Source Source
	Seeds  []domain.LiveCommunity

	Events EventSource
	Feed   Listener

	Interval time.Duration
	Logger   *zerolog.Logger
}

// Projection is the live directory view.
type Projection struct {
	source   Source
	seeds    []domain.LiveCommunity
	events   EventSource
	feed     Listener
	interval time.Duration
	logger   zerolog.Logger

	// recomputeMu serializes recomputes so a later one always publishes later.
	recomputeMu sync.Mutex
	sf          singleflight.Group

	mu      sync.RWMutex
	list    []domain.LiveCommunity
	gen     uint64
	updated time.Time
	healthy bool

	subs   *xsync.MapOf[string, Callback]
	nextID atomic.Uint64

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	unsubEv func()
}

// New builds a Projection serving seeds until the first recompute.
func New(opts Options) *Projection {
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	seeds := make([]domain.LiveCommunity, len(opts.Seeds))
	for i, s := range opts.Seeds {
		s.Seed = true
		seeds[i] = s.Sanitized()
	}
	return &Projection{
		source:   opts.Source,
		seeds:    seeds,
		events:   opts.Events,
		feed:     opts.Feed,
		interval: opts.Interval,
		logger:   l.With().Str("component", "directory").Logger(),
		list:     merge(nil, seeds),
		subs:     xsync.NewMapOf[Callback](),
	}
}

// Start runs the first recompute, subscribes to the bus and the change feed,
// and starts the poll timer. A failed first recompute is logged, not returned:
// the projection serves seeds and keeps polling.
func (p *Projection) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return ErrStarted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})

	_ = p.recompute(ctx, TriggerStart)

	if p.events != nil {
		p.unsubEv = p.events.Subscribe(func(ev domain.Event) {
			_ = p.recompute(runCtx, TriggerBus)
		})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.poll(runCtx)
	}()
	if p.feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.listen(runCtx)
		}()
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()
	return nil
}

// Stop unsubscribes from the bus, halts the timer and the feed listener, and
// waits for them to exit. Stop on a stopped projection is a no-op.
func (p *Projection) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel == nil {
		return
	}
	if p.unsubEv != nil {
		p.unsubEv()
		p.unsubEv = nil
	}
	p.cancel()
	<-p.done
	p.cancel = nil
}

// GetLiveCommunities recomputes and returns the live list. Concurrent callers
// share one recompute. It never fails: on store errors it returns the last
// good list, or the seeds if nothing was computed yet.
func (p *Projection) GetLiveCommunities(ctx context.Context) []domain.LiveCommunity {
	// The shared recompute must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	_, _, _ = p.sf.Do("live", func() (any, error) {
		return nil, p.recompute(shared, TriggerRead)
	})
	return p.Snapshot()
}

// Snapshot returns a copy of the cached list without touching the store.
func (p *Projection) Snapshot() []domain.LiveCommunity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clone(p.list)
}

// Generation increases by one whenever a recompute changes the list. Handlers
// use it to build ETags.
func (p *Projection) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gen
}

// Status reports when the list was last rebuilt and whether the last attempt
// reached the store.
func (p *Projection) Status() (updated time.Time, healthy bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updated, p.healthy
}

// Subscribe delivers the current list to cb right away and again after every
// successful recompute. cb runs on the recomputing goroutine and must not
// call Recompute or GetLiveCommunities.
func (p *Projection) Subscribe(cb Callback) (unsubscribe func()) {
	if cb == nil {
		return func() {}
	}
	key := strconv.FormatUint(p.nextID.Add(1), 10)

	// Holding recomputeMu keeps a concurrent recompute from slipping between
	// the initial delivery and registration.
	p.recomputeMu.Lock()
	p.call(key, cb, p.Snapshot())
	p.subs.Store(key, cb)
	p.recomputeMu.Unlock()

	return func() { p.subs.Delete(key) }
}

// Recompute rebuilds the list now and reports the store error, if any.
func (p *Projection) Recompute(ctx context.Context) error {
	return p.recompute(ctx, TriggerRead)
}

func (p *Projection) recompute(ctx context.Context, trigger string) error {
	ctx, span := otel.Tracer("directory/Projection").Start(ctx, "recompute",
		trace.WithAttributes(attribute.String("trigger", trigger)),
	)
	defer span.End()

	p.recomputeMu.Lock()
	defer p.recomputeMu.Unlock()

	if p.source == nil {
		recomputes.WithLabelValues(trigger, "skipped").Inc()
		return nil
	}

	approved, err := p.source.ListByStatus(ctx, domain.StatusApproved)
	if err != nil {
		span.RecordError(err)
		recomputes.WithLabelValues(trigger, "error").Inc()
		p.mu.Lock()
		p.healthy = false
		p.mu.Unlock()
		p.logger.Warn().Err(err).Str("trigger", trigger).Msg("live directory recompute failed, serving last good list")
		return err
	}

	next := merge(approved, p.seeds)
	now := time.Now().UTC()

	p.mu.Lock()
	if !sameList(p.list, next) {
		p.gen++
	}
	p.list = next
	p.updated = now
	p.healthy = true
	p.mu.Unlock()

	recomputes.WithLabelValues(trigger, "ok").Inc()
	liveSize.Set(float64(len(next)))
	lastSuccess.Set(float64(now.Unix()))
	span.SetAttributes(attribute.Int("live.count", len(next)))

	p.subs.Range(func(key string, cb Callback) bool {
		p.call(key, cb, clone(next))
		return true
	})
	return nil
}

func (p *Projection) call(key string, cb Callback, list []domain.LiveCommunity) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Str("subscriber", key).Msg("directory subscriber panicked")
		}
	}()
	cb(list)
}

func (p *Projection) poll(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = p.recompute(ctx, TriggerPoll)
		}
	}
}

// listen keeps the change feed attached, reconnecting with a capped backoff.
func (p *Projection) listen(ctx context.Context) {
	backoff := time.Second
	for {
		err := p.feed.Listen(ctx, func(domain.Event) {
			_ = p.recompute(ctx, TriggerFeed)
		})
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("change feed disconnected")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < p.interval {
			backoff *= 2
		}
	}
}

// merge builds the public list: approved submissions first, in the order the
// source returned them (newest first), then seeds in their fixed order. An id
// appears once; a store record shadows a seed with the same id.
func merge(approved []domain.Submission, seeds []domain.LiveCommunity) []domain.LiveCommunity {
	out := make([]domain.LiveCommunity, 0, len(approved)+len(seeds))
	seen := make(map[string]struct{}, cap(out))
	for _, s := range approved {
		if s.Status != domain.StatusApproved {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s.Public())
	}
	for _, s := range seeds {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s.Sanitized())
	}
	return out
}

// sameList reports whether a and b hold the same communities in the same order.
func sameList(a, b []domain.LiveCommunity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if !x.CreatedAt.Equal(y.CreatedAt) || !samePrice(x.PriceInR, y.PriceInR) {
			return false
		}
		x.CreatedAt, y.CreatedAt = time.Time{}, time.Time{}
		x.PriceInR, y.PriceInR = nil, nil
		if x != y {
			return false
		}
	}
	return true
}

func samePrice(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clone(in []domain.LiveCommunity) []domain.LiveCommunity {
	out := make([]domain.LiveCommunity, len(in))
	for i, c := range in {
		if c.PriceInR != nil {
			v := *c.PriceInR
			c.PriceInR = &v
		}
		out[i] = c
	}
	return out
}
