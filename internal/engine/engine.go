// Package engine is the central limit order-matching engine for
// tokenized-invoice trading pairs: validation, price-time-priority
// matching, trade emission, market statistics, and periodic expiry/
// cleanup sweeps, all serialized behind a single mutex per the "global
// mutex covering the matching-critical section" discipline the spec
// allows as an alternative to a single-worker queue. Grounded on the
// teacher's engine.Engine (internal/engine/engine.go,
// internal/engine/orderbook.go), generalized from one asset type to
// many trading pairs and from a stubbed Trade() callback to full
// matching, rejection, stop-order and expiry handling.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"invoiceswap/internal/book"
	"invoiceswap/internal/clock"
	"invoiceswap/internal/common"
	"invoiceswap/internal/sink"
	"invoiceswap/internal/stats"
)

// Default tuning knobs, overridable via Option.
const (
	DefaultSweepInterval   = 60 * time.Second
	DefaultTradeRingSize   = 1000
	DefaultQueryDepth      = 20
	DefaultBookDebounce    = 50 * time.Millisecond
	DefaultStatsDebounce   = time.Second
	DefaultTradeRetention  = 24 * time.Hour
	DefaultPairTradeCap    = 10000
)

// Option configures an Engine at construction time, in the manner of the
// teacher's variadic engine.New(supportedAssets ...AssetType) constructor,
// generalized into functional options since the new Engine has more than
// one independent knob.
type Option func(*Engine)

// WithClock injects a clock, making matching and expiry deterministic in
// tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSweepInterval overrides the expiry/cleanup sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweepInterval = d }
}

// WithTradeRingSize overrides the bounded engine-wide recent-trade ring.
func WithTradeRingSize(n int) Option {
	return func(e *Engine) { e.tradeRingSize = n }
}

// WithWriteBehind installs optional durable-logging hooks. The engine
// never reads these back; restart recovery is the caller's problem (spec
// §1 non-goals, §6 "optional write-behind hook").
func WithWriteBehind(onOrder func(common.Order), onTrade func(common.Trade)) Option {
	return func(e *Engine) {
		e.onOrderAccepted = onOrder
		e.onTrade = onTrade
	}
}

// Engine owns every book, trade history and statistics table for its
// lifetime; callers never hold a reference into engine-internal state.
type Engine struct {
	mu sync.Mutex

	clock clock.Clock
	sink  *sink.Sink

	books map[string]*book.OrderBook
	stops map[string]*stopIndex
	stats map[string]*stats.PairStats

	orders       map[uint64]*common.Order
	ordersByUser map[string]map[uint64]struct{}

	tradeHistory map[string]*tradeRing
	recentTrades *tradeRing // engine-wide ring, default N=1000

	nextOrderID atomic.Uint64
	nextTradeID atomic.Uint64

	bookDebounce  *debouncer
	statsDebounce *debouncer

	sweepInterval time.Duration
	tradeRingSize int

	onOrderAccepted func(common.Order)
	onTrade         func(common.Trade)

	t       tomb.Tomb
	started bool
	stopped bool
}

// New constructs an Engine. Pairs are created lazily on first valid
// submission (spec §7: pair_unknown is reserved for cancel/query against
// pairs that were never created).
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:         clock.Real{},
		sink:          sink.New(),
		books:         make(map[string]*book.OrderBook),
		stops:         make(map[string]*stopIndex),
		stats:         make(map[string]*stats.PairStats),
		orders:        make(map[uint64]*common.Order),
		ordersByUser:  make(map[string]map[uint64]struct{}),
		tradeHistory:  make(map[string]*tradeRing),
		sweepInterval: DefaultSweepInterval,
		tradeRingSize: DefaultTradeRingSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.recentTrades = newTradeRing(e.tradeRingSize)
	e.bookDebounce = newDebouncer(DefaultBookDebounce)
	e.statsDebounce = newDebouncer(DefaultStatsDebounce)
	return e
}

// Sink exposes the event fan-out layer so a transport (e.g. a websocket
// gateway) can subscribe external connections to engine channels.
func (e *Engine) Sink() *sink.Sink { return e.sink }

// Start launches the supervised background sweep. Submissions are
// accepted before Start is called too; Start only governs the periodic
// sweep goroutine's lifecycle (spec §6: "lifecycle is start -> run ->
// stop").
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.t.Go(func() error {
		return e.sweepLoop(ctx)
	})
	log.Info().Msg("matching engine started")
}

// Stop drains in-flight submissions (by taking the engine lock), emits a
// final engine_shutdown event, and refuses any submission made afterward.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	started := e.started
	e.mu.Unlock()

	if started {
		e.t.Kill(nil)
		_ = e.t.Wait()
	}

	e.bookDebounce.stop()
	e.statsDebounce.stop()

	e.sink.Broadcast(tradingUpdatesChannel, "engine_shutdown", nil)
	e.sink.Shutdown()
	log.Info().Msg("matching engine stopped")
}

func (e *Engine) bookFor(pair string) *book.OrderBook {
	b, ok := e.books[pair]
	if !ok {
		b = book.New(pair)
		e.books[pair] = b
		e.stops[pair] = newStopIndex()
		e.stats[pair] = stats.New(pair)
		e.tradeHistory[pair] = newTradeRing(DefaultPairTradeCap)
	}
	return b
}

func (e *Engine) statsFor(pair string) *stats.PairStats {
	return e.stats[pair]
}

func (e *Engine) stopsFor(pair string) *stopIndex {
	return e.stops[pair]
}

func (e *Engine) registerOrder(o *common.Order) {
	e.orders[o.ID] = o
	set, ok := e.ordersByUser[o.Submitter]
	if !ok {
		set = make(map[uint64]struct{})
		e.ordersByUser[o.Submitter] = set
	}
	set[o.ID] = struct{}{}
}

func (e *Engine) nextOrder() uint64 { return e.nextOrderID.Add(1) }
func (e *Engine) nextTrade() uint64 { return e.nextTradeID.Add(1) }
