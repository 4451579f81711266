package engine

import (
	"context"
	"time"

	"invoiceswap/internal/book"
	"invoiceswap/internal/common"
)

// sweepLoop runs the periodic expiry/cleanup task (spec §4.1 "Expiry",
// §5 "Timers"): it takes the same lock as submissions and stops between
// sweeps on ctx cancellation or tomb death; a sweep in progress stops
// between pairs once the tomb is dying, leaving the book consistent. Grounded on the teacher's tomb-supervised background
// goroutines (internal/worker.go).
func (e *Engine) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.t.Dying():
			return nil
		case <-ticker.C:
			e.sweep()
		}
	}
}

// RunSweepForTest runs one sweep pass synchronously, for tests that want to
// assert expiry/cleanup behavior without waiting on the real ticker.
func (e *Engine) RunSweepForTest() {
	e.sweep()
}

// sweep expires due GTD resting orders and trims trade history beyond
// retention. Each pair is handled as one self-contained unit so an
// interruption between pairs leaves every already-processed pair
// consistent.
func (e *Engine) sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	cutoff := now.Add(-DefaultTradeRetention)

	for pair, ob := range e.books {
		select {
		case <-e.t.Dying():
			return
		default:
		}

		e.expireResting(ob, pair, now)
		e.expireStops(pair, now)

		if history, ok := e.tradeHistory[pair]; ok {
			history.evictOlderThan(cutoff)
		}
	}
	e.recentTrades.evictOlderThan(cutoff)
}

func (e *Engine) expireResting(ob *book.OrderBook, pair string, now time.Time) {
	for _, o := range ob.ExpiredBefore(now) {
		ob.Remove(o.ID)
		o.Status = common.Expired
		e.emitOrderCancelled(o, common.ReasonExpired)
		e.emitBookUpdate(pair)
	}
}

func (e *Engine) expireStops(pair string, now time.Time) {
	idx, ok := e.stops[pair]
	if !ok {
		return
	}
	for _, o := range idx.expiredBefore(now) {
		idx.remove(o.ID)
		o.Status = common.Expired
		e.emitOrderCancelled(o, common.ReasonExpired)
	}
}
