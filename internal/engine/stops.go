package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"invoiceswap/internal/common"
)

// stopIndex holds pending STOP and STOP_LIMIT orders for one pair,
// separate from the resting order book (spec §4.1: "Held in a separate
// per-pair triggered-price index").
type stopIndex struct {
	buy  []*common.Order
	sell []*common.Order
}

func newStopIndex() *stopIndex {
	return &stopIndex{}
}

func (s *stopIndex) insert(o *common.Order) {
	if o.Side == common.Buy {
		s.buy = append(s.buy, o)
	} else {
		s.sell = append(s.sell, o)
	}
}

func (s *stopIndex) remove(id uint64) bool {
	for i, o := range s.buy {
		if o.ID == id {
			s.buy = append(s.buy[:i], s.buy[i+1:]...)
			return true
		}
	}
	for i, o := range s.sell {
		if o.ID == id {
			s.sell = append(s.sell[:i], s.sell[i+1:]...)
			return true
		}
	}
	return false
}

func (s *stopIndex) contains(id uint64) bool {
	for _, o := range s.buy {
		if o.ID == id {
			return true
		}
	}
	for _, o := range s.sell {
		if o.ID == id {
			return true
		}
	}
	return false
}

// pullTriggered pulls out (and removes) every stop whose condition the
// last trade price satisfies: BUY stops trigger when last price >= stop
// price, SELL stops trigger when last price <= stop price (spec §4.1).
func (s *stopIndex) pullTriggered(lastPrice decimal.Decimal) []*common.Order {
	var fired []*common.Order

	keepBuy := s.buy[:0:0]
	for _, o := range s.buy {
		if lastPrice.GreaterThanOrEqual(o.StopPrice) {
			fired = append(fired, o)
		} else {
			keepBuy = append(keepBuy, o)
		}
	}
	s.buy = keepBuy

	keepSell := s.sell[:0:0]
	for _, o := range s.sell {
		if lastPrice.LessThanOrEqual(o.StopPrice) {
			fired = append(fired, o)
		} else {
			keepSell = append(keepSell, o)
		}
	}
	s.sell = keepSell

	return fired
}

// expiredBefore returns every GTD stop/stop-limit whose expiry is at or
// before now, across both sides, without removing them (the caller removes
// by id after the scan).
func (s *stopIndex) expiredBefore(now time.Time) []*common.Order {
	var expired []*common.Order
	for _, o := range s.buy {
		if o.TimeInForce == common.GTD && !o.ExpiresAt.After(now) {
			expired = append(expired, o)
		}
	}
	for _, o := range s.sell {
		if o.TimeInForce == common.GTD && !o.ExpiresAt.After(now) {
			expired = append(expired, o)
		}
	}
	return expired
}

// runTriggeredStops evaluates pending stops for pair against the latest
// trade price and matches any that fire. Firing can itself produce trades
// that trigger further stops, so this loops until a pass fires nothing
// (cascading stops, a natural extension the spec's S5 scenario implies).
func (e *Engine) runTriggeredStops(pair string) {
	idx, ok := e.stops[pair]
	if !ok {
		return
	}
	snap := e.statsFor(pair).Snapshot(e.clock.Now())
	if snap.LastPrice.IsZero() {
		return
	}

	for {
		fired := idx.pullTriggered(snap.LastPrice)
		if len(fired) == 0 {
			return
		}
		for _, o := range fired {
			e.activateStop(pair, o)
		}
		// a trigger may have produced new trades; refresh lastPrice.
		snap = e.statsFor(pair).Snapshot(e.clock.Now())
	}
}

// activateStop converts a triggered STOP into a MARKET order and a
// triggered STOP_LIMIT into a LIMIT order at its stored limit price, each
// taking a fresh timestamp (fresh time priority), then matches it as a
// normal taker.
func (e *Engine) activateStop(pair string, o *common.Order) {
	switch o.Type {
	case common.Stop:
		o.Type = common.Market
	case common.StopLimit:
		o.Type = common.Limit
	}
	o.CreatedAt = e.clock.Now()
	if o.TimeInForce == common.GTD && !o.ExpiresAt.After(o.CreatedAt) {
		o.Status = common.Expired
		e.emitOrderCancelled(o, common.ReasonExpired)
		return
	}

	e.matchAndFinalize(o)
	e.emitOrderUpdate(o)
}
