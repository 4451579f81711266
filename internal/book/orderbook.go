// Package book implements the per-pair resting order storage described by
// the matching engine: two price-ordered queues (bids, asks) with strict
// price-time priority, grounded on the teacher's btree.BTreeG price-level
// tree (internal/engine/orderbook.go in the reference repo), generalized
// from a single asset type to arbitrary trading pairs and from float64 to
// decimal.Decimal.
package book

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"invoiceswap/internal/common"
)

// Level is one aggregated price level, as returned by Aggregate.
type Level struct {
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	OrderCount int
}

// PriceLevel holds every resting order at a single price, in time-priority
// (earliest first) order.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*common.Order
}

type levels = btree.BTreeG[*PriceLevel]

type location struct {
	side  common.Side
	price decimal.Decimal
}

// OrderBook is the resting-order store for a single trading pair. Only
// LIMIT orders with GTC or GTD time in force are ever inserted here; IOC,
// FOK and MARKET takers match against the book but never rest in it. STOP
// and STOP_LIMIT orders live in the engine's separate triggered-price index
// until they convert.
type OrderBook struct {
	Pair string

	bids *levels
	asks *levels

	locations map[uint64]location
}

// New creates an empty book for pair.
func New(pair string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &OrderBook{
		Pair:      pair,
		bids:      bids,
		asks:      asks,
		locations: make(map[uint64]location),
	}
}

func (b *OrderBook) levelsFor(side common.Side) *levels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// Insert adds a resting order at its limit price. O(log n).
func (b *OrderBook) Insert(o *common.Order) {
	lv := b.levelsFor(o.Side)
	level, ok := lv.Get(&PriceLevel{Price: o.LimitPrice})
	if !ok {
		level = &PriceLevel{Price: o.LimitPrice}
		lv.Set(level)
	}
	level.Orders = append(level.Orders, o)
	b.locations[o.ID] = location{side: o.Side, price: o.LimitPrice}
}

// Remove deletes an order by id. O(log n) plus a scan of its price level.
func (b *OrderBook) Remove(id uint64) (*common.Order, bool) {
	loc, ok := b.locations[id]
	if !ok {
		return nil, false
	}
	lv := b.levelsFor(loc.side)
	level, ok := lv.Get(&PriceLevel{Price: loc.price})
	if !ok {
		delete(b.locations, id)
		return nil, false
	}
	for i, o := range level.Orders {
		if o.ID == id {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			delete(b.locations, id)
			if len(level.Orders) == 0 {
				lv.Delete(level)
			}
			return o, true
		}
	}
	delete(b.locations, id)
	return nil, false
}

// Contains reports whether id currently rests in the book.
func (b *OrderBook) Contains(id uint64) bool {
	_, ok := b.locations[id]
	return ok
}

// PeekHead returns the best-priced, earliest resting order on side.
func (b *OrderBook) PeekHead(side common.Side) (*common.Order, bool) {
	lv := b.levelsFor(side)
	level, ok := lv.Min()
	if !ok || len(level.Orders) == 0 {
		return nil, false
	}
	return level.Orders[0], true
}

// PopHeadIfFilled removes and returns the head of side if it is FILLED.
func (b *OrderBook) PopHeadIfFilled(side common.Side) (*common.Order, bool) {
	head, ok := b.PeekHead(side)
	if !ok || head.Status != common.Filled {
		return nil, false
	}
	return b.Remove(head.ID)
}

// BestPrice returns the best resting price on side, if any.
func (b *OrderBook) BestPrice(side common.Side) (decimal.Decimal, bool) {
	head, ok := b.PeekHead(side)
	if !ok {
		return decimal.Zero, false
	}
	return head.LimitPrice, true
}

// Aggregate walks up to depth distinct price levels on side (best first),
// summing remaining quantity and order counts. depth <= 0 means unbounded.
func (b *OrderBook) Aggregate(side common.Side, depth int) []Level {
	lv := b.levelsFor(side)
	result := make([]Level, 0, max(depth, 0))
	count := 0
	lv.Scan(func(pl *PriceLevel) bool {
		if depth > 0 && count >= depth {
			return false
		}
		qty := decimal.Zero
		for _, o := range pl.Orders {
			qty = qty.Add(o.Remaining())
		}
		result = append(result, Level{Price: pl.Price, Quantity: qty, OrderCount: len(pl.Orders)})
		count++
		return true
	})
	return result
}

// Uncrossed reports whether best bid < best ask, vacuously true if either
// side is empty.
func (b *OrderBook) Uncrossed() bool {
	bid, hasBid := b.BestPrice(common.Buy)
	ask, hasAsk := b.BestPrice(common.Sell)
	if !hasBid || !hasAsk {
		return true
	}
	return bid.LessThan(ask)
}

// ExpiredBefore returns every resting GTD order whose expiry is at or
// before now, across both sides. Callers remove each returned order by id
// themselves (the scan cannot safely mutate the tree it is walking).
func (b *OrderBook) ExpiredBefore(now time.Time) []*common.Order {
	var expired []*common.Order
	for _, side := range [...]common.Side{common.Buy, common.Sell} {
		lv := b.levelsFor(side)
		lv.Scan(func(pl *PriceLevel) bool {
			for _, o := range pl.Orders {
				if o.TimeInForce == common.GTD && !o.ExpiresAt.After(now) {
					expired = append(expired, o)
				}
			}
			return true
		})
	}
	return expired
}

// Len returns the number of resting orders on side.
func (b *OrderBook) Len(side common.Side) int {
	lv := b.levelsFor(side)
	n := 0
	lv.Scan(func(pl *PriceLevel) bool {
		n += len(pl.Orders)
		return true
	})
	return n
}
