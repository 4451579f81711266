package engine

import (
	"github.com/shopspring/decimal"

	"invoiceswap/internal/book"
	"invoiceswap/internal/common"
	"invoiceswap/internal/stats"
)

// BookLevel is one aggregated price level in a book snapshot.
type BookLevel struct {
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	OrderCount int
}

// BookSnapshot is the result of QueryBook.
type BookSnapshot struct {
	Pair      string
	Bids      []BookLevel
	Asks      []BookLevel
	LastPrice decimal.Decimal
}

// QueryBook aggregates resting orders by price level, truncated to depth
// (spec §4.1). A negative depth uses DefaultQueryDepth; a depth of 0
// returns empty sides.
func (e *Engine) QueryBook(pair string, depth int) (BookSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ob, ok := e.books[pair]
	if !ok {
		return BookSnapshot{}, common.NewEngineError(common.ReasonPairUnknown)
	}
	if depth < 0 {
		depth = DefaultQueryDepth
	}

	snap := BookSnapshot{Pair: pair}
	if depth > 0 {
		snap.Bids = convertLevels(ob.Aggregate(common.Buy, depth))
		snap.Asks = convertLevels(ob.Aggregate(common.Sell, depth))
	}
	snap.LastPrice = e.statsFor(pair).Snapshot(e.clock.Now()).LastPrice
	return snap, nil
}

func convertLevels(levels []book.Level) []BookLevel {
	out := make([]BookLevel, len(levels))
	for i, l := range levels {
		out[i] = BookLevel{Price: l.Price, Quantity: l.Quantity, OrderCount: l.OrderCount}
	}
	return out
}

// QueryTrades returns up to limit trades for pair, most recent first.
// limit <= 0 returns every retained trade for the pair.
func (e *Engine) QueryTrades(pair string, limit int) ([]common.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	history, ok := e.tradeHistory[pair]
	if !ok {
		return nil, common.NewEngineError(common.ReasonPairUnknown)
	}
	return history.recent(limit), nil
}

// QueryUserOrders returns every order (of any status) submitted by
// submitter.
func (e *Engine) QueryUserOrders(submitter string) []common.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.ordersByUser[submitter]
	out := make([]common.Order, 0, len(ids))
	for id := range ids {
		if o, ok := e.orders[id]; ok {
			out = append(out, o.Clone())
		}
	}
	return out
}

// MarketStatsReport is the result of QueryMarketStats.
type MarketStatsReport struct {
	Pairs          map[string]stats.Snapshot
	TotalPairs     int
	TotalVolume24h decimal.Decimal
}

// QueryMarketStats returns rolling statistics for every known pair plus
// engine-wide totals.
func (e *Engine) QueryMarketStats() MarketStatsReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	report := MarketStatsReport{Pairs: make(map[string]stats.Snapshot, len(e.stats))}
	total := decimal.Zero
	for pair, s := range e.stats {
		snap := s.Snapshot(now)
		report.Pairs[pair] = snap
		total = total.Add(snap.Volume24h)
	}
	report.TotalPairs = len(e.stats)
	report.TotalVolume24h = total
	return report
}
