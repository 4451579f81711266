// Package stats maintains rolling 24h market aggregates per trading pair,
// recomputed lazily on read (and during the engine's cleanup sweep),
// grounded on the teacher/pack's decimal-based trade accounting idiom
// (mkhoshkam-orderbook/engine/engine.go TradeStats).
package stats

import (
	"time"

	"github.com/shopspring/decimal"
)

const window = 24 * time.Hour

type record struct {
	at    time.Time
	price decimal.Decimal
	qty   decimal.Decimal
}

// Snapshot is a point-in-time view of a pair's statistics.
type Snapshot struct {
	Pair             string
	LastPrice        decimal.Decimal
	High24h          decimal.Decimal
	Low24h           decimal.Decimal
	Volume24h        decimal.Decimal
	TradeCount24h    int
	Change24h        decimal.Decimal
	PercentChange24h decimal.Decimal
}

// PairStats accumulates trade records for one pair. It is not internally
// locked: callers (the engine) serialize access via their own mutation
// discipline, the same way the book package is unlocked.
type PairStats struct {
	pair      string
	records   []record // ascending by `at`, per invariant #2 (trade sequence is time ordered)
	lastPrice decimal.Decimal
	hasTrade  bool
}

func New(pair string) *PairStats {
	return &PairStats{pair: pair}
}

// RecordTrade appends a trade to the window. Must be called in increasing
// `at` order (the engine serializes submissions, so trade execution order
// and wall-clock order coincide).
func (s *PairStats) RecordTrade(at time.Time, price, qty decimal.Decimal) {
	s.records = append(s.records, record{at: at, price: price, qty: qty})
	s.lastPrice = price
	s.hasTrade = true
}

// evict drops every record strictly older than the single most recent
// record at-or-before the 24h cutoff; that one anchor record is kept (not
// counted in the window aggregates) so Snapshot can still find
// price_24h_ago.
func (s *PairStats) evict(now time.Time) {
	cutoff := now.Add(-window)
	anchor := -1
	for i, r := range s.records {
		if !r.at.After(cutoff) {
			anchor = i
		} else {
			break
		}
	}
	if anchor > 0 {
		s.records = s.records[anchor:]
	}
}

// Snapshot evaluates window roll-off and recomputes aggregates.
func (s *PairStats) Snapshot(now time.Time) Snapshot {
	s.evict(now)
	cutoff := now.Add(-window)

	snap := Snapshot{Pair: s.pair, LastPrice: s.lastPrice}
	var (
		high, low, vol decimal.Decimal
		count          int
		anchorPrice    decimal.Decimal
		haveAnchor     bool
	)

	for _, r := range s.records {
		if !r.at.After(cutoff) {
			anchorPrice = r.price
			haveAnchor = true
			continue
		}
		if count == 0 {
			high, low = r.price, r.price
		} else {
			if r.price.GreaterThan(high) {
				high = r.price
			}
			if r.price.LessThan(low) {
				low = r.price
			}
		}
		vol = vol.Add(r.qty)
		count++
	}

	snap.High24h = high
	snap.Low24h = low
	snap.Volume24h = vol
	snap.TradeCount24h = count

	if haveAnchor && !anchorPrice.IsZero() {
		snap.Change24h = s.lastPrice.Sub(anchorPrice)
		snap.PercentChange24h = snap.Change24h.Div(anchorPrice)
	}
	return snap
}
