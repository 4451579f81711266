package stats_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"invoiceswap/internal/stats"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSnapshot_NoTrades(t *testing.T) {
	s := stats.New("INV-1")
	snap := s.Snapshot(time.Now())
	assert.Equal(t, 0, snap.TradeCount24h)
	assert.True(t, snap.PercentChange24h.IsZero())
}

func TestSnapshot_HighLowVolume(t *testing.T) {
	s := stats.New("INV-1")
	base := time.Now()
	s.RecordTrade(base, d("100"), d("1"))
	s.RecordTrade(base.Add(time.Minute), d("105"), d("2"))
	s.RecordTrade(base.Add(2*time.Minute), d("95"), d("3"))

	snap := s.Snapshot(base.Add(3 * time.Minute))
	assert.True(t, snap.LastPrice.Equal(d("95")))
	assert.True(t, snap.High24h.Equal(d("105")))
	assert.True(t, snap.Low24h.Equal(d("95")))
	assert.True(t, snap.Volume24h.Equal(d("6")))
	assert.Equal(t, 3, snap.TradeCount24h)
}

func TestSnapshot_PercentChangeAgainst24hAgo(t *testing.T) {
	s := stats.New("INV-1")
	base := time.Now()
	s.RecordTrade(base, d("100"), d("1"))          // will become the 24h-ago anchor
	s.RecordTrade(base.Add(25*time.Hour), d("110"), d("1"))

	snap := s.Snapshot(base.Add(25 * time.Hour))
	assert.True(t, snap.LastPrice.Equal(d("110")))
	assert.True(t, snap.Change24h.Equal(d("10")), "110 - 100 anchor")
	assert.True(t, snap.PercentChange24h.Equal(d("0.1")))
	assert.Equal(t, 1, snap.TradeCount24h, "anchor record itself is not counted inside the window")
}

func TestSnapshot_EvictsStaleRecordsKeepingOneAnchor(t *testing.T) {
	s := stats.New("INV-1")
	base := time.Now()
	s.RecordTrade(base, d("50"), d("1"))
	s.RecordTrade(base.Add(time.Hour), d("60"), d("1"))
	s.RecordTrade(base.Add(30*time.Hour), d("70"), d("1"))

	// At t = base+30h, cutoff = base+6h. The record at base+1h is the most
	// recent one at-or-before cutoff and becomes the anchor; base itself is
	// dropped entirely.
	snap := s.Snapshot(base.Add(30 * time.Hour))
	assert.True(t, snap.Change24h.Equal(d("10")), "70 - 60 anchor, not 70 - 50")
}
