package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceswap/internal/clock"
	"invoiceswap/internal/common"
	"invoiceswap/internal/engine"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(now time.Time) (*engine.Engine, *clock.Manual) {
	c := clock.NewManual(now)
	return engine.New(engine.WithClock(c)), c
}

func baseDraft(pair string, side common.Side, typ common.OrderType, qty, price string) engine.OrderDraft {
	return engine.OrderDraft{
		Submitter:   "alice",
		Pair:        pair,
		Side:        side,
		Type:        typ,
		Quantity:    dec(qty),
		LimitPrice:  dec(price),
		TimeInForce: common.GTC,
	}
}

// S1 — rest and cross: a resting LIMIT SELL fully fills an incoming LIMIT
// BUY at the maker's price.
func TestS1_RestAndCross(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	sellDraft := baseDraft("INV-1", common.Sell, common.Limit, "10", "100")
	sellDraft.Submitter = "bob"
	res, err := e.Submit(sellDraft)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)

	buyDraft := baseDraft("INV-1", common.Buy, common.Limit, "10", "101")
	res, err = e.Submit(buyDraft)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Price.Equal(dec("100")), "trade prices at the maker's price")
	assert.Equal(t, common.Filled, res.Order.Status)
}

// S2 — time priority: two resting orders at the same price fill in
// submission order.
func TestS2_TimePriority(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	first := baseDraft("INV-1", common.Sell, common.Limit, "5", "100")
	first.Submitter = "bob"
	firstRes, err := e.Submit(first)
	require.NoError(t, err)

	second := baseDraft("INV-1", common.Sell, common.Limit, "5", "100")
	second.Submitter = "carol"
	_, err = e.Submit(second)
	require.NoError(t, err)

	buy := baseDraft("INV-1", common.Buy, common.Limit, "5", "100")
	res, err := e.Submit(buy)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, firstRes.OrderID, res.Trades[0].MakerOrderID, "earlier resting order fills first")
}

// S3 — market order walks the book across multiple price levels.
func TestS3_MarketOrderWalksBook(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	_, err := e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "5", "100"))
	require.NoError(t, err)
	_, err = e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "5", "101"))
	require.NoError(t, err)

	market := engine.OrderDraft{
		Submitter:   "carol",
		Pair:        "INV-1",
		Side:        common.Buy,
		Type:        common.Market,
		Quantity:    dec("8"),
		TimeInForce: common.IOC,
	}
	res, err := e.Submit(market)
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.True(t, res.Trades[0].Price.Equal(dec("100")))
	assert.True(t, res.Trades[1].Price.Equal(dec("101")))
	assert.True(t, res.Order.Filled.Equal(dec("8")))
	assert.Equal(t, common.Filled, res.Order.Status)
}

// S4 — FOK rejection: insufficient opposite-side liquidity cancels the
// order without any partial fill (non-destructive pre-match walk).
func TestS4_FOKUnfillable(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	_, err := e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "3", "100"))
	require.NoError(t, err)

	fok := engine.OrderDraft{
		Submitter:   "carol",
		Pair:        "INV-1",
		Side:        common.Buy,
		Type:        common.Limit,
		Quantity:    dec("10"),
		LimitPrice:  dec("100"),
		TimeInForce: common.FOK,
	}
	res, err := e.Submit(fok)
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "FOK never partially fills")
	assert.Equal(t, common.ReasonFOKUnfillable, res.Warning)
	assert.Equal(t, common.Cancelled, res.Order.Status)

	// the resting sell order is untouched.
	snap, err := e.QueryBook("INV-1", -1)
	require.NoError(t, err)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Asks[0].Quantity.Equal(dec("3")))
}

// S5 — stop trigger: a STOP BUY rests below trigger, fires "next tick"
// after a trade crosses its stop price, and matches as a fresh taker.
func TestS5_StopTrigger(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	_, err := e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "5", "100"))
	require.NoError(t, err)

	stop := engine.OrderDraft{
		Submitter:   "carol",
		Pair:        "INV-1",
		Side:        common.Buy,
		Type:        common.Stop,
		Quantity:    dec("2"),
		StopPrice:   dec("100"),
		TimeInForce: common.GTC,
	}
	_, err = e.Submit(stop)
	require.NoError(t, err)

	// A second seller rests more supply; a small trade at 100 should
	// trigger the stop.
	_, err = e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "5", "100"))
	require.NoError(t, err)

	trader := baseDraft("INV-1", common.Buy, common.Limit, "1", "100")
	trader.Submitter = "dave"
	res, err := e.Submit(trader)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1, "the dave trade itself")

	orders := e.QueryUserOrders("carol")
	var stopOrder common.Order
	for _, o := range orders {
		if o.Type == common.Market {
			stopOrder = o
		}
	}
	require.NotZero(t, stopOrder.ID, "stop converted to a market order once triggered")
	assert.True(t, stopOrder.Filled.Sign() > 0, "triggered stop matched against remaining supply")
}

// S6 — expiry sweep: a GTD order past its expiry is cancelled by the
// periodic sweep with reason "expired", without matching.
func TestS6_ExpirySweep(t *testing.T) {
	e, c := newTestEngine(time.Now())

	draft := baseDraft("INV-1", common.Buy, common.Limit, "4", "50")
	draft.TimeInForce = common.GTD
	draft.ExpiresAt = c.Now().Add(30 * time.Second)
	res, err := e.Submit(draft)
	require.NoError(t, err)
	assert.Equal(t, common.Pending, res.Order.Status)

	c.Advance(31 * time.Second)
	e.RunSweepForTest()

	orders := e.QueryUserOrders("alice")
	require.Len(t, orders, 1)
	assert.Equal(t, common.Expired, orders[0].Status)

	snap, err := e.QueryBook("INV-1", -1)
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
}

// Invariant: total quantity is conserved across a single match (spec §8).
func TestInvariant_QuantityConservation(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	_, err := e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "7", "100"))
	require.NoError(t, err)

	res, err := e.Submit(baseDraft("INV-1", common.Buy, common.Limit, "7", "100"))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Quantity.Equal(dec("7")))
	assert.True(t, res.Order.Filled.Equal(dec("7")))
}

// Boundary: market order against an empty opposite book is cancelled with
// ioc_unfilled, never left resting.
func TestBoundary_MarketOrderEmptyBook(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	market := engine.OrderDraft{
		Submitter:   "alice",
		Pair:        "INV-1",
		Side:        common.Buy,
		Type:        common.Market,
		Quantity:    dec("1"),
		TimeInForce: common.IOC,
	}
	res, err := e.Submit(market)
	require.NoError(t, err)
	assert.Equal(t, common.ReasonIOCUnfilled, res.Warning)
	assert.Equal(t, common.Cancelled, res.Order.Status)
}

// Boundary: a zero-depth QueryBook returns empty sides, not the default
// depth.
func TestBoundary_ZeroDepthQuery(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	_, err := e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "1", "100"))
	require.NoError(t, err)

	snap, err := e.QueryBook("INV-1", 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Asks)
}

func TestCancel_AlreadyTerminalRace(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	draft := baseDraft("INV-1", common.Sell, common.Limit, "1", "100")
	res, err := e.Submit(draft)
	require.NoError(t, err)

	_, err = e.Submit(baseDraft("INV-1", common.Buy, common.Limit, "1", "100"))
	require.NoError(t, err)

	_, err = e.Cancel(res.OrderID, "alice")
	require.Error(t, err)
	var engErr *common.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, common.ReasonAlreadyTerminal, engErr.Reason)
}

func TestCancel_Forbidden(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	res, err := e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "1", "100"))
	require.NoError(t, err)

	_, err = e.Cancel(res.OrderID, "mallory")
	require.Error(t, err)
	var engErr *common.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, common.ReasonForbidden, engErr.Reason)
}

func TestQuery_PairUnknown(t *testing.T) {
	e, _ := newTestEngine(time.Now())

	_, err := e.QueryBook("GHOST-1", -1)
	require.Error(t, err)
	var engErr *common.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, common.ReasonPairUnknown, engErr.Reason)
}

func TestMarketStats_RollingWindow(t *testing.T) {
	e, c := newTestEngine(time.Now())

	_, err := e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "1", "100"))
	require.NoError(t, err)
	_, err = e.Submit(baseDraft("INV-1", common.Buy, common.Limit, "1", "100"))
	require.NoError(t, err)

	c.Advance(25 * time.Hour)

	_, err = e.Submit(baseDraft("INV-1", common.Sell, common.Limit, "1", "110"))
	require.NoError(t, err)
	_, err = e.Submit(baseDraft("INV-1", common.Buy, common.Limit, "1", "110"))
	require.NoError(t, err)

	report := e.QueryMarketStats()
	snap := report.Pairs["INV-1"]
	assert.True(t, snap.LastPrice.Equal(dec("110")))
	assert.Equal(t, 1, snap.TradeCount24h, "the 100-priced trade aged out of the window")
}
