package engine

import (
	"github.com/shopspring/decimal"

	"invoiceswap/internal/book"
	"invoiceswap/internal/common"
)

// match repeatedly crosses taker against the head of the opposite book
// (spec §4.1 matching algorithm). The trade price is always the resting
// (maker) order's price.
func (e *Engine) match(ob *book.OrderBook, taker *common.Order) []common.Trade {
	var trades []common.Trade
	opposite := taker.Side.Opposite()

	for taker.Remaining().Sign() > 0 {
		maker, ok := ob.PeekHead(opposite)
		if !ok {
			break
		}
		if !priceCompatible(taker, maker) {
			break
		}

		qty := decimal.Min(taker.Remaining(), maker.Remaining())
		price := maker.LimitPrice

		taker.Filled = taker.Filled.Add(qty)
		maker.Filled = maker.Filled.Add(qty)
		updateFillStatus(taker)
		updateFillStatus(maker)

		trade := e.newTrade(taker.Pair, maker.ID, taker.ID, price, qty)
		trades = append(trades, trade)
		e.recordTrade(taker.Pair, trade)
		e.emitTradeExecuted(trade)
		e.emitOrderUpdate(maker)

		if maker.Status == common.Filled {
			ob.Remove(maker.ID)
		}
	}

	if len(trades) > 0 {
		e.emitBookUpdate(taker.Pair)
	}
	return trades
}

// priceCompatible is the crossing test from spec §4.1 step 2.
func priceCompatible(taker, maker *common.Order) bool {
	if taker.Type == common.Market {
		return true
	}
	if taker.Side == common.Buy {
		return maker.LimitPrice.LessThanOrEqual(taker.LimitPrice)
	}
	return maker.LimitPrice.GreaterThanOrEqual(taker.LimitPrice)
}

func updateFillStatus(o *common.Order) {
	if o.Status.IsTerminal() {
		return
	}
	if o.Filled.Equal(o.Quantity) {
		o.Status = common.Filled
	} else if o.Filled.Sign() > 0 {
		o.Status = common.PartiallyFilled
	}
}

// canFillFOK performs the non-destructive liquidity walk spec §4.1
// mandates before any fill: only proceed if the opposite book holds enough
// quantity at acceptable prices to fill the order completely.
func (e *Engine) canFillFOK(ob *book.OrderBook, taker *common.Order) bool {
	need := taker.Remaining()
	opposite := taker.Side.Opposite()
	available := decimal.Zero

	for _, lvl := range ob.Aggregate(opposite, 0) {
		if taker.Type != common.Market {
			if taker.Side == common.Buy && lvl.Price.GreaterThan(taker.LimitPrice) {
				break
			}
			if taker.Side == common.Sell && lvl.Price.LessThan(taker.LimitPrice) {
				break
			}
		}
		available = available.Add(lvl.Quantity)
		if available.GreaterThanOrEqual(need) {
			return true
		}
	}
	return available.GreaterThanOrEqual(need)
}

// finalizeTaker applies the post-match-loop disposition from spec §4.1 and
// returns a warning reason when applicable (ioc_unfilled).
func (e *Engine) finalizeTaker(ob *book.OrderBook, order *common.Order) common.RejectReason {
	switch {
	case order.Status == common.Filled:
		return ""

	case order.Type == common.Limit && (order.TimeInForce == common.GTC || order.TimeInForce == common.GTD):
		if order.Filled.Sign() > 0 {
			order.Status = common.PartiallyFilled
		} else {
			order.Status = common.Pending
		}
		ob.Insert(order)
		e.emitBookUpdate(order.Pair)
		return ""

	case order.TimeInForce == common.IOC || order.Type == common.Market:
		if order.Filled.Sign() > 0 {
			order.Status = common.PartiallyFilled
			return ""
		}
		order.Status = common.Cancelled
		e.emitOrderCancelled(order, common.ReasonIOCUnfilled)
		return common.ReasonIOCUnfilled

	case order.TimeInForce == common.FOK:
		// canFillFOK already guaranteed full fillability before matching
		// began; reaching here with leftover quantity would be a bug.
		return ""

	default:
		return ""
	}
}

func (e *Engine) newTrade(pair string, makerID, takerID uint64, price, qty decimal.Decimal) common.Trade {
	return common.Trade{
		ID:           e.nextTrade(),
		Pair:         pair,
		MakerOrderID: makerID,
		TakerOrderID: takerID,
		Price:        price,
		Quantity:     qty,
		ExecutedAt:   e.clock.Now(),
	}
}
