package engine

import (
	"fmt"

	"invoiceswap/internal/common"
)

// orderAcceptedPayload is the order_accepted event body (spec §4.3).
type orderAcceptedPayload struct {
	Order common.Order `json:"order"`
}

// orderUpdatePayload is the order_update event body.
type orderUpdatePayload struct {
	OrderID uint64             `json:"order_id"`
	Status  common.OrderStatus `json:"status"`
	Filled  string             `json:"filled"`
}

// orderCancelledPayload is the order_cancelled event body.
type orderCancelledPayload struct {
	OrderID uint64              `json:"order_id"`
	Reason  common.RejectReason `json:"reason"`
}

// tradeExecutedPayload is the trade_executed event body.
type tradeExecutedPayload struct {
	Trade common.Trade `json:"trade"`
}

// bookUpdatePayload is the order_book_update event body, top-N aggregated
// per side.
type bookUpdatePayload struct {
	Pair      string      `json:"pair"`
	BidsTopN  []BookLevel `json:"bids_top_n"`
	AsksTopN  []BookLevel `json:"asks_top_n"`
	LastPrice string      `json:"last_price"`
}

// marketStatsPayload is the market_stats_update event body.
type marketStatsPayload struct {
	Pair  string           `json:"pair"`
	Stats statsSnapshotDTO `json:"stats"`
}

// statsSnapshotDTO mirrors stats.Snapshot with decimals rendered as
// strings, matching the wire convention the rest of the event payloads use.
type statsSnapshotDTO struct {
	LastPrice        string `json:"last_price"`
	High24h          string `json:"high_24h"`
	Low24h           string `json:"low_24h"`
	Volume24h        string `json:"volume_24h"`
	TradeCount24h    int    `json:"trade_count_24h"`
	Change24h        string `json:"change_24h"`
	PercentChange24h string `json:"percent_change_24h"`
}

func userChannel(submitter string) string      { return fmt.Sprintf("user:%s", submitter) }
func userOrdersChannel(submitter string) string { return fmt.Sprintf("user_orders:%s", submitter) }
func tradesChannel(pair string) string         { return fmt.Sprintf("trades:%s", pair) }
func orderbookChannel(pair string) string      { return fmt.Sprintf("orderbook:%s", pair) }

const tradingUpdatesChannel = "trading_updates"

// emitOrderAccepted fires on both the submitter's user channel and their
// aggregate order-list channel (spec §4.3).
func (e *Engine) emitOrderAccepted(order *common.Order) {
	payload := orderAcceptedPayload{Order: order.Clone()}
	e.sink.Broadcast(userChannel(order.Submitter), "order_accepted", payload)
	e.sink.Broadcast(userOrdersChannel(order.Submitter), "order_accepted", payload)
}

// emitOrderUpdate fires whenever a resting order's fill state changes
// without reaching a terminal cancellation (partial fills, full fills).
func (e *Engine) emitOrderUpdate(order *common.Order) {
	e.sink.Broadcast(userChannel(order.Submitter), "order_update", orderUpdatePayload{
		OrderID: order.ID,
		Status:  order.Status,
		Filled:  order.Filled.String(),
	})
}

// emitOrderCancelled fires on cancellation, expiry, rejection-after-accept
// (fok_unfillable, ioc_unfilled) and replace-via-modify. reason is empty for
// a plain caller-initiated cancel.
func (e *Engine) emitOrderCancelled(order *common.Order, reason common.RejectReason) {
	e.sink.Broadcast(userChannel(order.Submitter), "order_cancelled", orderCancelledPayload{
		OrderID: order.ID,
		Reason:  reason,
	})
}

// emitTradeExecuted fires on both the pair's trade channel and the global
// trading_updates firehose.
func (e *Engine) emitTradeExecuted(trade common.Trade) {
	payload := tradeExecutedPayload{Trade: trade}
	e.sink.Broadcast(tradesChannel(trade.Pair), "trade_executed", payload)
	e.sink.Broadcast(tradingUpdatesChannel, "trade_executed", payload)
}

// emitBookUpdate is debounced to at most one emission per pair per 50 ms
// burst (spec §4.3); the actual aggregation is read fresh at fire time so a
// burst of calls collapses into a single up-to-date snapshot.
func (e *Engine) emitBookUpdate(pair string) {
	e.bookDebounce.trigger(pair, func() {
		e.mu.Lock()
		ob, ok := e.books[pair]
		if !ok {
			e.mu.Unlock()
			return
		}
		snap := bookUpdatePayload{
			Pair:     pair,
			BidsTopN: convertLevels(ob.Aggregate(common.Buy, DefaultQueryDepth)),
			AsksTopN: convertLevels(ob.Aggregate(common.Sell, DefaultQueryDepth)),
		}
		if s, ok := e.stats[pair]; ok {
			snap.LastPrice = s.Snapshot(e.clock.Now()).LastPrice.String()
		}
		e.mu.Unlock()
		e.sink.Broadcast(orderbookChannel(pair), "order_book_update", snap)
	})
}

// emitMarketStatsUpdate is debounced to at most once per second per pair.
func (e *Engine) emitMarketStatsUpdate(pair string) {
	e.statsDebounce.trigger(pair, func() {
		e.mu.Lock()
		s, ok := e.stats[pair]
		if !ok {
			e.mu.Unlock()
			return
		}
		snap := s.Snapshot(e.clock.Now())
		e.mu.Unlock()

		e.sink.Broadcast(tradingUpdatesChannel, "market_stats_update", marketStatsPayload{
			Pair: pair,
			Stats: statsSnapshotDTO{
				LastPrice:        snap.LastPrice.String(),
				High24h:          snap.High24h.String(),
				Low24h:           snap.Low24h.String(),
				Volume24h:        snap.Volume24h.String(),
				TradeCount24h:    snap.TradeCount24h,
				Change24h:        snap.Change24h.String(),
				PercentChange24h: snap.PercentChange24h.String(),
			},
		})
	})
}
