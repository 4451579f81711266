package engine

import (
	"github.com/shopspring/decimal"

	"invoiceswap/internal/common"
)

// Cancel removes a resting order and marks it CANCELLED. A cancel that
// races with a match on the same order (both serialized behind e.mu)
// resolves as already_terminal if the order had already reached a
// terminal status by the time this call runs; there is no partial cancel
// of an in-flight match (spec §5).
func (e *Engine) Cancel(orderID uint64, submitter string) (common.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return common.Order{}, common.NewEngineError(common.ReasonNotFound)
	}
	if order.Submitter != submitter {
		return common.Order{}, common.NewEngineError(common.ReasonForbidden)
	}
	if order.Status.IsTerminal() {
		return common.Order{}, common.NewEngineError(common.ReasonAlreadyTerminal)
	}

	e.removeResting(order)
	order.Status = common.Cancelled
	e.emitOrderCancelled(order, "")
	e.emitBookUpdate(order.Pair)

	return order.Clone(), nil
}

// removeResting drops an order from wherever it currently rests: the
// price-time book for LIMIT orders, or the triggered-price index for
// still-pending STOP/STOP_LIMIT orders.
func (e *Engine) removeResting(order *common.Order) {
	switch order.Type {
	case common.Stop, common.StopLimit:
		e.stopsFor(order.Pair).remove(order.ID)
	default:
		e.bookFor(order.Pair).Remove(order.ID)
	}
}

// Modify is equivalent to cancel + resubmit: the replacement gets a fresh
// id and timestamp, losing its time priority. Reducing the requested
// quantity to at or below the already-filled total is REJECTED, since the
// fresh order could never be satisfied (spec §4.1).
func (e *Engine) Modify(orderID uint64, submitter string, newPrice, newQuantity *decimal.Decimal) (SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return SubmitResult{}, common.ErrEngineStopped
	}

	order, ok := e.orders[orderID]
	if !ok {
		return SubmitResult{}, common.NewEngineError(common.ReasonNotFound)
	}
	if order.Submitter != submitter {
		return SubmitResult{}, common.NewEngineError(common.ReasonForbidden)
	}
	if order.Status.IsTerminal() {
		return SubmitResult{}, common.NewEngineError(common.ReasonAlreadyTerminal)
	}

	qty := order.Quantity
	if newQuantity != nil {
		qty = *newQuantity
	}
	if qty.LessThanOrEqual(order.Filled) {
		return SubmitResult{}, common.NewEngineError(common.ReasonInvalidParams)
	}
	price := order.LimitPrice
	if newPrice != nil {
		price = *newPrice
	}

	e.removeResting(order)
	order.Status = common.Cancelled
	e.emitOrderCancelled(order, common.ReasonReplaced)
	e.emitBookUpdate(order.Pair)

	now := e.clock.Now()
	replacement := &common.Order{
		ID:          e.nextOrder(),
		Submitter:   order.Submitter,
		Pair:        order.Pair,
		Side:        order.Side,
		Type:        order.Type,
		Quantity:    qty,
		LimitPrice:  price,
		StopPrice:   order.StopPrice,
		TimeInForce: order.TimeInForce,
		ExpiresAt:   order.ExpiresAt,
		CreatedAt:   now,
		Status:      common.Pending,
	}
	e.registerOrder(replacement)

	result := e.acceptAndMatch(replacement)
	e.emitOrderAccepted(replacement)
	e.runTriggeredStops(replacement.Pair)

	return result, nil
}
