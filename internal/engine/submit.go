package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"invoiceswap/internal/common"
)

// OrderDraft is the caller-supplied shape of a new submission, before the
// engine assigns identity and timestamps.
type OrderDraft struct {
	Submitter   string
	Pair        string
	Side        common.Side
	Type        common.OrderType
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce common.TimeInForce
	ExpiresAt   time.Time
}

// SubmitResult is the synchronous outcome of Submit.
type SubmitResult struct {
	Accepted bool
	OrderID  uint64
	Order    common.Order
	Trades   []common.Trade
	// Warning carries a non-rejecting notice, e.g. ReasonIOCUnfilled: the
	// order was accepted but immediately cancelled for lack of a match.
	Warning common.RejectReason
}

func validateDraft(d OrderDraft, now time.Time) *common.EngineError {
	if d.Quantity.Sign() <= 0 {
		return common.NewEngineError(common.ReasonInvalidParams)
	}
	switch d.Type {
	case common.Limit, common.StopLimit:
		if d.LimitPrice.Sign() <= 0 {
			return common.NewEngineError(common.ReasonInvalidParams)
		}
	}
	switch d.Type {
	case common.Stop, common.StopLimit:
		if d.StopPrice.Sign() <= 0 {
			return common.NewEngineError(common.ReasonInvalidParams)
		}
	}
	if d.TimeInForce == common.GTD && !d.ExpiresAt.After(now) {
		return common.NewEngineError(common.ReasonInvalidParams)
	}
	return nil
}

// Submit validates, accepts, matches and (if applicable) rests a new
// order, returning every trade executed synchronously during acceptance.
func (e *Engine) Submit(d OrderDraft) (SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return SubmitResult{}, common.ErrEngineStopped
	}

	now := e.clock.Now()
	if err := validateDraft(d, now); err != nil {
		return SubmitResult{}, err
	}

	order := &common.Order{
		ID:          e.nextOrder(),
		Submitter:   d.Submitter,
		Pair:        d.Pair,
		Side:        d.Side,
		Type:        d.Type,
		Quantity:    d.Quantity,
		LimitPrice:  d.LimitPrice,
		StopPrice:   d.StopPrice,
		TimeInForce: d.TimeInForce,
		ExpiresAt:   d.ExpiresAt,
		CreatedAt:   now,
		Status:      common.Pending,
	}
	e.registerOrder(order)
	e.bookFor(order.Pair) // ensures pair exists before we touch it

	result := e.acceptAndMatch(order)
	if e.onOrderAccepted != nil {
		e.onOrderAccepted(order.Clone())
	}
	e.emitOrderAccepted(order)

	// Stop/stop-limit triggering happens "next-tick": after the triggering
	// match's events have been emitted, using fresh timestamps (spec §9
	// open question, resolved).
	e.runTriggeredStops(order.Pair)

	return result, nil
}

// acceptAndMatch routes the order: STOP/STOP_LIMIT rest in the triggered-
// price index untouched; everything else runs the matching loop.
func (e *Engine) acceptAndMatch(order *common.Order) SubmitResult {
	switch order.Type {
	case common.Stop, common.StopLimit:
		e.stopsFor(order.Pair).insert(order)
		return SubmitResult{Accepted: true, OrderID: order.ID, Order: order.Clone()}
	default:
		return e.matchAndFinalize(order)
	}
}

func (e *Engine) matchAndFinalize(order *common.Order) SubmitResult {
	ob := e.bookFor(order.Pair)

	if order.TimeInForce == common.FOK {
		if !e.canFillFOK(ob, order) {
			order.Status = common.Cancelled
			e.emitOrderCancelled(order, common.ReasonFOKUnfillable)
			return SubmitResult{Accepted: true, OrderID: order.ID, Order: order.Clone(), Warning: common.ReasonFOKUnfillable}
		}
	}

	trades := e.match(ob, order)
	warning := e.finalizeTaker(ob, order)

	return SubmitResult{
		Accepted: true,
		OrderID:  order.ID,
		Order:    order.Clone(),
		Trades:   trades,
		Warning:  warning,
	}
}
