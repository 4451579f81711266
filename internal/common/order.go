package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the engine's record of a single submission. The engine assigns
// ID and CreatedAt at acceptance time; every other field comes from the
// caller's draft.
type Order struct {
	ID          uint64          // Engine-assigned, unique, monotonic
	Submitter   string          // Who owns this order
	Pair        string          // Trading pair identifier
	Side        Side            //
	Type        OrderType       //
	Quantity    decimal.Decimal // Total quantity requested, strictly positive
	Filled      decimal.Decimal // Cumulative filled quantity, 0 <= Filled <= Quantity
	LimitPrice  decimal.Decimal // Required iff Type in {Limit, StopLimit}
	StopPrice   decimal.Decimal // Required iff Type in {Stop, StopLimit}
	TimeInForce TimeInForce     //
	ExpiresAt   time.Time       // Required iff TimeInForce == GTD
	CreatedAt   time.Time       // Engine wall clock at acceptance (or trigger, for stops)
	Status      OrderStatus     //
}

// Remaining is the quantity still available to match.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// Clone returns a value copy safe to hand to a subscriber.
func (o *Order) Clone() Order {
	return *o
}

func (o Order) String() string {
	return fmt.Sprintf(
		"Order{ID:%d Pair:%s Side:%s Type:%s Qty:%s Filled:%s Status:%s Submitter:%s}",
		o.ID, o.Pair, o.Side, o.Type, o.Quantity, o.Filled, o.Status, o.Submitter,
	)
}
