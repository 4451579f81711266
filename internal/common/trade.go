package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable record produced by a fill. Never mutated after
// creation.
type Trade struct {
	ID           uint64
	Pair         string
	MakerOrderID uint64
	TakerOrderID uint64
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	ExecutedAt   time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{ID:%d Pair:%s Maker:%d Taker:%d Price:%s Qty:%s At:%s}",
		t.ID, t.Pair, t.MakerOrderID, t.TakerOrderID, t.Price, t.Quantity,
		t.ExecutedAt.Format(time.RFC3339Nano),
	)
}
