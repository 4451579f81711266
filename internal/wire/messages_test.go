package wire_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceswap/internal/common"
	"invoiceswap/internal/wire"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDecode_NewOrderRoundTrips(t *testing.T) {
	msg := wire.NewOrderMessage{
		Pair:        "INV-1",
		Side:        common.Buy,
		Type:        common.Limit,
		TimeInForce: common.GTC,
		Quantity:    dec("10"),
		LimitPrice:  dec("99.5"),
		Submitter:   "alice",
	}

	req, err := wire.Decode(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, wire.TypeNewOrder, req.Type)
	assert.Equal(t, msg.Pair, req.Order.Pair)
	assert.True(t, msg.Quantity.Equal(req.Order.Quantity))
	assert.True(t, msg.LimitPrice.Equal(req.Order.LimitPrice))
	assert.Equal(t, msg.Submitter, req.Order.Submitter)
}

func TestDecode_CancelOrderRoundTrips(t *testing.T) {
	msg := wire.CancelOrderMessage{OrderID: 42, Submitter: "bob"}

	req, err := wire.Decode(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, wire.TypeCancelOrder, req.Type)
	assert.Equal(t, uint64(42), req.Cancel.OrderID)
	assert.Equal(t, "bob", req.Cancel.Submitter)
}

func TestDecode_ModifyOrderRoundTrips(t *testing.T) {
	msg := wire.ModifyOrderMessage{
		OrderID:        7,
		Submitter:      "carol",
		HasNewPrice:    true,
		NewPrice:       dec("101.25"),
		HasNewQuantity: false,
	}

	req, err := wire.Decode(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, wire.TypeModifyOrder, req.Type)
	assert.Equal(t, uint64(7), req.Modify.OrderID)
	assert.Equal(t, "carol", req.Modify.Submitter)
	assert.True(t, req.Modify.HasNewPrice)
	assert.True(t, msg.NewPrice.Equal(req.Modify.NewPrice))
	assert.False(t, req.Modify.HasNewQuantity)
}

func TestDecode_ModifyOrderLeavesUnsetFieldsUnset(t *testing.T) {
	msg := wire.ModifyOrderMessage{
		OrderID:        7,
		Submitter:      "carol",
		HasNewQuantity: true,
		NewQuantity:    dec("5"),
	}

	req, err := wire.Decode(msg.Encode())
	require.NoError(t, err)
	assert.False(t, req.Modify.HasNewPrice)
	assert.True(t, req.Modify.HasNewQuantity)
	assert.True(t, msg.NewQuantity.Equal(req.Modify.NewQuantity))
}

func TestDecode_RejectsUnknownMessageType(t *testing.T) {
	_, err := wire.Decode([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, wire.ErrInvalidMessageType)
}

func TestDecodeReport_RoundTrips(t *testing.T) {
	r := wire.Report{Type: wire.TypeAccepted, OrderID: 9, Status: "open", Filled: "0", Reason: ""}

	out, err := wire.DecodeReport(r.Encode())
	require.NoError(t, err)
	assert.Equal(t, r, out)
}

func TestNewOrderMessage_DraftPreservesExpiry(t *testing.T) {
	exp := time.Unix(1700000000, 0)
	msg := wire.NewOrderMessage{Pair: "INV-1", ExpiresAt: exp}
	assert.Equal(t, exp.Unix(), msg.Draft().ExpiresAt.Unix())
}
