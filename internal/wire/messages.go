// Package wire implements the binary control-plane protocol clients use to
// submit and cancel orders over a TCP connection, adapted from the
// teacher's internal/net/messages.go: the same fixed-header-plus-
// length-prefixed-tail framing, generalized from a closed AssetType enum
// and float64/uint64 fields to arbitrary pair strings and
// decimal.Decimal-precision quantities/prices (carried as length-prefixed
// decimal strings, since the wire format must round-trip exact rational
// values, not floats).
package wire

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"invoiceswap/internal/common"
	"invoiceswap/internal/engine"
)

var (
	ErrInvalidMessageType = errors.New("wire: invalid message type")
	ErrMessageTooShort     = errors.New("wire: message too short")
)

// MessageType tags the kind of request on the wire.
type MessageType uint16

const (
	TypeNewOrder MessageType = iota
	TypeCancelOrder
	TypeModifyOrder
)

// ReportType tags the kind of response on the wire.
type ReportType uint16

const (
	TypeAccepted ReportType = iota
	TypeRejected
	TypeCancelled
)

const baseHeaderLen = 2 // MessageType

// NewOrderMessage is the wire form of a submission request.
type NewOrderMessage struct {
	Pair        string
	Side        common.Side
	Type        common.OrderType
	TimeInForce common.TimeInForce
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	ExpiresAt   time.Time
	Submitter   string
}

// Draft converts the wire message into an engine.OrderDraft.
func (m NewOrderMessage) Draft() engine.OrderDraft {
	return engine.OrderDraft{
		Submitter:   m.Submitter,
		Pair:        m.Pair,
		Side:        m.Side,
		Type:        m.Type,
		Quantity:    m.Quantity,
		LimitPrice:  m.LimitPrice,
		StopPrice:   m.StopPrice,
		TimeInForce: m.TimeInForce,
		ExpiresAt:   m.ExpiresAt,
	}
}

func writeLenPrefixed(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func readLenPrefixed(msg []byte) (string, []byte, error) {
	if len(msg) < 2 {
		return "", nil, ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	if len(msg) < n {
		return "", nil, ErrMessageTooShort
	}
	return string(msg[:n]), msg[n:], nil
}

// Encode serializes a NewOrderMessage for transmission.
func (m NewOrderMessage) Encode() []byte {
	buf := make([]byte, 0, 64)
	var typeBuf [2]byte
	binary.BigEndian.PutUint16(typeBuf[:], uint16(TypeNewOrder))
	buf = append(buf, typeBuf[:]...)

	buf = writeLenPrefixed(buf, m.Pair)
	buf = append(buf, byte(m.Side), byte(m.Type), byte(m.TimeInForce))
	buf = writeLenPrefixed(buf, m.Quantity.String())
	buf = writeLenPrefixed(buf, m.LimitPrice.String())
	buf = writeLenPrefixed(buf, m.StopPrice.String())

	var expBuf [8]byte
	binary.BigEndian.PutUint64(expBuf[:], uint64(m.ExpiresAt.Unix()))
	buf = append(buf, expBuf[:]...)

	buf = writeLenPrefixed(buf, m.Submitter)
	return buf
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	var m NewOrderMessage

	pair, rest, err := readLenPrefixed(msg)
	if err != nil {
		return m, err
	}
	m.Pair = pair

	if len(rest) < 3 {
		return m, ErrMessageTooShort
	}
	m.Side = common.Side(rest[0])
	m.Type = common.OrderType(rest[1])
	m.TimeInForce = common.TimeInForce(rest[2])
	rest = rest[3:]

	qtyStr, rest, err := readLenPrefixed(rest)
	if err != nil {
		return m, err
	}
	m.Quantity, err = decimal.NewFromString(qtyStr)
	if err != nil {
		return m, err
	}

	priceStr, rest, err := readLenPrefixed(rest)
	if err != nil {
		return m, err
	}
	if priceStr != "" {
		m.LimitPrice, err = decimal.NewFromString(priceStr)
		if err != nil {
			return m, err
		}
	}

	stopStr, rest, err := readLenPrefixed(rest)
	if err != nil {
		return m, err
	}
	if stopStr != "" {
		m.StopPrice, err = decimal.NewFromString(stopStr)
		if err != nil {
			return m, err
		}
	}

	if len(rest) < 8 {
		return m, ErrMessageTooShort
	}
	unix := int64(binary.BigEndian.Uint64(rest[0:8]))
	if unix > 0 {
		m.ExpiresAt = time.Unix(unix, 0)
	}
	rest = rest[8:]

	submitter, _, err := readLenPrefixed(rest)
	if err != nil {
		return m, err
	}
	m.Submitter = submitter

	return m, nil
}

// ModifyOrderMessage is the wire form of a modify request (cancel/replace):
// the engine cancels the order and resubmits it with a fresh id and
// timestamp, so the replacement loses its time priority; fields left unset
// keep their current values. HasNewPrice/HasNewQuantity distinguish "leave
// unchanged" from "set to zero," since the wire form has no room for the
// nil *decimal.Decimal arguments Engine.Modify takes.
type ModifyOrderMessage struct {
	OrderID        uint64
	Submitter      string
	HasNewPrice    bool
	NewPrice       decimal.Decimal
	HasNewQuantity bool
	NewQuantity    decimal.Decimal
}

func (m ModifyOrderMessage) Encode() []byte {
	buf := make([]byte, 0, 48)
	var typeBuf [2]byte
	binary.BigEndian.PutUint16(typeBuf[:], uint16(TypeModifyOrder))
	buf = append(buf, typeBuf[:]...)

	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], m.OrderID)
	buf = append(buf, idBuf[:]...)

	buf = append(buf, boolByte(m.HasNewPrice))
	priceStr := ""
	if m.HasNewPrice {
		priceStr = m.NewPrice.String()
	}
	buf = writeLenPrefixed(buf, priceStr)

	buf = append(buf, boolByte(m.HasNewQuantity))
	qtyStr := ""
	if m.HasNewQuantity {
		qtyStr = m.NewQuantity.String()
	}
	buf = writeLenPrefixed(buf, qtyStr)

	return writeLenPrefixed(buf, m.Submitter)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func parseModifyOrder(msg []byte) (ModifyOrderMessage, error) {
	var m ModifyOrderMessage
	if len(msg) < 9 {
		return m, ErrMessageTooShort
	}
	m.OrderID = binary.BigEndian.Uint64(msg[0:8])
	m.HasNewPrice = msg[8] != 0
	rest := msg[9:]

	priceStr, rest, err := readLenPrefixed(rest)
	if err != nil {
		return m, err
	}
	if m.HasNewPrice {
		m.NewPrice, err = decimal.NewFromString(priceStr)
		if err != nil {
			return m, err
		}
	}

	if len(rest) < 1 {
		return m, ErrMessageTooShort
	}
	m.HasNewQuantity = rest[0] != 0
	rest = rest[1:]

	qtyStr, rest, err := readLenPrefixed(rest)
	if err != nil {
		return m, err
	}
	if m.HasNewQuantity {
		m.NewQuantity, err = decimal.NewFromString(qtyStr)
		if err != nil {
			return m, err
		}
	}

	submitter, _, err := readLenPrefixed(rest)
	if err != nil {
		return m, err
	}
	m.Submitter = submitter

	return m, nil
}

// CancelOrderMessage is the wire form of a cancellation request.
type CancelOrderMessage struct {
	OrderID   uint64
	Submitter string
}

func (m CancelOrderMessage) Encode() []byte {
	buf := make([]byte, 0, 24)
	var typeBuf [2]byte
	binary.BigEndian.PutUint16(typeBuf[:], uint16(TypeCancelOrder))
	buf = append(buf, typeBuf[:]...)

	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], m.OrderID)
	buf = append(buf, idBuf[:]...)

	return writeLenPrefixed(buf, m.Submitter)
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	var m CancelOrderMessage
	if len(msg) < 8 {
		return m, ErrMessageTooShort
	}
	m.OrderID = binary.BigEndian.Uint64(msg[0:8])
	submitter, _, err := readLenPrefixed(msg[8:])
	if err != nil {
		return m, err
	}
	m.Submitter = submitter
	return m, nil
}

// Request is the parsed form of any inbound control-plane message.
type Request struct {
	Type   MessageType
	Order  NewOrderMessage
	Cancel CancelOrderMessage
	Modify ModifyOrderMessage
}

// Decode reads the message-type header and dispatches to the matching
// parser.
func Decode(msg []byte) (Request, error) {
	if len(msg) < baseHeaderLen {
		return Request{}, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]

	switch typeOf {
	case TypeNewOrder:
		order, err := parseNewOrder(body)
		return Request{Type: typeOf, Order: order}, err
	case TypeCancelOrder:
		cancel, err := parseCancelOrder(body)
		return Request{Type: typeOf, Cancel: cancel}, err
	case TypeModifyOrder:
		modify, err := parseModifyOrder(body)
		return Request{Type: typeOf, Modify: modify}, err
	default:
		return Request{}, ErrInvalidMessageType
	}
}

// Report is the wire form of a submission/cancellation outcome.
type Report struct {
	Type    ReportType
	OrderID uint64
	Status  string
	Filled  string
	Reason  string
}

// Encode serializes a Report for transmission.
func (r Report) Encode() []byte {
	buf := make([]byte, 0, 48)
	var typeBuf [2]byte
	binary.BigEndian.PutUint16(typeBuf[:], uint16(r.Type))
	buf = append(buf, typeBuf[:]...)

	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], r.OrderID)
	buf = append(buf, idBuf[:]...)

	buf = writeLenPrefixed(buf, r.Status)
	buf = writeLenPrefixed(buf, r.Filled)
	buf = writeLenPrefixed(buf, r.Reason)
	return buf
}

// DecodeReport parses a Report off the wire, the client-side counterpart
// to Decode.
func DecodeReport(msg []byte) (Report, error) {
	var r Report
	if len(msg) < baseHeaderLen+8 {
		return r, ErrMessageTooShort
	}
	r.Type = ReportType(binary.BigEndian.Uint16(msg[0:2]))
	r.OrderID = binary.BigEndian.Uint64(msg[2:10])
	rest := msg[10:]

	status, rest, err := readLenPrefixed(rest)
	if err != nil {
		return r, err
	}
	r.Status = status

	filled, rest, err := readLenPrefixed(rest)
	if err != nil {
		return r, err
	}
	r.Filled = filled

	reason, _, err := readLenPrefixed(rest)
	if err != nil {
		return r, err
	}
	r.Reason = reason

	return r, nil
}
