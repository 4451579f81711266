// Command client is a lean CLI for placing and cancelling orders against
// the control-plane server, adapted from the teacher's cmd/client/client.go
// flag-driven shape but delegating wire encoding entirely to the wire
// package instead of hand-packing buffers inline.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoiceswap/internal/common"
	"invoiceswap/internal/wire"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the matching engine's control plane")
	submitter := flag.String("submitter", "", "submitter identifier (required)")
	action := flag.String("action", "place", "action to perform: 'place', 'cancel', or 'modify'")

	pair := flag.String("pair", "", "trading pair (required for 'place')")
	sideStr := flag.String("side", "buy", "order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "order type: 'market', 'limit', 'stop', 'stop_limit'")
	tifStr := flag.String("tif", "gtc", "time in force: 'gtc', 'ioc', 'fok', 'gtd'")
	qty := flag.String("qty", "", "quantity (required for 'place')")
	price := flag.String("price", "", "limit price")
	stopPrice := flag.String("stop-price", "", "stop price")
	expiresIn := flag.Duration("expires-in", 0, "time until expiry, for tif=gtd")

	orderID := flag.Uint64("order-id", 0, "order id to cancel/modify (required for 'cancel' and 'modify')")

	flag.Parse()

	if *submitter == "" {
		fmt.Fprintln(os.Stderr, "Error: -submitter is required.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	var req []byte
	switch strings.ToLower(*action) {
	case "place":
		msg, err := buildNewOrder(*submitter, *pair, *sideStr, *typeStr, *tifStr, *qty, *price, *stopPrice, *expiresIn)
		if err != nil {
			log.Fatalf("invalid order: %v", err)
		}
		req = msg.Encode()
	case "cancel":
		if *orderID == 0 {
			log.Fatal("Error: -order-id is required for cancel")
		}
		req = wire.CancelOrderMessage{OrderID: *orderID, Submitter: *submitter}.Encode()
	case "modify":
		if *orderID == 0 {
			log.Fatal("Error: -order-id is required for modify")
		}
		msg, err := buildModifyOrder(*orderID, *submitter, *price, *qty)
		if err != nil {
			log.Fatalf("invalid modify request: %v", err)
		}
		req = msg.Encode()
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	if _, err := conn.Write(req); err != nil {
		log.Fatalf("failed to send request: %v", err)
	}

	buf := make([]byte, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		log.Fatalf("failed to read report: %v", err)
	}
	printReport(buf[:n])
}

func buildNewOrder(submitter, pair, sideStr, typeStr, tifStr, qtyStr, priceStr, stopStr string, expiresIn time.Duration) (wire.NewOrderMessage, error) {
	if pair == "" || qtyStr == "" {
		return wire.NewOrderMessage{}, fmt.Errorf("-pair and -qty are required for 'place'")
	}

	side := common.Buy
	if strings.EqualFold(sideStr, "sell") {
		side = common.Sell
	}

	var orderType common.OrderType
	switch strings.ToLower(typeStr) {
	case "market":
		orderType = common.Market
	case "limit":
		orderType = common.Limit
	case "stop":
		orderType = common.Stop
	case "stop_limit":
		orderType = common.StopLimit
	default:
		return wire.NewOrderMessage{}, fmt.Errorf("unknown order type %q", typeStr)
	}

	var tif common.TimeInForce
	switch strings.ToLower(tifStr) {
	case "gtc":
		tif = common.GTC
	case "ioc":
		tif = common.IOC
	case "fok":
		tif = common.FOK
	case "gtd":
		tif = common.GTD
	default:
		return wire.NewOrderMessage{}, fmt.Errorf("unknown time in force %q", tifStr)
	}

	qty, err := decimal.NewFromString(qtyStr)
	if err != nil {
		return wire.NewOrderMessage{}, fmt.Errorf("invalid quantity: %w", err)
	}

	msg := wire.NewOrderMessage{
		Pair:        pair,
		Side:        side,
		Type:        orderType,
		TimeInForce: tif,
		Quantity:    qty,
		Submitter:   submitter,
	}
	if priceStr != "" {
		msg.LimitPrice, err = decimal.NewFromString(priceStr)
		if err != nil {
			return wire.NewOrderMessage{}, fmt.Errorf("invalid price: %w", err)
		}
	}
	if stopStr != "" {
		msg.StopPrice, err = decimal.NewFromString(stopStr)
		if err != nil {
			return wire.NewOrderMessage{}, fmt.Errorf("invalid stop price: %w", err)
		}
	}
	if tif == common.GTD {
		msg.ExpiresAt = time.Now().Add(expiresIn)
	}
	return msg, nil
}

// buildModifyOrder builds a modify request that changes only the fields the
// caller supplied; an empty -price or -qty leaves that field unchanged.
func buildModifyOrder(orderID uint64, submitter, priceStr, qtyStr string) (wire.ModifyOrderMessage, error) {
	msg := wire.ModifyOrderMessage{OrderID: orderID, Submitter: submitter}

	if priceStr != "" {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return wire.ModifyOrderMessage{}, fmt.Errorf("invalid price: %w", err)
		}
		msg.HasNewPrice = true
		msg.NewPrice = price
	}

	if qtyStr != "" {
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return wire.ModifyOrderMessage{}, fmt.Errorf("invalid quantity: %w", err)
		}
		msg.HasNewQuantity = true
		msg.NewQuantity = qty
	}

	if !msg.HasNewPrice && !msg.HasNewQuantity {
		return wire.ModifyOrderMessage{}, fmt.Errorf("-price and/or -qty is required for 'modify'")
	}

	return msg, nil
}

func printReport(data []byte) {
	report, err := wire.DecodeReport(data)
	if err != nil {
		fmt.Printf("malformed report: %v\n", err)
		return
	}
	if report.Type == wire.TypeRejected {
		fmt.Printf("REJECTED order_id=%d reason=%s\n", report.OrderID, report.Reason)
		return
	}
	fmt.Printf("order_id=%d status=%s filled=%s reason=%s\n", report.OrderID, report.Status, report.Filled, report.Reason)
}
