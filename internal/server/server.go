// Package server implements the TCP control-plane transport: it accepts
// NewOrder/CancelOrder wire requests and drives them through the matching
// engine's Submit/Cancel API, writing back a Report per request. Adapted
// from the teacher's internal/net/server.go: same listener-plus-worker-pool
// shape (accept loop hands connections to a bounded pool of goroutines,
// each of which reads one message, processes it, and re-queues the
// connection for its next message), generalized from a single in-process
// Engine interface call to the new matching engine's richer API.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"invoiceswap/internal/engine"
	"invoiceswap/internal/wire"
)

const (
	maxMessageSize     = 4 * 1024
	defaultWorkers     = 16
	defaultConnTimeout = 5 * time.Second
)

// Server is the TCP front door to an Engine.
type Server struct {
	address string
	port    int
	engine  *engine.Engine
	pool    WorkerPool
	cancel  context.CancelFunc
}

// New constructs a Server bound to address:port, submitting every request
// to eng.
func New(address string, port int, eng *engine.Engine) *Server {
	return &Server{
		address: address,
		port:    port,
		engine:  eng,
		pool:    NewWorkerPool(defaultWorkers),
	}
}

// Shutdown cancels the server's run context.
func (s *Server) Shutdown() {
	log.Info().Msg("control-plane server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run accepts connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("error closing listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("control-plane server listening")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				log.Error().Err(err).Msg("error accepting connection")
				continue
			}
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")
			s.pool.AddTask(conn)
		}
	}
}

// handleConnection reads and services exactly one request, then re-queues
// the connection for its next request (the teacher's short-lived-worker
// idiom, so one slow client never monopolizes a pool slot indefinitely).
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return fmt.Errorf("server: unexpected task type %T", task)
	}

	select {
	case <-t.Dying():
		return conn.Close()
	default:
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("failed setting deadline")
		return conn.Close()
	}

	buf := make([]byte, maxMessageSize)
	n, err := conn.Read(buf)
	if err != nil {
		log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
		return conn.Close()
	}

	req, err := wire.Decode(buf[:n])
	if err != nil {
		log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("malformed request")
		_, _ = conn.Write(wire.Report{Type: wire.TypeRejected, Reason: err.Error()}.Encode())
		return conn.Close()
	}

	report := s.dispatch(req)
	if _, err := conn.Write(report.Encode()); err != nil {
		log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("failed writing report")
		return conn.Close()
	}

	s.pool.AddTask(conn)
	return nil
}

func (s *Server) dispatch(req wire.Request) wire.Report {
	switch req.Type {
	case wire.TypeNewOrder:
		res, err := s.engine.Submit(req.Order.Draft())
		if err != nil {
			return wire.Report{Type: wire.TypeRejected, Reason: err.Error()}
		}
		return wire.Report{
			Type:    wire.TypeAccepted,
			OrderID: res.OrderID,
			Status:  res.Order.Status.String(),
			Filled:  res.Order.Filled.String(),
			Reason:  string(res.Warning),
		}

	case wire.TypeCancelOrder:
		order, err := s.engine.Cancel(req.Cancel.OrderID, req.Cancel.Submitter)
		if err != nil {
			return wire.Report{Type: wire.TypeRejected, OrderID: req.Cancel.OrderID, Reason: err.Error()}
		}
		return wire.Report{
			Type:    wire.TypeCancelled,
			OrderID: order.ID,
			Status:  order.Status.String(),
			Filled:  order.Filled.String(),
		}

	case wire.TypeModifyOrder:
		var newPrice, newQuantity *decimal.Decimal
		if req.Modify.HasNewPrice {
			newPrice = &req.Modify.NewPrice
		}
		if req.Modify.HasNewQuantity {
			newQuantity = &req.Modify.NewQuantity
		}
		res, err := s.engine.Modify(req.Modify.OrderID, req.Modify.Submitter, newPrice, newQuantity)
		if err != nil {
			return wire.Report{Type: wire.TypeRejected, OrderID: req.Modify.OrderID, Reason: err.Error()}
		}
		return wire.Report{
			Type:    wire.TypeAccepted,
			OrderID: res.OrderID,
			Status:  res.Order.Status.String(),
			Filled:  res.Order.Filled.String(),
			Reason:  string(res.Warning),
		}

	default:
		return wire.Report{Type: wire.TypeRejected, Reason: "unsupported request type"}
	}
}
