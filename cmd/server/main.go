// Command server hosts the matching engine: a TCP control plane for order
// submission/cancellation and an HTTP/websocket event stream for
// subscribers, wired together the way the teacher's cmd/main.go wires its
// engine and net.Server, generalized to the new components (wsgateway,
// the sweep-supervised Engine) in place of the single-asset fenrir engine.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"invoiceswap/internal/engine"
	"invoiceswap/internal/server"
	"invoiceswap/internal/wsgateway"
)

const (
	controlPlaneAddr = "0.0.0.0"
	controlPlanePort = 9001
	eventStreamAddr  = "0.0.0.0:9002"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eng := engine.New()
	eng.Start(ctx)

	gateway := wsgateway.New(eng.Sink())
	mux := http.NewServeMux()
	mux.HandleFunc("/events", gateway.ServeHTTP)
	eventSrv := &http.Server{Addr: eventStreamAddr, Handler: mux}

	go func() {
		log.Info().Str("address", eventStreamAddr).Msg("event stream listening")
		if err := eventSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("event stream server failed")
		}
	}()

	tcpSrv := server.New(controlPlaneAddr, controlPlanePort, eng)
	go func() {
		if err := tcpSrv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("control-plane server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = eventSrv.Shutdown(shutdownCtx)

	eng.Stop()
}
