package util

import (
	"context"
	"os"
	"os/signal"

	"github.com/airbloc/logger"
)

// ContextWithSignal returns a context canceled when one of given signals is received.
func ContextWithSignal(parent context.Context, sig ...os.Signal) (context.Context, context.CancelFunc) {
	log := logger.New("loadshard.util")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sig...)

	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case sig := <-sigChan:
			log.Warn("{} received, canceling the run.", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
