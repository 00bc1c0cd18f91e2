package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext is canceled by the first SIGINT or SIGTERM, letting the
// gateway session and open streams wind down. The handler is released at
// that point, so a second signal gets the runtime default and kills the
// process.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		stop()

		if parent.Err() == nil {
			logger.Info("shutting down, signal again to force exit")
		}
	}()

	return ctx
}
