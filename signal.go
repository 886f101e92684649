package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContexts splits SIGINT/SIGTERM handling into two stages. graceful
// is canceled by the first signal: serve stops accepting connections and
// drains, send abandons its current Graph call. hard is canceled by the
// second signal and tells serve to drop whatever is still in flight instead
// of waiting out the drain timeout. graceful is derived from hard, so it is
// always canceled by the time hard is.
func shutdownContexts(parent context.Context, logger *slog.Logger) (graceful, hard context.Context) {
	hard, hardCancel := context.WithCancel(parent)
	graceful, gracefulCancel := context.WithCancel(hard)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		defer hardCancel()
		defer gracefulCancel()

		select {
		case sig := <-sigCh:
			logger.Info("shutting down, signal again to stop immediately",
				slog.String("signal", sig.String()),
			)
			gracefulCancel()
		case <-parent.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("second signal, dropping in-flight requests",
				slog.String("signal", sig.String()),
			)
		case <-parent.Done():
		}
	}()

	return graceful, hard
}
