package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Start launches every listener and returns a channel that is closed once a
// termination signal arrives.
func (a *App) Start() <-chan struct{} {
	for _, s := range a.servers {
		go func() {
			slog.Info("server listening", "name", s.name, "address", s.srv.Addr)
			if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to listen and serve", "name", s.name, "error", err)
				os.Exit(1)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()

		<-ctx.Done()
		a.cancel()
		close(done)
		slog.Info("shutdown signal received")
	}()

	return done
}

// Stop drains the listeners, waits for background workers and then releases
// resources in reverse order of acquisition.
func (a *App) Stop(ctx context.Context) {
	a.cancel()

	for _, s := range a.servers {
		if err := s.srv.Shutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", s.name, "error", err)
		}
	}

	slog.InfoContext(ctx, "waiting for background workers")
	if err := a.goroutine.Wait(); err != nil {
		slog.ErrorContext(ctx, "background worker failed", "error", err)
	}

	a.closeAll(ctx)
	slog.InfoContext(ctx, "application gracefully shutdown")
}
