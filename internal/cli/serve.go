package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/convoflow/internal/logging"
)

// Serve runs the HTTP server and the resume scheduler until ctx is done,
// then shuts both down within the configured timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()
	schedDone := make(chan error, 1)
	go func() {
		schedDone <- a.Engine.Scheduler(a.cfg.ResumeInterval).Run(schedCtx)
	}()

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		a.logger.Info("Starting convoflow server", "addr", ln.Addr().String(), "flows", a.cfg.FlowsDir)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		stopSched()
		<-schedDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		a.logger.Info("Shutting down", "timeout", a.cfg.ShutdownTimeout)

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		stopSched()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.Warn("Graceful shutdown did not complete", logging.Error(err))
			err = srv.Close()
		}
		<-schedDone
		a.logger.Info("Convoflow server stopped")
		return err
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (a *App) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Addr, err)
	}
	return a.Serve(ctx, ln)
}
