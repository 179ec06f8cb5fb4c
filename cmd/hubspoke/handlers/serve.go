package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/imamik/hubspoke/internal/api"
)

// shutdownGrace bounds how long in-flight HTTP requests may take on shutdown.
const shutdownGrace = 30 * time.Second

// listen opens the API listener. Replaced in tests.
var listen = func(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Serve runs the HTTP API until ctx is cancelled. Rollbacks left in
// rolling_back by an earlier process are queued again at startup, and
// forward workflows that stopped recording progress are failed and rolled
// back.
func Serve(ctx context.Context, opts Options, addr string) error {
	return withApp(ctx, opts, func(app *App) error {
		if addr == "" {
			addr = app.Config.Server.Addr
		}

		recovered, err := app.Orchestrator.Recover(ctx)
		if err != nil {
			return fmt.Errorf("failed to recover abandoned deployments: %w", err)
		}
		if recovered > 0 {
			app.Log.Info("recovered abandoned deployments", "count", recovered)
		}

		resumed, err := app.Queue.Resume(ctx, app.Store)
		if err != nil {
			return fmt.Errorf("failed to resume rollbacks: %w", err)
		}
		if resumed > 0 {
			app.Log.Info("resumed interrupted rollbacks", "count", resumed)
		}

		ln, err := listen(addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}

		srv := &http.Server{
			Handler:           api.NewServer(app.Orchestrator, app.Log.WithName("api")).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			app.Log.Info("api listening", "addr", ln.Addr().String())
			errCh <- srv.Serve(ln)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		app.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down api: %w", err)
		}
		return nil
	})
}
