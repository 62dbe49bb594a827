package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	gateway "github.com/fjod/go_cart/storefront/internal/http"
)

func serveCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the local HTTP gateway for a browser UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "overrides STOREFRONT_HTTP_PORT"},
		},
		Action: func(c *cli.Context) error {
			a := get()
			port := a.cfg.HTTPPort
			if c.IsSet("port") {
				port = c.String("port")
			}
			return serve(c.Context, a, ":"+port)
		},
	}
}

// serve blocks until ctx is cancelled, then shuts the server down.
func serve(ctx context.Context, a *app, addr string) error {
	if a.sessions.IsAuthenticated() {
		if err := a.cart.FetchCartItems(ctx); err != nil {
			a.log.WarnContext(ctx, "initial cart fetch failed", "error", err)
		}
	}

	handler := gateway.NewRouter(gateway.Services{
		Session:  a.sessions,
		Cart:     a.cart,
		Checkout: a.checkout,
		Orders:   a.orders,
		Catalog:  a.catalog,
	}, a.log, a.cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: a.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("gateway starting", "addr", addr, "api", a.cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return cli.Exit("server error: "+err.Error(), 1)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return cli.Exit("server forced to shutdown: "+err.Error(), 1)
	}
	a.log.Info("gateway stopped")
	return nil
}
