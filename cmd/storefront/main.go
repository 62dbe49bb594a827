package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func newCLI() *cli.App {
	var a *app
	get := func() *app { return a }

	return &cli.App{
		Name:  "storefront",
		Usage: "wedding shop client: sign in, fill the cart, place orders",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files to load before reading STOREFRONT_* variables",
				Value: cli.NewStringSlice(".env"),
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.StringSlice("env-file")...)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat)
			a, err = newApp(c.Context, cfg, log)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			a.restore(c.Context)
			return nil
		},
		After: func(*cli.Context) error {
			if a != nil {
				a.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			loginCommand(get),
			signupCommand(get),
			logoutCommand(get),
			whoamiCommand(get),
			oauthURLCommand(get),
			oauthCallbackCommand(get),
			verifyCommand(get),
			passwordCommand(get),
			catalogCommand(get),
			cartCommand(get),
			checkoutCommand(get),
			finalizeCommand(get),
			ordersCommand(get),
			serveCommand(get),
		},
	}
}

// fail turns a core error into a CLI exit with the message a user should see.
func fail(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(domain.UserMessage(err), exitCode(err))
}

func exitCode(err error) int {
	var (
		validation *domain.ValidationError
		exitErr    cli.ExitCoder
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	case errors.Is(err, domain.ErrUnauthenticated):
		return 3
	case errors.As(err, &validation):
		return 2
	}
	return 1
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
