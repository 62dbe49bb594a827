package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/orders"
	"github.com/fjod/go_cart/storefront/internal/session"
)

// app holds every component of one storefront process.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	redis  *redis.Client
	client *api.Client

	sessions *session.Manager
	cart     *cart.Cart
	checkout *checkout.Service
	orders   *orders.Service
	catalog  *catalog.Service
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if cfg.NeedsRedis() {
		rc, err := config.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.redis = rc
		log.Info("redis ping succeeded", "addr", cfg.RedisAddr)
	}

	client, err := api.NewClient(api.Options{
		BaseURL:         cfg.APIBaseURL,
		Timeout:         cfg.RequestTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
		Logger:          log,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create api client: %w", err)
	}
	a.client = client

	var store session.TokenStore = session.NewFileStore(cfg.TokenFile)
	if cfg.TokenStore == "redis" {
		store = session.NewRedisStore(a.redis, cfg.Profile)
	}
	a.sessions = session.NewManager(client, store,
		session.WithLogger(log),
		session.WithOAuth(cfg.APIBaseURL, cfg.OAuthRedirectURL),
	)
	client.SetAuthenticator(a.sessions)

	a.cart = cart.New(cart.NewAPIRemote(client), a.sessions, log)
	a.sessions.OnChange(a.cart.SessionChanged)

	var cache catalog.Cache = catalog.NopCache{}
	if cfg.CatalogCache {
		cache = catalog.NewRedisCache(a.redis, cfg.CatalogCacheTTL)
	}
	a.catalog = catalog.NewService(client, cache, log)
	a.checkout = checkout.NewService(client, a.cart, a.sessions, log)
	a.orders = orders.NewService(client, log)
	return a, nil
}

// restore brings back a persisted session. A backend that cannot be reached
// leaves the process signed out but keeps the stored token.
func (a *app) restore(ctx context.Context) {
	ok, err := a.sessions.Restore(ctx)
	if err != nil {
		a.log.WarnContext(ctx, "restore session failed", "error", err)
		return
	}
	if ok {
		a.log.DebugContext(ctx, "session restored", "user", a.sessions.Current().User.Email)
	}
}

// loadCart reads the server cart for the signed-in user.
func (a *app) loadCart(ctx context.Context) error {
	if !a.sessions.IsAuthenticated() {
		return domain.ErrUnauthenticated
	}
	return a.cart.FetchCartItems(ctx)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.log.Warn("close redis failed", "error", err)
		}
	}
}
