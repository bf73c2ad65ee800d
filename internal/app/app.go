// Package app wires the stores, health registry, dispatcher and HTTP
// surface into one runnable application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kestrelworks/aviary/internal/adapter/dispatch"
	"github.com/kestrelworks/aviary/internal/adapter/registry"
	"github.com/kestrelworks/aviary/internal/adapter/store"
	"github.com/kestrelworks/aviary/internal/adapter/upstream"
	"github.com/kestrelworks/aviary/internal/config"
	"github.com/kestrelworks/aviary/internal/logger"
	"github.com/kestrelworks/aviary/internal/router"
)

// Application owns every long-lived component and their lifecycle order.
type Application struct {
	config   *config.Config
	server   *http.Server
	logger   *logger.StyledLogger
	registry *router.RouteRegistry

	accounts   *store.AccountStore
	proxies    *store.ProxyStore
	health     *registry.HealthRegistry
	dispatcher *dispatch.Dispatcher
	watcher    *store.Watcher

	watchCancel context.CancelFunc
	errCh       chan error
	startTime   time.Time
}

// New builds the application from configuration. The accounts file must
// load; a missing proxies file only means direct egress.
func New(logger *logger.StyledLogger) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	accounts := store.NewAccountStore(cfg.Files.AccountsPath, cfg.Files.CookiesPath, logger)
	if err := accounts.Load(); err != nil {
		return nil, err
	}
	if accounts.Count() == 0 {
		return nil, fmt.Errorf("no usable accounts in %s", cfg.Files.AccountsPath)
	}

	proxies := store.NewProxyStore(cfg.Files.ProxiesPath, logger)
	if err := proxies.Load(); err != nil {
		logger.Warn("Proxies unavailable, egressing directly", "error", err)
	}

	health := registry.NewHealthRegistry(cfg.Health, logger)
	health.Init(accounts.ListAccounts())

	factory := upstream.NewFactory(cfg.Upstream, cfg.Timeouts, accounts, logger)
	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, cfg.Timeouts, health, accounts, proxies, factory, logger)

	app := &Application{
		config:     cfg,
		logger:     logger,
		registry:   router.NewRouteRegistry(logger),
		accounts:   accounts,
		proxies:    proxies,
		health:     health,
		dispatcher: dispatcher,
		errCh:      make(chan error, 1),
		startTime:  time.Now(),
	}

	// A reload clears terminal statuses; the refreshed population starts
	// from a clean slate
	app.watcher = store.NewWatcher(accounts, proxies, func() {
		health.Reset()
		health.Init(accounts.ListAccounts())
	}, logger)

	app.server = &http.Server{
		Addr:         cfg.Server.GetAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return app, nil
}

// Start brings up the sweep loop, the scheduler, the file watcher and the
// web server.
func (a *Application) Start(ctx context.Context) error {
	go func() {
		select {
		case err := <-a.errCh:
			a.logger.Error("Server startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	a.health.Start()
	a.dispatcher.Start()

	if a.config.Files.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		a.watchCancel = cancel
		if err := a.watcher.Start(watchCtx); err != nil {
			a.logger.Warn("File watcher unavailable", "error", err)
		}
	}

	a.startWebServer()

	a.logger.Info("Aviary started", "bind", a.server.Addr,
		"accounts", a.accounts.Count(), "proxies", a.proxies.Count())
	return nil
}

// Stop tears everything down in reverse order: stop admitting work, then
// drain the dispatcher, then the sweep loop.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
	defer cancel()

	if a.watchCancel != nil {
		a.watchCancel()
	}

	err := a.server.Shutdown(shutdownCtx)

	a.dispatcher.Stop()
	a.health.Stop()

	if err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}
