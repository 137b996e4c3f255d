package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	command "github.com/goliatone/go-command"
	hookrelay "github.com/goliatone/go-hookrelay"
	"github.com/goliatone/go-hookrelay/adapters/gocommand"
	"github.com/goliatone/go-hookrelay/adapters/gologger"
	"github.com/goliatone/go-hookrelay/config"
	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/dedup"
	"github.com/goliatone/go-hookrelay/dispatch"
	"github.com/goliatone/go-hookrelay/inbound"
	"github.com/goliatone/go-hookrelay/maintenance"
	"github.com/goliatone/go-hookrelay/ratelimit"
	sqlstore "github.com/goliatone/go-hookrelay/store/sql"
	"github.com/goliatone/go-hookrelay/transport"
	"github.com/goliatone/go-hookrelay/webhooks"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"golang.org/x/sync/errgroup"
)

type deduplicator interface {
	core.Deduplicator
	core.Pruner
}

// stores are the state-holding collaborators, in memory or SQL backed.
type stores struct {
	seen      deduplicator
	ledger    core.DispatchLedger
	rateState ratelimit.StateStore
	close     func() error
}

// App is the composed relay process.
type App struct {
	cfg        config.AppConfig
	configPath string
	logger     *gologger.ZerologLogger
	provider   *gologger.ZerologProvider

	stores       stores
	relay        *core.Relay
	dispatcher   *dispatch.Dispatcher
	facade       *hookrelay.Facade
	registration *gocommand.RelayRegistration
	jobs         *jobqueuecommand.Registry
	inbound      *inbound.Dispatcher
	server       *inbound.Server
	pruner       *maintenance.Pruner
}

type appOptions struct {
	logOutput io.Writer
	sinks     *hookrelay.SinkRegistry
}

type AppOption func(*appOptions)

func withLogOutput(out io.Writer) AppOption {
	return func(o *appOptions) {
		if out != nil {
			o.logOutput = out
		}
	}
}

func withSinkRegistry(registry *hookrelay.SinkRegistry) AppOption {
	return func(o *appOptions) {
		if registry != nil {
			o.sinks = registry
		}
	}
}

func newLogger(cfg config.AppConfig, out io.Writer) (*gologger.ZerologLogger, *gologger.ZerologProvider) {
	root := gologger.NewZerologLogger(gologger.ZerologOptions{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: out,
	})
	return root, gologger.NewZerologProvider(root)
}

// BuildApp wires storage, sinks, the relay, the command bus, the inbound
// server and the prune schedule. Close releases what it opened.
func BuildApp(ctx context.Context, cfg config.AppConfig, configPath string, opts ...AppOption) (*App, error) {
	options := appOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	logger, provider := newLogger(cfg, options.logOutput)
	app := &App{cfg: cfg, configPath: configPath, logger: logger, provider: provider}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.stores = st
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	registry := options.sinks
	if registry == nil {
		registry = hookrelay.DefaultSinkRegistry(transport.NewRESTAdapter(nil))
	}
	sinks, err := registry.Build(cfg)
	if err != nil {
		return nil, err
	}
	if len(sinks) == 0 {
		logger.Warn("no chat sink configured; notifications will be audited but not sent",
			"audit_sink", dispatch.AuditOnlySink,
		)
	}

	policies := ratelimit.ChainPolicy{}
	if cfg.RateLimit.PerSecond > 0 {
		policies = append(policies, ratelimit.NewTokenBucketPolicy(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst))
	}
	if cfg.RateLimit.Adaptive {
		policies = append(policies, ratelimit.NewAdaptivePolicy(st.rateState))
	}
	app.dispatcher, err = dispatch.New(sinks,
		dispatch.WithRateLimitPolicy(policies),
		dispatch.WithLedger(st.ledger),
		dispatch.WithLoggerProvider(provider),
	)
	if err != nil {
		return nil, err
	}

	app.relay, err = hookrelay.NewRelay(cfg.RelayConfig(),
		hookrelay.WithDeduplicator(st.seen),
		hookrelay.WithNotifier(app.dispatcher),
		hookrelay.WithLoggerProvider(provider),
	)
	if err != nil {
		return nil, err
	}
	app.facade, err = hookrelay.NewFacade(app.relay,
		hookrelay.WithPruner(st.seen),
		hookrelay.WithDispatchReader(st.ledger),
	)
	if err != nil {
		return nil, err
	}

	bus := gocommand.NewRegistryAdapter(command.NewRegistry())
	app.jobs = jobqueuecommand.NewRegistry()
	if err := bus.AddQueueResolver("queue", app.jobs); err != nil {
		return nil, err
	}
	app.registration, err = gocommand.RegisterRelay(bus, gocommand.RelayBindings{
		Relay:  app.relay,
		Pruner: st.seen,
		Ledger: st.ledger,
		Logger: provider.GetLogger("hookrelay.command"),
	})
	if err != nil {
		return nil, err
	}
	if err := bus.Initialize(); err != nil {
		return nil, err
	}

	app.inbound = inbound.NewDispatcher()
	for _, providerID := range cfg.Webhook.Providers {
		secret := cfg.Webhook.SecretFor(providerID)
		template, err := webhooks.TemplateFor(providerID, secret)
		if err != nil {
			return nil, err
		}
		processor := webhooks.NewTemplateProcessor(template, gocommand.BusSubmitter{Source: providerID})
		if err := app.inbound.Register(providerID, processor); err != nil {
			return nil, err
		}
		if secret == "" {
			logger.Warn("webhook signature verification disabled", "provider", providerID)
		}
	}
	app.server = inbound.NewServer(app.inbound, inbound.ServerOptions{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       provider.GetLogger("hookrelay.inbound"),
	})

	jobRunner, err := maintenance.NewJobRunner(app.jobs,
		gologger.ToJobProvider(provider).GetLogger(gologger.JobLoggerName),
	)
	if err != nil {
		return nil, err
	}
	app.pruner, err = maintenance.NewPrunerFunc(maintenance.PruneJob(jobRunner),
		maintenance.WithSchedule(cfg.Dedup.PruneSchedule),
		maintenance.WithLoggerProvider(provider),
	)
	if err != nil {
		return nil, err
	}

	ok = true
	return app, nil
}

func openStores(ctx context.Context, cfg config.AppConfig) (stores, error) {
	if !cfg.Store.Persistent() {
		return stores{
			seen:      dedup.NewMemoryDeduplicator(dedup.Options{MaxEntries: cfg.Dedup.MaxEntries}),
			ledger:    dispatch.NewMemoryLedger(),
			rateState: ratelimit.NewMemoryStateStore(),
			close:     func() error { return nil },
		}, nil
	}

	client, err := sqlstore.Open(ctx, sqlstore.OpenConfig{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
		Debug:  cfg.Logging.Level == "trace",
	})
	if err != nil {
		return stores{}, err
	}
	var factoryOpts []sqlstore.FactoryOption
	if ttl := cfg.RateLimitCacheTTL(); ttl > 0 {
		factoryOpts = append(factoryOpts, sqlstore.WithRateLimitCache(ttl))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		_ = client.Close()
		return stores{}, err
	}
	return stores{
		seen:      factory.SeenEventStore(),
		ledger:    factory.DispatchStore(),
		rateState: factory.RateLimitStateStore(),
		close:     client.Close,
	}, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

func (a *App) Relay() *core.Relay {
	return a.relay
}

func (a *App) Facade() *hookrelay.Facade {
	return a.facade
}

// Serve runs the HTTP server, the prune schedule and, with a config file,
// the routing hot reload until ctx is done.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	var watcher *config.Watcher
	if a.configPath != "" {
		var err error
		watcher, err = config.NewWatcher(config.NewLoader(a.configPath), config.RoutingReload(a.relay),
			config.WithWatchLogger(a.provider.GetLogger("hookrelay.config")),
		)
		if err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.logger.Info("hookrelay listening",
			"addr", listener.Addr().String(),
			"providers", a.inbound.Providers(),
			"sinks", len(a.dispatcher.Sinks()),
			"store", a.cfg.Store.Driver,
		)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("hookrelay: http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := a.pruner.Start(groupCtx); err != nil {
			return err
		}
		<-groupCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
		defer cancel()
		return a.pruner.Stop(stopCtx)
	})
	if watcher != nil {
		group.Go(func() error {
			return watcher.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
		defer cancel()
		a.logger.Info("hookrelay shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.registration != nil {
		a.registration.Unsubscribe()
		a.registration = nil
	}
	if a.stores.close != nil {
		err := a.stores.close()
		a.stores.close = nil
		return err
	}
	return nil
}
