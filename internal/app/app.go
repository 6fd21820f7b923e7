package app

import (
	"context"
	"time"

	"leadnotify/internal/bus"
	"leadnotify/internal/config"
	"leadnotify/internal/delivery"
	"leadnotify/internal/host"
	"leadnotify/internal/janitor"
	"leadnotify/internal/registry"
	"leadnotify/internal/render"
	"leadnotify/internal/runtime/supervisor"
	"leadnotify/internal/service"
	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

// App wires the whole subsystem together: config, logging, store,
// registry, bus, renderer, lifecycle controller and janitor.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	st   store.Store
	ctrl *service.Controller
	jan  *janitor.Janitor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	st, err := openStore(cfg, log)
	if err != nil {
		logs.Close()
		return nil, err
	}

	dataDir := cfg.Device.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}
	reg := registry.New(st, dataDir, log.With(logx.String("comp", "registry")))

	busCfg, err := mapBusConfig(cfg)
	if err != nil {
		_ = st.Close()
		logs.Close()
		return nil, err
	}
	b := bus.New(st, busCfg, log.With(logx.String("comp", "bus")))

	var h host.Host = host.Disabled{}
	if cfg.Notifications.Enabled {
		h = host.NewDesktop(cfg.Notifications.AppName, log.With(logx.String("comp", "host")))
	}
	rend := render.New(h, render.Config{
		Icon:       cfg.Notifications.Icon,
		RatePerSec: cfg.Notifications.RatePerSec,
	}, log.With(logx.String("comp", "render")))

	claimer := delivery.NewClaimer(st, log.With(logx.String("comp", "delivery")))
	ctrl := service.New(h, reg, b, rend, claimer, cfg.Device.UserID, log.With(logx.String("comp", "service")))

	var jan *janitor.Janitor
	if cfg.Janitor.Enabled {
		jan, err = janitor.New(st, cfg.Janitor.Schedule, log.With(logx.String("comp", "janitor")))
		if err != nil {
			_ = st.Close()
			logs.Close()
			return nil, err
		}
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		st:      st,
		ctrl:    ctrl,
		jan:     jan,
	}, nil
}

// Controller exposes the lifecycle controller, which is also the
// producer write path (PublishDomainEvent).
func (a *App) Controller() *service.Controller { return a.ctrl }

// Store exposes the shared store for diagnostics commands.
func (a *App) Store() store.Store { return a.st }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if err := a.ctrl.Initialize(ctx); err != nil {
		return err
	}
	a.log.Info("lifecycle state", logx.String("state", a.ctrl.State().String()))

	if a.jan != nil {
		a.jan.Start()
	}

	// Hot-reload: watch the config file and re-apply logging settings.
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", func(ctx context.Context) {
		ch := a.cfgm.Subscribe(1)
		defer a.cfgm.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-ch:
				if cfg == nil {
					continue
				}
				a.logs.Apply(mapLoggingConfig(cfg))
				a.log.Info("logging config re-applied")
			}
		}
	})

	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.ctrl.Teardown(ctx)
	if a.jan != nil {
		a.jan.Stop()
	}
	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}
	err := a.st.Close()
	_ = a.logs.Close()
	return err
}

// ---- config mapping ----

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func openStore(cfg *config.Config, log logx.Logger) (store.Store, error) {
	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
}

func mapBusConfig(cfg *config.Config) (bus.Config, error) {
	ttl, err := config.ParseDurationOrDefault("bus.ttl", cfg.Bus.TTL, 24*time.Hour)
	if err != nil {
		return bus.Config{}, err
	}
	poll, err := config.ParseDurationOrDefault("bus.poll_interval", cfg.Bus.PollInterval, 2*time.Second)
	if err != nil {
		return bus.Config{}, err
	}
	return bus.Config{
		Window:       cfg.Bus.Window,
		TTL:          ttl,
		PollInterval: poll,
	}, nil
}
