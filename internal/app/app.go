// Package app wires the daemon together: config, logging, storage, the
// scheduling services, background jobs, and hot reload.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindd/internal/clock"
	"remindd/internal/config"
	"remindd/internal/cronjobs"
	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/occurrence"
	"remindd/internal/prefs"
	"remindd/internal/push"
	"remindd/internal/reminder"
	"remindd/internal/runtime/supervisor"
	"remindd/internal/series"
	"remindd/internal/storage"
	"remindd/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store *storage.Store
	clk   clock.Clock

	prefs  *prefs.Service
	occ    *occurrence.Service
	rem    *reminder.Service
	disp   *notify.Dispatcher
	series *series.Resolver

	engine *Engine
	jobs   *cronjobs.Runner
	sup    *supervisor.Supervisor

	pollInterval time.Duration
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	es, err := cfg.EngineSettings()
	if err != nil {
		return nil, err
	}
	ps, err := cfg.PushSettings()
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	var sender push.Sender
	switch ps.Driver {
	case config.PushDriverTelegram:
		tg, err := push.NewTelegram(push.TelegramConfig{Token: ps.TelegramToken},
			log.With(logx.String("comp", "push")))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("push driver: %w", err)
		}
		sender = tg
		log.Info("push enabled", logx.String("driver", ps.Driver))
	case config.PushDriverNone:
		sender = push.Disabled{}
	}

	bus := eventbus.New()
	clk := clock.System{}

	prefsSvc := prefs.New(store, log.With(logx.String("comp", "prefs")))
	occSvc := occurrence.New(store, clk, log.With(logx.String("comp", "occurrence")), bus, es.HorizonDays)
	dispSvc := notify.New(notify.Config{
		PushTimeout:    ps.Timeout,
		PushRatePerSec: ps.RatePerSec,
		RetentionDays:  es.RetentionDays,
	}, store, prefsSvc, sender, clk, log.With(logx.String("comp", "notify")), bus)
	remSvc := reminder.New(reminder.Config{
		BatchSize:       es.BatchSize,
		DispatchTimeout: es.DispatchTimeout,
	}, store, prefsSvc, dispSvc, clk, log.With(logx.String("comp", "reminder")), bus)
	seriesSvc := series.New(store, occSvc, remSvc, clk, log.With(logx.String("comp", "series")), es.HorizonDays)

	a := &App{
		cfgPath:      cfgPath,
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		bus:          bus,
		store:        store,
		clk:          clk,
		prefs:        prefsSvc,
		occ:          occSvc,
		rem:          remSvc,
		disp:         dispSvc,
		series:       seriesSvc,
		jobs:         cronjobs.New(log.With(logx.String("comp", "jobs"))),
		pollInterval: es.PollInterval,
	}
	a.engine = &Engine{app: a}
	return a, nil
}

// Engine exposes the scheduling surface to callers (CLI, transports).
func (a *App) Engine() *Engine { return a.engine }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(false))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	// The firing loop self-heals: transient storage errors restart it
	// with backoff instead of killing the daemon.
	a.sup.GoRestart("reminders.fire", func(c context.Context) error {
		return a.rem.RunFiringLoop(c, a.pollInterval)
	})

	if err := a.registerJobs(); err != nil {
		return err
	}
	a.jobs.Start(a.sup.Context())

	a.watchConfig()
	a.logEvents()

	a.log.Info("daemon started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) registerJobs() error {
	if err := a.jobs.AddInterval("digest.sweep", time.Minute, a.disp.DigestSweep); err != nil {
		return err
	}
	if err := a.jobs.Add("notifications.purge", "30 3 * * *", a.disp.Purge); err != nil {
		return err
	}
	return a.jobs.Add("series.refresh", "15 2 * * *", func(c context.Context) {
		if err := a.occ.RefreshHorizons(c); err != nil {
			a.log.Warn("horizon refresh failed", logx.Err(err))
		}
	})
}

// watchConfig applies hot reloads: logging always, engine knobs where
// live-safe. Storage and push driver changes need a restart.
func (a *App) watchConfig() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Debug("config reload received, no effective changes")
					continue
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)

				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})

				for _, s := range sections {
					if s == "storage" || s == "push" {
						a.log.Warn("section changed; restart required to take effect",
							logx.String("section", s))
					}
				}
			}
		}
	})
}

// logEvents drains the bus at debug level so event flow is visible in
// development without any component subscribing.
func (a *App) logEvents() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stop requested")
	start := time.Now()

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	a.jobs.Stop(stopCtx)

	var err error
	if a.sup != nil {
		err = a.sup.Stop(stopCtx)
	}
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("daemon stopped", logx.Duration("took", time.Since(start)))
	_ = a.logs.Close()
	return err
}
