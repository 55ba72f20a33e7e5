package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-spark/internal/admin"
	"startup-spark/internal/config"
	"startup-spark/internal/jobs"
	"startup-spark/internal/lock"
	"startup-spark/internal/mailer"
	"startup-spark/internal/notify"
	"startup-spark/internal/payments"
	"startup-spark/internal/reconcile"
	"startup-spark/internal/registration"
	"startup-spark/internal/server"
	"startup-spark/internal/sheets"
	"startup-spark/internal/storage"
	"startup-spark/internal/store"
	"startup-spark/internal/store/memory"
	"startup-spark/internal/store/mongo"
	"startup-spark/internal/submission"
	"startup-spark/internal/tgbot"
)

const defaultSweepEvery = 5 * time.Minute

func provideStore(cfg config.Config, lc fx.Lifecycle, log *zap.Logger) (store.Store, error) {
	if cfg.Store.Backend == "memory" {
		log.Warn("using the in-memory store, data is lost on restart")
		return memory.New(), nil
	}
	st, err := mongo.Connect(context.Background(), cfg.Store.MongoURI, cfg.Store.MongoDatabase, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: st.Close})
	return st, nil
}

func provideLocker(cfg config.Config, lc fx.Lifecycle, log *zap.Logger) (lock.Locker, error) {
	if !cfg.RedisEnabled() {
		log.Info("redis not configured, reconcile locks are process-local")
		return lock.NewLocal(), nil
	}
	client, err := lock.ProvideRedis(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	return lock.NewRedis(client), nil
}

// provideNotifier returns the hub sinks join later and the async front the
// services publish to.
func provideNotifier(log *zap.Logger) (*notify.Hub, notify.Notifier) {
	hub := &notify.Hub{}
	return hub, notify.NewAsync(hub, log)
}

func provideReconciler(st store.Store, locker lock.Locker, n notify.Notifier, log *zap.Logger) (*reconcile.Service, server.Reconciler) {
	rec := reconcile.New(st, locker, n, log)
	return rec, rec
}

func provideDispatcher(cfg config.Config, rec *reconcile.Service, lc fx.Lifecycle, log *zap.Logger) jobs.Dispatcher {
	if cfg.RedisEnabled() {
		q := jobs.NewQueue(cfg, log)
		w := jobs.NewWorker(cfg, jobs.NewHandlers(rec, log), log)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return w.Start() },
			OnStop: func(context.Context) error {
				w.Stop()
				return q.Close()
			},
		})
		return q
	}

	in := jobs.NewInline(rec, log)
	ctx, cancel := context.WithCancel(context.Background())
	tickerDone := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			every := sweepEvery(cfg.Event.SweepInterval, log)
			if every <= 0 {
				close(tickerDone)
				return nil
			}
			go func() {
				defer close(tickerDone)
				in.Ticker(ctx, every)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-tickerDone
			in.Close()
			return nil
		},
	})
	return in
}

// sweepEvery turns an "@every 5m" schedule into a ticker interval. Cron
// expressions need the asynq scheduler; without Redis they fall back to the
// default interval.
func sweepEvery(schedule string, log *zap.Logger) time.Duration {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return 0
	}
	d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(schedule, "@every")))
	if err != nil || d <= 0 {
		log.Warn("sweep schedule needs redis, using the default interval",
			zap.String("schedule", schedule), zap.Duration("every", defaultSweepEvery))
		return defaultSweepEvery
	}
	return d
}

func provideRelay(cfg config.Config, provider payments.PaymentProvider, st store.Store, d jobs.Dispatcher, n notify.Notifier, log *zap.Logger) *payments.Relay {
	return payments.NewRelay(provider, st, d, n, cfg.BasePublicURL, log)
}

func provideRegistration(cfg config.Config, st store.Store, relay *payments.Relay, d jobs.Dispatcher, n notify.Notifier, log *zap.Logger) *registration.Service {
	return registration.New(st, relay, d, n, cfg, log)
}

func provideUploader(cfg config.Config, log *zap.Logger) (storage.Uploader, error) {
	return storage.New(context.Background(), cfg, log)
}

func provideSubmission(st store.Store, up storage.Uploader, log *zap.Logger) *submission.Service {
	return submission.New(st, up, log)
}

func provideSheets(cfg config.Config, log *zap.Logger) (*sheets.Client, error) {
	return sheets.New(context.Background(), cfg, log)
}

func provideMailer(cfg config.Config, log *zap.Logger) *mailer.Mailer {
	return mailer.New(cfg, log)
}

func provideAdmin(st store.Store, d jobs.Dispatcher, rec *reconcile.Service, sh *sheets.Client, n notify.Notifier, log *zap.Logger) *admin.Service {
	var exporter admin.RosterExporter
	if sh != nil {
		exporter = sh
	}
	return admin.New(st, d, rec, exporter, n, log)
}

func provideBot(cfg config.Config, adm *admin.Service, log *zap.Logger) (*tgbot.App, error) {
	return tgbot.New(cfg, adm, log)
}

// joinSinks adds every configured channel to the hub. The nil checks matter:
// a nil *Mailer inside the interface would not be nil.
func joinSinks(hub *notify.Hub, bot *tgbot.App, m *mailer.Mailer, sh *sheets.Client, log *zap.Logger) {
	if bot != nil {
		hub.Add(bot)
	}
	if m != nil {
		hub.Add(m)
	}
	if sh != nil {
		hub.Add(sh)
	}
	log.Info("notification sinks ready", zap.Int("sinks", hub.Len()))
}

func runBot(bot *tgbot.App, lc fx.Lifecycle, log *zap.Logger) {
	if bot == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("telegram bot stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
