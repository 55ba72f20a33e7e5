package main

import (
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"startup-spark/internal/auth"
	"startup-spark/internal/config"
	"startup-spark/internal/logging"
	"startup-spark/internal/payments"
	"startup-spark/internal/server"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	opts := []fx.Option{
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	}
	opts = append(opts, provideOptions()...)
	opts = append(opts, fx.Invoke(server.Run))

	fx.New(opts...).Run()
}

func provideOptions() []fx.Option {
	return []fx.Option{
		fx.Provide(config.FromEnv),
		fx.Provide(logging.New),

		fx.Provide(provideStore),
		fx.Provide(provideLocker),
		fx.Provide(provideNotifier),
		fx.Provide(provideReconciler),
		fx.Provide(provideDispatcher),

		fx.Provide(payments.NewProvider),
		fx.Provide(provideRelay),
		fx.Provide(provideRegistration),
		fx.Provide(provideUploader),
		fx.Provide(provideSubmission),
		fx.Provide(provideSheets),
		fx.Provide(provideMailer),
		fx.Provide(provideAdmin),
		fx.Provide(auth.New),
		fx.Provide(provideBot),

		fx.Provide(server.New),
		fx.Invoke(server.RegisterPaymentController),
		fx.Invoke(server.RegisterTeamController),
		fx.Invoke(server.RegisterAdminController),

		fx.Invoke(joinSinks),
		fx.Invoke(runBot),
	}
}
