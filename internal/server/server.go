// Package server is the relay's HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-spark/internal/config"
	"startup-spark/internal/errs"
)

const genericFailure = "Something went wrong. Please try again later."

func New(cfg config.Config, log *zap.Logger) *fiber.App {
	fiberConfig := fiber.Config{
		AppName:      "ssgc-relay",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ProxyHeader:  fiber.HeaderXForwardedFor,
		BodyLimit:    cfg.BodyLimit,
		ErrorHandler: ErrorHandler(log),
	}
	if !cfg.IsProduction {
		fiberConfig.EnablePrintRoutes = true
	}

	app := fiber.New(fiberConfig)

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Error("panic", zap.String("path", c.Path()), zap.Any("panic", e), zap.Stack("stack"))
		},
	}))
	app.Use(requestid.New())
	app.Use(RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if cfg.IsProduction {
		app.Use(helmet.New())
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

// Run starts and stops the listener with the fx lifecycle.
func Run(app *fiber.App, cfg config.Config, lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			errChan := make(chan error, 1)

			go func() {
				errChan <- app.Listen(cfg.HTTPAddr)
			}()

			select {
			case err := <-errChan:
				return err
			case <-time.After(100 * time.Millisecond):
				log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
				return nil
			}
		},
		OnStop: func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		},
	})
}

// ErrorHandler turns the errs sentinels into status codes. Internal details
// of 5xx errors are logged, never returned.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := errorResponse(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err))
		}
		return c.Status(status).JSON(body)
	}
}

func errorResponse(err error) (int, fiber.Map) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fiber.Map{"error": fe.Message}
	}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		return fiber.StatusBadRequest, fiber.Map{"error": errs.ErrValidation.Error(), "fields": ve.Fields}
	}

	status := statusOf(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusNotImplemented {
		return status, fiber.Map{"error": genericFailure}
	}
	return status, fiber.Map{"error": err.Error()}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrInvalidStatus), errors.Is(err, errs.ErrInvalidSignature):
		return fiber.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrJWT):
		return fiber.StatusUnauthorized
	case errors.Is(err, errs.ErrPaymentRequired):
		return fiber.StatusPaymentRequired
	case errors.Is(err, errs.ErrForbidden), errors.Is(err, errs.ErrDeadlinePassed):
		return fiber.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyExists), errors.Is(err, errs.ErrTeamLocked):
		return fiber.StatusConflict
	case errors.Is(err, errs.ErrNotImplemented):
		return fiber.StatusNotImplemented
	case errors.Is(err, errs.ErrInProgress), errors.Is(err, errs.ErrQueue):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

func couldNotParse(err error) error {
	return badRequest(fmt.Sprintf("Could not parse request: %v", err))
}
