package server

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"startup-spark/internal/auth"
	"startup-spark/internal/errs"
)

const (
	authScheme   = "Bearer"
	claimsLocals = "claims"
)

// RequestLogger logs one line per request. Handler errors are rendered here
// so the logged status is the one the client saw.
func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
			zap.String("ip", c.IP()))
		return nil
	}
}

func bearer(c *fiber.Ctx) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	l := len(authScheme)
	if len(header) <= l+1 || !strings.EqualFold(header[:l], authScheme) {
		return "", false
	}
	return strings.TrimSpace(header[l+1:]), true
}

// Protected admits requests carrying a valid admin token whose role is in roles.
func Protected(a *auth.Service, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearer(c)
		if !ok {
			return errs.ErrUnauthorized
		}
		claims, err := a.Validate(token)
		if err != nil {
			return err
		}
		if !auth.Allowed(claims.Role, roles...) {
			return errs.ErrForbidden
		}
		c.Locals(claimsLocals, claims)
		return c.Next()
	}
}

// SignedInUser admits requests whose participant token belongs to the
// :userId in the path.
func SignedInUser(a *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearer(c)
		if !ok {
			return errs.ErrUnauthorized
		}
		uid, err := a.VerifyUser(token)
		if err != nil {
			return err
		}
		if uid != c.Params("userId") {
			return errs.ErrForbidden
		}
		return c.Next()
	}
}

func actor(c *fiber.Ctx) string {
	if claims, ok := c.Locals(claimsLocals).(*auth.Claims); ok {
		return claims.Username
	}
	return "unknown"
}
