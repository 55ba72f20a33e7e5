package payments

import (
	"fmt"

	"go.uber.org/zap"

	"startup-spark/internal/config"
	"startup-spark/internal/payments/instamojo"
	"startup-spark/internal/payments/stub"
)

func NewProvider(cfg config.Config, log *zap.Logger) (PaymentProvider, error) {
	switch cfg.Gateway.PaymentProvider {
	case "stub":
		return stub.New(cfg.Gateway.PaymentWebhookSecret, cfg.BasePublicURL), nil
	case "instamojo":
		return instamojo.New(instamojo.Options{
			Endpoint:    cfg.Gateway.InstamojoEndpoint,
			APIKey:      cfg.Gateway.InstamojoAPIKey,
			AuthToken:   cfg.Gateway.InstamojoAuthToken,
			PrivateSalt: cfg.Gateway.InstamojoPrivateSalt,
			VerifyMAC:   cfg.Gateway.WebhookVerify,
			Timeout:     cfg.Gateway.Timeout,
			MaxRetries:  cfg.Gateway.MaxRetries,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.Gateway.PaymentProvider)
	}
}
