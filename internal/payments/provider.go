package payments

import (
	"context"

	"startup-spark/internal/models"
)

type PaymentProvider interface {
	Name() string

	// CreatePayment asks the gateway for a payment request and returns where to send the payer.
	CreatePayment(ctx context.Context, req models.CreatePaymentRequest) (*models.PaymentLink, error)

	// HandleWebhook validates a gateway callback and decodes it.
	// A bad MAC yields errs.ErrInvalidSignature.
	HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (*models.PaymentNotification, error)
}
