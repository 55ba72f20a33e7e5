package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/notify"
	"startup-spark/internal/store"
	"startup-spark/internal/util"
)

// GenericFailure is the only error text payers ever see from createPayment.
const GenericFailure = "Payment creation failed. Please try again later."

type Store interface {
	UpsertPayment(ctx context.Context, p *models.Payment) error
	SavePaymentRequest(ctx context.Context, r *models.PaymentRequest) error
	GetPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error)
}

// Dispatcher is told about every credited payment.
type Dispatcher interface {
	ReconcilePayment(ctx context.Context, paymentID string) error
}

type CreateInput struct {
	Amount    models.Amount `json:"amount"`
	Purpose   string        `json:"purpose"`
	BuyerName string        `json:"buyerName"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	TeamID    string        `json:"-"`
}

// Relay forwards payment requests to the gateway and records what comes back.
type Relay struct {
	provider   PaymentProvider
	store      Store
	dispatcher Dispatcher
	notifier   notify.Notifier
	publicURL  string
	log        *zap.Logger
	now        func() time.Time
}

func NewRelay(provider PaymentProvider, st Store, dispatcher Dispatcher, notifier notify.Notifier, publicURL string, log *zap.Logger) *Relay {
	return &Relay{
		provider:   provider,
		store:      st,
		dispatcher: dispatcher,
		notifier:   notifier,
		publicURL:  strings.TrimRight(publicURL, "/"),
		log:        log,
		now:        time.Now,
	}
}

func (r *Relay) Provider() PaymentProvider { return r.provider }

// CreatePayment validates the amount locally, asks the gateway for a payment
// request and remembers it so the webhook can be attributed later.
func (r *Relay) CreatePayment(ctx context.Context, in CreateInput, origin string) (*models.PaymentLink, error) {
	if !in.Amount.Payable() {
		return nil, errs.Invalid("amount", "gt")
	}
	origin = strings.TrimRight(origin, "/")
	hookBase := r.publicURL
	if hookBase == "" {
		hookBase = origin
	}

	req := models.CreatePaymentRequest{
		Purpose:     in.Purpose,
		Amount:      in.Amount,
		BuyerName:   in.BuyerName,
		Email:       in.Email,
		Phone:       in.Phone,
		RedirectURL: origin + "/payment/success",
		WebhookURL:  hookBase + "/api/webhook",
		TeamID:      in.TeamID,
	}
	link, err := r.provider.CreatePayment(ctx, req)
	if err != nil {
		r.log.Error("payment creation error", zap.String("provider", r.provider.Name()), zap.Error(err))
		if errors.Is(err, errs.ErrGateway) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrGateway, err)
	}

	pr := &models.PaymentRequest{
		RequestID: link.RequestID,
		Provider:  r.provider.Name(),
		TeamID:    in.TeamID,
		Email:     util.NormalizeEmail(in.Email),
		BuyerName: in.BuyerName,
		Phone:     in.Phone,
		Amount:    in.Amount,
		Purpose:   in.Purpose,
		LongURL:   link.URL,
		CreatedAt: r.now(),
	}
	if err := r.store.SavePaymentRequest(ctx, pr); err != nil {
		// The payer can still pay; the email scan will find the payment.
		r.log.Warn("save payment request", zap.String("request", link.RequestID), zap.Error(err))
	}
	return link, nil
}

// HandleWebhook records the gateway callback. Only a bad signature is
// reported to the caller; everything else is logged so the gateway always
// gets its acknowledgement.
func (r *Relay) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) error {
	n, err := r.provider.HandleWebhook(ctx, body, headers)
	if errors.Is(err, errs.ErrInvalidSignature) {
		r.log.Warn("webhook signature rejected", zap.String("provider", r.provider.Name()))
		return err
	}
	if err != nil {
		r.log.Warn("webhook not understood", zap.Error(err))
		return nil
	}

	r.log.Info("payment webhook",
		zap.String("payment_id", n.PaymentID),
		zap.String("payment_request_id", n.PaymentRequestID),
		zap.String("status", n.Status))

	if n.PaymentID == "" {
		return nil
	}

	p := r.paymentFrom(ctx, n)
	if err := r.store.UpsertPayment(ctx, p); err != nil {
		r.log.Error("store webhook payment", zap.String("payment_id", p.PaymentID), zap.Error(err))
		return nil
	}

	if err := r.notifier.Notify(ctx, notify.Event{Kind: notify.KindPaymentReceived, Payment: p}); err != nil {
		r.log.Warn("notify payment received", zap.Error(err))
	}

	if p.Status == models.StatusPaid {
		if err := r.dispatcher.ReconcilePayment(ctx, p.PaymentID); err != nil {
			// The periodic sweep picks it up.
			r.log.Warn("dispatch reconcile", zap.String("payment_id", p.PaymentID), zap.Error(err))
		}
	}
	return nil
}

func (r *Relay) paymentFrom(ctx context.Context, n *models.PaymentNotification) *models.Payment {
	now := r.now()
	p := &models.Payment{
		PaymentID:        n.PaymentID,
		GatewayPaymentID: n.PaymentID,
		PaymentRequestID: n.PaymentRequestID,
		Email:            util.NormalizeEmail(n.Email),
		BuyerName:        n.BuyerName,
		Amount:           n.Amount,
		Status:           n.PaymentStatus(),
		TeamID:           n.TeamID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if n.PaymentRequestID == "" {
		return p
	}

	pr, err := r.store.GetPaymentRequest(ctx, n.PaymentRequestID)
	if errors.Is(err, store.ErrNotFound) {
		return p
	}
	if err != nil {
		r.log.Warn("load payment request", zap.String("request", n.PaymentRequestID), zap.Error(err))
		return p
	}
	if p.Email == "" {
		p.Email = pr.Email
	}
	if p.BuyerName == "" {
		p.BuyerName = pr.BuyerName
	}
	if p.Amount == 0 {
		p.Amount = pr.Amount
	}
	if p.TeamID == "" {
		p.TeamID = pr.TeamID
	}
	return p
}
