package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/util"
)

// Stub provider:
// - CreatePayment: returns a link to the local checkout page /pay/stub
// - Webhook: POST /api/webhook signed with X-Signature (HMAC SHA-256 of the body)

type Provider struct {
	secret  string
	baseURL string
}

func New(secret, baseURL string) *Provider {
	return &Provider{secret: secret, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Provider) Name() string { return "stub" }

func (p *Provider) CreatePayment(ctx context.Context, req models.CreatePaymentRequest) (*models.PaymentLink, error) {
	if !req.Amount.Payable() {
		return nil, fmt.Errorf("%w: amount must be positive", errs.ErrGateway)
	}
	id := "stub_" + uuid.NewString()

	q := url.Values{}
	q.Set("request", id)
	q.Set("amount", req.Amount.String())
	q.Set("email", req.Email)
	q.Set("buyer", req.BuyerName)

	link := "/pay/stub?" + q.Encode()
	if p.baseURL != "" {
		link = p.baseURL + link
	}
	return &models.PaymentLink{RequestID: id, URL: link}, nil
}

// Sign returns the X-Signature value for body.
func (p *Provider) Sign(body []byte) string {
	return util.HMACSHA256Hex(p.secret, string(body))
}

type webhookPayload struct {
	PaymentID        string        `json:"payment_id"`
	PaymentRequestID string        `json:"payment_request_id"`
	Status           string        `json:"status"` // Credit/Failed
	Email            string        `json:"email"`
	BuyerName        string        `json:"buyer_name"`
	Amount           models.Amount `json:"amount"`
}

func (p *Provider) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (*models.PaymentNotification, error) {
	sig := headers["x-signature"]
	if sig == "" || sig != p.Sign(body) {
		return nil, errs.ErrInvalidSignature
	}

	var pl webhookPayload
	if err := json.Unmarshal(body, &pl); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if pl.PaymentID == "" {
		pl.PaymentID = "stubpay_" + uuid.NewString()
	}
	status := strings.TrimSpace(pl.Status)
	if status == "" {
		status = "Credit"
	}
	return &models.PaymentNotification{
		PaymentID:        pl.PaymentID,
		PaymentRequestID: pl.PaymentRequestID,
		Status:           status,
		Email:            pl.Email,
		BuyerName:        pl.BuyerName,
		Amount:           pl.Amount,
	}, nil
}
