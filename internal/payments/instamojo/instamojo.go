// Package instamojo talks to the Instamojo payment-requests API.
package instamojo

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"startup-spark/internal/errs"
	"startup-spark/internal/models"
)

const DefaultEndpoint = "https://test.instamojo.com/api/1.1"

type Options struct {
	Endpoint    string
	APIKey      string
	AuthToken   string
	PrivateSalt string
	VerifyMAC   bool
	Timeout     time.Duration
	MaxRetries  uint64
	// RetryInitial is the first backoff interval. Defaults to 200ms.
	RetryInitial time.Duration
}

type Provider struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options, log *zap.Logger) *Provider {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 200 * time.Millisecond
	}
	return &Provider{opts: opts, log: log}
}

func (p *Provider) Name() string { return "instamojo" }

type createPayload struct {
	Purpose               string `json:"purpose"`
	Amount                string `json:"amount"`
	BuyerName             string `json:"buyer_name"`
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	RedirectURL           string `json:"redirect_url"`
	Webhook               string `json:"webhook"`
	AllowRepeatedPayments bool   `json:"allow_repeated_payments"`
	SendEmail             bool   `json:"send_email"`
	SendSMS               bool   `json:"send_sms"`
}

type createResponse struct {
	Success        bool               `json:"success"`
	PaymentRequest models.PaymentLink `json:"payment_request"`
}

func (p *Provider) CreatePayment(ctx context.Context, req models.CreatePaymentRequest) (*models.PaymentLink, error) {
	body, err := json.Marshal(createPayload{
		Purpose:               req.Purpose,
		Amount:                req.Amount.String(),
		BuyerName:             req.BuyerName,
		Email:                 req.Email,
		Phone:                 req.Phone,
		RedirectURL:           req.RedirectURL,
		Webhook:               req.WebhookURL,
		AllowRepeatedPayments: false,
		SendEmail:             true,
		SendSMS:               true,
	})
	if err != nil {
		return nil, err
	}

	var b backoff.BackOff = backoff.WithMaxRetries(p.backoff(), p.opts.MaxRetries)
	b = backoff.WithContext(b, ctx)

	var out createResponse
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		code, resBody, err := p.post("/payment-requests/", body)
		if err != nil {
			p.log.Warn("instamojo request failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		if code >= 500 {
			p.log.Warn("instamojo upstream error", zap.Int("attempt", attempt), zap.Int("status", code))
			return fmt.Errorf("upstream status %d", code)
		}
		if code != fiber.StatusOK && code != fiber.StatusCreated {
			p.log.Error("instamojo rejected payment request", zap.Int("status", code), zap.ByteString("body", resBody))
			return backoff.Permanent(fmt.Errorf("upstream status %d", code))
		}
		if err := json.Unmarshal(resBody, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		if !out.Success || out.PaymentRequest.RequestID == "" || out.PaymentRequest.URL == "" {
			return backoff.Permanent(fmt.Errorf("unsuccessful response"))
		}
		return nil
	}, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrGateway, err)
	}
	return &out.PaymentRequest, nil
}

func (p *Provider) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.RetryInitial
	b.MaxElapsedTime = 3 * p.opts.Timeout
	return b
}

func (p *Provider) post(path string, body []byte) (int, []byte, error) {
	a := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(a)

	res := fiber.AcquireResponse()
	defer fiber.ReleaseResponse(res)

	req := a.Request()
	req.Header.SetMethod(fiber.MethodPost)
	req.SetRequestURI(p.opts.Endpoint + path)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.opts.APIKey)
	req.Header.Set("X-Auth-Token", p.opts.AuthToken)
	req.SetBody(body)
	if err := a.Parse(); err != nil {
		return 0, nil, err
	}

	code, resBody, errArr := a.SetResponse(res).Timeout(p.opts.Timeout).Bytes()
	if len(errArr) != 0 {
		return 0, nil, errArr[0]
	}
	return code, append([]byte(nil), resBody...), nil
}

// HandleWebhook accepts the form-encoded callback Instamojo sends, or the same
// fields as JSON.
func (p *Provider) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (*models.PaymentNotification, error) {
	fields, err := decodeFields(body, headers["content-type"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	if p.opts.VerifyMAC {
		if !ValidMAC(fields, p.opts.PrivateSalt) {
			return nil, errs.ErrInvalidSignature
		}
	}

	n := &models.PaymentNotification{
		PaymentID:        fields["payment_id"],
		PaymentRequestID: fields["payment_request_id"],
		Status:           fields["status"],
		Email:            firstNonEmpty(fields["buyer"], fields["email"]),
		BuyerName:        fields["buyer_name"],
	}
	if raw := firstNonEmpty(fields["amount"]); raw != "" {
		var a models.Amount
		if err := a.UnmarshalJSON([]byte(raw)); err == nil {
			n.Amount = a
		}
	}
	return n, nil
}

func decodeFields(body []byte, contentType string) (map[string]string, error) {
	out := map[string]string{}
	trimmed := strings.TrimSpace(string(body))
	if strings.Contains(contentType, "json") || strings.HasPrefix(trimmed, "{") {
		raw := map[string]any{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			switch t := v.(type) {
			case string:
				out[k] = t
			case nil:
			default:
				out[k] = fmt.Sprint(t)
			}
		}
		return out, nil
	}
	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, err
	}
	for k := range values {
		out[k] = values.Get(k)
	}
	return out, nil
}

// ValidMAC checks the "mac" field: HMAC-SHA1 over the other values ordered by
// case-insensitive key and joined with "|".
func ValidMAC(fields map[string]string, salt string) bool {
	got := fields["mac"]
	if got == "" || salt == "" {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(ComputeMAC(fields, salt)))
}

func ComputeMAC(fields map[string]string, salt string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "mac" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return strings.ToLower(keys[i]) < strings.ToLower(keys[j]) })

	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = fields[k]
	}
	m := hmac.New(sha1.New, []byte(salt))
	m.Write([]byte(strings.Join(vals, "|")))
	return hex.EncodeToString(m.Sum(nil))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
