package server

import (
	"errors"
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-spark/internal/config"
	"startup-spark/internal/errs"
	"startup-spark/internal/payments"
)

type PaymentController struct {
	fx.In

	Cfg   config.Config
	Relay *payments.Relay
	Log   *zap.Logger
}

func RegisterPaymentController(app *fiber.App, c PaymentController) {
	app.Post("/api/create-payment", c.createPayment)
	app.Post("/api/webhook", c.webhook)
	if c.Relay.Provider().Name() == "stub" {
		app.Get("/pay/stub", c.stubPage)
	}
}

func (r PaymentController) createPayment(c *fiber.Ctx) error {
	var in payments.CreateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid payment request",
		})
	}

	origin := c.Get(fiber.HeaderOrigin)
	if origin == "" {
		origin = r.Cfg.BasePublicURL
	}

	link, err := r.Relay.CreatePayment(c.UserContext(), payments.CreateInput{
		Amount:    in.Amount,
		Purpose:   in.Purpose,
		BuyerName: in.BuyerName,
		Email:     in.Email,
		Phone:     in.Phone,
	}, origin)
	if errors.Is(err, errs.ErrValidation) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Amount must be greater than zero",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   payments.GenericFailure,
		})
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"payment_request": link,
	})
}

type signer interface {
	Sign(body []byte) string
}

func (r PaymentController) webhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	headers := map[string]string{}
	c.Request().Header.VisitAll(func(k, v []byte) {
		headers[strings.ToLower(string(k))] = string(v)
	})

	// The local stub checkout page cannot sign, so unsigned stub webhooks are
	// signed here while running locally.
	if s, ok := r.Relay.Provider().(signer); ok && headers["x-signature"] == "" && localOnly(r.Cfg.BasePublicURL) {
		headers["x-signature"] = s.Sign(body)
	}

	if err := r.Relay.HandleWebhook(c.UserContext(), body, headers); errors.Is(err, errs.ErrInvalidSignature) {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid signature")
	}
	return c.Status(fiber.StatusOK).SendString("Webhook received")
}

func localOnly(baseURL string) bool {
	return baseURL == "" || strings.Contains(baseURL, "localhost") || strings.Contains(baseURL, "127.0.0.1")
}

var stubPage = template.Must(template.New("stub").Parse(`<!doctype html><html><head><meta charset="utf-8"><title>Stub Pay</title></head><body>
<h2>Test payment</h2>
<p>Request: {{.Request}}</p>
<p>Amount: Rs. {{.Amount}}</p>
<p>Payer: {{.Buyer}} &lt;{{.Email}}&gt;</p>
<button onclick="send('Credit')">Pay</button>
<button onclick="send('Failed')">Fail</button>
<pre id="out"></pre>
<script>
const payment = {payment_request_id: {{.Request}}, email: {{.Email}}, buyer_name: {{.Buyer}}, amount: {{.Amount}}};
async function send(status){
  const body = JSON.stringify(Object.assign({status}, payment));
  const res = await fetch("/api/webhook", {method: "POST", headers: {"Content-Type": "application/json"}, body});
  document.getElementById("out").textContent = await res.text();
}
</script>
</body></html>`))

func (r PaymentController) stubPage(c *fiber.Ctx) error {
	request := c.Query("request")
	if request == "" {
		return badRequest("request required")
	}
	c.Type("html", "utf-8")
	return stubPage.Execute(c.Response().BodyWriter(), map[string]string{
		"Request": request,
		"Amount":  c.Query("amount"),
		"Email":   c.Query("email"),
		"Buyer":   c.Query("buyer"),
	})
}
