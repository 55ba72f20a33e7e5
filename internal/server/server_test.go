package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startup-spark/internal/admin"
	"startup-spark/internal/auth"
	"startup-spark/internal/config"
	"startup-spark/internal/jobs"
	"startup-spark/internal/lock"
	"startup-spark/internal/models"
	"startup-spark/internal/notify"
	"startup-spark/internal/payments"
	"startup-spark/internal/payments/stub"
	"startup-spark/internal/reconcile"
	"startup-spark/internal/registration"
	"startup-spark/internal/storage"
	"startup-spark/internal/store/memory"
	"startup-spark/internal/submission"
)

type testEnv struct {
	app   *fiber.App
	auth  *auth.Service
	st    *memory.Store
	disp  *jobs.Inline
	rec   *notify.Recorder
	stub  *stub.Provider
	relay *payments.Relay
}

func newEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)

	cfg := config.Config{AllowedOrigins: "*"}
	cfg.Event.CostPerMember = 200
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.JWTTTL = time.Hour
	cfg.AdminAccounts = map[string]config.AdminAccount{
		"ops": {Username: "ops", Role: auth.RoleAdmin, PasswordHash: hash},
		"cfo": {Username: "cfo", Role: auth.RoleFinance, PasswordHash: hash},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	log := zap.NewNop()
	env := &testEnv{st: memory.New(), rec: &notify.Recorder{}, stub: stub.New("whsec", "")}
	recon := reconcile.New(env.st, lock.NewLocal(), env.rec, log)
	env.disp = jobs.NewInline(recon, log)
	t.Cleanup(env.disp.Close)
	env.relay = payments.NewRelay(env.stub, env.st, env.disp, env.rec, cfg.BasePublicURL, log)
	reg := registration.New(env.st, env.relay, env.disp, env.rec, cfg, log)
	subs := submission.New(env.st, storage.Disabled{}, log)
	adm := admin.New(env.st, env.disp, recon, nil, env.rec, log)

	env.auth = auth.New(cfg, log)
	env.app = New(cfg, log)
	RegisterPaymentController(env.app, PaymentController{Cfg: cfg, Relay: env.relay, Log: log})
	RegisterTeamController(env.app, TeamController{Cfg: cfg, Auth: env.auth, Registration: reg, Submissions: subs, Reconciler: recon, Admin: adm, Log: log})
	RegisterAdminController(env.app, AdminController{Admin: adm, Auth: env.auth, Submissions: subs, Log: log})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (e *testEnv) login(t *testing.T, user string) map[string]string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"username": user, "password": "hunter2"}, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + out.Token}
}

// as returns the headers of a participant signed in as uid.
func (e *testEnv) as(t *testing.T, uid string) map[string]string {
	t.Helper()
	token, _, err := e.auth.Issue(uid, auth.RoleUser)
	require.NoError(t, err)
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

var rocket = map[string]any{
	"teamName": "Rocket",
	"teamSize": 2,
	"members": []map[string]string{
		{"name": "Alice", "phone": "111", "email": "alice@x.com"},
		{"name": "Bob", "phone": "222", "email": "bob@x.com"},
	},
}

func TestCreatePaymentRejectsNonPositiveAmount(t *testing.T) {
	env := newEnv(t, nil)
	for _, amount := range []any{0, "-5", "0.00"} {
		status, body := env.do(t, http.MethodPost, "/api/create-payment", map[string]any{"amount": amount, "email": "a@x.com"}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.JSONEq(t, `{"success":false,"error":"Amount must be greater than zero"}`, string(body))
	}

	for _, raw := range []string{`{"amount": "lots"}`, `{"amount": "NaN"}`, `{"amount": "Infinity"}`} {
		status, body := env.do(t, http.MethodPost, "/api/create-payment", []byte(raw), nil)
		assert.Equal(t, http.StatusBadRequest, status, raw)
		assert.Contains(t, string(body), `"success":false`)
	}
}

func TestCreatePaymentSuccess(t *testing.T) {
	env := newEnv(t, nil)
	status, body := env.do(t, http.MethodPost, "/api/create-payment", map[string]any{
		"amount": "400", "purpose": "SSGC", "buyerName": "Alice", "email": "alice@x.com", "phone": "111",
	}, map[string]string{fiber.HeaderOrigin: "https://ssgc.example"})
	require.Equal(t, http.StatusOK, status, string(body))

	var out struct {
		Success        bool               `json:"success"`
		PaymentRequest models.PaymentLink `json:"payment_request"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.Success)
	assert.Contains(t, out.PaymentRequest.URL, "/pay/stub?")

	pr, err := env.st.GetPaymentRequest(context.Background(), out.PaymentRequest.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(400), pr.Amount)
}

func TestRegisterPayAndConfirm(t *testing.T) {
	env := newEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/api/teams/u1", rocket, env.as(t, "u1"))
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = env.do(t, http.MethodPost, "/api/teams/u1/reconcile", nil, env.as(t, "u1"))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Payment not yet confirmed.")

	hdr := env.as(t, "u1")
	hdr[fiber.HeaderOrigin] = "https://ssgc.example"
	status, body = env.do(t, http.MethodPost, "/api/teams/u1/initiate", nil, hdr)
	require.Equal(t, http.StatusOK, status, string(body))
	var init registration.Initiation
	require.NoError(t, json.Unmarshal(body, &init))
	require.NotEmpty(t, init.RequestID)
	assert.Equal(t, models.StatusInitiated, init.Team.PaymentStatus)

	// Unsigned, as the local checkout page sends it.
	hook := []byte(`{"payment_id":"P1","payment_request_id":"` + init.RequestID + `","status":"Credit"}`)
	status, body = env.do(t, http.MethodPost, "/api/webhook", hook, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Webhook received", string(body))
	env.disp.Wait()

	p, err := env.st.GetPayment(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.TeamID)
	assert.Equal(t, "alice@x.com", p.Email)

	status, body = env.do(t, http.MethodGet, "/api/teams/u1", nil, env.as(t, "u1"))
	require.Equal(t, http.StatusOK, status)
	var reg registration.Registration
	require.NoError(t, json.Unmarshal(body, &reg))
	assert.Equal(t, models.StatusPaid, reg.Team.PaymentStatus)
	assert.Contains(t, env.rec.Kinds(), notify.KindTeamPaid)
}

func TestWebhookSignatureEnforcedOffLocalhost(t *testing.T) {
	env := newEnv(t, func(c *config.Config) { c.BasePublicURL = "https://api.ssgc.example" })
	hook := []byte(`{"payment_id":"P9","status":"Credit"}`)

	status, body := env.do(t, http.MethodPost, "/api/webhook", hook, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid signature", string(body))

	status, _ = env.do(t, http.MethodPost, "/api/webhook", hook, map[string]string{"X-Signature": env.stub.Sign(hook)})
	assert.Equal(t, http.StatusOK, status)
	env.disp.Wait()
	_, err := env.st.GetPayment(context.Background(), "P9")
	assert.NoError(t, err)
}

func TestWebhookGarbageStillAcknowledged(t *testing.T) {
	env := newEnv(t, nil)
	status, body := env.do(t, http.MethodPost, "/api/webhook", []byte(`not json`), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Webhook received", string(body))
}

func TestStubPage(t *testing.T) {
	env := newEnv(t, nil)
	status, body := env.do(t, http.MethodGet, "/pay/stub?request=stub_1&amount=400.00&email=a%40x.com&buyer=%3Cb%3E", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "stub_1")
	assert.NotContains(t, string(body), "<b>")

	status, _ = env.do(t, http.MethodGet, "/pay/stub", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRegisterErrors(t *testing.T) {
	env := newEnv(t, nil)

	bad := map[string]any{"teamName": "Rocket", "teamSize": 7, "members": []any{}}
	status, body := env.do(t, http.MethodPost, "/api/teams/u1", bad, env.as(t, "u1"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), `"fields"`)

	status, _ = env.do(t, http.MethodGet, "/api/teams/nobody", nil, env.as(t, "nobody"))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/api/teams/nobody/reconcile", nil, env.as(t, "nobody"))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/api/teams/u1", rocket, env.as(t, "u1"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = env.do(t, http.MethodPost, "/api/teams/u1/initiate", nil, env.as(t, "u1"))
	require.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodPost, "/api/teams/u1", rocket, env.as(t, "u1"))
	assert.Equal(t, http.StatusConflict, status)
}

func TestTeamRoutesBelongToTheirUser(t *testing.T) {
	env := newEnv(t, nil)
	status, _ := env.do(t, http.MethodPost, "/api/teams/victim", rocket, env.as(t, "victim"))
	require.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodGet, "/api/teams/victim", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/api/users/victim", nil, map[string]string{fiber.HeaderAuthorization: "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	// Organizer tokens are not participant tokens.
	status, _ = env.do(t, http.MethodGet, "/api/teams/victim", nil, env.login(t, "ops"))
	assert.Equal(t, http.StatusUnauthorized, status)

	attacker := env.as(t, "attacker")
	takeover := map[string]any{
		"teamName": "Stolen",
		"teamSize": 1,
		"members":  []map[string]string{{"name": "Mallory", "phone": "666", "email": "m@x.com"}},
	}
	status, _ = env.do(t, http.MethodPost, "/api/teams/victim", takeover, attacker)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = env.do(t, http.MethodGet, "/api/teams/victim", nil, attacker)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = env.do(t, http.MethodPost, "/api/teams/victim/initiate", nil, attacker)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = env.do(t, http.MethodPut, "/api/users/victim", map[string]string{"name": "Mallory"}, attacker)
	assert.Equal(t, http.StatusForbidden, status)

	team, err := env.st.GetTeam(context.Background(), "victim")
	require.NoError(t, err)
	assert.Equal(t, "Rocket", team.TeamName)
	assert.Equal(t, models.StatusPending, team.PaymentStatus)

	status, _ = env.do(t, http.MethodGet, "/api/sponsors", nil, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRegisterFiveMembers(t *testing.T) {
	env := newEnv(t, nil)
	members := []map[string]string{}
	for _, name := range []string{"Alice", "Bob", "Carol", "Dan", "Eve"} {
		members = append(members, map[string]string{"name": name, "phone": "111", "email": strings.ToLower(name) + "@x.com"})
	}
	full := map[string]any{"teamName": "Full House", "teamSize": 5, "members": members}

	status, body := env.do(t, http.MethodPost, "/api/teams/u5", full, env.as(t, "u5"))
	require.Equal(t, http.StatusCreated, status, string(body))

	var reg registration.Registration
	require.NoError(t, json.Unmarshal(body, &reg))
	assert.Len(t, reg.Team.Members, 5)
	assert.Equal(t, 5, reg.Team.TeamSize)
	assert.Equal(t, models.Amount(1000), reg.AmountPayable)
}

func TestSubmissionRequiresPayment(t *testing.T) {
	env := newEnv(t, nil)
	status, _ := env.do(t, http.MethodPost, "/api/teams/u1", rocket, env.as(t, "u1"))
	require.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodPost, "/api/teams/u1/submission", map[string]string{"teamName": "Rocket"}, env.as(t, "u1"))
	assert.Equal(t, http.StatusPaymentRequired, status)
}

func TestAdminAuth(t *testing.T) {
	env := newEnv(t, nil)

	status, _ := env.do(t, http.MethodGet, "/api/admin/teams", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/api/admin/teams", nil, map[string]string{fiber.HeaderAuthorization: "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodPost, "/api/admin/login", map[string]string{"username": "ops", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	finance := env.login(t, "cfo")
	status, _ = env.do(t, http.MethodGet, "/api/admin/finance", nil, finance)
	assert.Equal(t, http.StatusOK, status)

	sponsor := map[string]string{"name": "Acme", "category": "gold"}
	status, _ = env.do(t, http.MethodPost, "/api/admin/sponsors", sponsor, finance)
	assert.Equal(t, http.StatusForbidden, status)

	adminHdr := env.login(t, "ops")
	status, _ = env.do(t, http.MethodPost, "/api/admin/sponsors", sponsor, adminHdr)
	assert.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, http.MethodGet, "/api/sponsors", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Acme")

	status, _ = env.do(t, http.MethodPost, "/api/admin/export/roster", nil, adminHdr)
	assert.Equal(t, http.StatusNotImplemented, status)
}

func TestAdminOverride(t *testing.T) {
	env := newEnv(t, nil)
	status, _ := env.do(t, http.MethodPost, "/api/teams/u1", rocket, env.as(t, "u1"))
	require.Equal(t, http.StatusCreated, status)
	finance := env.login(t, "cfo")

	status, body := env.do(t, http.MethodPut, "/api/admin/teams/u1/payment-status", map[string]string{"paymentStatus": "paid"}, finance)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"paymentStatus":"paid"`)

	status, _ = env.do(t, http.MethodPut, "/api/admin/teams/u1/payment-status", map[string]string{"paymentStatus": "refunded"}, finance)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/admin/teams?status=paid&search=alice", nil, finance)
	require.Equal(t, http.StatusOK, status)
	var teams []models.Team
	require.NoError(t, json.Unmarshal(body, &teams))
	require.Len(t, teams, 1)
	assert.Equal(t, "Rocket", teams[0].TeamName)
}

func TestRecordPaymentReconciles(t *testing.T) {
	env := newEnv(t, nil)
	status, _ := env.do(t, http.MethodPost, "/api/teams/u1", rocket, env.as(t, "u1"))
	require.Equal(t, http.StatusCreated, status)
	finance := env.login(t, "cfo")

	status, body := env.do(t, http.MethodPost, "/api/admin/payments",
		map[string]any{"email": "bob@x.com", "buyerName": "Bob", "amount": 400}, finance)
	require.Equal(t, http.StatusCreated, status, string(body))
	env.disp.Wait()

	team, err := env.st.GetTeam(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, team.PaymentStatus)
}

func TestHealthz(t *testing.T) {
	env := newEnv(t, nil)
	status, body := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
