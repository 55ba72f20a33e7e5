package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	BasePublicURL  string `env:"BASE_PUBLIC_URL"`
	IsProduction   bool   `env:"PRODUCTION"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"*"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	BodyLimit      int    `env:"BODY_LIMIT" envDefault:"10485760"`
	Gateway        Gateway
	Store          Store
	Redis          Redis `envPrefix:"REDIS_"`
	Event          Event
	Auth           Auth
	Telegram       Telegram
	Mail           Mail
	Google         Google

	// Filled from the raw values after parsing.
	AdminTGIDs           map[int64]bool
	AdminAccounts        map[string]AdminAccount
	RegistrationDeadline time.Time
}

type Gateway struct {
	PaymentProvider      string        `env:"PAYMENT_PROVIDER" envDefault:"stub"`
	InstamojoAPIKey      string        `env:"INSTAMOJO_API_KEY"`
	InstamojoAuthToken   string        `env:"INSTAMOJO_AUTH_TOKEN"`
	InstamojoEndpoint    string        `env:"INSTAMOJO_ENDPOINT" envDefault:"https://test.instamojo.com/api/1.1"`
	InstamojoPrivateSalt string        `env:"INSTAMOJO_PRIVATE_SALT"`
	WebhookVerify        bool          `env:"WEBHOOK_VERIFY" envDefault:"false"`
	PaymentWebhookSecret string        `env:"PAYMENT_WEBHOOK_SECRET" envDefault:"change-me"`
	Timeout              time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	MaxRetries           uint64        `env:"GATEWAY_MAX_RETRIES" envDefault:"2"`
}

type Store struct {
	Backend       string `env:"STORE_BACKEND" envDefault:"mongo"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"ssgc"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type Event struct {
	CostPerMember           int64  `env:"COST_PER_MEMBER" envDefault:"200"`
	RawRegistrationDeadline string `env:"REGISTRATION_DEADLINE"`
	PaymentPortalURL        string `env:"PAYMENT_PORTAL_URL"`
	SweepInterval           string `env:"SWEEP_INTERVAL" envDefault:"@every 5m"`
}

type Auth struct {
	JWTSecret        string        `env:"JWT_SECRET"`
	JWTTTL           time.Duration `env:"JWT_TTL" envDefault:"12h"`
	RawAdminAccounts string        `env:"ADMIN_ACCOUNTS"`
}

type Telegram struct {
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`
	RawAdminTGIDs string `env:"ADMIN_TG_IDS"`
}

type Mail struct {
	MailgunDomain string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey string `env:"MAILGUN_API_KEY"`
	From          string `env:"MAIL_FROM" envDefault:"Startup Spark <no-reply@startupspark.in>"`
}

type Google struct {
	ServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	SpreadsheetID      string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`
	Bucket             string `env:"GCS_BUCKET"`
	FirebaseProjectID  string `env:"FIREBASE_PROJECT_ID"`
}

// AdminAccount is one operator allowed to sign in to the admin API.
type AdminAccount struct {
	Username     string
	Role         string
	PasswordHash string
}

func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}

	c.BasePublicURL = strings.TrimRight(strings.TrimSpace(c.BasePublicURL), "/")
	c.Gateway.PaymentProvider = strings.ToLower(strings.TrimSpace(c.Gateway.PaymentProvider))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))

	if err := c.validate(); err != nil {
		return c, err
	}

	if raw := strings.TrimSpace(c.Event.RawRegistrationDeadline); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c, fmt.Errorf("REGISTRATION_DEADLINE: %w", err)
		}
		c.RegistrationDeadline = t
	}

	accounts, err := parseAdminAccounts(c.Auth.RawAdminAccounts)
	if err != nil {
		return c, err
	}
	c.AdminAccounts = accounts
	c.AdminTGIDs = parseAdminIDs(c.Telegram.RawAdminTGIDs)

	return c, nil
}

func (c Config) validate() error {
	switch c.Gateway.PaymentProvider {
	case "stub":
		if c.IsProduction {
			return fmt.Errorf("the stub payment provider cannot run with PRODUCTION set")
		}
	case "instamojo":
		if c.Gateway.InstamojoAPIKey == "" || c.Gateway.InstamojoAuthToken == "" {
			return fmt.Errorf("INSTAMOJO_API_KEY and INSTAMOJO_AUTH_TOKEN are required for the instamojo provider")
		}
		if c.Gateway.WebhookVerify && c.Gateway.InstamojoPrivateSalt == "" {
			return fmt.Errorf("INSTAMOJO_PRIVATE_SALT is required when WEBHOOK_VERIFY is set")
		}
	default:
		return fmt.Errorf("unknown payment provider: %s", c.Gateway.PaymentProvider)
	}

	switch c.Store.Backend {
	case "memory":
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is empty")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is empty")
	}
	if c.IsProduction && c.Google.FirebaseProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required in production")
	}
	if c.Event.CostPerMember <= 0 {
		return fmt.Errorf("COST_PER_MEMBER must be positive")
	}
	return nil
}

// RedisEnabled reports whether a Redis address was configured.
func (c Config) RedisEnabled() bool { return c.Redis.Addr != "" }

// RegistrationOpen reports whether registrations are still accepted at t.
func (c Config) RegistrationOpen(t time.Time) bool {
	return c.RegistrationDeadline.IsZero() || !t.After(c.RegistrationDeadline)
}

func parseAdminIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}

// parseAdminAccounts reads "user:role:bcrypthash" entries separated by commas.
func parseAdminAccounts(raw string) (map[string]AdminAccount, error) {
	m := map[string]AdminAccount{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("ADMIN_ACCOUNTS: malformed entry %q", parts[0])
		}
		role := strings.ToLower(parts[1])
		if role != "admin" && role != "finance" {
			return nil, fmt.Errorf("ADMIN_ACCOUNTS: unknown role %q for %s", parts[1], parts[0])
		}
		m[parts[0]] = AdminAccount{Username: parts[0], Role: role, PasswordHash: parts[2]}
	}
	return m, nil
}
