// Package mailer emails team leads through Mailgun.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"

	"startup-spark/internal/config"
	"startup-spark/internal/models"
	"startup-spark/internal/notify"
)

// Sender is the part of mailgun.Mailgun we use.
type Sender interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

type Mailer struct {
	mg   Sender
	from string
	log  *zap.Logger
}

// New returns nil when Mailgun is not configured.
func New(cfg config.Config, log *zap.Logger) *Mailer {
	if cfg.Mail.MailgunDomain == "" || cfg.Mail.MailgunAPIKey == "" {
		return nil
	}
	return NewWithSender(mailgun.NewMailgun(cfg.Mail.MailgunDomain, cfg.Mail.MailgunAPIKey), cfg.Mail.From, log)
}

func NewWithSender(mg Sender, from string, log *zap.Logger) *Mailer {
	return &Mailer{mg: mg, from: from, log: log}
}

func (m *Mailer) Notify(ctx context.Context, ev notify.Event) error {
	if ev.Team == nil {
		return nil
	}
	lead := ev.Team.Lead()
	if lead.Email == "" {
		return nil
	}

	var subject, text string
	switch ev.Kind {
	case notify.KindTeamRegistered:
		subject, text = registeredMail(ev.Team, ev.AmountPayable)
	case notify.KindTeamPaid:
		subject, text = paidMail(ev.Team)
	default:
		return nil
	}

	msg := m.mg.NewMessage(m.from, subject, text, lead.Email)
	_, id, err := m.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	m.log.Debug("mail sent", zap.String("kind", string(ev.Kind)), zap.String("id", id))
	return nil
}

func registeredMail(t *models.Team, payable models.Amount) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", t.Lead().Name)
	fmt.Fprintf(&b, "Team %q is registered for the Startup Spark Grand Challenge.\n", t.TeamName)
	fmt.Fprintf(&b, "Registration ID: %s\n", t.RegistrationID)
	fmt.Fprintf(&b, "Members:\n")
	for i, mem := range t.Members {
		fmt.Fprintf(&b, "  %d. %s <%s>\n", i+1, mem.Name, mem.Email)
	}
	fmt.Fprintf(&b, "\nAmount payable: Rs. %s\n", payable)
	b.WriteString("Your registration is confirmed once the payment is received.\n")
	return "SSGC registration " + t.RegistrationID, b.String()
}

func paidMail(t *models.Team) (string, string) {
	text := fmt.Sprintf("Hi %s,\n\nWe received the registration fee for team %q (%s). You are all set for Phase 1.\n",
		t.Lead().Name, t.TeamName, t.RegistrationID)
	return "SSGC payment confirmed " + t.RegistrationID, text
}
