// Package tgbot is the organizers' Telegram bot: it relays payment events to
// admin chats and answers a few admin commands.
package tgbot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"startup-spark/internal/admin"
	"startup-spark/internal/config"
	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/reconcile"
)

// Sender is the part of *tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Ops are the admin operations reachable from chat.
type Ops interface {
	FinanceSummary(ctx context.Context, r admin.Range) (*admin.FinanceSummary, error)
	TeamByRegistrationID(ctx context.Context, registrationID string) (*models.Team, error)
	SetPaymentStatus(ctx context.Context, actor, teamID string, status models.PaymentStatus) (*models.Team, error)
	Sweep(ctx context.Context) (reconcile.SweepReport, error)
}

type App struct {
	bot    *tgbotapi.BotAPI
	sender Sender
	admins map[int64]bool
	ops    Ops
	log    *zap.Logger
}

// New connects to Telegram. Without TELEGRAM_BOT_TOKEN it returns nil and the
// bot stays off.
func New(cfg config.Config, ops Ops, log *zap.Logger) (*App, error) {
	if cfg.Telegram.TelegramToken == "" {
		log.Info("telegram bot disabled: TELEGRAM_BOT_TOKEN not set")
		return nil, nil
	}
	b, err := tgbotapi.NewBotAPI(cfg.Telegram.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	a := NewWithSender(b, cfg.AdminTGIDs, ops, log)
	a.bot = b
	return a, nil
}

func NewWithSender(sender Sender, admins map[int64]bool, ops Ops, log *zap.Logger) *App {
	return &App{sender: sender, admins: admins, ops: ops, log: log}
}

func (a *App) Run(ctx context.Context) error {
	if a.bot == nil {
		return errors.New("tgbot: no bot connection")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				if err := a.handleMessage(ctx, upd.Message); err != nil {
					a.log.Warn("handle msg", zap.Error(err))
				}
			} else if upd.CallbackQuery != nil {
				if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
					a.log.Warn("handle cb", zap.Error(err))
				}
			}
		}
	}
}

func (a *App) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := a.sender.Send(msg)
	return err
}

func (a *App) isAdmin(tgID int64) bool {
	return a.admins[tgID]
}

func (a *App) adminIDs() []int64 {
	ids := make([]int64, 0, len(a.admins))
	for id, ok := range a.admins {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func actor(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "tg:@" + u.UserName
	}
	return fmt.Sprintf("tg:%d", u.ID)
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil {
		return nil
	}
	chatID := m.From.ID
	if m.Chat != nil {
		chatID = m.Chat.ID
	}
	if !a.isAdmin(m.From.ID) {
		return a.SendText(chatID, "Access denied.")
	}

	cmd, arg, _ := strings.Cut(strings.TrimSpace(m.Text), " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/start", "/help":
		return a.SendText(chatID, helpText)
	case "/stats":
		return a.showStats(ctx, chatID)
	case "/team":
		if arg == "" {
			return a.SendText(chatID, "Usage: /team <registrationId>")
		}
		return a.showTeam(ctx, chatID, arg)
	case "/markpaid":
		if arg == "" {
			return a.SendText(chatID, "Usage: /markpaid <registrationId>")
		}
		return a.markPaid(ctx, chatID, actor(m.From), arg)
	case "/sweep":
		return a.sweep(ctx, chatID)
	}
	return a.SendText(chatID, helpText)
}

const helpText = "SSGC organizer bot\n" +
	"/stats - registrations and revenue\n" +
	"/team <registrationId> - team details\n" +
	"/markpaid <registrationId> - mark a team as paid\n" +
	"/sweep - re-check every initiated team"

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	tgID := q.From.ID

	// ack
	cb := tgbotapi.NewCallback(q.ID, "")
	_, _ = a.sender.Request(cb)

	if !a.isAdmin(tgID) {
		return a.SendText(tgID, "Access denied.")
	}
	chatID := tgID
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}
	if regID, ok := strings.CutPrefix(q.Data, "a:markpaid:"); ok {
		return a.markPaid(ctx, chatID, actor(q.From), regID)
	}
	return nil
}

func (a *App) showStats(ctx context.Context, chatID int64) error {
	sum, err := a.ops.FinanceSummary(ctx, admin.RangeAll)
	if err != nil {
		return a.replyErr(chatID, err)
	}
	text := fmt.Sprintf("Registrations: %d\nPaid teams: %d\nPending teams: %d\nRevenue: Rs. %s\nAverage per team: Rs. %s",
		sum.TotalRegistrations, sum.PaidTeams, sum.PendingTeams, sum.TotalRevenue, sum.AveragePayment)
	return a.SendText(chatID, text)
}

func (a *App) showTeam(ctx context.Context, chatID int64, regID string) error {
	team, err := a.ops.TeamByRegistrationID(ctx, regID)
	if err != nil {
		return a.replyErr(chatID, err)
	}
	msg := tgbotapi.NewMessage(chatID, teamText(team))
	if team.PaymentStatus != models.StatusPaid {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Mark paid", "a:markpaid:"+team.RegistrationID),
			),
		)
	}
	_, err = a.sender.Send(msg)
	return err
}

func teamText(t *models.Team) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\nStatus: %s\nMembers:", t.TeamName, t.RegistrationID, t.PaymentStatus)
	for i, m := range t.Members {
		fmt.Fprintf(&b, "\n%d. %s <%s> %s", i+1, m.Name, m.Email, m.Phone)
	}
	return b.String()
}

func (a *App) markPaid(ctx context.Context, chatID int64, who, regID string) error {
	team, err := a.ops.TeamByRegistrationID(ctx, regID)
	if err != nil {
		return a.replyErr(chatID, err)
	}
	if team.PaymentStatus == models.StatusPaid {
		return a.SendText(chatID, team.RegistrationID+" is already paid.")
	}
	if _, err := a.ops.SetPaymentStatus(ctx, who, team.TeamID, models.StatusPaid); err != nil {
		return a.replyErr(chatID, err)
	}
	return a.SendText(chatID, "Marked "+team.TeamName+" ("+team.RegistrationID+") as paid.")
}

func (a *App) sweep(ctx context.Context, chatID int64) error {
	rep, err := a.ops.Sweep(ctx)
	if err != nil {
		return a.replyErr(chatID, err)
	}
	return a.SendText(chatID, fmt.Sprintf("Sweep done: %d checked, %d confirmed, %d failed.", rep.Checked, rep.Confirmed, rep.Failed))
}

func (a *App) replyErr(chatID int64, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return a.SendText(chatID, "Team not found.")
	case errs.Retryable(err):
		a.log.Warn("bot command failed", zap.Error(err))
		return a.SendText(chatID, "Something went wrong, try again later.")
	}
	a.log.Error("bot command failed", zap.Error(err))
	return a.SendText(chatID, "Error: "+err.Error())
}
