// Package admin backs the organizer dashboards and the status override.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/notify"
	"startup-spark/internal/reconcile"
	"startup-spark/internal/store"
	"startup-spark/internal/util"
)

type Store interface {
	store.TeamStore
	store.PaymentStore
	store.UserStore
	store.SponsorStore
}

type Dispatcher interface {
	ReconcilePayment(ctx context.Context, paymentID string) error
}

type Sweeper interface {
	Sweep(ctx context.Context) (reconcile.SweepReport, error)
}

// RosterExporter mirrors the team roster somewhere organizers can read it.
type RosterExporter interface {
	ExportRoster(ctx context.Context, teams []models.Team) (int, error)
	SpreadsheetID() string
}

type TeamQuery struct {
	Search string               `query:"search"`
	Status models.PaymentStatus `query:"status"`
}

// Range limits payment listings to recent payments: all, today, week or month.
type Range string

const (
	RangeAll   Range = "all"
	RangeToday Range = "today"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
)

type PaymentQuery struct {
	Search string `query:"search"`
	Range  Range  `query:"range"`
}

type RecordPaymentInput struct {
	Email     string        `json:"email" validate:"required,email"`
	BuyerName string        `json:"buyerName" validate:"required"`
	Amount    models.Amount `json:"amount" validate:"gt=0"`
	TeamID    string        `json:"teamId"`
	Reference string        `json:"payment_id"`
}

type FinanceSummary struct {
	TotalRegistrations int64         `json:"totalRegistrations"`
	TotalRevenue       models.Amount `json:"totalRevenue"`
	PaidTeams          int           `json:"paidTeams"`
	PendingTeams       int           `json:"pendingTeams"`
	AveragePayment     models.Amount `json:"averagePayment"`
	Payments           int           `json:"payments"`
}

type ExportResult struct {
	Teams         int    `json:"teams"`
	SpreadsheetID string `json:"spreadsheetId"`
}

type Service struct {
	store      Store
	dispatcher Dispatcher
	sweeper    Sweeper
	exporter   RosterExporter
	notifier   notify.Notifier
	log        *zap.Logger
	now        func() time.Time
}

// New builds the admin service. exporter may be nil when Sheets is not configured.
func New(st Store, dispatcher Dispatcher, sweeper Sweeper, exporter RosterExporter, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{
		store:      st,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		exporter:   exporter,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

func (s *Service) storeErr(op string, err error) error {
	s.log.Error("admin store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s", errs.ErrStore, op)
}

func (s *Service) ListTeams(ctx context.Context, q TeamQuery) ([]models.Team, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, errs.Invalid("status", "oneof")
	}
	teams, err := s.store.ListTeams(ctx, store.TeamFilter{Status: q.Status})
	if err != nil {
		return nil, s.storeErr("list teams", err)
	}
	term := strings.TrimSpace(q.Search)
	if term == "" {
		return teams, nil
	}
	out := teams[:0]
	for _, t := range teams {
		if teamMatches(t, term) {
			out = append(out, t)
		}
	}
	return out, nil
}

func teamMatches(t models.Team, term string) bool {
	if util.ContainsFold(t.TeamName, term) || util.ContainsFold(t.RegistrationID, term) {
		return true
	}
	for _, m := range t.Members {
		if util.ContainsFold(m.Name, term) || util.ContainsFold(m.Email, term) {
			return true
		}
	}
	return false
}

func (s *Service) TeamByRegistrationID(ctx context.Context, registrationID string) (*models.Team, error) {
	registrationID = strings.ToUpper(strings.TrimSpace(registrationID))
	if !util.IsRegistrationID(registrationID) {
		return nil, fmt.Errorf("%w: malformed registration id", errs.ErrNotFound)
	}
	t, err := s.store.GetTeamByRegistrationID(ctx, registrationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("get team", err)
	}
	return t, nil
}

// SetPaymentStatus overrides a team's status without looking at payments.
// actor is only logged.
func (s *Service) SetPaymentStatus(ctx context.Context, actor, teamID string, status models.PaymentStatus) (*models.Team, error) {
	if !status.Valid() {
		return nil, errs.ErrInvalidStatus
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("get team", err)
	}

	now := s.now()
	upd := models.TeamPaymentUpdate{Status: status, UpdatedAt: &now}
	if status == models.StatusPaid {
		upd.CompletedAt = &now
	}
	if err := s.store.UpdateTeamPayment(ctx, teamID, upd); err != nil {
		return nil, s.storeErr("update team payment", err)
	}

	previous := team.PaymentStatus
	s.log.Info("payment status override",
		zap.String("actor", actor),
		zap.String("team", teamID),
		zap.String("registration_id", team.RegistrationID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))

	team.PaymentStatus = status
	team.PaymentUpdatedAt = &now
	if upd.CompletedAt != nil {
		team.PaymentCompletedAt = &now
	}
	if status == models.StatusPaid && previous != models.StatusPaid {
		if err := s.notifier.Notify(ctx, notify.Event{Kind: notify.KindTeamPaid, Team: team}); err != nil {
			s.log.Warn("notify team paid", zap.Error(err))
		}
	}
	return team, nil
}

func (s *Service) since(r Range) (time.Time, error) {
	now := s.now()
	switch r {
	case "", RangeAll:
		return time.Time{}, nil
	case RangeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case RangeWeek:
		return now.AddDate(0, 0, -7), nil
	case RangeMonth:
		return now.AddDate(0, -1, 0), nil
	}
	return time.Time{}, errs.Invalid("range", "oneof")
}

func (s *Service) ListPayments(ctx context.Context, q PaymentQuery) ([]models.Payment, error) {
	since, err := s.since(q.Range)
	if err != nil {
		return nil, err
	}
	ps, err := s.store.ListPayments(ctx, store.PaymentFilter{Since: since})
	if err != nil {
		return nil, s.storeErr("list payments", err)
	}
	term := strings.TrimSpace(q.Search)
	if term == "" {
		return ps, nil
	}
	out := ps[:0]
	for _, p := range ps {
		if util.ContainsFold(p.Email, term) || util.ContainsFold(p.BuyerName, term) ||
			util.ContainsFold(p.GatewayPaymentID, term) || util.ContainsFold(p.PaymentID, term) {
			out = append(out, p)
		}
	}
	return out, nil
}

// RecordPayment stores a payment taken outside the gateway and reconciles it.
func (s *Service) RecordPayment(ctx context.Context, actor string, in RecordPaymentInput) (*models.Payment, error) {
	in.Email = util.NormalizeEmail(in.Email)
	in.BuyerName = strings.TrimSpace(in.BuyerName)
	if err := util.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.TeamID != "" {
		if _, err := s.store.GetTeam(ctx, in.TeamID); errors.Is(err, store.ErrNotFound) {
			return nil, errs.Invalid("teamId", "exists")
		} else if err != nil {
			return nil, s.storeErr("get team", err)
		}
	}

	now := s.now()
	p := &models.Payment{
		PaymentID:        uuid.NewString(),
		Email:            in.Email,
		BuyerName:        in.BuyerName,
		Amount:           in.Amount,
		Status:           models.StatusPaid,
		GatewayPaymentID: strings.TrimSpace(in.Reference),
		TeamID:           in.TeamID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.UpsertPayment(ctx, p); err != nil {
		return nil, s.storeErr("record payment", err)
	}
	s.log.Info("payment recorded",
		zap.String("actor", actor),
		zap.String("payment_id", p.PaymentID),
		zap.String("email", p.Email),
		zap.Stringer("amount", p.Amount))

	if err := s.dispatcher.ReconcilePayment(ctx, p.PaymentID); err != nil {
		s.log.Warn("dispatch reconcile", zap.String("payment_id", p.PaymentID), zap.Error(err))
	}
	return p, nil
}

// FinanceSummary counts a team as paid when its status says so or when one
// of its payments does. A payment linked to a team only counts for that team;
// unlinked ones count for every team with a matching member email. Each team
// counts once. A range limits revenue and paid teams to payments made in it.
func (s *Service) FinanceSummary(ctx context.Context, r Range) (*FinanceSummary, error) {
	since, err := s.since(r)
	if err != nil {
		return nil, err
	}
	inRange := func(t time.Time) bool { return since.IsZero() || !t.Before(since) }

	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, s.storeErr("count users", err)
	}
	teams, err := s.store.ListTeams(ctx, store.TeamFilter{})
	if err != nil {
		return nil, s.storeErr("list teams", err)
	}
	paid, err := s.store.ListPayments(ctx, store.PaymentFilter{Status: models.StatusPaid})
	if err != nil {
		return nil, s.storeErr("list payments", err)
	}

	sum := &FinanceSummary{TotalRegistrations: users}
	paidEmails := map[string]bool{}
	paidTeamIDs := map[string]bool{}
	for _, p := range paid {
		if !inRange(p.CreatedAt) {
			continue
		}
		sum.TotalRevenue += p.Amount
		sum.Payments++
		switch {
		case p.TeamID != "":
			paidTeamIDs[p.TeamID] = true
		case p.Email != "":
			paidEmails[util.NormalizeEmail(p.Email)] = true
		}
	}

	for _, t := range teams {
		switch {
		case paidTeamIDs[t.TeamID] || anyEmail(t, paidEmails):
			sum.PaidTeams++
		case t.PaymentStatus == models.StatusPaid:
			if since.IsZero() || (t.PaymentCompletedAt != nil && inRange(*t.PaymentCompletedAt)) {
				sum.PaidTeams++
			}
		default:
			sum.PendingTeams++
		}
	}
	if sum.PaidTeams > 0 {
		sum.AveragePayment = sum.TotalRevenue / models.Amount(sum.PaidTeams)
	}
	return sum, nil
}

func anyEmail(t models.Team, emails map[string]bool) bool {
	for _, e := range t.MemberEmails() {
		if emails[e] {
			return true
		}
	}
	return false
}

func (s *Service) Sweep(ctx context.Context) (reconcile.SweepReport, error) {
	return s.sweeper.Sweep(ctx)
}

func (s *Service) ExportRoster(ctx context.Context) (*ExportResult, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("%w: google sheets export", errs.ErrNotImplemented)
	}
	teams, err := s.store.ListTeams(ctx, store.TeamFilter{})
	if err != nil {
		return nil, s.storeErr("list teams", err)
	}
	n, err := s.exporter.ExportRoster(ctx, teams)
	if err != nil {
		s.log.Error("roster export failed", zap.Error(err))
		return nil, fmt.Errorf("%w: roster export", errs.ErrStorage)
	}
	return &ExportResult{Teams: n, SpreadsheetID: s.exporter.SpreadsheetID()}, nil
}

// ---------- Sponsors ----------

type SponsorInput struct {
	Name        string `json:"name" validate:"required"`
	Logo        string `json:"logo" validate:"omitempty,url"`
	Website     string `json:"website" validate:"omitempty,url"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"required"`
}

func (s *Service) ListSponsors(ctx context.Context) ([]models.Sponsor, error) {
	sp, err := s.store.ListSponsors(ctx)
	if err != nil {
		return nil, s.storeErr("list sponsors", err)
	}
	return sp, nil
}

func (s *Service) CreateSponsor(ctx context.Context, in SponsorInput) (*models.Sponsor, error) {
	if err := util.ValidateStruct(in); err != nil {
		return nil, err
	}
	sp := &models.Sponsor{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Logo:        in.Logo,
		Website:     in.Website,
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateSponsor(ctx, sp); err != nil {
		return nil, s.storeErr("create sponsor", err)
	}
	return sp, nil
}

func (s *Service) UpdateSponsor(ctx context.Context, id string, in SponsorInput) (*models.Sponsor, error) {
	if err := util.ValidateStruct(in); err != nil {
		return nil, err
	}
	now := s.now()
	sp := &models.Sponsor{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Logo:        in.Logo,
		Website:     in.Website,
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		UpdatedAt:   &now,
	}
	err := s.store.UpdateSponsor(ctx, sp)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("update sponsor", err)
	}
	return sp, nil
}

func (s *Service) DeleteSponsor(ctx context.Context, id string) error {
	err := s.store.DeleteSponsor(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return errs.ErrNotFound
	}
	if err != nil {
		return s.storeErr("delete sponsor", err)
	}
	return nil
}
