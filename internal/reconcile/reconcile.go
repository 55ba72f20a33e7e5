// Package reconcile decides whether a registered team has paid.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"startup-spark/internal/errs"
	"startup-spark/internal/lock"
	"startup-spark/internal/models"
	"startup-spark/internal/notify"
	"startup-spark/internal/store"
)

// Source says how a team's payment was found.
type Source string

const (
	SourceAlreadyPaid Source = "already_paid"
	SourceTeamLink    Source = "team_link"
	SourceEmail       Source = "email"
	SourceLegacy      Source = "legacy"
)

type Result struct {
	TeamID    string               `json:"teamId"`
	Status    models.PaymentStatus `json:"paymentStatus"`
	Confirmed bool                 `json:"confirmed"`
	PaymentID string               `json:"paymentId,omitempty"`
	Source    Source               `json:"source,omitempty"`
}

type SweepReport struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
}

type Store interface {
	store.TeamStore
	store.PaymentStore
}

type Service struct {
	store    Store
	locker   lock.Locker
	notifier notify.Notifier
	log      *zap.Logger

	lockTTL time.Duration
	now     func() time.Time
}

func New(st Store, locker lock.Locker, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{
		store:    st,
		locker:   locker,
		notifier: notifier,
		log:      log,
		lockTTL:  30 * time.Second,
		now:      time.Now,
	}
}

func (s *Service) storeErr(op string, err error) error {
	s.log.Error("reconcile store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s", errs.ErrStore, op)
}

// Reconcile checks the payment records for teamID and marks the team paid
// when one of them belongs to it. The team is left untouched otherwise.
func (s *Service) Reconcile(ctx context.Context, teamID string) (Result, error) {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return Result{}, err
	}
	if team.PaymentStatus == models.StatusPaid {
		return Result{TeamID: teamID, Status: models.StatusPaid, Confirmed: true, Source: SourceAlreadyPaid}, nil
	}

	release, err := s.locker.Acquire(ctx, "team:"+teamID, s.lockTTL)
	if errors.Is(err, lock.ErrHeld) {
		return Result{}, errs.ErrInProgress
	}
	if err != nil {
		return Result{}, s.storeErr("lock", err)
	}
	defer release()

	// Someone may have finished while we waited for the lock.
	team, err = s.loadTeam(ctx, teamID)
	if err != nil {
		return Result{}, err
	}
	if team.PaymentStatus == models.StatusPaid {
		return Result{TeamID: teamID, Status: models.StatusPaid, Confirmed: true, Source: SourceAlreadyPaid}, nil
	}
	if !team.PaymentStatus.CanAdvanceTo(models.StatusPaid) {
		s.log.Warn("team status cannot be confirmed", zap.String("team", teamID), zap.String("status", string(team.PaymentStatus)))
		return Result{}, fmt.Errorf("%w: team is %q", errs.ErrInvalidStatus, team.PaymentStatus)
	}

	p, src, err := s.findPayment(ctx, team)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		s.log.Debug("payment not yet confirmed", zap.String("team", teamID))
		return Result{TeamID: teamID, Status: team.PaymentStatus}, nil
	}

	now := s.now()
	err = s.store.UpdateTeamPayment(ctx, teamID, models.TeamPaymentUpdate{
		Status:      models.StatusPaid,
		CompletedAt: &now,
		UpdatedAt:   &now,
	})
	if err != nil {
		return Result{}, s.storeErr("update team", err)
	}
	team.PaymentStatus = models.StatusPaid
	team.PaymentCompletedAt = &now

	s.log.Info("team payment confirmed",
		zap.String("team", teamID),
		zap.String("registration_id", team.RegistrationID),
		zap.String("payment", p.PaymentID),
		zap.String("source", string(src)))

	if err := s.notifier.Notify(ctx, notify.Event{Kind: notify.KindTeamPaid, Team: team, Payment: p}); err != nil {
		s.log.Warn("notify team paid", zap.String("team", teamID), zap.Error(err))
	}

	return Result{TeamID: teamID, Status: models.StatusPaid, Confirmed: true, PaymentID: p.PaymentID, Source: src}, nil
}

func (s *Service) loadTeam(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: team %s", errs.ErrNotFound, teamID)
	}
	if err != nil {
		return nil, s.storeErr("get team", err)
	}
	return team, nil
}

func (s *Service) findPayment(ctx context.Context, team *models.Team) (*models.Payment, Source, error) {
	linked, err := s.store.FindPaidPaymentsByTeam(ctx, team.TeamID)
	if err != nil {
		return nil, "", s.storeErr("payments by team", err)
	}
	if len(linked) > 0 {
		return &linked[0], SourceTeamLink, nil
	}

	// Lead first, then the other members.
	for _, email := range team.MemberEmails() {
		payments, err := s.store.FindPaidPaymentsByEmail(ctx, email)
		if err != nil {
			return nil, "", s.storeErr("payments by email", err)
		}
		for i := range payments {
			p := payments[i]
			if p.TeamID != "" && p.TeamID != team.TeamID {
				continue
			}
			ok, err := s.store.LinkPayment(ctx, p.PaymentID, team.TeamID)
			if err != nil {
				return nil, "", s.storeErr("link payment", err)
			}
			if !ok {
				// Claimed by another team in the meantime.
				continue
			}
			p.TeamID = team.TeamID
			return &p, SourceEmail, nil
		}
	}

	legacy, err := s.store.GetPayment(ctx, team.TeamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", s.storeErr("legacy payment", err)
	}
	if legacy.Status == models.StatusPaid && (legacy.TeamID == "" || legacy.TeamID == team.TeamID) {
		return legacy, SourceLegacy, nil
	}
	return nil, "", nil
}

// ReconcilePayment reconciles every unpaid team the payment could belong to:
// its linked team, or else any team with a member using the payment email.
func (s *Service) ReconcilePayment(ctx context.Context, paymentID string) ([]Result, error) {
	p, err := s.store.GetPayment(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: payment %s", errs.ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, s.storeErr("get payment", err)
	}
	if p.Status != models.StatusPaid {
		return nil, nil
	}

	var teamIDs []string
	if p.TeamID != "" {
		teamIDs = []string{p.TeamID}
	} else {
		teams, err := s.store.FindTeamsByMemberEmail(ctx, p.Email)
		if err != nil {
			return nil, s.storeErr("teams by email", err)
		}
		for _, t := range teams {
			if t.PaymentStatus != models.StatusPaid {
				teamIDs = append(teamIDs, t.TeamID)
			}
		}
	}

	results := make([]Result, 0, len(teamIDs))
	var errList []error
	for _, id := range teamIDs {
		res, err := s.Reconcile(ctx, id)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errList...)
}

// Sweep reconciles every team stuck in initiated, e.g. after the payer
// closed the tab before returning from the gateway.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	teams, err := s.store.ListTeams(ctx, store.TeamFilter{Status: models.StatusInitiated})
	if err != nil {
		return SweepReport{}, s.storeErr("list initiated teams", err)
	}

	var rep SweepReport
	for _, t := range teams {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++
		res, err := s.Reconcile(ctx, t.TeamID)
		if err != nil {
			rep.Failed++
			s.log.Warn("sweep reconcile", zap.String("team", t.TeamID), zap.Error(err))
			continue
		}
		if res.Confirmed {
			rep.Confirmed++
		}
	}
	s.log.Info("sweep done", zap.Int("checked", rep.Checked), zap.Int("confirmed", rep.Confirmed), zap.Int("failed", rep.Failed))
	return rep, nil
}
