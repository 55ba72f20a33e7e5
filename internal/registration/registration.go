// Package registration owns team sign-up and the start of the payment flow.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"startup-spark/internal/config"
	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/notify"
	"startup-spark/internal/payments"
	"startup-spark/internal/store"
	"startup-spark/internal/util"
)

const (
	maxIDAttempts = 5

	// followUpAfter is when an initiated team gets checked without waiting
	// for the sweep.
	followUpAfter = 10 * time.Minute
)

type Store interface {
	store.TeamStore
	store.UserStore
}

// PaymentStarter creates gateway payment requests; *payments.Relay does this.
type PaymentStarter interface {
	CreatePayment(ctx context.Context, in payments.CreateInput, origin string) (*models.PaymentLink, error)
}

// FollowUps schedules a later payment check for a team; jobs.Dispatcher does this.
type FollowUps interface {
	ReconcileTeam(ctx context.Context, teamID string, after time.Duration) error
}

type RegisterInput struct {
	TeamName string          `json:"teamName" validate:"required"`
	TeamSize int             `json:"teamSize" validate:"min=2,max=5"`
	Members  []models.Member `json:"members"`
}

type Registration struct {
	Team          *models.Team  `json:"team"`
	AmountPayable models.Amount `json:"amountPayable"`
}

type Initiation struct {
	URL       string        `json:"url"`
	RequestID string        `json:"paymentRequestId,omitempty"`
	Team      *models.Team  `json:"team"`
	Amount    models.Amount `json:"amount"`
}

type ProfileInput struct {
	Name       string `json:"name" validate:"required"`
	Department string `json:"department"`
	Year       string `json:"year"`
	Phone      string `json:"phone" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
}

type Service struct {
	store    Store
	payments PaymentStarter
	followUp FollowUps
	notifier notify.Notifier
	cfg      config.Config
	log      *zap.Logger
	now      func() time.Time
	newID    func() (string, error)
}

// New builds the service. followUp may be nil, in which case initiated teams
// wait for the sweep.
func New(st Store, starter PaymentStarter, followUp FollowUps, notifier notify.Notifier, cfg config.Config, log *zap.Logger) *Service {
	return &Service{
		store:    st,
		payments: starter,
		followUp: followUp,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		newID:    util.NewRegistrationID,
	}
}

func (s *Service) storeErr(op string, err error) error {
	s.log.Error("registration store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s", errs.ErrStore, op)
}

func (s *Service) payable(t *models.Team) models.Amount {
	return t.AmountPayable(s.cfg.Event.CostPerMember)
}

// Register creates the user's team or replaces it while it is still pending.
// The registration id survives re-registration.
func (s *Service) Register(ctx context.Context, userID string, in RegisterInput) (*Registration, error) {
	if userID == "" {
		return nil, errs.Invalid("userId", "required")
	}
	now := s.now()
	if !s.cfg.RegistrationOpen(now) {
		return nil, errs.ErrDeadlinePassed
	}

	in.TeamName = strings.TrimSpace(in.TeamName)
	if err := util.ValidateStruct(in); err != nil {
		return nil, err
	}
	members, err := cleanMembers(in.Members, in.TeamSize)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetTeam(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, s.storeErr("get team", err)
	case existing.PaymentStatus == models.StatusInitiated || existing.PaymentStatus == models.StatusPaid:
		return nil, errs.ErrTeamLocked
	}

	team := &models.Team{
		TeamID:        userID,
		UserID:        userID,
		TeamName:      in.TeamName,
		TeamSize:      in.TeamSize,
		Members:       members,
		PaymentStatus: models.StatusPending,
		CreatedAt:     now,
	}
	if existing != nil {
		team.RegistrationID = existing.RegistrationID
		team.CreatedAt = existing.CreatedAt
	}

	if err := s.save(ctx, team, existing == nil || existing.RegistrationID == ""); err != nil {
		return nil, err
	}

	reg := &Registration{Team: team, AmountPayable: s.payable(team)}
	s.log.Info("team registered",
		zap.String("team", team.TeamID),
		zap.String("registration_id", team.RegistrationID),
		zap.Int("size", team.TeamSize))
	if err := s.notifier.Notify(ctx, notify.Event{Kind: notify.KindTeamRegistered, Team: team, AmountPayable: reg.AmountPayable}); err != nil {
		s.log.Warn("notify team registered", zap.Error(err))
	}
	return reg, nil
}

// save writes the team, drawing a fresh registration id on collision when fresh is set.
func (s *Service) save(ctx context.Context, team *models.Team, fresh bool) error {
	for attempt := 0; ; attempt++ {
		if fresh {
			id, err := s.newID()
			if err != nil {
				return fmt.Errorf("registration id: %w", err)
			}
			team.RegistrationID = id
		}
		err := s.store.SaveTeam(ctx, team)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicate) || !fresh || attempt+1 >= maxIDAttempts {
			return s.storeErr("save team", err)
		}
		s.log.Warn("registration id collision", zap.String("registration_id", team.RegistrationID))
	}
}

// cleanMembers keeps the first size members and checks each of them.
func cleanMembers(in []models.Member, size int) ([]models.Member, error) {
	if len(in) < size {
		return nil, &errs.ValidationError{Fields: []errs.FieldError{{Field: "members", Tag: "min", Param: fmt.Sprint(size)}}}
	}
	out := make([]models.Member, size)
	verr := &errs.ValidationError{}
	for i := 0; i < size; i++ {
		m := models.Member{
			Name:  strings.TrimSpace(in[i].Name),
			Phone: strings.TrimSpace(in[i].Phone),
			Email: util.NormalizeEmail(in[i].Email),
		}
		if err := util.ValidateStruct(m); err != nil {
			var fe *errs.ValidationError
			if !errors.As(err, &fe) {
				return nil, err
			}
			for _, f := range fe.Fields {
				f.Field = fmt.Sprintf("members[%d].%s", i, strings.TrimPrefix(f.Field, "Member."))
				verr.Fields = append(verr.Fields, f)
			}
		}
		out[i] = m
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*Registration, error) {
	team, err := s.store.GetTeam(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("get team", err)
	}
	return &Registration{Team: team, AmountPayable: s.payable(team)}, nil
}

// Prefill returns the lead member as the user's profile describes them.
func (s *Service) Prefill(ctx context.Context, userID string) (models.Member, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Member{}, errs.ErrNotFound
	}
	if err != nil {
		return models.Member{}, s.storeErr("get user", err)
	}
	return models.Member{Name: u.Name, Phone: u.Phone, Email: u.Email}, nil
}

// InitiatePayment moves the team to initiated and returns where to pay.
func (s *Service) InitiatePayment(ctx context.Context, userID, origin string) (*Initiation, error) {
	team, err := s.store.GetTeam(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("get team", err)
	}
	if !team.PaymentStatus.CanAdvanceTo(models.StatusInitiated) {
		return nil, fmt.Errorf("%w: team is %s", errs.ErrInvalidStatus, team.PaymentStatus)
	}

	out := &Initiation{Team: team, Amount: s.payable(team)}
	if portal := s.cfg.Event.PaymentPortalURL; portal != "" {
		out.URL = portal
	} else {
		lead := team.Lead()
		link, err := s.payments.CreatePayment(ctx, payments.CreateInput{
			Amount:    out.Amount,
			Purpose:   "SSGC 2025 registration " + team.RegistrationID,
			BuyerName: lead.Name,
			Email:     lead.Email,
			Phone:     lead.Phone,
			TeamID:    team.TeamID,
		}, origin)
		if err != nil {
			return nil, err
		}
		out.URL = link.URL
		out.RequestID = link.RequestID
	}

	now := s.now()
	if err := s.store.UpdateTeamPayment(ctx, team.TeamID, models.TeamPaymentUpdate{
		Status:      models.StatusInitiated,
		InitiatedAt: &now,
	}); err != nil {
		return nil, s.storeErr("mark initiated", err)
	}
	team.PaymentStatus = models.StatusInitiated
	team.PaymentInitiatedAt = &now

	if s.followUp != nil {
		if err := s.followUp.ReconcileTeam(ctx, team.TeamID, followUpAfter); err != nil {
			s.log.Warn("could not schedule payment follow-up", zap.String("team", team.TeamID), zap.Error(err))
		}
	}

	s.log.Info("payment initiated", zap.String("team", team.TeamID), zap.String("request", out.RequestID))
	return out, nil
}

func (s *Service) SaveProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	if userID == "" {
		return nil, errs.Invalid("userId", "required")
	}
	in.Email = util.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := util.ValidateStruct(in); err != nil {
		return nil, err
	}

	u := &models.User{
		UserID:     userID,
		Name:       in.Name,
		Department: strings.TrimSpace(in.Department),
		Year:       strings.TrimSpace(in.Year),
		Phone:      in.Phone,
		Email:      in.Email,
		CreatedAt:  s.now(),
	}
	prev, err := s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		u.CreatedAt = prev.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return nil, s.storeErr("get user", err)
	}
	if err := s.store.SaveUser(ctx, u); err != nil {
		return nil, s.storeErr("save user", err)
	}
	return u, nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("get user", err)
	}
	return u, nil
}
