// Package store describes the document collections the service reads and writes.
package store

import (
	"context"
	"errors"
	"time"

	"startup-spark/internal/models"
)

const (
	CollectionUsers           = "users"
	CollectionTeams           = "teams"
	CollectionPayments        = "payments"
	CollectionPaymentRequests = "payment_requests"
	CollectionSubmissions     = "phase1_submissions"
	CollectionSponsors        = "sponsors"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate document")
)

type TeamFilter struct {
	Status models.PaymentStatus
}

type PaymentFilter struct {
	Status models.PaymentStatus
	Since  time.Time
}

type TeamStore interface {
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)
	GetTeamByRegistrationID(ctx context.Context, registrationID string) (*models.Team, error)
	// SaveTeam creates or replaces the team document. A registration id held
	// by another team yields ErrDuplicate.
	SaveTeam(ctx context.Context, team *models.Team) error
	UpdateTeamPayment(ctx context.Context, teamID string, upd models.TeamPaymentUpdate) error
	ListTeams(ctx context.Context, filter TeamFilter) ([]models.Team, error)
	FindTeamsByMemberEmail(ctx context.Context, email string) ([]models.Team, error)
}

type PaymentStore interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	UpsertPayment(ctx context.Context, p *models.Payment) error
	// FindPaidPaymentsByEmail returns paid payments for email, oldest first.
	FindPaidPaymentsByEmail(ctx context.Context, email string) ([]models.Payment, error)
	FindPaidPaymentsByTeam(ctx context.Context, teamID string) ([]models.Payment, error)
	// LinkPayment sets the payment's team when it has none (or already has
	// teamID) and reports whether the payment now belongs to teamID.
	LinkPayment(ctx context.Context, paymentID, teamID string) (bool, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]models.Payment, error)

	SavePaymentRequest(ctx context.Context, r *models.PaymentRequest) error
	GetPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error)
}

type SubmissionStore interface {
	// CreateSubmission fails with ErrDuplicate when the user already submitted.
	CreateSubmission(ctx context.Context, s *models.Submission) error
	GetSubmissionByUser(ctx context.Context, userID string) (*models.Submission, error)
	ListSubmissions(ctx context.Context) ([]models.Submission, error)
}

type UserStore interface {
	SaveUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

type SponsorStore interface {
	ListSponsors(ctx context.Context) ([]models.Sponsor, error)
	CreateSponsor(ctx context.Context, s *models.Sponsor) error
	UpdateSponsor(ctx context.Context, s *models.Sponsor) error
	DeleteSponsor(ctx context.Context, id string) error
}

// Store is the whole document database.
type Store interface {
	TeamStore
	PaymentStore
	SubmissionStore
	UserStore
	SponsorStore

	Close(ctx context.Context) error
}
