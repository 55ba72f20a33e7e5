// Package memory is an in-process Store used by tests and STORE_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"startup-spark/internal/models"
	"startup-spark/internal/store"
	"startup-spark/internal/util"
)

type Store struct {
	mu          sync.RWMutex
	users       map[string]models.User
	teams       map[string]models.Team
	payments    map[string]models.Payment
	requests    map[string]models.PaymentRequest
	submissions map[string]models.Submission
	sponsors    map[string]models.Sponsor
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:       map[string]models.User{},
		teams:       map[string]models.Team{},
		payments:    map[string]models.Payment{},
		requests:    map[string]models.PaymentRequest{},
		submissions: map[string]models.Submission{},
		sponsors:    map[string]models.Sponsor{},
	}
}

func (s *Store) Close(context.Context) error { return nil }

// ---------- Teams ----------

func cloneTeam(t models.Team) models.Team {
	t.Members = append([]models.Member(nil), t.Members...)
	return t
}

func (s *Store) GetTeam(_ context.Context, teamID string) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, store.ErrNotFound
	}
	t = cloneTeam(t)
	return &t, nil
}

func (s *Store) GetTeamByRegistrationID(_ context.Context, registrationID string) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.teams {
		if t.RegistrationID == registrationID {
			t = cloneTeam(t)
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SaveTeam(_ context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.teams {
		if id != team.TeamID && t.RegistrationID == team.RegistrationID {
			return store.ErrDuplicate
		}
	}
	s.teams[team.TeamID] = cloneTeam(*team)
	return nil
}

func (s *Store) UpdateTeamPayment(_ context.Context, teamID string, upd models.TeamPaymentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return store.ErrNotFound
	}
	t.PaymentStatus = upd.Status
	if upd.InitiatedAt != nil {
		v := *upd.InitiatedAt
		t.PaymentInitiatedAt = &v
	}
	if upd.CompletedAt != nil {
		v := *upd.CompletedAt
		t.PaymentCompletedAt = &v
	}
	if upd.UpdatedAt != nil {
		v := *upd.UpdatedAt
		t.PaymentUpdatedAt = &v
	}
	s.teams[teamID] = t
	return nil
}

func (s *Store) ListTeams(_ context.Context, filter store.TeamFilter) ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Team{}
	for _, t := range s.teams {
		if filter.Status != "" && t.PaymentStatus != filter.Status {
			continue
		}
		out = append(out, cloneTeam(t))
	}
	sortTeams(out)
	return out, nil
}

func (s *Store) FindTeamsByMemberEmail(_ context.Context, email string) ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Team{}
	for _, t := range s.teams {
		if t.HasMemberEmail(email) {
			out = append(out, cloneTeam(t))
		}
	}
	sortTeams(out)
	return out, nil
}

func sortTeams(ts []models.Team) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].TeamID < ts[j].TeamID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}

// ---------- Payments ----------

func (s *Store) GetPayment(_ context.Context, paymentID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpsertPayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.payments[p.PaymentID]; ok {
		p.CreatedAt = old.CreatedAt
		if p.TeamID == "" {
			p.TeamID = old.TeamID
		}
	}
	s.payments[p.PaymentID] = *p
	return nil
}

func (s *Store) FindPaidPaymentsByEmail(_ context.Context, email string) ([]models.Payment, error) {
	email = util.NormalizeEmail(email)
	return s.filterPayments(func(p models.Payment) bool {
		return p.Status == models.StatusPaid && util.NormalizeEmail(p.Email) == email
	}), nil
}

func (s *Store) FindPaidPaymentsByTeam(_ context.Context, teamID string) ([]models.Payment, error) {
	return s.filterPayments(func(p models.Payment) bool {
		return p.Status == models.StatusPaid && p.TeamID == teamID
	}), nil
}

func (s *Store) LinkPayment(_ context.Context, paymentID, teamID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.TeamID != "" && p.TeamID != teamID {
		return false, nil
	}
	p.TeamID = teamID
	s.payments[paymentID] = p
	return true, nil
}

func (s *Store) ListPayments(_ context.Context, filter store.PaymentFilter) ([]models.Payment, error) {
	return s.filterPayments(func(p models.Payment) bool {
		if filter.Status != "" && p.Status != filter.Status {
			return false
		}
		return filter.Since.IsZero() || !p.CreatedAt.Before(filter.Since)
	}), nil
}

func (s *Store) filterPayments(keep func(models.Payment) bool) []models.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Payment{}
	for _, p := range s.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PaymentID < out[j].PaymentID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) SavePaymentRequest(_ context.Context, r *models.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.RequestID] = *r
	return nil
}

func (s *Store) GetPaymentRequest(_ context.Context, requestID string) (*models.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

// ---------- Submissions ----------

func (s *Store) CreateSubmission(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.submissions {
		if existing.UserID == sub.UserID {
			return store.ErrDuplicate
		}
	}
	s.submissions[sub.ID] = *sub
	return nil
}

func (s *Store) GetSubmissionByUser(_ context.Context, userID string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			return &sub, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSubmissions(context.Context) ([]models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

// ---------- Users ----------

func (s *Store) SaveUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) CountUsers(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// ---------- Sponsors ----------

func (s *Store) ListSponsors(context.Context) ([]models.Sponsor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Sponsor, 0, len(s.sponsors))
	for _, sp := range s.sponsors {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateSponsor(_ context.Context, sp *models.Sponsor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sponsors[sp.ID]; ok {
		return store.ErrDuplicate
	}
	s.sponsors[sp.ID] = *sp
	return nil
}

func (s *Store) UpdateSponsor(_ context.Context, sp *models.Sponsor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sponsors[sp.ID]
	if !ok {
		return store.ErrNotFound
	}
	sp.CreatedAt = old.CreatedAt
	s.sponsors[sp.ID] = *sp
	return nil
}

func (s *Store) DeleteSponsor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sponsors[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sponsors, id)
	return nil
}
