package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"startup-spark/internal/models"
	"startup-spark/internal/store"
)

func team(id, regID string, emails ...string) *models.Team {
	t := &models.Team{
		TeamID:         id,
		UserID:         id,
		TeamName:       "team " + id,
		RegistrationID: regID,
		TeamSize:       len(emails),
		PaymentStatus:  models.StatusPending,
		CreatedAt:      time.Now(),
	}
	for _, e := range emails {
		t.Members = append(t.Members, models.Member{Name: e, Phone: "1", Email: e})
	}
	return t
}

func TestSaveTeamRejectsDuplicateRegistrationID(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.SaveTeam(ctx, team("u1", "SSGC25AAAAAAAAAAAA", "a@x.com", "b@x.com")))
	// Re-saving the same team keeps its id.
	require.NoError(t, s.SaveTeam(ctx, team("u1", "SSGC25AAAAAAAAAAAA", "a@x.com", "c@x.com")))

	err := s.SaveTeam(ctx, team("u2", "SSGC25AAAAAAAAAAAA", "d@x.com", "e@x.com"))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := s.GetTeamByRegistrationID(ctx, "SSGC25AAAAAAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.TeamID)
	assert.Equal(t, "c@x.com", got.Members[1].Email)
}

func TestReturnedTeamsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveTeam(ctx, team("u1", "R1", "a@x.com", "b@x.com")))

	got, err := s.GetTeam(ctx, "u1")
	require.NoError(t, err)
	got.Members[0].Email = "changed@x.com"

	again, err := s.GetTeam(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", again.Members[0].Email)
}

func TestUpdateTeamPayment(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveTeam(ctx, team("u1", "R1", "a@x.com", "b@x.com")))

	now := time.Now()
	require.NoError(t, s.UpdateTeamPayment(ctx, "u1", models.TeamPaymentUpdate{Status: models.StatusPaid, CompletedAt: &now}))

	got, err := s.GetTeam(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.PaymentStatus)
	require.NotNil(t, got.PaymentCompletedAt)
	assert.True(t, got.PaymentCompletedAt.Equal(now))
	assert.Nil(t, got.PaymentInitiatedAt)

	assert.ErrorIs(t, s.UpdateTeamPayment(ctx, "missing", models.TeamPaymentUpdate{}), store.ErrNotFound)
}

func TestFindPaidPaymentsByEmail(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()
	require.NoError(t, s.UpsertPayment(ctx, &models.Payment{PaymentID: "p2", Email: "A@x.com", Status: models.StatusPaid, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.UpsertPayment(ctx, &models.Payment{PaymentID: "p1", Email: "a@x.com", Status: models.StatusPaid, CreatedAt: base}))
	require.NoError(t, s.UpsertPayment(ctx, &models.Payment{PaymentID: "p3", Email: "a@x.com", Status: models.StatusPending, CreatedAt: base}))

	got, err := s.FindPaidPaymentsByEmail(ctx, " a@X.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].PaymentID)
	assert.Equal(t, "p2", got[1].PaymentID)
}

func TestLinkPayment(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertPayment(ctx, &models.Payment{PaymentID: "p1", Status: models.StatusPaid}))

	ok, err := s.LinkPayment(ctx, "p1", "teamA")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.LinkPayment(ctx, "p1", "teamA")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.LinkPayment(ctx, "p1", "teamB")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.LinkPayment(ctx, "nope", "teamA")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertPaymentKeepsLinkAndCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := New()
	created := time.Now().Add(-time.Hour)
	require.NoError(t, s.UpsertPayment(ctx, &models.Payment{PaymentID: "p1", Status: models.StatusPending, TeamID: "teamA", CreatedAt: created}))
	require.NoError(t, s.UpsertPayment(ctx, &models.Payment{PaymentID: "p1", Status: models.StatusPaid, CreatedAt: time.Now()}))

	got, err := s.GetPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.Status)
	assert.Equal(t, "teamA", got.TeamID)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestCreateSubmissionOncePerUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateSubmission(ctx, &models.Submission{ID: "s1", UserID: "u1"}))
	assert.ErrorIs(t, s.CreateSubmission(ctx, &models.Submission{ID: "s2", UserID: "u1"}), store.ErrDuplicate)

	got, err := s.GetSubmissionByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestSponsors(t *testing.T) {
	ctx := context.Background()
	s := New()
	created := time.Now()
	require.NoError(t, s.CreateSponsor(ctx, &models.Sponsor{ID: "sp1", Name: "Acme", Category: "gold", CreatedAt: created}))
	require.NoError(t, s.UpdateSponsor(ctx, &models.Sponsor{ID: "sp1", Name: "Acme Corp", Category: "gold"}))

	list, err := s.ListSponsors(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Acme Corp", list[0].Name)
	assert.True(t, list[0].CreatedAt.Equal(created))

	require.NoError(t, s.DeleteSponsor(ctx, "sp1"))
	assert.ErrorIs(t, s.DeleteSponsor(ctx, "sp1"), store.ErrNotFound)
}
