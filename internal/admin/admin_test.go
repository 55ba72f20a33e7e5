package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/notify"
	"startup-spark/internal/reconcile"
	"startup-spark/internal/store/memory"
)

type dispatcherMock struct{ mock.Mock }

func (m *dispatcherMock) ReconcilePayment(_ context.Context, paymentID string) error {
	return m.Called(paymentID).Error(0)
}

type sweeperMock struct{ mock.Mock }

func (m *sweeperMock) Sweep(context.Context) (reconcile.SweepReport, error) {
	args := m.Called()
	return args.Get(0).(reconcile.SweepReport), args.Error(1)
}

type exporterMock struct{ mock.Mock }

func (m *exporterMock) ExportRoster(_ context.Context, teams []models.Team) (int, error) {
	args := m.Called(len(teams))
	return args.Int(0), args.Error(1)
}

func (m *exporterMock) SpreadsheetID() string { return "sheet-1" }

var now = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

type fixture struct {
	st   *memory.Store
	disp *dispatcherMock
	sw   *sweeperMock
	rec  *notify.Recorder
	svc  *Service
}

func newFixture(t *testing.T, exporter RosterExporter) *fixture {
	t.Helper()
	f := &fixture{st: memory.New(), disp: &dispatcherMock{}, sw: &sweeperMock{}, rec: &notify.Recorder{}}
	f.svc = New(f.st, f.disp, f.sw, exporter, f.rec, zap.NewNop())
	f.svc.now = func() time.Time { return now }

	ctx := context.Background()
	for _, tm := range []models.Team{
		{TeamID: "u1", TeamName: "Rocket", RegistrationID: "SSGC25AAAAAAAAAAAA", TeamSize: 2, PaymentStatus: models.StatusPaid,
			CreatedAt: now.Add(-3 * time.Hour),
			Members:   []models.Member{{Name: "Alice", Email: "alice@x.com"}, {Name: "Bob", Email: "bob@x.com"}}},
		{TeamID: "u2", TeamName: "Comet", RegistrationID: "SSGC25BBBBBBBBBBBB", TeamSize: 2, PaymentStatus: models.StatusInitiated,
			CreatedAt: now.Add(-2 * time.Hour),
			Members:   []models.Member{{Name: "Carol", Email: "carol@x.com"}, {Name: "Dan", Email: "dan@x.com"}}},
		{TeamID: "u3", TeamName: "Nebula", RegistrationID: "SSGC25CCCCCCCCCCCC", TeamSize: 2, PaymentStatus: models.StatusPending,
			CreatedAt: now.Add(-time.Hour),
			Members:   []models.Member{{Name: "Eve", Email: "eve@x.com"}, {Name: "Frank", Email: "frank@x.com"}}},
	} {
		tm := tm
		require.NoError(t, f.st.SaveTeam(ctx, &tm))
	}
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		require.NoError(t, f.st.SaveUser(ctx, &models.User{UserID: id}))
	}
	return f
}

func TestListTeamsSearchAndStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	all, err := f.svc.ListTeams(ctx, TeamQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byMember, err := f.svc.ListTeams(ctx, TeamQuery{Search: "CAROL"})
	require.NoError(t, err)
	require.Len(t, byMember, 1)
	assert.Equal(t, "u2", byMember[0].TeamID)

	byRegID, err := f.svc.ListTeams(ctx, TeamQuery{Search: "ssgc25ccc"})
	require.NoError(t, err)
	require.Len(t, byRegID, 1)
	assert.Equal(t, "Nebula", byRegID[0].TeamName)

	pending, err := f.svc.ListTeams(ctx, TeamQuery{Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.svc.ListTeams(ctx, TeamQuery{Status: "refunded"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestSetPaymentStatusOverride(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	team, err := f.svc.SetPaymentStatus(ctx, "ops", "u3", models.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, team.PaymentStatus)
	assert.Equal(t, []notify.Kind{notify.KindTeamPaid}, f.rec.Kinds())

	stored, err := f.st.GetTeam(ctx, "u3")
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentCompletedAt)
	require.NotNil(t, stored.PaymentUpdatedAt)
	assert.True(t, stored.PaymentUpdatedAt.Equal(now))

	// Backwards moves are allowed and do not notify.
	team, err = f.svc.SetPaymentStatus(ctx, "ops", "u1", models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, team.PaymentStatus)
	assert.Len(t, f.rec.Kinds(), 1)

	_, err = f.svc.SetPaymentStatus(ctx, "ops", "u1", "refunded")
	assert.ErrorIs(t, err, errs.ErrInvalidStatus)
	_, err = f.svc.SetPaymentStatus(ctx, "ops", "ghost", models.StatusPaid)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTeamByRegistrationID(t *testing.T) {
	f := newFixture(t, nil)
	team, err := f.svc.TeamByRegistrationID(context.Background(), " ssgc25bbbbbbbbbbbb ")
	require.NoError(t, err)
	assert.Equal(t, "u2", team.TeamID)

	_, err = f.svc.TeamByRegistrationID(context.Background(), "SSGC25ZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.TeamByRegistrationID(context.Background(), "team-1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListPaymentsRangeAndSearch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, p := range []models.Payment{
		{PaymentID: "p-old", Email: "alice@x.com", BuyerName: "Alice", Amount: 400, Status: models.StatusPaid, CreatedAt: now.AddDate(0, -2, 0)},
		{PaymentID: "p-week", Email: "carol@x.com", BuyerName: "Carol", Amount: 400, Status: models.StatusPaid, CreatedAt: now.AddDate(0, 0, -3)},
		{PaymentID: "p-today", Email: "zed@y.com", BuyerName: "Zed", GatewayPaymentID: "MOJO123", Amount: 200, Status: models.StatusPending, CreatedAt: now.Add(-time.Hour)},
	} {
		p := p
		require.NoError(t, f.st.UpsertPayment(ctx, &p))
	}

	all, err := f.svc.ListPayments(ctx, PaymentQuery{Range: RangeAll})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	week, err := f.svc.ListPayments(ctx, PaymentQuery{Range: RangeWeek})
	require.NoError(t, err)
	assert.Len(t, week, 2)

	today, err := f.svc.ListPayments(ctx, PaymentQuery{Range: RangeToday})
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "p-today", today[0].PaymentID)

	search, err := f.svc.ListPayments(ctx, PaymentQuery{Search: "mojo"})
	require.NoError(t, err)
	require.Len(t, search, 1)

	_, err = f.svc.ListPayments(ctx, PaymentQuery{Range: "year"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.disp.On("ReconcilePayment", mock.AnythingOfType("string")).Return(nil).Once()

	p, err := f.svc.RecordPayment(ctx, "cfo", RecordPaymentInput{Email: "Eve@X.com", BuyerName: "Eve", Amount: 400, TeamID: "u3"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.PaymentID)
	assert.Equal(t, "eve@x.com", p.Email)
	assert.Equal(t, models.StatusPaid, p.Status)
	f.disp.AssertCalled(t, "ReconcilePayment", p.PaymentID)

	_, err = f.svc.RecordPayment(ctx, "cfo", RecordPaymentInput{Email: "eve@x.com", BuyerName: "Eve", Amount: 0})
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.RecordPayment(ctx, "cfo", RecordPaymentInput{Email: "eve@x.com", BuyerName: "Eve", Amount: 400, TeamID: "ghost"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestFinanceSummaryCountsEachTeamOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, p := range []models.Payment{
		// Two payments from Rocket's members must not count Rocket twice.
		{PaymentID: "p1", Email: "alice@x.com", Amount: 400, Status: models.StatusPaid, CreatedAt: now.AddDate(0, 0, -10)},
		{PaymentID: "p2", Email: "bob@x.com", Amount: 400, Status: models.StatusPaid, CreatedAt: now.AddDate(0, 0, -1)},
		// Comet is initiated but paid by email.
		{PaymentID: "p3", Email: "dan@x.com", Amount: 400, Status: models.StatusPaid, CreatedAt: now.Add(-time.Hour)},
		{PaymentID: "p4", Email: "eve@x.com", Amount: 400, Status: models.StatusPending, CreatedAt: now},
	} {
		p := p
		require.NoError(t, f.st.UpsertPayment(ctx, &p))
	}

	sum, err := f.svc.FinanceSummary(ctx, RangeAll)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.TotalRegistrations)
	assert.Equal(t, models.Amount(1200), sum.TotalRevenue)
	assert.Equal(t, 2, sum.PaidTeams)
	assert.Equal(t, 1, sum.PendingTeams)
	assert.Equal(t, models.Amount(600), sum.AveragePayment)
	assert.Equal(t, 3, sum.Payments)

	week, err := f.svc.FinanceSummary(ctx, RangeWeek)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(800), week.TotalRevenue)
	assert.Equal(t, 2, week.PaidTeams)

	// Rocket paid yesterday, so only Comet paid today.
	today, err := f.svc.FinanceSummary(ctx, RangeToday)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(400), today.TotalRevenue)
	assert.Equal(t, 1, today.PaidTeams)
	assert.Equal(t, 1, today.PendingTeams)
	assert.Equal(t, models.Amount(400), today.AveragePayment)
}

func TestFinanceSummaryLinkedPaymentCountsForItsTeamOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	// Eve is on Nebula but paid for Comet.
	require.NoError(t, f.st.UpsertPayment(ctx, &models.Payment{
		PaymentID: "p5", Email: "eve@x.com", TeamID: "u2", Amount: 400, Status: models.StatusPaid, CreatedAt: now,
	}))

	sum, err := f.svc.FinanceSummary(ctx, RangeAll)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.PaidTeams, "Rocket by status and Comet by link")
	assert.Equal(t, 1, sum.PendingTeams, "Nebula")
	assert.Equal(t, models.Amount(400), sum.TotalRevenue)
}

func TestFinanceSummaryEmpty(t *testing.T) {
	svc := New(memory.New(), &dispatcherMock{}, &sweeperMock{}, nil, notify.Nop{}, zap.NewNop())
	sum, err := svc.FinanceSummary(context.Background(), RangeAll)
	require.NoError(t, err)
	assert.Zero(t, sum.AveragePayment)
	assert.Zero(t, sum.PaidTeams)
}

func TestSponsorCRUD(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateSponsor(ctx, SponsorInput{Name: "Acme"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	sp, err := f.svc.CreateSponsor(ctx, SponsorInput{Name: "Acme", Category: "gold", Website: "https://acme.example"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateSponsor(ctx, sp.ID, SponsorInput{Name: "Acme Corp", Category: "platinum"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", updated.Name)
	require.NotNil(t, updated.UpdatedAt)

	list, err := f.svc.ListSponsors(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "platinum", list[0].Category)

	require.NoError(t, f.svc.DeleteSponsor(ctx, sp.ID))
	assert.ErrorIs(t, f.svc.DeleteSponsor(ctx, sp.ID), errs.ErrNotFound)
	_, err = f.svc.UpdateSponsor(ctx, sp.ID, SponsorInput{Name: "x", Category: "y"})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestExportRoster(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.ExportRoster(context.Background())
	assert.ErrorIs(t, err, errs.ErrNotImplemented)

	exp := &exporterMock{}
	exp.On("ExportRoster", 3).Return(3, nil).Once()
	f = newFixture(t, exp)
	res, err := f.svc.ExportRoster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ExportResult{Teams: 3, SpreadsheetID: "sheet-1"}, res)

	exp.On("ExportRoster", 3).Return(0, errors.New("quota")).Once()
	_, err = f.svc.ExportRoster(context.Background())
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestSweepDelegates(t *testing.T) {
	f := newFixture(t, nil)
	f.sw.On("Sweep").Return(reconcile.SweepReport{Checked: 1, Confirmed: 1}, nil)

	rep, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Confirmed)
}
