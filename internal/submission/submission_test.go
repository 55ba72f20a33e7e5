package submission

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/storage"
	"startup-spark/internal/store/memory"
)

type memUploader struct {
	names []string
	data  []string
}

func (u *memUploader) Upload(_ context.Context, name string, r io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.names = append(u.names, name)
	u.data = append(u.data, string(b))
	return storage.PublicURL("ssgc", name), nil
}

func input() SubmitInput {
	return SubmitInput{
		TeamName:           "Rocket",
		CollegeName:        "SSGC College",
		WhatsappNumber:     "9999999999",
		ProductDescription: "rockets",
		Solution:           "faster rockets",
		YoutubeLink:        "https://youtu.be/abc",
	}
}

func pdf() *File {
	return &File{Name: "pitch deck.pdf", ContentType: "application/pdf", Body: strings.NewReader("%PDF")}
}

func seed(t *testing.T, status models.PaymentStatus) (*memory.Store, *memUploader, *Service) {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.SaveTeam(context.Background(), &models.Team{
		TeamID: "u1", UserID: "u1", TeamName: "Rocket", RegistrationID: "SSGC25ABCDEF123456",
		TeamSize: 2, PaymentStatus: status,
		Members: []models.Member{{Name: "Alice", Phone: "1", Email: "alice@x.com"}, {Name: "Bob", Phone: "2", Email: "bob@x.com"}},
	}))
	up := &memUploader{}
	return st, up, New(st, up, zap.NewNop())
}

func TestSubmitPaidTeam(t *testing.T) {
	_, up, svc := seed(t, models.StatusPaid)

	sub, err := svc.Submit(context.Background(), "u1", input(), pdf())
	require.NoError(t, err)

	assert.Equal(t, []string{"phase1_submissions/SSGC25ABCDEF123456_pitch deck.pdf"}, up.names)
	assert.Equal(t, "%PDF", up.data[0])
	assert.Equal(t, "https://storage.googleapis.com/ssgc/phase1_submissions/SSGC25ABCDEF123456_pitch%20deck.pdf", sub.FileURL)
	assert.Equal(t, "Alice", sub.TeamLeadName)
	assert.Equal(t, "SSGC25ABCDEF123456", sub.RegistrationID)

	got, err := svc.GetForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
}

func TestSubmitRequiresPayment(t *testing.T) {
	for _, status := range []models.PaymentStatus{models.StatusPending, models.StatusInitiated} {
		_, up, svc := seed(t, status)
		_, err := svc.Submit(context.Background(), "u1", input(), pdf())
		assert.ErrorIs(t, err, errs.ErrPaymentRequired)
		assert.Empty(t, up.names)
	}

	_, _, svc := seed(t, models.StatusPaid)
	_, err := svc.Submit(context.Background(), "nobody", input(), pdf())
	assert.ErrorIs(t, err, errs.ErrPaymentRequired)
}

func TestSubmitValidation(t *testing.T) {
	_, up, svc := seed(t, models.StatusPaid)

	in := input()
	in.YoutubeLink = "not a link"
	_, err := svc.Submit(context.Background(), "u1", in, pdf())
	assert.ErrorIs(t, err, errs.ErrValidation)

	in = input()
	in.Solution = "   "
	_, err = svc.Submit(context.Background(), "u1", in, pdf())
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.Submit(context.Background(), "u1", input(), nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, up.names)
}

func TestSubmitOncePerUser(t *testing.T) {
	_, up, svc := seed(t, models.StatusPaid)

	_, err := svc.Submit(context.Background(), "u1", input(), pdf())
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), "u1", input(), pdf())
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)
	assert.Len(t, up.names, 1)

	subs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubmitStorageDisabled(t *testing.T) {
	st, _, _ := seed(t, models.StatusPaid)
	svc := New(st, storage.Disabled{}, zap.NewNop())

	_, err := svc.Submit(context.Background(), "u1", input(), pdf())
	assert.ErrorIs(t, err, errs.ErrStorage)

	_, err = svc.GetForUser(context.Background(), "u1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
