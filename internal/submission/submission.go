// Package submission accepts the phase-1 idea submission of a paid team.
package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/storage"
	"startup-spark/internal/store"
	"startup-spark/internal/util"
)

type Store interface {
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)
	store.SubmissionStore
}

type SubmitInput struct {
	TeamName           string `json:"teamName" form:"teamName" validate:"required"`
	TeamLeadName       string `json:"teamLeadName" form:"teamLeadName"`
	CollegeName        string `json:"collegeName" form:"collegeName" validate:"required"`
	WhatsappNumber     string `json:"whatsappNumber" form:"whatsappNumber" validate:"required"`
	ProductDescription string `json:"productDescription" form:"productDescription" validate:"required"`
	Solution           string `json:"solution" form:"solution" validate:"required"`
	YoutubeLink        string `json:"youtubeLink" form:"youtubeLink" validate:"required,url"`
}

type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type Service struct {
	store    Store
	uploader storage.Uploader
	log      *zap.Logger
	now      func() time.Time
}

func New(st Store, uploader storage.Uploader, log *zap.Logger) *Service {
	return &Service{store: st, uploader: uploader, log: log, now: time.Now}
}

func (s *Service) storeErr(op string, err error) error {
	s.log.Error("submission store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s", errs.ErrStore, op)
}

// Submit uploads the file and records the submission. Only a paid team may
// submit, and only once.
func (s *Service) Submit(ctx context.Context, userID string, in SubmitInput, file *File) (*models.Submission, error) {
	team, err := s.store.GetTeam(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrPaymentRequired
	}
	if err != nil {
		return nil, s.storeErr("get team", err)
	}
	if team.PaymentStatus != models.StatusPaid {
		return nil, errs.ErrPaymentRequired
	}
	if team.RegistrationID == "" {
		return nil, errs.Invalid("registrationId", "required")
	}

	trim(&in)
	if in.TeamLeadName == "" {
		in.TeamLeadName = team.Lead().Name
	}
	if err := util.ValidateStruct(in); err != nil {
		return nil, err
	}
	if file == nil || file.Body == nil || file.Name == "" {
		return nil, errs.Invalid("file", "required")
	}

	switch _, err := s.store.GetSubmissionByUser(ctx, userID); {
	case err == nil:
		return nil, errs.ErrAlreadyExists
	case !errors.Is(err, store.ErrNotFound):
		return nil, s.storeErr("get submission", err)
	}

	url, err := s.uploader.Upload(ctx, storage.ObjectName(team.RegistrationID, file.Name), file.Body, file.ContentType)
	if err != nil {
		return nil, err
	}

	sub := &models.Submission{
		ID:                 uuid.NewString(),
		UserID:             userID,
		TeamName:           in.TeamName,
		TeamLeadName:       in.TeamLeadName,
		CollegeName:        in.CollegeName,
		WhatsappNumber:     in.WhatsappNumber,
		ProductDescription: in.ProductDescription,
		Solution:           in.Solution,
		YoutubeLink:        in.YoutubeLink,
		FileURL:            url,
		RegistrationID:     team.RegistrationID,
		SubmittedAt:        s.now(),
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, s.storeErr("create submission", err)
	}
	s.log.Info("phase-1 submission", zap.String("team", userID), zap.String("registration_id", team.RegistrationID))
	return sub, nil
}

func trim(in *SubmitInput) {
	for _, f := range []*string{
		&in.TeamName, &in.TeamLeadName, &in.CollegeName, &in.WhatsappNumber,
		&in.ProductDescription, &in.Solution, &in.YoutubeLink,
	} {
		*f = strings.TrimSpace(*f)
	}
}

func (s *Service) GetForUser(ctx context.Context, userID string) (*models.Submission, error) {
	sub, err := s.store.GetSubmissionByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("get submission", err)
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context) ([]models.Submission, error) {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, s.storeErr("list submissions", err)
	}
	return subs, nil
}
