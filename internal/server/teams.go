package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-spark/internal/admin"
	"startup-spark/internal/auth"
	"startup-spark/internal/config"
	"startup-spark/internal/errs"
	"startup-spark/internal/models"
	"startup-spark/internal/reconcile"
	"startup-spark/internal/registration"
	"startup-spark/internal/submission"
)

type Reconciler interface {
	Reconcile(ctx context.Context, teamID string) (reconcile.Result, error)
}

type TeamController struct {
	fx.In

	Cfg          config.Config
	Auth         *auth.Service
	Registration *registration.Service
	Submissions  *submission.Service
	Reconciler   Reconciler
	Admin        *admin.Service
	Log          *zap.Logger
}

func RegisterTeamController(app *fiber.App, c TeamController) {
	owner := SignedInUser(c.Auth)

	app.Put("/api/users/:userId", owner, c.saveProfile)
	app.Get("/api/users/:userId", owner, c.getProfile)
	app.Get("/api/users/:userId/prefill", owner, c.prefill)

	app.Post("/api/teams/:userId", owner, c.register)
	app.Get("/api/teams/:userId", owner, c.getTeam)
	app.Post("/api/teams/:userId/initiate", owner, c.initiate)
	app.Post("/api/teams/:userId/reconcile", owner, c.reconcile)
	app.Post("/api/teams/:userId/submission", owner, c.submit)
	app.Get("/api/teams/:userId/submission", owner, c.getSubmission)

	app.Get("/api/sponsors", c.sponsors)
}

func (r TeamController) saveProfile(c *fiber.Ctx) error {
	var in registration.ProfileInput
	if err := c.BodyParser(&in); err != nil {
		return couldNotParse(err)
	}
	u, err := r.Registration.SaveProfile(c.UserContext(), c.Params("userId"), in)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (r TeamController) getProfile(c *fiber.Ctx) error {
	u, err := r.Registration.GetProfile(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (r TeamController) prefill(c *fiber.Ctx) error {
	lead, err := r.Registration.Prefill(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"lead": lead})
}

func (r TeamController) register(c *fiber.Ctx) error {
	var in registration.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return couldNotParse(err)
	}
	reg, err := r.Registration.Register(c.UserContext(), c.Params("userId"), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(reg)
}

func (r TeamController) getTeam(c *fiber.Ctx) error {
	reg, err := r.Registration.Get(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(reg)
}

func (r TeamController) initiate(c *fiber.Ctx) error {
	origin := c.Get(fiber.HeaderOrigin)
	if origin == "" {
		origin = r.Cfg.BasePublicURL
	}
	out, err := r.Registration.InitiatePayment(c.UserContext(), c.Params("userId"), origin)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// reconcile is the "check payment status" button.
func (r TeamController) reconcile(c *fiber.Ctx) error {
	res, err := r.Reconciler.Reconcile(c.UserContext(), c.Params("userId"))
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrStore), errors.Is(err, errs.ErrInProgress):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Could not check payment status right now. Please try again later.",
		})
	default:
		return err
	}

	message := "Payment not yet confirmed."
	if res.Confirmed || res.Status == models.StatusPaid {
		message = "Payment confirmed."
	}
	return c.JSON(fiber.Map{"result": res, "message": message})
}

func (r TeamController) submit(c *fiber.Ctx) error {
	var in submission.SubmitInput
	if err := c.BodyParser(&in); err != nil {
		return couldNotParse(err)
	}

	var file *submission.File
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return couldNotParse(err)
		}
		defer f.Close()
		file = &submission.File{Name: fh.Filename, ContentType: fh.Header.Get(fiber.HeaderContentType), Body: f}
	}

	sub, err := r.Submissions.Submit(c.UserContext(), c.Params("userId"), in, file)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (r TeamController) getSubmission(c *fiber.Ctx) error {
	sub, err := r.Submissions.GetForUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

func (r TeamController) sponsors(c *fiber.Ctx) error {
	sp, err := r.Admin.ListSponsors(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(sp)
}
