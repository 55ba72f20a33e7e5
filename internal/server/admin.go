package server

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-spark/internal/admin"
	"startup-spark/internal/auth"
	"startup-spark/internal/models"
	"startup-spark/internal/submission"
)

type AdminController struct {
	fx.In

	Admin       *admin.Service
	Auth        *auth.Service
	Submissions *submission.Service
	Log         *zap.Logger
}

func RegisterAdminController(app *fiber.App, c AdminController) {
	app.Post("/api/admin/login", c.login)

	staff := Protected(c.Auth, auth.RoleAdmin, auth.RoleFinance)
	adminOnly := Protected(c.Auth, auth.RoleAdmin)

	g := app.Group("/api/admin")
	g.Get("/teams", staff, c.listTeams)
	g.Put("/teams/:teamId/payment-status", staff, c.setPaymentStatus)
	g.Get("/payments", staff, c.listPayments)
	g.Post("/payments", staff, c.recordPayment)
	g.Get("/finance", staff, c.finance)

	g.Get("/submissions", adminOnly, c.listSubmissions)
	g.Post("/sponsors", adminOnly, c.createSponsor)
	g.Put("/sponsors/:id", adminOnly, c.updateSponsor)
	g.Delete("/sponsors/:id", adminOnly, c.deleteSponsor)
	g.Post("/reconcile", adminOnly, c.sweep)
	g.Post("/export/roster", adminOnly, c.exportRoster)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r AdminController) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return couldNotParse(err)
	}
	token, claims, err := r.Auth.Login(req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"token":     token,
		"role":      claims.Role,
		"expiresAt": claims.ExpiresAt.Time,
	})
}

func (r AdminController) listTeams(c *fiber.Ctx) error {
	var q admin.TeamQuery
	if err := c.QueryParser(&q); err != nil {
		return couldNotParse(err)
	}
	teams, err := r.Admin.ListTeams(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(teams)
}

type statusRequest struct {
	Status models.PaymentStatus `json:"paymentStatus"`
}

func (r AdminController) setPaymentStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return couldNotParse(err)
	}
	team, err := r.Admin.SetPaymentStatus(c.UserContext(), actor(c), c.Params("teamId"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(team)
}

func (r AdminController) listPayments(c *fiber.Ctx) error {
	var q admin.PaymentQuery
	if err := c.QueryParser(&q); err != nil {
		return couldNotParse(err)
	}
	ps, err := r.Admin.ListPayments(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(ps)
}

func (r AdminController) recordPayment(c *fiber.Ctx) error {
	var in admin.RecordPaymentInput
	if err := c.BodyParser(&in); err != nil {
		return couldNotParse(err)
	}
	p, err := r.Admin.RecordPayment(c.UserContext(), actor(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (r AdminController) finance(c *fiber.Ctx) error {
	sum, err := r.Admin.FinanceSummary(c.UserContext(), admin.Range(c.Query("range")))
	if err != nil {
		return err
	}
	return c.JSON(sum)
}

func (r AdminController) listSubmissions(c *fiber.Ctx) error {
	subs, err := r.Submissions.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(subs)
}

func (r AdminController) createSponsor(c *fiber.Ctx) error {
	var in admin.SponsorInput
	if err := c.BodyParser(&in); err != nil {
		return couldNotParse(err)
	}
	sp, err := r.Admin.CreateSponsor(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sp)
}

func (r AdminController) updateSponsor(c *fiber.Ctx) error {
	var in admin.SponsorInput
	if err := c.BodyParser(&in); err != nil {
		return couldNotParse(err)
	}
	sp, err := r.Admin.UpdateSponsor(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(sp)
}

func (r AdminController) deleteSponsor(c *fiber.Ctx) error {
	if err := r.Admin.DeleteSponsor(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (r AdminController) sweep(c *fiber.Ctx) error {
	rep, err := r.Admin.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(rep)
}

func (r AdminController) exportRoster(c *fiber.Ctx) error {
	res, err := r.Admin.ExportRoster(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(res)
}
