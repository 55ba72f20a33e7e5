// Package jobs runs reconciliation in the background, through asynq when
// Redis is available and in-process otherwise.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"startup-spark/internal/errs"
	"startup-spark/internal/reconcile"
)

const (
	TypePaymentReconcile = "payment:reconcile"
	TypeTeamReconcile    = "team:reconcile"
	TypeTeamsSweep       = "teams:sweep"
)

// Dispatcher schedules reconciliation work without waiting for it. A team
// check with a positive delay runs once that much time has passed.
type Dispatcher interface {
	ReconcileTeam(ctx context.Context, teamID string, after time.Duration) error
	ReconcilePayment(ctx context.Context, paymentID string) error
	Sweep(ctx context.Context) error
}

// Reconciler is the work the tasks perform.
type Reconciler interface {
	Reconcile(ctx context.Context, teamID string) (reconcile.Result, error)
	ReconcilePayment(ctx context.Context, paymentID string) ([]reconcile.Result, error)
	Sweep(ctx context.Context) (reconcile.SweepReport, error)
}

type teamPayload struct {
	TeamID string `json:"team_id"`
}

type paymentPayload struct {
	PaymentID string `json:"payment_id"`
}

func NewTeamReconcileTask(teamID string) (*asynq.Task, error) {
	b, err := json.Marshal(teamPayload{TeamID: teamID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTeamReconcile, b), nil
}

func NewPaymentReconcileTask(paymentID string) (*asynq.Task, error) {
	b, err := json.Marshal(paymentPayload{PaymentID: paymentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePaymentReconcile, b), nil
}

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeTeamsSweep, nil)
}

// Handlers turns tasks into Reconciler calls.
type Handlers struct {
	rec Reconciler
	log *zap.Logger
}

func NewHandlers(rec Reconciler, log *zap.Logger) *Handlers {
	return &Handlers{rec: rec, log: log}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeTeamReconcile, h.HandleTeamReconcile)
	mux.HandleFunc(TypePaymentReconcile, h.HandlePaymentReconcile)
	mux.HandleFunc(TypeTeamsSweep, h.HandleSweep)
}

func (h *Handlers) HandleTeamReconcile(ctx context.Context, t *asynq.Task) error {
	var p teamPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.TeamID == "" {
		return fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	}
	res, err := h.rec.Reconcile(ctx, p.TeamID)
	if err != nil {
		return h.taskErr(TypeTeamReconcile, err)
	}
	h.log.Debug("team reconciled", zap.String("team", p.TeamID), zap.Bool("confirmed", res.Confirmed))
	return nil
}

func (h *Handlers) HandlePaymentReconcile(ctx context.Context, t *asynq.Task) error {
	var p paymentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.PaymentID == "" {
		return fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	}
	results, err := h.rec.ReconcilePayment(ctx, p.PaymentID)
	if err != nil {
		return h.taskErr(TypePaymentReconcile, err)
	}
	h.log.Debug("payment reconciled", zap.String("payment", p.PaymentID), zap.Int("teams", len(results)))
	return nil
}

func (h *Handlers) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := h.rec.Sweep(ctx)
	if err != nil {
		return h.taskErr(TypeTeamsSweep, err)
	}
	return nil
}

// taskErr keeps retryable failures retryable and drops the rest.
func (h *Handlers) taskErr(task string, err error) error {
	if errs.Retryable(err) {
		h.log.Warn("task failed, will retry", zap.String("task", task), zap.Error(err))
		return err
	}
	h.log.Error("task failed", zap.String("task", task), zap.Error(err))
	return errors.Join(err, asynq.SkipRetry)
}
