package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"startup-spark/internal/config"
	"startup-spark/internal/errs"
)

func RedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// Queue enqueues tasks on Redis.
type Queue struct {
	client *asynq.Client
	log    *zap.Logger
}

func NewQueue(cfg config.Config, log *zap.Logger) *Queue {
	return &Queue{client: asynq.NewClient(RedisOpt(cfg)), log: log}
}

func (q *Queue) Close() error { return q.client.Close() }

func (q *Queue) enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) error {
	info, err := q.client.EnqueueContext(ctx, t, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		q.log.Error("enqueue failed", zap.String("task", t.Type()), zap.Error(err))
		return fmt.Errorf("%w: %s", errs.ErrQueue, t.Type())
	}
	q.log.Debug("enqueued", zap.String("task", t.Type()), zap.String("id", info.ID))
	return nil
}

func (q *Queue) ReconcileTeam(ctx context.Context, teamID string, after time.Duration) error {
	t, err := NewTeamReconcileTask(teamID)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, t, teamOptions(after)...)
}

func teamOptions(after time.Duration) []asynq.Option {
	opts := []asynq.Option{asynq.MaxRetry(5), asynq.Unique(after + 15*time.Second), asynq.Timeout(time.Minute)}
	if after > 0 {
		opts = append(opts, asynq.ProcessIn(after))
	}
	return opts
}

func (q *Queue) ReconcilePayment(ctx context.Context, paymentID string) error {
	t, err := NewPaymentReconcileTask(paymentID)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, t, asynq.MaxRetry(8), asynq.Unique(15*time.Second), asynq.Timeout(time.Minute))
}

func (q *Queue) Sweep(ctx context.Context) error {
	return q.enqueue(ctx, NewSweepTask(), asynq.MaxRetry(1), asynq.Unique(time.Minute), asynq.Timeout(10*time.Minute))
}

// Worker processes the tasks and schedules the periodic sweep.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	interval  string
	scheduled bool
	log       *zap.Logger
}

func NewWorker(cfg config.Config, h *Handlers, log *zap.Logger) *Worker {
	opt := RedisOpt(cfg)
	sugar := log.Sugar()

	mux := asynq.NewServeMux()
	h.Register(mux)

	return &Worker{
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 4,
			Logger:      sugar,
			IsFailure: func(err error) bool {
				// Lock contention is expected, not a failure.
				return !errors.Is(err, errs.ErrInProgress)
			},
		}),
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: sugar}),
		mux:       mux,
		interval:  cfg.Event.SweepInterval,
		log:       log,
	}
}

func (w *Worker) Start() error {
	if w.interval != "" {
		id, err := w.scheduler.Register(w.interval, NewSweepTask(), asynq.MaxRetry(1), asynq.Unique(time.Minute))
		if err != nil {
			return fmt.Errorf("register sweep: %w", err)
		}
		w.log.Info("sweep scheduled", zap.String("every", w.interval), zap.String("entry", id))
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		w.scheduled = true
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	return nil
}

func (w *Worker) Stop() {
	if w.scheduled {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
}
