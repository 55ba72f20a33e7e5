package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Inline runs the work in a goroutine of the current process.
type Inline struct {
	rec     Reconciler
	log     *zap.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
	wg     sync.WaitGroup
}

func NewInline(rec Reconciler, log *zap.Logger) *Inline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Inline{
		rec:     rec,
		log:     log,
		timeout: time.Minute,
		ctx:     ctx,
		cancel:  cancel,
		timers:  map[*time.Timer]struct{}{},
	}
}

// run starts fn unless the dispatcher is closed. The Add happens under mu so
// Close never races a late job into a finished Wait.
func (d *Inline) run(name string, fn func(ctx context.Context) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Debug("dispatcher closed, job dropped", zap.String("job", name))
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.log.Warn("background job failed", zap.String("job", name), zap.Error(err))
		}
	}()
}

// later starts fn after the delay. Pending timers are not waited for.
func (d *Inline) later(name string, after time.Duration, fn func(ctx context.Context) error) {
	if after <= 0 {
		d.run(name, fn)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(after, func() {
		d.mu.Lock()
		delete(d.timers, t)
		d.mu.Unlock()
		d.run(name, fn)
	})
	d.timers[t] = struct{}{}
}

func (d *Inline) ReconcileTeam(_ context.Context, teamID string, after time.Duration) error {
	d.later(TypeTeamReconcile, after, func(ctx context.Context) error {
		_, err := d.rec.Reconcile(ctx, teamID)
		return err
	})
	return nil
}

func (d *Inline) ReconcilePayment(_ context.Context, paymentID string) error {
	d.run(TypePaymentReconcile, func(ctx context.Context) error {
		_, err := d.rec.ReconcilePayment(ctx, paymentID)
		return err
	})
	return nil
}

func (d *Inline) Sweep(_ context.Context) error {
	d.run(TypeTeamsSweep, func(ctx context.Context) error {
		_, err := d.rec.Sweep(ctx)
		return err
	})
	return nil
}

// Wait blocks until every job started so far has finished.
func (d *Inline) Wait() { d.wg.Wait() }

// Close stops accepting jobs, drops pending delayed ones, cancels the running
// ones and waits for them to return.
func (d *Inline) Close() {
	d.mu.Lock()
	d.closed = true
	for t := range d.timers {
		t.Stop()
	}
	d.timers = map[*time.Timer]struct{}{}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// Ticker runs Sweep every interval until ctx is done. It stands in for the
// asynq scheduler when Redis is absent.
func (d *Inline) Ticker(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = d.Sweep(ctx)
		}
	}
}
