// Package notify fans domain events out to organizers and team leads.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"startup-spark/internal/models"
)

type Kind string

const (
	KindTeamRegistered  Kind = "team_registered"
	KindTeamPaid        Kind = "team_paid"
	KindPaymentReceived Kind = "payment_received"
)

type Event struct {
	Kind          Kind
	Team          *models.Team
	Payment       *models.Payment
	AmountPayable models.Amount
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi delivers to every notifier and joins the failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errList []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// Async sends in the background so callers never wait on Telegram or Mailgun.
type Async struct {
	next    Notifier
	log     *zap.Logger
	timeout time.Duration
}

func NewAsync(next Notifier, log *zap.Logger) *Async {
	return &Async{next: next, log: log, timeout: 15 * time.Second}
}

func (a *Async) Notify(_ context.Context, ev Event) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, ev); err != nil {
			a.log.Warn("notify failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}()
	return nil
}

// Hub is a Multi that sinks may join after the services holding it were
// built. The Telegram bot needs the admin service and is itself a sink.
type Hub struct {
	mu    sync.RWMutex
	sinks Multi
}

func (h *Hub) Add(n Notifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, n)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

func (h *Hub) Notify(ctx context.Context, ev Event) error {
	h.mu.RLock()
	sinks := h.sinks
	h.mu.RUnlock()
	return sinks.Notify(ctx, ev)
}

// Recorder keeps every event. Handy in tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
	return nil
}

func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Kind
	}
	return out
}
