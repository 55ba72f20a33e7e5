package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type failing struct{ err error }

func (f failing) Notify(context.Context, Event) error { return f.err }

func TestMultiDeliversToAll(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	boom := errors.New("boom")

	err := Multi{a, failing{boom}, b}.Notify(context.Background(), Event{Kind: KindTeamPaid})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Kind{KindTeamPaid}, a.Kinds())
	assert.Equal(t, []Kind{KindTeamPaid}, b.Kinds())
}

func TestMultiEmpty(t *testing.T) {
	assert.NoError(t, Multi{}.Notify(context.Background(), Event{}))
	assert.NoError(t, Nop{}.Notify(context.Background(), Event{}))
}

func TestHubLateJoin(t *testing.T) {
	var hub Hub
	assert.NoError(t, hub.Notify(context.Background(), Event{Kind: KindTeamRegistered}))

	rec := &Recorder{}
	hub.Add(rec)
	assert.Equal(t, 1, hub.Len())

	assert.NoError(t, hub.Notify(context.Background(), Event{Kind: KindTeamPaid}))
	assert.Equal(t, []Kind{KindTeamPaid}, rec.Kinds())
}

type chanNotifier chan Event

func (c chanNotifier) Notify(_ context.Context, ev Event) error {
	c <- ev
	return errors.New("ignored")
}

func TestAsyncDoesNotBlockOrFail(t *testing.T) {
	ch := make(chanNotifier, 1)
	a := NewAsync(ch, zap.NewNop())

	assert.NoError(t, a.Notify(context.Background(), Event{Kind: KindPaymentReceived}))
	select {
	case ev := <-ch:
		assert.Equal(t, KindPaymentReceived, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
