package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-social-session/session"
)

func TestSubscribe_SlowSubscriberKeepsLatest(t *testing.T) {
	f := newFixture(t)
	sub := f.manager.Subscribe(1)
	defer sub.Unsubscribe()

	require.Equal(t, session.OutcomeSuccess, f.manager.Login(context.Background()).Outcome)
	require.NoError(t, f.manager.Logout(context.Background()))

	ev := nextEvent(t, sub)
	require.Equal(t, session.EventLoggedOut, ev.Kind)
	requireNoEvent(t, sub)
}

func TestSubscribe_EveryoneReceives(t *testing.T) {
	f := newFixture(t)
	a := f.manager.Subscribe(2)
	b := f.manager.Subscribe(2)
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	res := f.manager.Login(context.Background())
	require.Equal(t, session.OutcomeSuccess, res.Outcome)
	require.Equal(t, res.User, nextEvent(t, a).User)
	require.Equal(t, res.User, nextEvent(t, b).User)
}

func TestSubscribe_NoReplay(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, session.OutcomeSuccess, f.manager.Login(context.Background()).Outcome)

	sub := f.manager.Subscribe(2)
	defer sub.Unsubscribe()
	requireNoEvent(t, sub)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	f := newFixture(t)
	sub := f.manager.Subscribe(1)
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.C
	require.False(t, ok)

	require.Equal(t, session.OutcomeSuccess, f.manager.Login(context.Background()).Outcome)
}

func TestClose_EndsSubscriptions(t *testing.T) {
	f := newFixture(t)
	sub := f.manager.Subscribe(1)
	f.manager.Close()

	_, ok := <-sub.C
	require.False(t, ok)
	sub.Unsubscribe()
}

func TestEventUserIsACopy(t *testing.T) {
	f := newFixture(t)
	sub := f.manager.Subscribe(1)
	defer sub.Unsubscribe()

	require.Equal(t, session.OutcomeSuccess, f.manager.Login(context.Background()).Outcome)
	ev := nextEvent(t, sub)
	ev.User.DisplayName = "mutated"
	require.Equal(t, "Test User", f.manager.CurrentUser().DisplayName)
}
