package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novojourney/novo/internal/testutil"
	"github.com/novojourney/novo/models"
)

func receive(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return ChangeEvent{}
}

func TestSubscriptionReceivesPrayerChanges(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed(nil, nil)
	prayers := NewPrayerStore(testutil.SetupTestDB(t), feed)

	sub := feed.Subscribe(TopicPrayers)
	require.NoError(t, sub.Start(ctx))
	defer sub.Stop()

	req := &models.PrayerRequest{UserID: "u1", Request: "peace"}
	require.NoError(t, prayers.Add(ctx, req))
	ev := receive(t, sub.Events())
	assert.Equal(t, KindCreated, ev.Kind)
	assert.Equal(t, req.ID, ev.ID)

	_, err := prayers.Increment(ctx, req.ID)
	require.NoError(t, err)
	ev = receive(t, sub.Events())
	assert.Equal(t, KindPrayedFor, ev.Kind)
	assert.Equal(t, "u1", ev.UserID)
}

func TestSubscriptionIgnoresOtherTopics(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed(nil, nil)
	sub := feed.Subscribe(TopicPrayers)
	require.NoError(t, sub.Start(ctx))
	defer sub.Stop()

	feed.Publish(ctx, ChangeEvent{Topic: TopicJournal, Kind: KindCreated, ID: "j1"})
	feed.Publish(ctx, ChangeEvent{Topic: TopicPrayers, Kind: KindCreated, ID: "p1"})
	assert.Equal(t, "p1", receive(t, sub.Events()).ID)
}

func TestSubscriptionStopReleases(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed(nil, nil)
	sub := feed.Subscribe(TopicJournal)
	require.NoError(t, sub.Start(ctx))
	assert.ErrorIs(t, sub.Start(ctx), ErrSubscriptionStarted)

	sub.Stop()
	sub.Stop()
	_, ok := <-sub.Events()
	assert.False(t, ok)

	feed.mu.RLock()
	assert.Empty(t, feed.subs[TopicJournal])
	feed.mu.RUnlock()

	idle := feed.Subscribe(TopicJournal)
	idle.Stop()
	_, ok = <-idle.Events()
	assert.False(t, ok)
}
