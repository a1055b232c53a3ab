package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

func setupTestPubSub(t *testing.T) (*PubSub, *redis.Client) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, logger.NewTestLogger()), client
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "showtime:show-1", ChannelName("show-1"))
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ps, _ := setupTestPubSub(t)
	ctx := context.Background()

	sub := ps.Subscribe(ctx, "show-1")
	defer sub.Close()

	// Give the subscriber a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	userID := "user-a"
	ps.Publish(ctx, "show-1", models.NewSeatStatusEvent("show-1", "A1", models.SeatStatusReserved, &userID))

	select {
	case ev := <-sub.C:
		assert.Equal(t, "A1", ev.SeatID)
		assert.Equal(t, models.SeatStatusReserved, ev.Status)
		require.NotNil(t, ev.UserID)
		assert.Equal(t, "user-a", *ev.UserID)
		assert.Equal(t, "show-1", ev.ShowtimeID)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for seat event")
	}
}

func TestSubscribeIsPerShowtime(t *testing.T) {
	ps, _ := setupTestPubSub(t)
	ctx := context.Background()

	sub := ps.Subscribe(ctx, "show-1")
	defer sub.Close()
	time.Sleep(50 * time.Millisecond)

	ps.Publish(ctx, "show-2", models.NewSeatStatusEvent("show-2", "A1", models.SeatStatusReserved, nil))

	select {
	case ev := <-sub.C:
		t.Fatalf("Received event for the wrong showtime: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscriptionDropsMalformedPayloads(t *testing.T) {
	ps, client := setupTestPubSub(t)
	ctx := context.Background()

	sub := ps.Subscribe(ctx, "show-1")
	defer sub.Close()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, client.Publish(ctx, ChannelName("show-1"), "{not json").Err())
	ps.Publish(ctx, "show-1", models.NewSeatStatusEvent("show-1", "A2", models.SeatStatusAvailable, nil))

	select {
	case ev := <-sub.C:
		assert.Equal(t, "A2", ev.SeatID, "Only the well-formed event should come through")
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for seat event")
	}
}

func TestParseHoldKey(t *testing.T) {
	showtime, seat, ok := parseHoldKey("seat:show-1:A1")
	assert.True(t, ok)
	assert.Equal(t, "show-1", showtime)
	assert.Equal(t, "A1", seat)

	_, _, ok = parseHoldKey("seat:purchase:show-1:A1")
	assert.False(t, ok, "Purchase-lock expiry must be ignored")

	_, _, ok = parseHoldKey("session:abc")
	assert.False(t, ok)

	_, _, ok = parseHoldKey("seat:show-1")
	assert.False(t, ok)
}

type captureBroadcaster struct {
	mu        sync.Mutex
	showtimes []string
	messages  []interface{}
}

func (c *captureBroadcaster) Broadcast(showtimeID string, message interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showtimes = append(c.showtimes, showtimeID)
	c.messages = append(c.messages, message)
}

func (c *captureBroadcaster) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func TestExpiryListenerBroadcastsAvailable(t *testing.T) {
	_, client := setupTestPubSub(t)
	ctx := context.Background()

	hub := &captureBroadcaster{}
	listener := NewExpiryListener(client, hub, nil, logger.NewTestLogger())
	go listener.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// miniredis does not emit keyspace notifications, so feed the listener
	// the same message a real Redis would publish on hold expiry.
	require.NoError(t, client.Publish(ctx, "__keyevent@0__:expired", "seat:show-1:A1").Err())
	require.NoError(t, client.Publish(ctx, "__keyevent@0__:expired", "seat:purchase:show-1:A2").Err())

	assert.Eventually(t, func() bool { return hub.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.mu.Lock()
	defer hub.mu.Unlock()
	update, ok := hub.messages[0].(models.SeatUpdateMessage)
	require.True(t, ok)
	assert.Equal(t, models.MessageTypeSeatUpdate, update.Type)
	assert.Equal(t, "A1", update.SeatID)
	assert.Equal(t, models.SeatStatusAvailable, update.Status)
	assert.Nil(t, update.UserID)
	assert.Equal(t, []string{"show-1"}, hub.showtimes)
}
