package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

// PubSub fans seat-status events out through Redis pub/sub, one channel per
// showtime. Connection state is local to each process; the channel is what
// makes seat changes visible to every server process and to standalone
// consumers.
type PubSub struct {
	Client *redis.Client
	Logger *logger.Logger
}

func New(client *redis.Client, log *logger.Logger) *PubSub {
	return &PubSub{Client: client, Logger: log}
}

// ChannelName returns the pub/sub channel for a showtime.
func ChannelName(showtimeID string) string {
	return "showtime:" + showtimeID
}

// Publish serializes the event onto the showtime's channel. Best effort: a
// failed publish is logged, never surfaced.
func (p *PubSub) Publish(ctx context.Context, showtimeID string, ev models.SeatStatusEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.Logger.Error("PUBSUB", fmt.Sprintf("Failed to marshal seat event for %s: %v", showtimeID, err))
		return
	}
	if err := p.Client.Publish(ctx, ChannelName(showtimeID), payload).Err(); err != nil {
		p.Logger.Error("PUBSUB", fmt.Sprintf("Failed to publish seat event to %s: %v", ChannelName(showtimeID), err))
		return
	}
	p.Logger.Debug("PUBSUB", fmt.Sprintf("Published %s event for seat %s on %s", ev.Status, ev.SeatID, ChannelName(showtimeID)))
}

// Subscription is a decoded feed of one showtime's seat events, independent
// of the connection registry. C closes when the subscription is closed.
type Subscription struct {
	pubsub *redis.PubSub
	C      <-chan models.SeatStatusEvent
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// Subscribe opens a feed for one showtime. Messages that fail to decode are
// dropped with a log line.
func (p *PubSub) Subscribe(ctx context.Context, showtimeID string) *Subscription {
	ps := p.Client.Subscribe(ctx, ChannelName(showtimeID))
	events := make(chan models.SeatStatusEvent, 16)

	go func() {
		defer close(events)
		for msg := range ps.Channel() {
			var ev models.SeatStatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.Logger.Error("PUBSUB", fmt.Sprintf("Failed to decode seat event on %s: %v", msg.Channel, err))
				continue
			}
			events <- ev
		}
	}()

	p.Logger.Info("PUBSUB", fmt.Sprintf("Subscribed to %s", ChannelName(showtimeID)))
	return &Subscription{pubsub: ps, C: events}
}
