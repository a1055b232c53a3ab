package pubsub

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

// Broadcaster pushes a message to every live connection watching a showtime.
type Broadcaster interface {
	Broadcast(showtimeID string, message interface{})
}

// SeatStatusExporter mirrors seat-status changes onto the Kafka export topic.
type SeatStatusExporter interface {
	PublishSeatStatus(ev models.SeatStatusEvent) error
}

// ExpiryListener turns Redis keyspace expiry notifications for seat holds
// into "available" updates. The store itself removes expired holds; this is
// how watching clients learn about it. Requires notify-keyspace-events to
// include "Ex" (main enables it at startup).
type ExpiryListener struct {
	Client   *redis.Client
	Hub      Broadcaster
	Exporter SeatStatusExporter
	Logger   *logger.Logger
}

func NewExpiryListener(client *redis.Client, hub Broadcaster, exporter SeatStatusExporter, log *logger.Logger) *ExpiryListener {
	return &ExpiryListener{Client: client, Hub: hub, Exporter: exporter, Logger: log}
}

// EnableNotifications turns on keyspace expiry events on the Redis server.
func EnableNotifications(ctx context.Context, client *redis.Client, log *logger.Logger) {
	if _, err := client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
		return
	}
	log.Info("REDIS", "Keyspace notifications enabled for expired events")
}

// Run subscribes to expired-key events and fans matching seat holds out as
// available. Blocks until the subscription channel closes; run in a
// goroutine.
func (l *ExpiryListener) Run(ctx context.Context) {
	ps := l.Client.PSubscribe(ctx, "__keyevent@*__:expired")
	l.Logger.Info("REDIS", "Subscribed to keyevent expired notifications")

	for msg := range ps.Channel() {
		showtimeID, seatID, ok := parseHoldKey(msg.Payload)
		if !ok {
			continue
		}
		l.Logger.LogSeat("EXPIRE", showtimeID, seatID, "hold expired, seat available again")

		ev := models.NewSeatStatusEvent(showtimeID, seatID, models.SeatStatusAvailable, nil)
		l.Hub.Broadcast(showtimeID, models.NewSeatUpdateMessage(ev))

		if l.Exporter != nil {
			if err := l.Exporter.PublishSeatStatus(ev); err != nil {
				l.Logger.Warn("KAFKA", fmt.Sprintf("Failed to export expiry of seat %s/%s: %v", showtimeID, seatID, err))
			}
		}
	}
}

// parseHoldKey splits "seat:{showtime}:{seat}". Purchase-lock expiry
// ("seat:purchase:...") is deliberately ignored: a lapsed fence changes no
// client-visible seat ownership.
func parseHoldKey(key string) (showtimeID, seatID string, ok bool) {
	if !strings.HasPrefix(key, "seat:") || strings.HasPrefix(key, "seat:purchase:") {
		return "", "", false
	}
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
