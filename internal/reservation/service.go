package reservation

import (
	"context"
	"fmt"
	"time"

	"ms-seating/internal/config"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

// SeatStore is the slice of the reservation store the protocol handler uses.
type SeatStore interface {
	Reserve(ctx context.Context, showtimeID, seatID, userID string, ttl time.Duration) bool
	Release(ctx context.Context, showtimeID, seatID string) bool
	GetHolder(ctx context.Context, showtimeID, seatID string) string
	Extend(ctx context.Context, showtimeID, seatID string, ttl time.Duration) bool
	ListHolds(ctx context.Context, showtimeID string) map[string]string
	RemainingTTL(ctx context.Context, showtimeID, seatID string) int64
	LockForPurchase(ctx context.Context, showtimeID string, seatIDs []string, bookingID string, ttl time.Duration) bool
	UnlockAfterPurchase(ctx context.Context, showtimeID string, seatIDs []string)
}

// Publisher emits seat events on the cross-process channel.
type Publisher interface {
	Publish(ctx context.Context, showtimeID string, ev models.SeatStatusEvent)
}

// Broadcaster pushes messages to this process's live connections.
type Broadcaster interface {
	Broadcast(showtimeID string, message interface{})
}

// EventExporter mirrors seat-status changes to Kafka for downstream services;
// optional (nil when Kafka is disabled).
type EventExporter interface {
	PublishSeatStatus(ev models.SeatStatusEvent) error
}

// Service is the reservation protocol handler: for each action it mutates
// the store, and on state-changing success publishes to the event channel
// and broadcasts to live connections. Correctness under contention rests
// entirely on the store's conditional set; the service holds no locks.
type Service struct {
	Store    SeatStore
	PubSub   Publisher
	Hub      Broadcaster
	Exporter EventExporter
	Logger   *logger.Logger

	holdTTL         time.Duration
	purchaseLockTTL time.Duration
}

func NewService(store SeatStore, pub Publisher, hub Broadcaster, exporter EventExporter, log *logger.Logger, cfg config.ReservationConfig) *Service {
	return &Service{
		Store:           store,
		PubSub:          pub,
		Hub:             hub,
		Exporter:        exporter,
		Logger:          log,
		holdTTL:         cfg.HoldTTL,
		purchaseLockTTL: cfg.PurchaseLockTTL,
	}
}

// announce is the one place a state change leaves the process: pub/sub
// channel, local broadcast, and the optional Kafka export.
func (s *Service) announce(ctx context.Context, showtimeID, seatID, status string, userID *string) {
	ev := models.NewSeatStatusEvent(showtimeID, seatID, status, userID)
	s.PubSub.Publish(ctx, showtimeID, ev)
	s.Hub.Broadcast(showtimeID, models.NewSeatUpdateMessage(ev))
	if s.Exporter != nil {
		if err := s.Exporter.PublishSeatStatus(ev); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to export %s event for seat %s/%s: %v", status, showtimeID, seatID, err))
		}
	}
}

// Reserve attempts to hold every requested seat for the user. Per-seat
// first-writer-wins; winners are announced, losers only appear as false in
// the result map.
func (s *Service) Reserve(ctx context.Context, showtimeID string, seatIDs []string, userID string, ttl time.Duration) map[string]bool {
	if ttl <= 0 {
		ttl = s.holdTTL
	}

	results := make(map[string]bool, len(seatIDs))
	for _, seatID := range seatIDs {
		ok := s.Store.Reserve(ctx, showtimeID, seatID, userID, ttl)
		results[seatID] = ok
		if ok {
			uid := userID
			s.announce(ctx, showtimeID, seatID, models.SeatStatusReserved, &uid)
		}
	}
	return results
}

// Release drops holds. Only the current holder may release a seat; an empty
// userID is the bulk administrative path (the booking use case cleaning up)
// and skips the holder check. Releasing a free seat reports false without
// error.
func (s *Service) Release(ctx context.Context, showtimeID string, seatIDs []string, userID string) map[string]bool {
	results := make(map[string]bool, len(seatIDs))
	for _, seatID := range seatIDs {
		if userID != "" {
			holder := s.Store.GetHolder(ctx, showtimeID, seatID)
			if holder != userID {
				s.Logger.Warn("SEAT", fmt.Sprintf("User %s may not release seat %s/%s held by %q", userID, showtimeID, seatID, holder))
				results[seatID] = false
				continue
			}
		}

		ok := s.Store.Release(ctx, showtimeID, seatID)
		results[seatID] = ok
		if ok {
			s.announce(ctx, showtimeID, seatID, models.SeatStatusAvailable, nil)
		}
	}
	return results
}

// Extend refreshes the TTL of the user's own holds. No broadcast: nobody
// else's view of seat ownership changes, only the holder's remaining time.
func (s *Service) Extend(ctx context.Context, showtimeID string, seatIDs []string, userID string, ttl time.Duration) map[string]bool {
	if ttl <= 0 {
		ttl = s.holdTTL
	}

	results := make(map[string]bool, len(seatIDs))
	for _, seatID := range seatIDs {
		holder := s.Store.GetHolder(ctx, showtimeID, seatID)
		if holder != userID || holder == "" {
			s.Logger.Warn("SEAT", fmt.Sprintf("User %s may not extend seat %s/%s held by %q", userID, showtimeID, seatID, holder))
			results[seatID] = false
			continue
		}
		results[seatID] = s.Store.Extend(ctx, showtimeID, seatID, ttl)
	}
	return results
}

// ConfirmPurchase converts the booking's holds into a purchase. The purchase
// lock on the full seat set is all-or-nothing; on success the temporary
// holds are released (superseded by the purchase), every seat is announced
// as purchased, and the locks are dropped — the fence only guards the commit
// step, ownership lives in the booking record downstream.
func (s *Service) ConfirmPurchase(ctx context.Context, showtimeID string, seatIDs []string, userID, bookingID string) bool {
	if !s.Store.LockForPurchase(ctx, showtimeID, seatIDs, bookingID, s.purchaseLockTTL) {
		s.Logger.Warn("PURCHASE", fmt.Sprintf("Booking %s could not lock seats %v in showtime %s", bookingID, seatIDs, showtimeID))
		return false
	}

	for _, seatID := range seatIDs {
		s.Store.Release(ctx, showtimeID, seatID)
	}

	for _, seatID := range seatIDs {
		uid := userID
		s.announce(ctx, showtimeID, seatID, models.SeatStatusPurchased, &uid)
	}

	s.Store.UnlockAfterPurchase(ctx, showtimeID, seatIDs)

	s.Logger.Info("PURCHASE", fmt.Sprintf("Booking %s purchased %d seats in showtime %s", bookingID, len(seatIDs), showtimeID))
	return true
}

// CheckAvailability reports, per seat, whether no hold currently exists.
// Purchased seats are the domain layer's concern; this only sees holds.
func (s *Service) CheckAvailability(ctx context.Context, showtimeID string, seatIDs []string) map[string]bool {
	results := make(map[string]bool, len(seatIDs))
	for _, seatID := range seatIDs {
		results[seatID] = s.Store.GetHolder(ctx, showtimeID, seatID) == ""
	}
	return results
}

// UserHeldSeats lists the user's own holds in a showtime with their
// remaining TTLs.
func (s *Service) UserHeldSeats(ctx context.Context, showtimeID, userID string) []models.HeldSeat {
	holds := s.Store.ListHolds(ctx, showtimeID)

	held := make([]models.HeldSeat, 0)
	for seatID, holder := range holds {
		if holder != userID {
			continue
		}
		held = append(held, models.HeldSeat{
			SeatID: seatID,
			TTL:    s.Store.RemainingTTL(ctx, showtimeID, seatID),
		})
	}
	return held
}

// Snapshot returns the full hold map for a showtime (seat -> holder).
func (s *Service) Snapshot(ctx context.Context, showtimeID string) map[string]string {
	return s.Store.ListHolds(ctx, showtimeID)
}
