package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-seating/internal/logger"
)

// Store keeps the ephemeral seat state in Redis. Two key namespaces:
//
//	seat:{showtime}:{seat}          -> user_id   (the hold; existence IS the reservation)
//	seat:purchase:{showtime}:{seat} -> booking_id (short-lived purchase fence)
//
// SetNX is the single serialization point per seat; no in-process locking is
// needed, which keeps the design safe across multiple server processes.
//
// Every method degrades on a Redis failure: it logs and returns the negative
// or empty result instead of an error, so callers read plain success/failure.
type Store struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewStore(client *redis.Client, log *logger.Logger) *Store {
	return &Store{Client: client, Logger: log}
}

func seatKey(showtimeID, seatID string) string {
	return fmt.Sprintf("seat:%s:%s", showtimeID, seatID)
}

func purchaseKey(showtimeID, seatID string) string {
	return fmt.Sprintf("seat:purchase:%s:%s", showtimeID, seatID)
}

// Reserve atomically creates the hold if the seat is free. Returns false
// both when someone already holds the seat and on a store failure.
func (s *Store) Reserve(ctx context.Context, showtimeID, seatID, userID string, ttl time.Duration) bool {
	ok, err := s.Client.SetNX(ctx, seatKey(showtimeID, seatID), userID, ttl).Result()
	if err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Failed to reserve seat %s/%s: %v", showtimeID, seatID, err))
		return false
	}
	if !ok {
		s.Logger.Warn("STORE", fmt.Sprintf("Seat %s already held in showtime %s", seatID, showtimeID))
		return false
	}
	s.Logger.LogSeat("RESERVE", showtimeID, seatID, "held by "+userID)
	return true
}

// Release drops the hold unconditionally and reports whether a key was
// actually removed. Releasing a free seat is not an error.
func (s *Store) Release(ctx context.Context, showtimeID, seatID string) bool {
	removed, err := s.Client.Del(ctx, seatKey(showtimeID, seatID)).Result()
	if err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Failed to release seat %s/%s: %v", showtimeID, seatID, err))
		return false
	}
	if removed > 0 {
		s.Logger.LogSeat("RELEASE", showtimeID, seatID, "hold removed")
		return true
	}
	return false
}

// GetHolder returns the user currently holding the seat, or "" when the seat
// is free or the store is unreachable.
func (s *Store) GetHolder(ctx context.Context, showtimeID, seatID string) string {
	holder, err := s.Client.Get(ctx, seatKey(showtimeID, seatID)).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Failed to get holder of seat %s/%s: %v", showtimeID, seatID, err))
		return ""
	}
	return holder
}

// Extend refreshes the TTL on an existing hold only; an absent key is a
// no-op returning false.
func (s *Store) Extend(ctx context.Context, showtimeID, seatID string, ttl time.Duration) bool {
	ok, err := s.Client.Expire(ctx, seatKey(showtimeID, seatID), ttl).Result()
	if err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Failed to extend seat %s/%s: %v", showtimeID, seatID, err))
		return false
	}
	if ok {
		s.Logger.LogSeat("EXTEND", showtimeID, seatID, fmt.Sprintf("ttl refreshed to %s", ttl))
	}
	return ok
}

// ListHolds scans the showtime's hold namespace and returns seat -> holder.
// A hold expiring between SCAN and GET is simply skipped.
func (s *Store) ListHolds(ctx context.Context, showtimeID string) map[string]string {
	holds := make(map[string]string)
	iter := s.Client.Scan(ctx, 0, fmt.Sprintf("seat:%s:*", showtimeID), 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		seatID := key[strings.LastIndex(key, ":")+1:]
		holder, err := s.Client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		holds[seatID] = holder
	}
	if err := iter.Err(); err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Failed to scan holds for showtime %s: %v", showtimeID, err))
		return map[string]string{}
	}
	return holds
}

// RemainingTTL returns the hold's remaining lifetime in seconds, -1 when the
// key has no expiry and -2 when it does not exist (Redis TTL semantics).
// Store failures report -2.
func (s *Store) RemainingTTL(ctx context.Context, showtimeID, seatID string) int64 {
	d, err := s.Client.TTL(ctx, seatKey(showtimeID, seatID)).Result()
	if err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Failed to get TTL of seat %s/%s: %v", showtimeID, seatID, err))
		return -2
	}
	if d < 0 {
		// go-redis passes -1/-2 through unscaled
		return int64(d)
	}
	return int64(d / time.Second)
}

// LockForPurchase acquires the purchase fence on every seat of the booking,
// all-or-nothing: the first seat that cannot be locked rolls back the locks
// taken in this call before returning false. Locks carry their own TTL so a
// crash mid-commit cannot fence a seat forever.
func (s *Store) LockForPurchase(ctx context.Context, showtimeID string, seatIDs []string, bookingID string, ttl time.Duration) bool {
	locked := make([]string, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		ok, err := s.Client.SetNX(ctx, purchaseKey(showtimeID, seatID), bookingID, ttl).Result()
		if err != nil {
			s.Logger.Error("STORE", fmt.Sprintf("Failed to lock seat %s/%s for purchase: %v", showtimeID, seatID, err))
			s.rollbackPurchaseLocks(ctx, showtimeID, locked)
			return false
		}
		if !ok {
			s.Logger.Warn("STORE", fmt.Sprintf("Seat %s already locked for purchase in showtime %s, rolling back booking %s", seatID, showtimeID, bookingID))
			s.rollbackPurchaseLocks(ctx, showtimeID, locked)
			return false
		}
		locked = append(locked, seatID)
	}
	s.Logger.Info("STORE", fmt.Sprintf("Locked %d seats for booking %s", len(seatIDs), bookingID))
	return true
}

func (s *Store) rollbackPurchaseLocks(ctx context.Context, showtimeID string, locked []string) {
	for _, seatID := range locked {
		if err := s.Client.Del(ctx, purchaseKey(showtimeID, seatID)).Err(); err != nil {
			s.Logger.Error("STORE", fmt.Sprintf("Failed to roll back purchase lock %s/%s: %v", showtimeID, seatID, err))
		}
	}
}

// UnlockAfterPurchase removes the purchase fences for the seat set. Called on
// both the success and the failure path; the fence is mutual exclusion for
// the commit step, never a record of ownership.
func (s *Store) UnlockAfterPurchase(ctx context.Context, showtimeID string, seatIDs []string) {
	for _, seatID := range seatIDs {
		if err := s.Client.Del(ctx, purchaseKey(showtimeID, seatID)).Err(); err != nil {
			s.Logger.Error("STORE", fmt.Sprintf("Failed to unlock seat %s/%s after purchase: %v", showtimeID, seatID, err))
		}
	}
	s.Logger.Info("STORE", fmt.Sprintf("Unlocked %d seats after purchase in showtime %s", len(seatIDs), showtimeID))
}
