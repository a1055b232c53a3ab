package models

// Seat statuses carried on the pub/sub channel and in broadcast messages.
const (
	SeatStatusAvailable = "available"
	SeatStatusReserved  = "reserved"
	SeatStatusPurchased = "purchased"
)

// SeatStatusEvent is the transient message published on the showtime channel
// whenever a seat changes state. It is never persisted; UserID is nil when a
// seat transitions back to available.
type SeatStatusEvent struct {
	SeatID     string  `json:"seat_id"`
	Status     string  `json:"status"`
	UserID     *string `json:"user_id"`
	ShowtimeID string  `json:"showtime_id"`
}

func NewSeatStatusEvent(showtimeID, seatID, status string, userID *string) SeatStatusEvent {
	return SeatStatusEvent{
		SeatID:     seatID,
		Status:     status,
		UserID:     userID,
		ShowtimeID: showtimeID,
	}
}
