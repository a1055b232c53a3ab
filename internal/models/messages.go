package models

// Message types sent to connected clients.
const (
	MessageTypeSeatUpdate    = "seat_update"
	MessageTypeInitialStatus = "initial_status"
	MessageTypeActionResult  = "action_result"
	MessageTypeError         = "error"
)

// Client actions accepted over a live connection.
const (
	ActionReserve = "reserve"
	ActionRelease = "release"
	ActionExtend  = "extend"
)

// ClientMessage is what a client sends over its live connection.
type ClientMessage struct {
	Action string `json:"action"`
	SeatID string `json:"seat_id"`
}

// SeatUpdateMessage is broadcast to every connection watching a showtime
// when a seat changes state.
type SeatUpdateMessage struct {
	Type       string  `json:"type"`
	SeatID     string  `json:"seat_id"`
	Status     string  `json:"status"`
	UserID     *string `json:"user_id"`
	ShowtimeID string  `json:"showtime_id"`
}

func NewSeatUpdateMessage(ev SeatStatusEvent) SeatUpdateMessage {
	return SeatUpdateMessage{
		Type:       MessageTypeSeatUpdate,
		SeatID:     ev.SeatID,
		Status:     ev.Status,
		UserID:     ev.UserID,
		ShowtimeID: ev.ShowtimeID,
	}
}

// ReservedSeat is one entry of the snapshot sent to a freshly connected
// client.
type ReservedSeat struct {
	SeatID string `json:"seat_id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// InitialStatusMessage carries the full hold snapshot for a showtime so a
// client joining mid-session is never out of sync.
type InitialStatusMessage struct {
	Type          string         `json:"type"`
	ShowtimeID    string         `json:"showtime_id"`
	ReservedSeats []ReservedSeat `json:"reserved_seats"`
}

// ActionResultMessage is the direct acknowledgment for one client action.
// It is only ever unicast to the acting connection.
type ActionResultMessage struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	SeatID  string `json:"seat_id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorMessage answers a malformed client message without tearing the
// connection down.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Message: message}
}

// HeldSeat reports one of the acting user's own holds with its remaining TTL
// in seconds.
type HeldSeat struct {
	SeatID string `json:"seat_id"`
	TTL    int64  `json:"ttl"`
}
