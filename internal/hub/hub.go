package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

// Conn is one live client connection. The hub only needs to push messages
// and close; the WebSocket specifics live in the API layer.
type Conn interface {
	Send(v interface{}) error
	Close() error
}

// HoldLister supplies the current hold snapshot for the connect-time sync.
type HoldLister interface {
	ListHolds(ctx context.Context, showtimeID string) map[string]string
}

// ActionService handles seat actions arriving over a live connection. Bound
// after construction because the service in turn broadcasts through the hub.
type ActionService interface {
	Reserve(ctx context.Context, showtimeID string, seatIDs []string, userID string, ttl time.Duration) map[string]bool
	Release(ctx context.Context, showtimeID string, seatIDs []string, userID string) map[string]bool
	Extend(ctx context.Context, showtimeID string, seatIDs []string, userID string, ttl time.Duration) map[string]bool
}

// Hub is the per-process connection registry: which connections watch which
// showtime, and which user each belongs to. All map access is mutex-guarded;
// broadcast never mutates the set while iterating it (collect-then-remove).
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[Conn]string // showtimeID -> conn -> userID

	store   HoldLister
	actions ActionService
	logger  *logger.Logger
}

func NewHub(store HoldLister, log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[Conn]string),
		store:       store,
		logger:      log,
	}
}

// BindActions wires the protocol handler in. Must be called before any
// client action arrives.
func (h *Hub) BindActions(actions ActionService) {
	h.actions = actions
}

// Connect registers the connection and immediately sends it the full current
// hold snapshot, so a client joining mid-session is never out of sync.
func (h *Hub) Connect(ctx context.Context, conn Conn, showtimeID, userID string) {
	h.mu.Lock()
	if h.connections[showtimeID] == nil {
		h.connections[showtimeID] = make(map[Conn]string)
	}
	h.connections[showtimeID][conn] = userID
	total := len(h.connections[showtimeID])
	h.mu.Unlock()

	h.logger.Info("HUB", fmt.Sprintf("User %s connected to showtime %s (%d connections)", userID, showtimeID, total))

	h.sendInitialStatus(ctx, conn, showtimeID)
}

func (h *Hub) sendInitialStatus(ctx context.Context, conn Conn, showtimeID string) {
	holds := h.store.ListHolds(ctx, showtimeID)

	reserved := make([]models.ReservedSeat, 0, len(holds))
	for seatID, userID := range holds {
		reserved = append(reserved, models.ReservedSeat{
			SeatID: seatID,
			UserID: userID,
			Status: models.SeatStatusReserved,
		})
	}

	msg := models.InitialStatusMessage{
		Type:          models.MessageTypeInitialStatus,
		ShowtimeID:    showtimeID,
		ReservedSeats: reserved,
	}
	if err := conn.Send(msg); err != nil {
		h.logger.Error("HUB", fmt.Sprintf("Failed to send initial status for showtime %s: %v", showtimeID, err))
	}
}

// Disconnect removes the connection; the showtime entry is dropped when its
// last connection goes away.
func (h *Hub) Disconnect(conn Conn, showtimeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.connections[showtimeID]
	if !ok {
		return
	}
	userID, ok := conns[conn]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.connections, showtimeID)
	}

	h.logger.Info("HUB", fmt.Sprintf("User %s disconnected from showtime %s (%d connections left)", userID, showtimeID, len(conns)))
}

// Broadcast sends the message to every connection watching the showtime.
// Connections whose send fails are collected and disconnected afterward.
func (h *Hub) Broadcast(showtimeID string, message interface{}) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.connections[showtimeID]))
	for conn := range h.connections[showtimeID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	var failed []Conn
	for _, conn := range conns {
		if err := conn.Send(message); err != nil {
			h.logger.Error("HUB", fmt.Sprintf("Failed to send broadcast on showtime %s: %v", showtimeID, err))
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		h.Disconnect(conn, showtimeID)
		conn.Close()
	}
}

// SendDirect unicasts a message to one connection, for acknowledgments that
// must not reach other clients.
func (h *Hub) SendDirect(conn Conn, message interface{}) {
	if err := conn.Send(message); err != nil {
		h.logger.Error("HUB", fmt.Sprintf("Failed to send direct message: %v", err))
	}
}

// ConnectionCount reports how many connections watch a showtime.
func (h *Hub) ConnectionCount(showtimeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[showtimeID])
}

// HandleAction dispatches one client action to the protocol handler and
// sends the direct acknowledgment. Broadcasting on state-changing success
// happens inside the handler itself.
func (h *Hub) HandleAction(ctx context.Context, conn Conn, showtimeID, userID string, msg models.ClientMessage) {
	if msg.Action == "" || msg.SeatID == "" {
		h.SendDirect(conn, models.NewErrorMessage("action and seat_id are required"))
		return
	}

	var (
		results map[string]bool
		okMsg   string
		failMsg string
	)

	switch msg.Action {
	case models.ActionReserve:
		results = h.actions.Reserve(ctx, showtimeID, []string{msg.SeatID}, userID, 0)
		okMsg, failMsg = "Seat reserved successfully", "Seat already reserved"
	case models.ActionRelease:
		results = h.actions.Release(ctx, showtimeID, []string{msg.SeatID}, userID)
		okMsg, failMsg = "Seat released successfully", "You don't have permission to release this seat"
	case models.ActionExtend:
		results = h.actions.Extend(ctx, showtimeID, []string{msg.SeatID}, userID, 0)
		okMsg, failMsg = "Reservation extended", "You don't have permission to extend this reservation"
	default:
		h.SendDirect(conn, models.NewErrorMessage("Unknown action: "+msg.Action))
		return
	}

	ack := models.ActionResultMessage{
		Type:    models.MessageTypeActionResult,
		Action:  msg.Action,
		SeatID:  msg.SeatID,
		Success: results[msg.SeatID],
	}
	if ack.Success {
		ack.Message = okMsg
	} else {
		ack.Message = failMsg
	}
	h.SendDirect(conn, ack)
}
