package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"ms-seating/internal/auth"
	"ms-seating/internal/models"
	"ms-seating/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from the cinema frontend's origin; access control
	// happens in the auth middleware, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to the hub's Conn interface. gorilla
// allows only one concurrent writer, so sends are serialized.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// ServeWS upgrades the request and binds the connection to the showtime's
// broadcast set. The read loop handles reserve/release/extend actions until
// the client goes away; a malformed message is answered on this connection
// only, never by tearing it down.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	showtimeID := chi.URLParam(r, "showtimeId")
	if showtimeID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Showtime ID is required", ""))
		return
	}
	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", ""))
		return
	}

	exists, err := h.DB.ShowtimeExists(r.Context(), showtimeID)
	if err != nil {
		h.Logger.Error("WS", fmt.Sprintf("Failed to check showtime %s: %v", showtimeID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to verify showtime", err.Error()))
		return
	}
	if !exists {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Showtime not found", ""))
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("WS", fmt.Sprintf("Upgrade failed for showtime %s: %v", showtimeID, err))
		return
	}
	conn := &wsConn{conn: raw}

	h.Hub.Connect(r.Context(), conn, showtimeID, userID)
	defer func() {
		h.Hub.Disconnect(conn, showtimeID)
		conn.Close()
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			h.Logger.Debug("WS", fmt.Sprintf("Read loop ended for user %s on showtime %s: %v", userID, showtimeID, err))
			return
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.Hub.SendDirect(conn, models.NewErrorMessage("invalid message format"))
			continue
		}

		h.Hub.HandleAction(r.Context(), conn, showtimeID, userID, msg)
	}
}
