package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ms-seating/internal/auth"
	"ms-seating/internal/hub"
	"ms-seating/internal/logger"
	"ms-seating/internal/reservation"
	"ms-seating/internal/utils"
)

// ShowtimeChecker validates a showtime against the relational store before
// seat state is mutated.
type ShowtimeChecker interface {
	ShowtimeExists(ctx context.Context, id string) (bool, error)
}

type Handler struct {
	Seats  *reservation.Service
	Hub    *hub.Hub
	DB     ShowtimeChecker
	Logger *logger.Logger
}

func NewHandler(seats *reservation.Service, h *hub.Hub, db ShowtimeChecker, log *logger.Logger) *Handler {
	return &Handler{Seats: seats, Hub: h, DB: db, Logger: log}
}

// RegisterRoutes mounts the seat endpoints on the (already authenticated)
// router group.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/seats/{showtimeId}", func(r chi.Router) {
		r.Get("/ws", h.ServeWS)
		r.Post("/reserve", h.Reserve)
		r.Post("/release", h.Release)
		r.Post("/extend", h.Extend)
		r.Post("/purchase", h.ConfirmPurchase)
		r.Get("/availability", h.CheckAvailability)
		r.Get("/held", h.UserHeldSeats)
	})
}

type seatActionRequest struct {
	SeatIDs []string `json:"seat_ids"`
	TTL     int      `json:"ttl"`
}

type purchaseRequest struct {
	SeatIDs   []string `json:"seat_ids"`
	BookingID string   `json:"booking_id"`
}

// showtimeFromRequest resolves and validates the showtime path parameter.
// Writes the error response itself and returns "" when the request is bad.
func (h *Handler) showtimeFromRequest(w http.ResponseWriter, r *http.Request) string {
	showtimeID := chi.URLParam(r, "showtimeId")
	if showtimeID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Showtime ID is required", ""))
		return ""
	}

	exists, err := h.DB.ShowtimeExists(r.Context(), showtimeID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to check showtime %s: %v", showtimeID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to verify showtime", err.Error()))
		return ""
	}
	if !exists {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Showtime not found", ""))
		return ""
	}
	return showtimeID
}

func decodeSeatAction(w http.ResponseWriter, r *http.Request) (*seatActionRequest, bool) {
	var req seatActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return nil, false
	}
	if len(req.SeatIDs) == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("seat_ids must not be empty", ""))
		return nil, false
	}
	return &req, true
}

func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	showtimeID := h.showtimeFromRequest(w, r)
	if showtimeID == "" {
		return
	}
	req, ok := decodeSeatAction(w, r)
	if !ok {
		return
	}
	userID := auth.UserID(r.Context())

	h.Logger.Info("API", fmt.Sprintf("Reserve: showtime=%s seats=%v user=%s", showtimeID, req.SeatIDs, userID))

	results := h.Seats.Reserve(r.Context(), showtimeID, req.SeatIDs, userID, time.Duration(req.TTL)*time.Second)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Reservation processed", results))
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	showtimeID := h.showtimeFromRequest(w, r)
	if showtimeID == "" {
		return
	}
	req, ok := decodeSeatAction(w, r)
	if !ok {
		return
	}
	userID := auth.UserID(r.Context())

	h.Logger.Info("API", fmt.Sprintf("Release: showtime=%s seats=%v user=%s", showtimeID, req.SeatIDs, userID))

	results := h.Seats.Release(r.Context(), showtimeID, req.SeatIDs, userID)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Release processed", results))
}

func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	showtimeID := h.showtimeFromRequest(w, r)
	if showtimeID == "" {
		return
	}
	req, ok := decodeSeatAction(w, r)
	if !ok {
		return
	}
	userID := auth.UserID(r.Context())

	h.Logger.Info("API", fmt.Sprintf("Extend: showtime=%s seats=%v user=%s", showtimeID, req.SeatIDs, userID))

	results := h.Seats.Extend(r.Context(), showtimeID, req.SeatIDs, userID, time.Duration(req.TTL)*time.Second)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Extension processed", results))
}

// ConfirmPurchase is called by the booking orchestrator at its transaction
// boundary. A single boolean comes back: the purchase lock is all-or-nothing.
func (h *Handler) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	showtimeID := h.showtimeFromRequest(w, r)
	if showtimeID == "" {
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if len(req.SeatIDs) == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("seat_ids must not be empty", ""))
		return
	}
	if _, err := uuid.Parse(req.BookingID); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("booking_id must be a valid UUID", err.Error()))
		return
	}
	userID := auth.UserID(r.Context())

	h.Logger.Info("API", fmt.Sprintf("ConfirmPurchase: showtime=%s seats=%v booking=%s", showtimeID, req.SeatIDs, req.BookingID))

	ok := h.Seats.ConfirmPurchase(r.Context(), showtimeID, req.SeatIDs, userID, req.BookingID)
	if !ok {
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Could not lock all seats for purchase", ""))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Purchase confirmed", map[string]bool{"purchased": true}))
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	showtimeID := h.showtimeFromRequest(w, r)
	if showtimeID == "" {
		return
	}

	seatsParam := r.URL.Query().Get("seats")
	if seatsParam == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("seats query parameter is required", ""))
		return
	}
	seatIDs := strings.Split(seatsParam, ",")

	results := h.Seats.CheckAvailability(r.Context(), showtimeID, seatIDs)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Availability checked", results))
}

func (h *Handler) UserHeldSeats(w http.ResponseWriter, r *http.Request) {
	showtimeID := h.showtimeFromRequest(w, r)
	if showtimeID == "" {
		return
	}
	userID := auth.UserID(r.Context())

	held := h.Seats.UserHeldSeats(r.Context(), showtimeID, userID)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Held seats listed", held))
}
