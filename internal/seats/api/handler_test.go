package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/auth"
	"ms-seating/internal/config"
	"ms-seating/internal/hub"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
	"ms-seating/internal/pubsub"
	"ms-seating/internal/reservation"
	"ms-seating/internal/utils"
)

type stubShowtimeChecker struct {
	known map[string]bool
}

func (s *stubShowtimeChecker) ShowtimeExists(_ context.Context, id string) (bool, error) {
	return s.known[id], nil
}

// setupTestHandler wires the real service, store and hub over miniredis.
func setupTestHandler(t *testing.T) (*Handler, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewTestLogger()
	store := reservation.NewStore(client, log)
	h := hub.NewHub(store, log)
	svc := reservation.NewService(store, pubsub.New(client, log), h, nil, log, config.ReservationConfig{
		HoldTTL:         900 * time.Second,
		PurchaseLockTTL: 300 * time.Second,
	})
	h.BindActions(svc)

	checker := &stubShowtimeChecker{known: map[string]bool{"show-1": true}}
	return NewHandler(svc, h, checker, log), mr
}

func doRequest(t *testing.T, handler *Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.WithUserID(req.Context(), userID))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestReserveEndpoint(t *testing.T) {
	handler, _ := setupTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve",
		`{"seat_ids":["A1","A2"]}`, "user-a")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	results := resp.Data.(map[string]interface{})
	assert.Equal(t, true, results["A1"])
	assert.Equal(t, true, results["A2"])
}

func TestReserveEndpoint_ContendedSeat(t *testing.T) {
	handler, _ := setupTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve", `{"seat_ids":["A1"]}`, "user-a")
	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve", `{"seat_ids":["A1"]}`, "user-b")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	results := resp.Data.(map[string]interface{})
	assert.Equal(t, false, results["A1"])
}

func TestReserveEndpoint_UnknownShowtime(t *testing.T) {
	handler, _ := setupTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-9/reserve",
		`{"seat_ids":["A1"]}`, "user-a")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReserveEndpoint_EmptySeats(t *testing.T) {
	handler, _ := setupTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve",
		`{"seat_ids":[]}`, "user-a")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReleaseEndpoint_PermissionDenied(t *testing.T) {
	handler, _ := setupTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve", `{"seat_ids":["A1"]}`, "user-a")
	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-1/release", `{"seat_ids":["A1"]}`, "user-b")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	results := resp.Data.(map[string]interface{})
	assert.Equal(t, false, results["A1"], "Non-holder must not release the seat")
}

func TestExtendEndpoint(t *testing.T) {
	handler, _ := setupTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve", `{"seat_ids":["A1"],"ttl":60}`, "user-a")
	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-1/extend", `{"seat_ids":["A1"],"ttl":900}`, "user-a")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	results := resp.Data.(map[string]interface{})
	assert.Equal(t, true, results["A1"])
}

func TestPurchaseEndpoint(t *testing.T) {
	handler, mr := setupTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve", `{"seat_ids":["A1"]}`, "user-a")

	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-1/purchase",
		`{"seat_ids":["A1"],"booking_id":"1b671a64-40d5-491e-99b0-da01ff1f3341"}`, "user-a")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	// The hold was superseded and the fence removed.
	assert.False(t, mr.Exists("seat:show-1:A1"))
	assert.False(t, mr.Exists("seat:purchase:show-1:A1"))
}

func TestPurchaseEndpoint_InvalidBookingID(t *testing.T) {
	handler, _ := setupTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-1/purchase",
		`{"seat_ids":["A1"],"booking_id":"not-a-uuid"}`, "user-a")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseEndpoint_ConflictWhenFenced(t *testing.T) {
	handler, _ := setupTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/api/seats/show-1/purchase",
		`{"seat_ids":["A1"],"booking_id":"1b671a64-40d5-491e-99b0-da01ff1f3341"}`, "user-a")

	rec := doRequest(t, handler, http.MethodPost, "/api/seats/show-1/purchase",
		`{"seat_ids":["A1"],"booking_id":"2b671a64-40d5-491e-99b0-da01ff1f3342"}`, "user-b")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	handler, _ := setupTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve", `{"seat_ids":["A1"]}`, "user-a")

	rec := doRequest(t, handler, http.MethodGet, "/api/seats/show-1/availability?seats=A1,A2", "", "user-b")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	results := resp.Data.(map[string]interface{})
	assert.Equal(t, false, results["A1"])
	assert.Equal(t, true, results["A2"])
}

func TestHeldEndpoint(t *testing.T) {
	handler, _ := setupTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve", `{"seat_ids":["A1"]}`, "user-a")
	doRequest(t, handler, http.MethodPost, "/api/seats/show-1/reserve", `{"seat_ids":["A2"]}`, "user-b")

	rec := doRequest(t, handler, http.MethodGet, "/api/seats/show-1/held", "", "user-a")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool              `json:"success"`
		Data    []models.HeldSeat `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "A1", resp.Data[0].SeatID)
	assert.Greater(t, resp.Data[0].TTL, int64(0))
}
