// README: Booking handlers for create, read, status edits and weight changes.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	httpmiddleware "convoy/internal/http/middleware"
	"convoy/internal/modules/booking"
	"convoy/internal/types"
)

type BookingHandler struct {
	bookings *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{bookings: svc}
}

type createBookingReq struct {
	PickupCity      string     `json:"pickup_city"`
	DeliveryCity    string     `json:"delivery_city"`
	PickupPoint     string     `json:"pickup_point"`
	WeightKg        float64    `json:"weight_kg"`
	ItemCategory    string     `json:"item_category"`
	ItemDescription string     `json:"item_description"`
	Sender          contactDTO `json:"sender"`
	Recipient       contactDTO `json:"recipient"`
}

// Create handles POST /api/tours/:id/bookings.
func (h *BookingHandler) Create(c *gin.Context) {
	tourID, ok := pathID(c)
	if !ok {
		return
	}
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.WeightKg <= 0 {
		writeError(c, http.StatusBadRequest, "weight_kg must be positive")
		return
	}
	b, err := h.bookings.Create(c.Request.Context(), httpmiddleware.Caller(c), booking.CreateCommand{
		TourID:          tourID,
		PickupCity:      req.PickupCity,
		DeliveryCity:    req.DeliveryCity,
		PickupPoint:     req.PickupPoint,
		Weight:          types.Kg(req.WeightKg),
		ItemCategory:    req.ItemCategory,
		ItemDescription: req.ItemDescription,
		Sender:          types.Contact(req.Sender),
		Recipient:       types.Contact(req.Recipient),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toBookingDTO(b))
}

// Get handles GET /api/bookings/:id.
func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := h.bookings.Get(c.Request.Context(), httpmiddleware.Caller(c), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingDTO(b))
}

type statusReq struct {
	Target string `json:"target"`
}

// ChangeStatus handles POST /api/bookings/:id/status.
func (h *BookingHandler) ChangeStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Target) == "" {
		writeError(c, http.StatusBadRequest, "missing target")
		return
	}
	b, err := h.bookings.ChangeStatus(c.Request.Context(), httpmiddleware.Caller(c), booking.StatusCommand{
		BookingID: id,
		Target:    types.BookingStatus(strings.ToLower(strings.TrimSpace(req.Target))),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingDTO(b))
}

type weightReq struct {
	WeightKg float64 `json:"weight_kg"`
}

// UpdateWeight handles PATCH /api/bookings/:id/weight.
func (h *BookingHandler) UpdateWeight(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req weightReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.bookings.UpdateWeight(c.Request.Context(), httpmiddleware.Caller(c), booking.WeightCommand{
		BookingID: id,
		Weight:    types.Kg(req.WeightKg),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingDTO(b))
}

// Mine handles GET /api/users/me/bookings.
func (h *BookingHandler) Mine(c *gin.Context) {
	list, err := h.bookings.ListByUser(c.Request.Context(), httpmiddleware.Caller(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"bookings": toBookingDTOs(list)})
}
