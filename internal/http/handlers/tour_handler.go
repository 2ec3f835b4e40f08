// README: Tour handlers for create, read, lifecycle transitions and carrier listings.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	httpmiddleware "convoy/internal/http/middleware"
	"convoy/internal/modules/booking"
	"convoy/internal/modules/tour"
	"convoy/internal/types"
)

type TourHandler struct {
	tours    *tour.Service
	bookings *booking.Service
}

func NewTourHandler(tourSvc *tour.Service, bookingSvc *booking.Service) *TourHandler {
	return &TourHandler{tours: tourSvc, bookings: bookingSvc}
}

type createTourReq struct {
	DepartureCountry   string     `json:"departure_country"`
	DestinationCountry string     `json:"destination_country"`
	DepartureDate      string     `json:"departure_date"`
	CollectionDates    []string   `json:"collection_dates"`
	Route              []pointDTO `json:"route"`
	Visibility         string     `json:"visibility"`
	TotalCapacityKg    float64    `json:"total_capacity_kg"`
}

func (r createTourReq) command() (tour.CreateCommand, error) {
	cmd := tour.CreateCommand{
		DepartureCountry:   r.DepartureCountry,
		DestinationCountry: r.DestinationCountry,
		Visibility:         types.Visibility(strings.ToLower(strings.TrimSpace(r.Visibility))),
		TotalCapacity:      types.Kg(r.TotalCapacityKg),
	}
	var err error
	if cmd.DepartureDate, err = parseDate("departure_date", r.DepartureDate); err != nil {
		return cmd, err
	}
	for _, d := range r.CollectionDates {
		t, err := parseDate("collection_dates", d)
		if err != nil {
			return cmd, err
		}
		cmd.CollectionDates = append(cmd.CollectionDates, t)
	}
	for _, p := range r.Route {
		cp, err := fromPointDTO(p)
		if err != nil {
			return cmd, err
		}
		cmd.Route = append(cmd.Route, cp)
	}
	return cmd, nil
}

// Create handles POST /api/tours.
func (h *TourHandler) Create(c *gin.Context) {
	var req createTourReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd, err := req.command()
	if err != nil {
		writeDomainError(c, err)
		return
	}
	t, err := h.tours.Create(c.Request.Context(), httpmiddleware.Caller(c), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toTourDTO(t))
}

// Get handles GET /api/tours/:id.
func (h *TourHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := h.tours.Get(c.Request.Context(), httpmiddleware.Caller(c), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTourDTO(t))
}

type transitionReq struct {
	Target   string `json:"target"`
	Confirm  bool   `json:"confirm"`
	Override bool   `json:"override"`
}

// Transition handles POST /api/tours/:id/transition.
func (h *TourHandler) Transition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		writeError(c, http.StatusBadRequest, "missing target")
		return
	}
	res, err := h.tours.RequestTransition(c.Request.Context(), httpmiddleware.Caller(c), tour.TransitionCommand{
		TourID:   id,
		Target:   types.TourStatus(strings.TrimSpace(req.Target)),
		Confirm:  req.Confirm,
		Override: req.Override,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	affected := make([]int64, len(res.Affected))
	for i, b := range res.Affected {
		affected[i] = b.ID
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"tour":              toTourDTO(res.Tour),
		"from":              res.From,
		"affected_bookings": affected,
		"no_op":             res.NoOp,
	})
}

// Bookings handles GET /api/tours/:id/bookings.
func (h *TourHandler) Bookings(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.bookings.ListByTour(c.Request.Context(), httpmiddleware.Caller(c), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"bookings": toBookingDTOs(list)})
}

// Mine handles GET /api/carriers/me/tours.
func (h *TourHandler) Mine(c *gin.Context) {
	list, err := h.tours.ListByCarrier(c.Request.Context(), httpmiddleware.Caller(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]tourDTO, len(list))
	for i := range list {
		out[i] = toTourDTO(&list[i])
	}
	writeJSON(c, http.StatusOK, map[string]any{"tours": out, "as_of": time.Now().UTC()})
}
