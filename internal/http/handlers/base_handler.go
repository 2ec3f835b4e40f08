// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"convoy/internal/modules/collection"
	"convoy/internal/types"
)

type errorResponse struct {
	Error      string  `json:"error"`
	BookingIDs []int64 `json:"booking_ids,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps the engine error taxonomy onto HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	var pe *types.PreconditionError
	switch {
	case errors.As(err, &pe):
		writeJSON(c, http.StatusPreconditionFailed, errorResponse{Error: pe.Error(), BookingIDs: pe.BookingIDs})
	case errors.Is(err, types.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrIllegalTransition),
		errors.Is(err, types.ErrIllegalBookingTransition),
		errors.Is(err, types.ErrDuplicateBooking),
		errors.Is(err, types.ErrConflict),
		errors.Is(err, collection.ErrSelectionClosed):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrInsufficientCapacity):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses a positive numeric :id parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
