// README: Collection-point handler; lists the route points a client may pick.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"convoy/internal/modules/collection"
	"convoy/internal/types"
)

type CollectionHandler struct {
	selector *collection.Selector
}

func NewCollectionHandler(sel *collection.Selector) *CollectionHandler {
	return &CollectionHandler{selector: sel}
}

// List handles GET /api/tours/:id/collection-points?type=pickup|dropoff.
func (h *CollectionHandler) List(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var (
		points []collection.Point
		err    error
	)
	switch types.PointType(c.DefaultQuery("type", string(types.PointPickup))) {
	case types.PointPickup:
		points, err = h.selector.Pickups(c.Request.Context(), id)
	case types.PointDropoff:
		points, err = h.selector.Dropoffs(c.Request.Context(), id)
	default:
		writeError(c, http.StatusBadRequest, "type must be pickup or dropoff")
		return
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"points": toCollectionPointDTOs(points)})
}
