package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/location"
	"carpool/internal/types"
)

type LocationHandler struct {
	locations *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{locations: svc}
}

type resolveLocationReq struct {
	Address   string  `json:"address"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Formatted string  `json:"formatted_address"`
}

func (h *LocationHandler) Resolve(c *gin.Context) {
	var req resolveLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	loc, err := h.locations.Resolve(c.Request.Context(), req.Address, types.Point{Lat: req.Lat, Lng: req.Lng}, req.Formatted)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}
