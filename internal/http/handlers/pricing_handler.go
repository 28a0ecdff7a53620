package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/pricing"
	"carpool/internal/types"
)

type PricingHandler struct {
	pricer *pricing.Service
}

func NewPricingHandler(svc *pricing.Service) *PricingHandler {
	return &PricingHandler{pricer: svc}
}

type quoteReq struct {
	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes int     `json:"duration_minutes"`
	Stops           int     `json:"stops"`
	Recurring       bool    `json:"is_recurring"`
	GasPrice        float64 `json:"gas_price"`
}

// Quote prices a hypothetical ride without persisting anything. Useful for
// the booking preview screen.
func (h *PricingHandler) Quote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DistanceMiles < 0 || req.DurationMinutes < 0 || req.Stops < 0 {
		writeError(c, http.StatusBadRequest, "distance, duration and stops must be non-negative")
		return
	}
	b := h.pricer.Quote(pricing.QuoteInput{
		DistanceMiles:   req.DistanceMiles,
		DurationMinutes: req.DurationMinutes,
		Stops:           req.Stops,
		Recurring:       req.Recurring,
		GasPrice:        req.GasPrice,
	})
	c.JSON(http.StatusOK, b)
}

type splitReq struct {
	Total  float64 `json:"total_price"`
	Riders int     `json:"riders"`
}

func (h *PricingHandler) Split(c *gin.Context) {
	var req splitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Total < 0 {
		writeError(c, http.StatusBadRequest, "total must be non-negative")
		return
	}
	c.JSON(http.StatusOK, h.pricer.Split(types.Dollars(req.Total), req.Riders))
}
