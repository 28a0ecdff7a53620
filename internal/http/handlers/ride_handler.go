package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type endpointReq struct {
	Address   string  `json:"address"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Formatted string  `json:"formatted_address"`
}

func (e endpointReq) toEndpoint() ride.Endpoint {
	return ride.Endpoint{
		Address:   e.Address,
		Point:     types.Point{Lat: e.Lat, Lng: e.Lng},
		Formatted: e.Formatted,
	}
}

type patternReq struct {
	DaysOfWeek []int     `json:"days_of_week"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

type createRideReq struct {
	Start        endpointReq   `json:"start"`
	End          endpointReq   `json:"end"`
	Stops        []endpointReq `json:"stops"`
	Capacity     int           `json:"capacity"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	IsRecurring  bool          `json:"is_recurring"`
	Pattern      *patternReq   `json:"recurring_pattern"`
	GasPrice     float64       `json:"gas_price"`
}

func (h *RideHandler) Create(c *gin.Context) {
	driver := callerID(c)
	if driver == "" {
		writeError(c, http.StatusBadRequest, "missing X-User-ID header")
		return
	}
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	cmd := ride.CreateCommand{
		DriverID:     types.ID(driver),
		Start:        req.Start.toEndpoint(),
		End:          req.End.toEndpoint(),
		Capacity:     req.Capacity,
		ScheduledFor: req.ScheduledFor,
		Recurring:    req.IsRecurring,
		GasPrice:     req.GasPrice,
	}
	for _, st := range req.Stops {
		cmd.Stops = append(cmd.Stops, st.toEndpoint())
	}
	if req.Pattern != nil {
		cmd.Pattern = &ride.RecurringPattern{
			Days:      req.Pattern.DaysOfWeek,
			StartDate: req.Pattern.StartDate,
			EndDate:   req.Pattern.EndDate,
		}
	}

	r, err := h.rides.Create(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RideHandler) List(c *gin.Context) {
	f := ride.ListFilter{
		DriverID:     types.ID(c.Query("driver_id")),
		UpcomingOnly: c.Query("upcoming") == "true",
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	rides, err := h.rides.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": rides, "count": len(rides)})
}

func (h *RideHandler) Join(c *gin.Context) {
	rider := callerID(c)
	if rider == "" {
		writeError(c, http.StatusBadRequest, "missing X-User-ID header")
		return
	}
	r, err := h.rides.Join(c.Request.Context(), types.ID(c.Param("id")), types.ID(rider))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RideHandler) Close(c *gin.Context) {
	h.driverAction(c, h.rides.CloseRegistration)
}

func (h *RideHandler) Accept(c *gin.Context) {
	h.driverAction(c, h.rides.Accept)
}

func (h *RideHandler) Start(c *gin.Context) {
	h.driverAction(c, h.rides.Start)
}

func (h *RideHandler) Complete(c *gin.Context) {
	h.driverAction(c, h.rides.Complete)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	h.driverAction(c, h.rides.Cancel)
}

func (h *RideHandler) Split(c *gin.Context) {
	split, err := h.rides.SplitPrice(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, split)
}

func (h *RideHandler) Events(c *gin.Context) {
	events, err := h.rides.Events(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (h *RideHandler) Riders(c *gin.Context) {
	riders, err := h.rides.Riders(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"riders": riders, "count": len(riders)})
}

type rideOp func(ctx context.Context, rideID, driverID types.ID) (*ride.Ride, error)

func (h *RideHandler) driverAction(c *gin.Context, op rideOp) {
	driver := callerID(c)
	if driver == "" {
		writeError(c, http.StatusBadRequest, "missing X-User-ID header")
		return
	}
	r, err := op(c.Request.Context(), types.ID(c.Param("id")), types.ID(driver))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
