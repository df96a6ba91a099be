package handler

import (
	"context"
	"net/http"
	"time"

	"car-fleet/internal/domain/geo"
	"car-fleet/internal/ports"

	"github.com/gin-gonic/gin"
)

// --- Request DTOs (HTTP boundary) ---

type stateUpdateRequest struct {
	RemainingRangeKm *float64  `json:"remaining_range_km"`
	Location         geo.Point `json:"location"`
	Online           bool      `json:"online"`
	ObservedAt       time.Time `json:"observed_at"`
}

// ----- Handler: POST /admin/cars -----

func (handler *CarHTTPHandler) handleRegisterCar(c *gin.Context) {
	var req ports.RegisterCarInput
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.badRequest(c, "invalid JSON: "+err.Error())
		return
	}

	view, err := handler.svc.RegisterCar(c.Request.Context(), req)
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ----- Handler: POST /admin/cars/batch -----

func (handler *CarHTTPHandler) handleRegisterCars(c *gin.Context) {
	var req []ports.RegisterCarInput
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.badRequest(c, "invalid JSON: "+err.Error())
		return
	}

	views, err := handler.svc.RegisterCars(c.Request.Context(), req)
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, views)
}

// ----- Handler: GET /admin/cars -----

func (handler *CarHTTPHandler) handleFindCars(c *gin.Context) {
	handler.findWith(c, handler.svc.FindCars)
}

// ----- Handler: GET /admin/cars/maintenance -----

func (handler *CarHTTPHandler) handleFindMaintenanceCars(c *gin.Context) {
	handler.findWith(c, handler.svc.FindMaintenanceCars)
}

// ----- Handler: PUT /admin/cars/state/:carId -----

func (handler *CarHTTPHandler) handleUpdateState(c *gin.Context) {
	var req stateUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if req.RemainingRangeKm == nil {
		handler.badRequest(c, "remaining_range_km is required")
		return
	}

	view, err := handler.svc.ApplyTelemetry(c.Request.Context(), ports.StateUpdate{
		CarID:            c.Param("carId"),
		RemainingRangeKm: *req.RemainingRangeKm,
		Location:         req.Location,
		Online:           req.Online,
		ObservedAt:       req.ObservedAt,
	})
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ----- Handler: PUT /admin/cars/active|deactivate/:carId -----

func (handler *CarHTTPHandler) handleSetActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := handler.svc.SetActive(c.Request.Context(), c.Param("carId"), active)
		if err != nil {
			handler.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// ----- Handler: PUT /admin/cars/maintenance/:carId?required= -----

func (handler *CarHTTPHandler) handleSetMaintenance(c *gin.Context) {
	required := true
	if raw := c.Query("required"); raw != "" {
		v, ok := parseBool(raw)
		if !ok {
			handler.badRequest(c, "required must be true or false")
			return
		}
		required = v
	}

	view, err := handler.svc.SetMaintenance(c.Request.Context(), c.Param("carId"), required)
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (handler *CarHTTPHandler) findWith(c *gin.Context, find func(context.Context, ports.RadiusQuery) ([]ports.CarView, error)) {
	q, err := radiusQuery(c)
	if err != nil {
		handler.badRequest(c, err.Error())
		return
	}

	views, err := find(c.Request.Context(), q)
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}
