package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ----- Handler: GET /cars/available -----

func (handler *CarHTTPHandler) handleFindAvailableCars(c *gin.Context) {
	handler.findWith(c, handler.svc.FindAvailableCars)
}

// ----- Handler: GET /cars/:carId -----

func (handler *CarHTTPHandler) handleGetCar(c *gin.Context) {
	view, err := handler.svc.GetCar(c.Request.Context(), c.Param("carId"))
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ----- Handler: PUT /cars/reservation/:carId -----

func (handler *CarHTTPHandler) handleReserve(c *gin.Context) {
	userID, ok := handler.requirePrincipal(c)
	if !ok {
		return
	}

	res, err := handler.svc.Reserve(c.Request.Context(), userID, c.Param("carId"))
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ----- Handler: PUT /cars/ride/:carId -----

func (handler *CarHTTPHandler) handleStartRide(c *gin.Context) {
	userID, ok := handler.requirePrincipal(c)
	if !ok {
		return
	}

	res, err := handler.svc.StartRide(c.Request.Context(), userID, c.Param("carId"))
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ----- Handler: PUT /cars/ride/:carId/finish -----

func (handler *CarHTTPHandler) handleFinishRide(c *gin.Context) {
	userID, ok := handler.requirePrincipal(c)
	if !ok {
		return
	}

	res, err := handler.svc.CompleteRide(c.Request.Context(), userID, c.Param("carId"))
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ----- Handler: PUT /cars/lock/:carId?lock=true|false -----

func (handler *CarHTTPHandler) handleLock(c *gin.Context) {
	userID, ok := handler.requirePrincipal(c)
	if !ok {
		return
	}

	lock, ok := parseBool(c.Query("lock"))
	if !ok {
		handler.badRequest(c, "lock must be true or false")
		return
	}

	res, err := handler.svc.LockCar(c.Request.Context(), userID, c.Param("carId"), lock)
	if err != nil {
		handler.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseBool(raw string) (bool, bool) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return v, err == nil
}
