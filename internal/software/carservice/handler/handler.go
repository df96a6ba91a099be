package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/user"
	"car-fleet/internal/general/jwt"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/general/metrics"
	"car-fleet/internal/ports"

	"github.com/gin-gonic/gin"
)

// BasePath prefixes every car service route.
const BasePath = "/car-service"

// Probe reports whether one dependency is usable.
type Probe func(ctx context.Context) error

// CarHTTPHandler adapts HTTP requests to the CarService.
type CarHTTPHandler struct {
	svc         ports.CarService
	logger      *logger.Logger
	auth        *jwt.Manager
	probes      map[string]Probe
	issueTokens bool
}

// NewCarHTTPHandler wires an HTTP handler around the CarService.
func NewCarHTTPHandler(
	svc ports.CarService,
	logger *logger.Logger,
	auth *jwt.Manager,
	probes map[string]Probe,
	issueTokens bool,
) *CarHTTPHandler {
	return &CarHTTPHandler{svc: svc, logger: logger, auth: auth, probes: probes, issueTokens: issueTokens}
}

// NewRouter builds the gin engine with every route mounted.
func (handler *CarHTTPHandler) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handler.withRequestID(), handler.observe())
	handler.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the car service endpoints.
func (handler *CarHTTPHandler) RegisterRoutes(r *gin.Engine) {
	base := r.Group(BasePath)

	admin := base.Group("/admin", jwt.Middleware(handler.auth, user.RoleAdmin))
	{
		admin.POST("/cars", handler.handleRegisterCar)
		admin.POST("/cars/batch", handler.handleRegisterCars)
		admin.GET("/cars", handler.handleFindCars)
		admin.GET("/cars/maintenance", handler.handleFindMaintenanceCars)
		admin.PUT("/cars/state/:carId", handler.handleUpdateState)
		admin.PUT("/cars/active/:carId", handler.handleSetActive(true))
		admin.PUT("/cars/deactivate/:carId", handler.handleSetActive(false))
		admin.PUT("/cars/maintenance/:carId", handler.handleSetMaintenance)
	}

	cars := base.Group("/cars", jwt.Middleware(handler.auth))
	{
		cars.GET("/available", handler.handleFindAvailableCars)
		cars.GET("/:carId", handler.handleGetCar)
		cars.PUT("/reservation/:carId", handler.handleReserve)
		cars.PUT("/ride/:carId", handler.handleStartRide)
		cars.PUT("/ride/:carId/finish", handler.handleFinishRide)
		cars.PUT("/lock/:carId", handler.handleLock)
	}

	r.GET("/healthz", handler.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if handler.issueTokens {
		r.POST("/tokens", handler.handleCreateToken)
	}
}

// ----- general helpers -----

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindDoesNotExist:
		return http.StatusNotFound
	case apperr.KindAlreadyExists, apperr.KindNotAvailable:
		return http.StatusConflict
	case apperr.KindOnCooldown:
		return http.StatusTooManyRequests
	case apperr.KindNotAllowed:
		return http.StatusForbidden
	case apperr.KindOfflineTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Internal errors are logged and their text is hidden.
func (handler *CarHTTPHandler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		handler.logger.Error(ctx, "http_internal_error", "Request failed", err, map[string]any{"route": c.FullPath()})
		msg = "internal error"
	} else {
		handler.logger.Debug(ctx, "request_failed", msg, map[string]any{"route": c.FullPath(), "code": string(kind)})
	}

	c.AbortWithStatusJSON(status, errBody{Error: msg, Code: string(kind)})
}

func (handler *CarHTTPHandler) badRequest(c *gin.Context, msg string) {
	handler.fail(c, apperr.InvalidInput("%s", msg))
}

// principal is the user id of the authenticated caller.
func principal(c *gin.Context) (string, bool) {
	claims, ok := jwt.ClaimsFrom(c)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", false
	}
	return claims.Subject, true
}

func (handler *CarHTTPHandler) requirePrincipal(c *gin.Context) (string, bool) {
	userID, ok := principal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth claims"})
	}
	return userID, ok
}

// radiusQuery reads longitude, latitude and radiusInKM from the query string.
func radiusQuery(c *gin.Context) (ports.RadiusQuery, error) {
	var q ports.RadiusQuery
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"longitude", &q.Center.Longitude},
		{"latitude", &q.Center.Latitude},
		{"radiusInKM", &q.RadiusKm},
	} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			return q, errors.New(p.name + " is required")
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, errors.New(p.name + " must be a number")
		}
		*p.dst = v
	}
	return q, nil
}

// withRequestID reuses X-Request-ID or generates one and puts it on the request context.
func (handler *CarHTTPHandler) withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if reqID == "" {
			reqID = randID()
		}
		c.Request = c.Request.WithContext(handler.logger.WithRequestID(c.Request.Context(), reqID))
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}

// observe counts requests and logs their outcome.
func (handler *CarHTTPHandler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()

		handler.logger.Debug(c.Request.Context(), "http_request", "Handled request", map[string]any{
			"method":      c.Request.Method,
			"route":       route,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
