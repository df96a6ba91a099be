package handler

import (
	"net/http"
	"strings"
	"time"

	"car-fleet/internal/domain/user"

	"github.com/gin-gonic/gin"
)

type tokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// tokenResponse represents the response for token generation
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

// ----- Handler: POST /tokens (development only) -----

func (handler *CarHTTPHandler) handleCreateToken(c *gin.Context) {
	ctx := c.Request.Context()

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		handler.badRequest(c, "user_id is required")
		return
	}
	role, err := user.ParseRole(req.Role)
	if err != nil {
		handler.badRequest(c, "role must be USER or ADMIN")
		return
	}

	token, claims, err := handler.auth.IssueUserToken(req.UserID, role)
	if err != nil {
		handler.fail(c, err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": claims.Subject, "role": role.String()})

	c.JSON(http.StatusCreated, tokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    claims.Subject,
		Role:      role,
	})
}
