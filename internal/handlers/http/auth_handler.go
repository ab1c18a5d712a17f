package http

import (
	"net/http"
	"strings"
	"time"

	"skycast/internal/core/domain"
	"skycast/internal/core/services"
	"skycast/pkg/errors"
	"skycast/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues identity tokens for development setups where no
// external identity provider signs them.
type AuthHandler struct {
	authService services.AuthService
	tokenTTL    time.Duration
}

func NewAuthHandler(authService services.AuthService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokenTTL:    tokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	Identity    string `json:"identity" binding:"required,max=128"`
	DisplayName string `json:"display_name" binding:"max=100"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidArgumentError("invalid request format"))
		return
	}

	req.Identity = strings.TrimSpace(req.Identity)
	if err := validation.ValidateIdentity(req.Identity); err != nil {
		c.Error(errors.NewInvalidArgumentError(err.Error()))
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Identity
	}

	token, err := h.authService.GenerateToken(domain.Identity(req.Identity), req.DisplayName)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"identity":     req.Identity,
		"access_token": token,
		"expires_in":   int(h.tokenTTL / time.Second),
	})
}
