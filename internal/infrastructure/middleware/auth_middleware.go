package middleware

import (
	"strings"

	"skycast/internal/core/domain"
	"skycast/internal/core/services"
	apperrors "skycast/pkg/errors"
	"skycast/pkg/logger"

	"github.com/gin-gonic/gin"
)

// IdentityContextKey is the gin context key holding the authenticated identity.
const IdentityContextKey = "identity"

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Error(apperrors.NewAuthenticationRequiredError("bearer token required"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.Error(apperrors.NewAuthenticationRequiredError(err.Error()))
			c.Abort()
			return
		}

		setIdentity(c, claims.Identity)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the identity when a valid token is present
// and lets anonymous requests through.
func OptionalAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := authService.ValidateToken(token); err == nil {
				setIdentity(c, claims.Identity)
			}
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, identity domain.Identity) {
	c.Set(IdentityContextKey, identity)
	ctx := services.ContextWithIdentity(c.Request.Context(), identity)
	ctx = logger.WithIdentity(ctx, string(identity))
	c.Request = c.Request.WithContext(ctx)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
