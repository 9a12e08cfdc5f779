package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/novap2p/novap2p/shared/auth"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
)

// Context keys set by AuthMiddleware.
const (
	ctxUserID   = "userId"
	ctxEmail    = "email"
	ctxRole     = "role"
	ctxUsername = "username"
	ctxClaims   = "claims"
)

// TokenVerifier resolves a bearer token to its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "Authorization header required",
			})
			c.Abort()
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			status := http.StatusUnauthorized
			message := "Invalid or expired token"
			if !errors.Is(err, errs.ErrInvalidToken) {
				status = http.StatusServiceUnavailable
				message = "Session check unavailable"
			}
			c.JSON(status, gin.H{"message": message})
			c.Abort()
			return
		}

		SetIdentity(c, claims)
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// SetIdentity stores the token claims on the request context.
func SetIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxEmail, claims.Email)
	c.Set(ctxRole, models.NormalizeRole(claims.Role))
	c.Set(ctxUsername, claims.Username)
	c.Set(ctxClaims, claims)
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{
			"message": "This action is not available for role " + role,
		})
		c.Abort()
	}
}

func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ctxUserID)
	if !exists {
		return "", false
	}
	return userID.(string), true
}

func GetRole(c *gin.Context) string {
	role, exists := c.Get(ctxRole)
	if !exists {
		return models.NormalizeRole("")
	}
	return role.(string)
}

// GetClaims returns the verified token claims, if any.
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// GetIdentity rebuilds the caller identity from the request context.
func GetIdentity(c *gin.Context) models.Identity {
	userID, _ := GetUserID(c)
	email, _ := c.Get(ctxEmail)
	username, _ := c.Get(ctxUsername)
	id := models.Identity{ID: userID, Role: GetRole(c)}
	id.Email, _ = email.(string)
	id.Username, _ = username.(string)
	return id
}
