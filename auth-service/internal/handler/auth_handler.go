package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/metrics"
	"github.com/novap2p/novap2p/shared/middleware"
	"github.com/novap2p/novap2p/shared/models"
)

// AuthQuerier defines the read-side operations used by AuthHandler.
type AuthQuerier interface {
	SignIn(context.Context, cqrs.SignInCommand) (*models.Session, error)
	RefreshToken(context.Context, cqrs.RefreshTokenCommand) (*models.Session, error)
}

// SessionCommander ends sessions.
type SessionCommander interface {
	SignOut(context.Context, cqrs.SignOutCommand) error
}

// AuthHandler handles sign-in, refresh, sign-out and session lookups.
type AuthHandler struct {
	queries  AuthQuerier
	commands SessionCommander
	feed     *events.Feed
	metrics  *metrics.Metrics
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

func NewAuthHandler(queries AuthQuerier, commands SessionCommander, feed *events.Feed, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{queries: queries, commands: commands, feed: feed, metrics: m}
}

// Register mounts the public routes on v1 and the rest behind authenticated.
func (h *AuthHandler) Register(v1 *gin.RouterGroup, authenticated gin.HandlerFunc) {
	v1.POST("/signin", h.SignIn)
	v1.POST("/refresh", h.RefreshToken)
	v1.POST("/signout", authenticated, h.SignOut)
	v1.GET("/session", authenticated, h.CurrentSession)
	v1.GET("/changes", authenticated, h.StreamChanges)
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	session, err := h.queries.SignIn(c.Request.Context(), cqrs.SignInCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Sign in failed")
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	session, err := h.queries.RefreshToken(c.Request.Context(), cqrs.RefreshTokenCommand{
		Token: req.Token,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Refresh failed")
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Authorization header required")
		return
	}

	var expiresAt int64
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Unix()
	}
	err := h.commands.SignOut(c.Request.Context(), cqrs.SignOutCommand{
		UserID:    claims.UserID,
		TokenID:   claims.ID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Sign out failed")
		return
	}

	c.Status(http.StatusNoContent)
}

// CurrentSession echoes the session the bearer token belongs to.
func (h *AuthHandler) CurrentSession(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Authorization header required")
		return
	}
	token, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	c.JSON(http.StatusOK, claims.Session(token))
}

// StreamChanges relays sign-in and sign-out events of the caller.
func (h *AuthHandler) StreamChanges(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	closed := h.metrics.StreamOpened()
	defer closed()

	middleware.StreamEvents(c, h.feed, events.IdentityEventsStream, func(e events.Event) bool {
		if e.Type != events.SessionSignedIn && e.Type != events.SessionSignedOut {
			return false
		}
		var data events.SessionChangedEvent
		if err := e.Decode(&data); err != nil {
			return false
		}
		return data.UserID == userID
	})
}
