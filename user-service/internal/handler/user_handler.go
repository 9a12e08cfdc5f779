package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/middleware"
	"github.com/novap2p/novap2p/shared/models"
	"github.com/novap2p/novap2p/shared/utils"
)

// UserCommander defines the write-side operations used by UserHandler.
type UserCommander interface {
	CreateUser(context.Context, cqrs.CreateUserCommand) (*models.Identity, error)
}

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	GetUser(context.Context, cqrs.GetUserQuery) (*models.Identity, error)
	ListByRole(context.Context, cqrs.ListUsersByRoleQuery) ([]models.DepositorView, error)
}

// UserHandler routes requests to the command or query service as appropriate.
type UserHandler struct {
	commands UserCommander
	queries  UserQuerier
}

type CreateUserRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Username        string `json:"username" validate:"max=64"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=depositor order_giver"`
}

type ListUsersResponse struct {
	Users []models.DepositorView `json:"users"`
}

func NewUserHandler(commands UserCommander, queries UserQuerier) *UserHandler {
	return &UserHandler{commands: commands, queries: queries}
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	identity, err := h.commands.CreateUser(c.Request.Context(), cqrs.CreateUserCommand{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, identity)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	requestingUserID, _ := middleware.GetUserID(c)
	userID := c.Param("userId")
	if !utils.ValidateUserID(userID) {
		middleware.RespondWithValidationError(c, []errs.FieldError{{
			Field: "userId", Message: "Must be a user id", Type: "format",
		}})
		return
	}

	identity, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{
		UserID:           userID,
		RequestingUserID: requestingUserID,
	})
	if err != nil {
		if errors.Is(err, errs.ErrForbidden) {
			middleware.RespondWithError(c, http.StatusForbidden, "You can only access your own user details")
			return
		}
		middleware.RespondWithDomainError(c, err, "Failed to get user")
		return
	}

	c.JSON(http.StatusOK, identity)
}

// ListUsers is the directory lookup: GET /v1/users?role=depositor.
func (h *UserHandler) ListUsers(c *gin.Context) {
	role := c.DefaultQuery("role", models.RoleDepositor)
	if role != models.RoleDepositor && role != models.RoleOrderGiver {
		middleware.RespondWithValidationError(c, []errs.FieldError{{
			Field: "role", Message: "Must be one of: depositor order_giver", Type: "oneof",
		}})
		return
	}

	users, err := h.queries.ListByRole(c.Request.Context(), cqrs.ListUsersByRoleQuery{Role: role})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to list users")
		return
	}

	c.JSON(http.StatusOK, ListUsersResponse{Users: users})
}
