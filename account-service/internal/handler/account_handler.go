package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/novap2p/novap2p/account-service/internal/query"
	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/metrics"
	"github.com/novap2p/novap2p/shared/middleware"
	"github.com/novap2p/novap2p/shared/models"
	"github.com/novap2p/novap2p/shared/utils"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	CreateAccount(context.Context, cqrs.CreateAccountCommand) (*models.Account, error)
	SetVerified(context.Context, cqrs.SetVerifiedCommand) (*models.Account, error)
	DeleteAccount(context.Context, cqrs.DeleteAccountCommand) error
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccount(ctx context.Context, id, requestingUserID, requestingRole string) (*models.Account, error)
	ListAccounts(context.Context, cqrs.ListAccountsQuery) ([]models.Account, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
	feed     *events.Feed
	metrics  *metrics.Metrics
}

type CreateAccountRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankName      string          `json:"bank_name" validate:"required"`
	IFSC          string          `json:"ifsc" validate:"required,ifsc"`
	AccountNumber string          `json:"account_number" validate:"required,max=34"`
	AccountName   string          `json:"account_name" validate:"required"`
	UPIID         string          `json:"upi_id"`
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	DepositorID   string          `json:"depositor_id" validate:"required"`
}

type UpdateAccountRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

type ListAccountsResponse struct {
	Accounts []models.Account `json:"accounts"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier, feed *events.Feed, m *metrics.Metrics) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries, feed: feed, metrics: m}
}

// Register mounts the account routes on an authenticated group.
func (h *AccountHandler) Register(v1 *gin.RouterGroup) {
	orderGiver := middleware.RequireRole(models.RoleOrderGiver)
	v1.GET("", h.ListAccounts)
	v1.POST("", orderGiver, h.CreateAccount)
	v1.GET("/changes", h.StreamChanges)
	v1.GET("/:id", h.GetAccount)
	v1.PATCH("/:id", h.UpdateAccount)
	v1.DELETE("/:id", orderGiver, h.DeleteAccount)
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	validationErrors := middleware.ValidateRequest(req)
	if _, err := utils.CheckAmount(req.Amount); err != nil {
		validationErrors = append(validationErrors, errs.FieldError{
			Field: "amount", Message: err.Error(), Type: "range",
		})
	}
	if validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	account, err := h.commands.CreateAccount(c.Request.Context(), cqrs.CreateAccountCommand{
		RequestingUserID: userID,
		Amount:           req.Amount,
		BankName:         req.BankName,
		IFSC:             req.IFSC,
		AccountNumber:    req.AccountNumber,
		AccountName:      req.AccountName,
		UPIID:            req.UPIID,
		Date:             req.Date,
		DepositorID:      req.DepositorID,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to create account")
		return
	}

	c.JSON(http.StatusCreated, account)
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	accounts, err := h.queries.ListAccounts(c.Request.Context(), cqrs.ListAccountsQuery{
		RequestingUserID: userID,
		RequestingRole:   middleware.GetRole(c),
		DepositorID:      c.Query("depositor_id"),
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to list accounts")
		return
	}

	c.JSON(http.StatusOK, ListAccountsResponse{Accounts: accounts})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	account, err := h.queries.GetAccount(c.Request.Context(), c.Param("id"), userID, middleware.GetRole(c))
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to get account")
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	account, err := h.commands.SetVerified(c.Request.Context(), cqrs.SetVerifiedCommand{
		AccountID:        c.Param("id"),
		RequestingUserID: userID,
		RequestingRole:   middleware.GetRole(c),
		Verified:         *req.Verified,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to update account")
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	err := h.commands.DeleteAccount(c.Request.Context(), cqrs.DeleteAccountCommand{
		AccountID:        c.Param("id"),
		RequestingUserID: userID,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to delete account")
		return
	}

	c.Status(http.StatusNoContent)
}

// StreamChanges relays account change events as server-sent events.
// Depositors only receive changes to accounts assigned to them.
func (h *AccountHandler) StreamChanges(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	filter, err := query.VisibleFilter(userID, middleware.GetRole(c), c.Query("depositor_id"))
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to open change feed")
		return
	}

	closed := h.metrics.StreamOpened()
	defer closed()

	middleware.StreamEvents(c, h.feed, events.AccountEventsStream, func(e events.Event) bool {
		if filter.DepositorID == "" {
			return true
		}
		var data events.AccountChangedEvent
		if err := e.Decode(&data); err != nil {
			return false
		}
		return data.Concerns(filter.DepositorID)
	})
}
