package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/validate"
)

type BadRequestErrorResponse struct {
	Message string            `json:"message"`
	Details []errs.FieldError `json:"details"`
}

// ValidateRequest returns nil when obj satisfies its validate tags.
func ValidateRequest(obj any) []errs.FieldError {
	return validate.Struct(obj)
}

func RespondWithValidationError(c *gin.Context, validationErrors []errs.FieldError) {
	c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
		Message: "Invalid request data",
		Details: validationErrors,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"message": message,
	})
}

// RespondWithDomainError maps the shared sentinel errors onto status codes.
// fallback is the message used for unexpected failures.
func RespondWithDomainError(c *gin.Context, err error, fallback string) {
	var verr *errs.ValidationError
	switch {
	case errors.As(err, &verr):
		RespondWithValidationError(c, verr.Fields)
	case errors.Is(err, errs.ErrNotFound):
		RespondWithError(c, http.StatusNotFound, "Not found")
	case errors.Is(err, errs.ErrForbidden), errors.Is(err, errs.ErrNotAssigned):
		RespondWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrInvalidCredentials):
		RespondWithError(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, errs.ErrInvalidToken), errors.Is(err, errs.ErrUnauthorized):
		RespondWithError(c, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, errs.ErrEmailTaken):
		RespondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrStoreUnavailable):
		RespondWithError(c, http.StatusServiceUnavailable, "Store unavailable")
	default:
		RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}
