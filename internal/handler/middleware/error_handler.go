package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/handler/dto"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
)

func ErrorHandlerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("ErrorHandler")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))

		status, errResponse := classifyError(err)
		c.AbortWithStatusJSON(status, errResponse)
	}
}

// StatusForError reports the HTTP status a given error maps to, so callers
// outside the response path (the usage log) stay consistent with it.
func StatusForError(err error) int {
	status, _ := classifyError(err)
	return status
}

func classifyError(err error) (int, dto.APIErrorResponse) {
	status := http.StatusInternalServerError
	errResponse := dto.APIErrorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred.",
	}

	var ve validator.ValidationErrors

	if errors.As(err, &ve) {
		status = http.StatusBadRequest
		errResponse.Code = "VALIDATION_ERROR"
		errResponse.Message = "Input validation failed."
		errResponse.Details = buildValidationErrors(ve)
		return status, errResponse
	}

	switch {
	case errors.Is(err, ierr.ErrValidation), errors.Is(err, ierr.ErrUnsupportedFormat):
		status = http.StatusBadRequest
		errResponse.Code = "VALIDATION_ERROR"
		errResponse.Message = err.Error()
	case errors.Is(err, ierr.ErrUnauthorized), errors.Is(err, ierr.ErrInvalidCredentials),
		errors.Is(err, ierr.ErrInvalidToken), errors.Is(err, ierr.ErrTokenExpired),
		errors.Is(err, ierr.ErrKeyNotFound), errors.Is(err, ierr.ErrKeyRevoked):
		status = http.StatusUnauthorized
		errResponse.Code = "UNAUTHENTICATED"
		errResponse.Message = "Authentication required or failed."
	case errors.Is(err, ierr.ErrForbidden):
		status = http.StatusForbidden
		errResponse.Code = "FORBIDDEN"
		errResponse.Message = "Access denied."
	case errors.Is(err, ierr.ErrNotFound), errors.Is(err, ierr.ErrUserNotFound):
		status = http.StatusNotFound
		errResponse.Code = "NOT_FOUND"
		errResponse.Message = "The requested resource was not found."
	case errors.Is(err, ierr.ErrConflict), errors.Is(err, ierr.ErrDuplicateLabel):
		status = http.StatusConflict
		errResponse.Code = "CONFLICT"
		errResponse.Message = err.Error()
	case errors.Is(err, ierr.ErrAccountLocked):
		status = http.StatusLocked
		errResponse.Code = "ACCOUNT_LOCKED"
		errResponse.Message = "The account is deactivated."
	case errors.Is(err, ierr.ErrAllProvidersFailed):
		status = http.StatusBadGateway
		errResponse.Code = "ALL_PROVIDERS_FAILED"
		errResponse.Message = err.Error()
	default:
		errResponse.Message = err.Error()
	}

	return status, errResponse
}

func buildValidationErrors(ve validator.ValidationErrors) []dto.FieldError {
	details := make([]dto.FieldError, len(ve))
	for i, fe := range ve {
		details[i] = dto.FieldError{
			Field:   fe.Field(),
			Message: getValidationErrorMsg(fe),
		}
	}
	return details
}

func getValidationErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "email":
		return fmt.Sprintf("Field '%s' must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("Field '%s' must be at least %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("Field '%s' failed validation on the '%s' tag", fe.Field(), fe.Tag())
	}
}
