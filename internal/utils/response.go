package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pathology-records-server/internal/forms"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/store"
)

// ResponseData represents the structure of a standard API response.
type ResponseData struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ValidationDetails is the data of a 400 caused by field rules.
type ValidationDetails struct {
	Fields []string `json:"fields"`
}

// Success sends a standard success response.
func Success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, ResponseData{
		Status:  http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// Created sends a standard resource created response.
func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, ResponseData{
		Status:  http.StatusCreated,
		Message: message,
		Data:    data,
	})
}

// Error sends a standard error response.
func Error(c *gin.Context, statusCode int, errorMessage string) {
	c.JSON(statusCode, ResponseData{
		Status:  statusCode,
		Message: "An error occurred",
		Error:   errorMessage,
	})
}

// BadRequest sends a 400 Bad Request error response.
func BadRequest(c *gin.Context, errorMessage string) {
	Error(c, http.StatusBadRequest, errorMessage)
}

// ValidationFailed sends a 400 listing every failing field.
func ValidationFailed(c *gin.Context, fields []string) {
	c.JSON(http.StatusBadRequest, ResponseData{
		Status:  http.StatusBadRequest,
		Message: "An error occurred",
		Data:    ValidationDetails{Fields: fields},
		Error:   "Validation failed",
	})
}

// Unauthorized sends a 401 Unauthorized error response.
func Unauthorized(c *gin.Context, errorMessage string) {
	Error(c, http.StatusUnauthorized, errorMessage)
}

// Forbidden sends a 403 Forbidden error response.
func Forbidden(c *gin.Context, errorMessage string) {
	Error(c, http.StatusForbidden, errorMessage)
}

// NotFound sends a 404 Not Found error response.
func NotFound(c *gin.Context, errorMessage string) {
	Error(c, http.StatusNotFound, errorMessage)
}

// Conflict sends a 409 Conflict error response.
func Conflict(c *gin.Context, errorMessage string) {
	Error(c, http.StatusConflict, errorMessage)
}

// TooManyRequests sends a 429 Too Many Requests error response.
func TooManyRequests(c *gin.Context, errorMessage string) {
	Error(c, http.StatusTooManyRequests, errorMessage)
}

// InternalServerError sends a 500 Internal Server Error response.
func InternalServerError(c *gin.Context, errorMessage string) {
	Error(c, http.StatusInternalServerError, errorMessage)
}

// RespondError maps a repository or validation error onto a response.
// notFound is the message used for store.ErrNotFound. Unexpected errors
// are logged and reported without detail.
func RespondError(c *gin.Context, log *zap.Logger, err error, notFound string) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		ValidationFailed(c, verr.Fields)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		NotFound(c, notFound)

	case errors.Is(err, repository.ErrDuplicateEmail),
		errors.Is(err, repository.ErrDuplicateMRN),
		errors.Is(err, repository.ErrPatientHasRecords),
		errors.Is(err, repository.ErrIntakeHasFollowUps):
		Conflict(c, err.Error())

	case errors.Is(err, repository.ErrIntakeRequired):
		Error(c, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, models.ErrUnknownPathology),
		errors.Is(err, forms.ErrUnknownField),
		errors.Is(err, forms.ErrFieldValue):
		BadRequest(c, err.Error())

	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		InternalServerError(c, "Internal server error")
	}
}
