package utils

import (
	"errors"

	"github.com/gin-gonic/gin"

	"pathology-records-server/internal/models"
)

// BindAndValidate binds the request body to a struct and validates its
// `validate` tags. On failure it sends a 400 and returns false.
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		BadRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	if err := models.Validate(obj, ""); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			ValidationFailed(c, verr.Fields)
			return false
		}
		BadRequest(c, "Validation failed: "+err.Error())
		return false
	}
	return true
}
