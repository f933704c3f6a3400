package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pathology-records-server/internal/middleware"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/utils"
)

// parseID reads a UUID path parameter, answering 400 when it is malformed.
func parseID(c *gin.Context, param string) (string, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.BadRequest(c, "Invalid "+param+": must be a valid UUID")
		return "", false
	}
	return id.String(), true
}

// caller returns the authenticated user id and role.
func caller(c *gin.Context) (string, models.Role, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return "", "", false
	}
	role, ok := middleware.GetUserRoleFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return "", "", false
	}
	return userID, role, true
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
