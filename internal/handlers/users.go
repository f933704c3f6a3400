package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pathology-records-server/internal/middleware"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/utils"
)

// UserHandler handles user-related requests (typically admin operations).
type UserHandler struct {
	Repos *repository.Repositories
	Log   *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(repos *repository.Repositories, log *zap.Logger) *UserHandler {
	return &UserHandler{Repos: repos, Log: log}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        string `json:"role" validate:"required,oneof=patient doctor admin"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=30"`
}

// CreateUser handles creating a new user (admin).
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user := models.User{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Role:        models.Role(req.Role),
		PhoneNumber: req.PhoneNumber,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password")
		return
	}

	if err := h.Repos.Users.Create(c.Request.Context(), &user); err != nil {
		utils.RespondError(c, h.Log, err, "User not found")
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers handles fetching all users (admin). ?role= narrows the list.
func (h *UserHandler) GetUsers(c *gin.Context) {
	role := models.Role(c.Query("role"))
	if role != "" && !role.IsValid() {
		utils.BadRequest(c, "Unknown role: "+string(role))
		return
	}
	h.listUsers(c, role, "Users fetched successfully")
}

// GetDoctors lists doctor accounts for any authenticated user.
func (h *UserHandler) GetDoctors(c *gin.Context) {
	h.listUsers(c, models.RoleDoctor, "Doctors fetched successfully")
}

func (h *UserHandler) listUsers(c *gin.Context, role models.Role, message string) {
	users, err := h.Repos.Users.List(c.Request.Context(), role)
	if err != nil {
		utils.RespondError(c, h.Log, err, "")
		return
	}

	sanitized := make([]models.UserSanitized, len(users))
	for i := range users {
		sanitized[i] = users[i].Sanitize()
	}
	utils.Success(c, message, sanitized)
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := h.Repos.Users.Get(c.Request.Context(), userID)
	if err != nil {
		utils.RespondError(c, h.Log, err, "User not found")
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
type UpdateUserRequest struct {
	FirstName   string  `json:"firstName" validate:"max=100"`
	LastName    string  `json:"lastName" validate:"max=100"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Role        string  `json:"role" validate:"omitempty,oneof=patient doctor admin"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=30"`
}

// UpdateUser handles updating a user by ID (admin).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	user, err := h.Repos.Users.Get(ctx, userID)
	if err != nil {
		utils.RespondError(c, h.Log, err, "User not found")
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	roleChanged := req.Role != "" && models.Role(req.Role) != user.Role
	if roleChanged {
		user.Role = models.Role(req.Role)
	}

	if err := h.Repos.Users.Update(ctx, user); err != nil {
		utils.RespondError(c, h.Log, err, "User not found")
		return
	}
	if roleChanged {
		// Outstanding refresh tokens would mint access tokens with the old role.
		if err := h.Repos.RefreshTokens.RevokeAll(ctx, user.ID); err != nil {
			h.Log.Error("failed to revoke refresh tokens after role change", zap.Error(err))
		}
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser handles deleting a user by ID (admin).
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if self, _ := middleware.GetUserIDFromContext(c); self == userID {
		utils.BadRequest(c, "Admins cannot delete their own account")
		return
	}
	ctx := c.Request.Context()

	if err := h.Repos.Users.Delete(ctx, userID); err != nil {
		utils.RespondError(c, h.Log, err, "User not found")
		return
	}
	if err := h.Repos.RefreshTokens.RevokeAll(ctx, userID); err != nil {
		h.Log.Error("failed to revoke refresh tokens of deleted user", zap.Error(err))
	}

	h.Log.Info("user deleted", zap.String("user_id", userID))
	utils.Success(c, "User deleted successfully", nil)
}
