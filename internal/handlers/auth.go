package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pathology-records-server/internal/config"
	"pathology-records-server/internal/middleware"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/store"
	"pathology-records-server/internal/utils"
)

const refreshCookie = "refresh_token"

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	Repos *repository.Repositories
	Cfg   *config.Config
	Log   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(repos *repository.Repositories, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Repos: repos, Cfg: cfg, Log: log}
}

// RegisterRequest represents the request body for user registration.
// Admin accounts are created through the user management endpoints only.
type RegisterRequest struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        string `json:"role" validate:"required,oneof=patient doctor"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=30"`
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return // Error response handled by BindAndValidate
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

	h.Log.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	user, err := h.Repos.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Unauthorized(c, "Invalid email or password")
			return
		}
		utils.RespondError(c, h.Log, err, "")
		return
	}

	if !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := h.Repos.Users.Update(ctx, user); err != nil {
		h.Log.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	accessToken, refreshToken, ok := h.issueTokens(c, user)
	if !ok {
		return
	}

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Sanitize(),
	})
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken exchanges a refresh token for a new token pair. The old
// refresh token is revoked.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	// The HTTP-only cookie wins; the body is accepted for non-browser clients.
	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		token = req.RefreshToken
	}
	ctx := c.Request.Context()

	claims, err := utils.ValidateToken(token, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token")
		return
	}

	stored, err := h.Repos.RefreshTokens.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
			return
		}
		utils.RespondError(c, h.Log, err, "")
		return
	}
	if stored.UserID != claims.UserID || !stored.Usable(time.Now()) {
		if stored.IsRevoked {
			// A revoked token being replayed: cut off the whole family.
			h.Log.Warn("revoked refresh token reused", zap.String("user_id", stored.UserID))
			if err := h.Repos.RefreshTokens.RevokeAll(ctx, stored.UserID); err != nil {
				h.Log.Error("failed to revoke refresh tokens", zap.Error(err))
			}
		}
		utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		return
	}

	user, err := h.Repos.Users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Unauthorized(c, "User no longer exists")
			return
		}
		utils.RespondError(c, h.Log, err, "")
		return
	}

	if err := h.Repos.RefreshTokens.Revoke(ctx, stored); err != nil {
		utils.RespondError(c, h.Log, err, "")
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, user)
	if !ok {
		return
	}

	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// LogoutRequest represents the request body for user logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the presented refresh token and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(refreshCookie)
	if token == "" {
		var req LogoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequest(c, "Invalid request payload: "+err.Error())
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		utils.BadRequest(c, "Refresh token is required")
		return
	}
	ctx := c.Request.Context()
	userID, _ := middleware.GetUserIDFromContext(c)

	stored, err := h.Repos.RefreshTokens.Lookup(ctx, token)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Unknown tokens need no revoking.
	case err != nil:
		utils.RespondError(c, h.Log, err, "")
		return
	case stored.UserID != userID:
		utils.Forbidden(c, "Refresh token belongs to another user")
		return
	default:
		if err := h.Repos.RefreshTokens.Revoke(ctx, stored); err != nil {
			utils.RespondError(c, h.Log, err, "")
			return
		}
	}

	c.SetCookie(refreshCookie, "", -1, "/", "", !h.Cfg.IsDevelopment(), true)
	utils.Success(c, "Logout successful. Refresh token has been invalidated.", nil)
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	user, err := h.Repos.Users.Get(c.Request.Context(), userID)
	if err != nil {
		utils.RespondError(c, h.Log, err, "User profile not found")
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
type UpdateProfileRequest struct {
	FirstName   string  `json:"firstName" validate:"max=100"`
	LastName    string  `json:"lastName" validate:"max=100"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=30"`
	Password    string  `json:"password" validate:"omitempty,min=8,max=72"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req UpdateProfileRequest
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
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	if req.Password != "" {
		if err := user.SetPassword(req.Password); err != nil {
			utils.InternalServerError(c, "Failed to hash password")
			return
		}
	}

	if err := h.Repos.Users.Update(ctx, user); err != nil {
		utils.RespondError(c, h.Log, err, "User not found")
		return
	}
	if req.Password != "" {
		if err := h.Repos.RefreshTokens.RevokeAll(ctx, user.ID); err != nil {
			h.Log.Error("failed to revoke refresh tokens after password change", zap.Error(err))
		}
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

// issueTokens signs a token pair, stores the refresh token and sets the
// refresh cookie. It writes the error response itself.
func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User) (string, string, bool) {
	accessToken, refreshToken, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		h.Log.Error("failed to sign tokens", zap.Error(err))
		utils.InternalServerError(c, "Failed to generate tokens")
		return "", "", false
	}

	ttl := h.Cfg.RefreshTokenTTL()
	if err := h.Repos.RefreshTokens.Issue(c.Request.Context(), user.ID, refreshToken, time.Now().Add(ttl)); err != nil {
		utils.RespondError(c, h.Log, err, "")
		return "", "", false
	}

	c.SetCookie(refreshCookie, refreshToken, int(ttl.Seconds()), "/", "", !h.Cfg.IsDevelopment(), true)
	return accessToken, refreshToken, true
}
