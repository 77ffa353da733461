package handlers

import (
	"net/http"

	"meal-order-api/middleware"
	"meal-order-api/models"
	"meal-order-api/service"

	"github.com/gin-gonic/gin"
)

type SignupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ReauthRequest struct {
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password"`
}

type DeleteProfileRequest struct {
	Password string `json:"password"`
}

func (h *Handler) session(c *gin.Context, status int, message string, user *models.User) {
	token, err := h.Tokens.Generate(user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, gin.H{
		"message": message,
		"token":   token,
		"user":    user,
	})
}

// Signup creates a new account. The first account ever created is the admin.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.Accounts.Signup(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.session(c, http.StatusCreated, "Account created successfully", user)
}

// Login authenticates a user and returns a JWT
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.session(c, http.StatusOK, "Login successful", user)
}

// Logout ends every session of the caller.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.Accounts.Logout(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

// Reauth confirms the password and returns a fresh token.
func (h *Handler) Reauth(c *gin.Context) {
	var req ReauthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.Accounts.Reauth(c.Request.Context(), middleware.GetUserID(c), req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.session(c, http.StatusOK, "Signed in again", user)
}

// GetProfile returns the authenticated user's profile
func (h *Handler) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": middleware.GetUser(c)})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess := service.Sensitive{IssuedAt: middleware.GetIssuedAt(c), Password: req.Password}
	user, err := h.Accounts.UpdateName(c.Request.Context(), middleware.GetUserID(c), sess, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}

// DeleteProfile removes the account with its orders, notifications,
// suggestions and bag.
func (h *Handler) DeleteProfile(c *gin.Context) {
	var req DeleteProfileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	sess := service.Sensitive{IssuedAt: middleware.GetIssuedAt(c), Password: req.Password}
	if err := h.Accounts.DeleteAccount(c.Request.Context(), middleware.GetUserID(c), sess); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}
