package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pledgr/internal/middleware"
	"pledgr/internal/service"
)

// AuthHandler serves registration, login and the caller's profile.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// RegisterRequest defines the JSON struct we expect from the client
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.Auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User created successfully.",
		"token":   result.Token,
		"user":    result.User,
	})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful.",
		"token":   result.Token,
		"user":    result.User,
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.Auth.Me(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"user": user}
	if claims, ok := middleware.ClaimsFromContext(c); ok && claims.ExpiresAt != nil {
		resp["token_expires_at"] = claims.ExpiresAt.Time.UTC()
	}
	c.JSON(http.StatusOK, resp)
}

type socialLinks struct {
	Twitter   string `json:"twitter"`
	Instagram string `json:"instagram"`
	Youtube   string `json:"youtube"`
}

type UpdateProfileRequest struct {
	Name    string      `json:"name"`
	Bio     string      `json:"bio"`
	Website string      `json:"website"`
	Social  socialLinks `json:"social"`
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.Auth.UpdateProfile(c.Request.Context(), userID, service.ProfileInput{
		Name:            req.Name,
		Bio:             req.Bio,
		Website:         req.Website,
		SocialTwitter:   req.Social.Twitter,
		SocialInstagram: req.Social.Instagram,
		SocialYoutube:   req.Social.Youtube,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated.", "user": user})
}
