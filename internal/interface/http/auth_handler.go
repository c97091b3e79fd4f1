package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/turbo-auth/internal/application"
	"github.com/oksasatya/turbo-auth/pkg/response"
)

// MaxAvatarBytes caps the size of an uploaded avatar image.
const MaxAvatarBytes = 5 << 20

type AuthHandler struct {
	Svc    *application.Service
	Logger logrus.FieldLogger
}

func NewAuthHandler(svc *application.Service, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger}
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,pwd"`
	Name     string `json:"name" binding:"omitempty,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type updateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,max=100"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,url,max=2048"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,pwd"`
}

// identity is set by middleware.Auth; handlers behind it can rely on it.
func identity(c *gin.Context) *application.Identity {
	id, _ := application.IdentityFromContext(c.Request.Context())
	return id
}

// Signup POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Svc.Signup(c.Request.Context(), application.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, toAuthResponse(res))
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toAuthResponse(res))
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.Svc.GetSelf(c.Request.Context(), identity(c).UserID)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": toUserResponse(u)})
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	id := identity(c)
	if err := h.Svc.Logout(c.Request.Context(), id.UserID, id.Token); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Message(c, http.StatusOK, "Logged out successfully")
}

// LogoutAll POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	if err := h.Svc.LogoutAll(c.Request.Context(), identity(c).UserID); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Message(c, http.StatusOK, "Logged out from all devices")
}

// UpdateProfile PATCH /api/auth/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	u, err := h.Svc.UpdateProfile(c.Request.Context(), identity(c).UserID, application.UpdateProfileInput{
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Profile updated successfully", "user": toUserResponse(u)})
}

// ChangePassword POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id := identity(c)
	if err := h.Svc.ChangePassword(c.Request.Context(), id.UserID, id.Token, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Message(c, http.StatusOK, "Password changed successfully")
}

// Sessions GET /api/auth/sessions
func (h *AuthHandler) Sessions(c *gin.Context) {
	id := identity(c)
	list, err := h.Svc.ListSessions(c.Request.Context(), id.UserID, id.Token)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": toSessionResponses(list)})
}

// UploadAvatar POST /api/auth/profile/avatar (multipart field "avatar")
func (h *AuthHandler) UploadAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxAvatarBytes+1<<20)
	fh, err := c.FormFile("avatar")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid payload", map[string]string{"avatar": "is required"})
		return
	}
	if fh.Size > MaxAvatarBytes {
		response.Error(c, http.StatusBadRequest, "Invalid payload", map[string]string{"avatar": "must be at most 5MB"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	defer f.Close()

	u, err := h.Svc.UploadAvatar(c.Request.Context(), identity(c).UserID, f, fh.Filename, fh.Header.Get("Content-Type"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Avatar updated successfully", "user": toUserResponse(u)})
}

// Status GET /api/auth/status (optional auth)
func (h *AuthHandler) Status(c *gin.Context) {
	id, ok := application.IdentityFromContext(c.Request.Context())
	if !ok {
		response.Success(c, http.StatusOK, gin.H{"authenticated": false})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"authenticated": true, "user": toUserResponse(id.User)})
}
