package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docrepo-api/internal/middleware"
	"github.com/noah-isme/docrepo-api/internal/models"
	"github.com/noah-isme/docrepo-api/pkg/response"
)

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResult, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error)
	Logout(ctx context.Context, token string, meta models.LoginRequest) error
	CurrentUser(ctx context.Context, principal *models.Principal) (*models.User, error)
	ChangePassword(ctx context.Context, principal *models.Principal, req models.ChangePasswordRequest) error
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
	cookie  *middleware.SessionCookie
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, cookie *middleware.SessionCookie) *AuthHandler {
	return &AuthHandler{service: svc, cookie: cookie}
}

// Register godoc
// @Summary Register an account
// @Description Students register freely; supervisors and admins need a registration code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Failure 409 {object} response.ErrorBody
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid registration payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.cookie.Write(c, res.Token, res.User.ID, res.ExpiresAt); err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{
		"message":    "Registration successful",
		"redirectTo": res.RedirectTo,
		"userType":   res.User.Role,
		"user":       models.NewUserInfo(res.User),
	})
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password and open a session cookie
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.cookie.Write(c, res.Token, res.User.ID, res.ExpiresAt); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"message":    "Login successful",
		"redirectTo": res.RedirectTo,
		"userType":   res.User.Role,
		"user":       models.NewUserInfo(res.User),
	})
}

// Logout godoc
// @Summary Logout current session
// @Description Destroys the session behind the cookie. Safe to call repeatedly.
// @Tags Authentication
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := h.cookie.Token(c)
	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if err := h.service.Logout(c.Request.Context(), token, meta); err != nil {
		response.Error(c, err)
		return
	}
	h.cookie.Clear(c)
	response.OK(c, gin.H{"message": "Logged out"})
}

// UserInfo godoc
// @Summary Current user
// @Tags Authentication
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} response.ErrorBody
// @Router /auth/user-info [get]
func (h *AuthHandler) UserInfo(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	user, err := h.service.CurrentUser(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"user": models.NewUserInfo(user)})
}

// ChangePassword godoc
// @Summary Change password
// @Description Change password for current user and sign out other sessions
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	principal := requirePrincipal(c)
	if principal == nil {
		return
	}
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), principal, req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Password updated"}, nil)
}
