package handler

import (
	"github.com/GoPolymarket/logreplay/internal/middleware"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/pkg/apperrors"
	"github.com/GoPolymarket/logreplay/internal/pkg/clientip"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest("username and password are required"))
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req.Username, req.Password, clientip.FromRequest(c.Request))
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, resp)
}

// Me requires AuthMiddleware.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	info, err := h.svc.GetAdminInfo(c.Request.Context(), claims.AdminID)
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, info)
}

// ChangePassword requires AuthMiddleware.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req model.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest("currentPassword and newPassword are required"))
		return
	}

	claims := middleware.ClaimsFrom(c)
	if err := h.svc.ChangePassword(c.Request.Context(), claims.AdminID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	respondMessage(c, "password changed")
}

// Validate reports token status and never fails with 401.
func (h *AuthHandler) Validate(c *gin.Context) {
	status := model.TokenStatus{}
	if claims, err := h.svc.ValidateToken(middleware.BearerToken(c)); err == nil {
		status = model.TokenStatus{IsValid: true, Username: claims.Username, Role: claims.Role}
	}
	respondOK(c, status)
}
