package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notebook-lending/internal/platform/apperr"
	"notebook-lending/internal/platform/validation"
)

type AuthHandler struct {
	svc *Service
	log *zap.Logger
}

// RegisterRoutes mounts login on the public group and logout on a group
// already behind RequireAuth.
func RegisterRoutes(public, protected gin.IRoutes, svc *Service, log *zap.Logger) {
	h := &AuthHandler{svc: svc, log: log}
	public.POST("/auth/login", h.Login)
	protected.POST("/auth/logout", h.Logout)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary  Sign in with an admin account
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body  body      LoginRequest  true  "credentials"
// @Success  200   {object}  LoginResult
// @Failure  401   {object}  apperr.ErrorDTO
// @Failure  403   {object}  apperr.ErrorDTO
// @Router   /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.BindError(err))
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Logout godoc
// @Summary   Revoke the current token
// @Tags      auth
// @Security  BearerAuth
// @Success   204
// @Router    /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		apperr.Respond(c, h.log, apperr.Unauthenticated("not signed in"))
		return
	}
	if err := h.svc.Logout(c.Request.Context(), claims); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
