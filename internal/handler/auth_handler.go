package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/service"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
	"github.com/noah-isme/educore-sync/pkg/response"
)

type authService interface {
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.Viewer, error)
	SignIn(ctx context.Context, req models.SignInRequest) (*models.SignInResponse, error)
	SignOut(ctx context.Context, viewerID string) error
	SendPasswordReset(ctx context.Context, req models.PasswordResetRequest) error
	ResetPassword(ctx context.Context, req models.ConfirmPasswordResetRequest) error
}

type sessionLifecycle interface {
	Open(ctx context.Context, viewer models.Viewer) (*service.Session, error)
	Close(viewerID string)
}

// AuthHandler wires HTTP endpoints to the auth service. Sessions are opened after a
// successful sign-in and closed after sign-out, in that order, by the handler itself.
type AuthHandler struct {
	service  authService
	sessions sessionLifecycle
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, sessions sessionLifecycle) *AuthHandler {
	return &AuthHandler{service: svc, sessions: sessions}
}

// SignUp godoc
// @Summary Register account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.SignUpRequest true "Sign-up payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/signup [post]
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sign-up payload"))
		return
	}

	viewer, err := h.service.SignUp(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, viewer)
}

// SignIn godoc
// @Summary Authenticate viewer
// @Description Authenticate by email and password and open the viewer's session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.SignInRequest true "Sign-in payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/signin [post]
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req models.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sign-in payload"))
		return
	}

	res, err := h.service.SignIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if _, err := h.sessions.Open(c.Request.Context(), res.Viewer); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open session"))
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// SignOut godoc
// @Summary Sign out
// @Description Notify auth listeners and drop the viewer's session
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/signout [post]
func (h *AuthHandler) SignOut(c *gin.Context) {
	viewer, err := viewerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.SignOut(c.Request.Context(), viewer.ID); err != nil {
		response.Error(c, err)
		return
	}
	h.sessions.Close(viewer.ID)
	response.NoContent(c)
}

// ForgotPassword godoc
// @Summary Send password reset
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.PasswordResetRequest true "Account email"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/password/forgot [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.SendPasswordReset(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, gin.H{"message": "if the email exists, a reset link will be sent"})
}

// ResetPassword godoc
// @Summary Reset password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ConfirmPasswordResetRequest true "Reset token and new password"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/password/reset [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ConfirmPasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Me godoc
// @Summary Current viewer
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	viewer, err := viewerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, viewer)
}
