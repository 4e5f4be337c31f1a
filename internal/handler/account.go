package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/apperr"
	"faceattend/internal/auth"
	"faceattend/internal/identity"
)

type accountService interface {
	Register(ctx context.Context, req identity.RegisterRequest) (*identity.User, error)
	Login(ctx context.Context, req identity.LoginRequest) (*identity.Session, error)
	Profile(ctx context.Context, caller identity.Caller) (*identity.User, error)
	Classes(ctx context.Context) ([]identity.ClassGroup, error)
}

// AccountHandler serves registration, login, profile and class listing.
type AccountHandler struct {
	service accountService
}

// NewAccountHandler creates a new handler.
func NewAccountHandler(svc accountService) *AccountHandler {
	return &AccountHandler{service: svc}
}

// Register creates a student account.
func (h *AccountHandler) Register(c *gin.Context) {
	var req identity.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, apperr.Wrap(err, apperr.ErrValidation, "invalid registration payload"))
		return
	}
	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, "registration successful", user)
}

// Login exchanges credentials for a bearer token.
func (h *AccountHandler) Login(c *gin.Context) {
	var req identity.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, apperr.Wrap(err, apperr.ErrValidation, "invalid login payload"))
		return
	}
	session, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		Error(c, err)
		return
	}
	JSON(c, http.StatusOK, "login successful", session)
}

// Me returns the caller's current profile.
func (h *AccountHandler) Me(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	user, err := h.service.Profile(c.Request.Context(), caller)
	if err != nil {
		Error(c, err)
		return
	}
	JSON(c, http.StatusOK, "", user)
}

// Classes lists all classes.
func (h *AccountHandler) Classes(c *gin.Context) {
	classes, err := h.service.Classes(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	JSON(c, http.StatusOK, "", classes)
}

func callerOrAbort(c *gin.Context) (identity.Caller, bool) {
	caller, ok := auth.CallerFrom(c)
	if !ok {
		Error(c, apperr.ErrUnauthorized)
	}
	return caller, ok
}
