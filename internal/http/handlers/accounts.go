package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/geocoder89/accounthub/internal/service"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake the service easily.
type AccountService interface {
	Register(ctx context.Context, firstName, lastName, email, password string) (user.User, error)
	Login(ctx context.Context, email, password string) (user.User, string, error)
	CurrentUser(ctx context.Context, token string) (user.User, error)
	UpdateProfile(ctx context.Context, token, firstName, lastName string) (user.User, error)
	ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (user.User, error)
	Logout(ctx context.Context, token string) error
}

type AccountsHandler struct {
	svc               AccountService
	prom              *observability.Prom
	exposeStoreErrors bool
}

func NewAccountsHandler(svc AccountService, prom *observability.Prom, exposeStoreErrors bool) *AccountsHandler {
	return &AccountsHandler{
		svc:               svc,
		prom:              prom,
		exposeStoreErrors: exposeStoreErrors,
	}
}

type RegisterRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8,userpassword"`
}

// The source validates login input shape before touching credentials, so a
// malformed email or weak password is a 400 here, never a 401.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,userpassword"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required,min=8,userpassword"`
	NewPassword string `json:"new_password" binding:"required,min=8,userpassword"`
}

func (h *AccountsHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		h.countRegistration("invalid")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	u, err := h.svc.Register(cctx, req.FirstName, req.LastName, req.Email, req.Password)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			h.countRegistration("conflict")
		} else {
			h.countRegistration("error")
		}

		h.respondServiceError(ctx, err)
		return
	}

	h.countRegistration("ok")

	RespondData(ctx, u, "Your account created successfully.")
}

func (h *AccountsHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	u, token, err := h.svc.Login(cctx, req.Email, req.Password)

	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailNotFound):
			h.countLogin("bad_email")
		case errors.Is(err, service.ErrIncorrectPassword):
			h.countLogin("bad_password")
		default:
			h.countLogin("error")
		}

		h.respondServiceError(ctx, err)
		return
	}

	h.countLogin("ok")

	if h.prom != nil {
		h.prom.TokensIssued.Inc()
	}

	RespondData(ctx, gin.H{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"email":      u.Email,
		"token":      token,
	}, "Login successfully.")
}

func (h *AccountsHandler) Show(ctx *gin.Context) {
	token := middlewares.TokenFromContext(ctx)

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	u, err := h.svc.CurrentUser(cctx, token)

	if err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	RespondData(ctx, u, "")
}

func (h *AccountsHandler) Update(ctx *gin.Context) {
	var req UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	token := middlewares.TokenFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	u, err := h.svc.UpdateProfile(cctx, token, req.FirstName, req.LastName)

	if err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	RespondData(ctx, u, "You name has successfully changed.")
}

func (h *AccountsHandler) ChangePassword(ctx *gin.Context) {
	var req ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	token := middlewares.TokenFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	u, err := h.svc.ChangePassword(cctx, token, req.OldPassword, req.NewPassword)

	if err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	RespondData(ctx, u, "Password has successfully changed.")
}

func (h *AccountsHandler) Logout(ctx *gin.Context) {
	token := middlewares.TokenFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	err := h.svc.Logout(cctx, token)

	if err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	if h.prom != nil {
		h.prom.TokensRevoked.Inc()
	}

	RespondMessage(ctx, "User logged out.")
}

// respondServiceError maps service errors onto the HTTP surface. The split
// between the 401 variants is deliberate source behavior, not to be merged.
func (h *AccountsHandler) respondServiceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmailNotFound):
		RespondUnAuthorized(ctx, "Email not exists. Please try again.")
	case errors.Is(err, service.ErrIncorrectPassword):
		RespondUnAuthorized(ctx, "Incorrect password. Please try again.")
	case errors.Is(err, service.ErrOldPasswordMismatch):
		RespondUnAuthorized(ctx, "Old password doesn't match. Please try again.")
	case errors.Is(err, auth.ErrInvalidToken):
		RespondUnAuthorized(ctx, "Invalid or revoked token. Please log in again.")
	case errors.Is(err, postgres.ErrEmailAlreadyUsed):
		RespondBadRequest(ctx, "The email has already been taken.", nil)
	case errors.Is(err, postgres.ErrUserNotFound):
		RespondBadRequest(ctx, "User not found.", nil)
	case errors.Is(err, security.ErrWeakPassword):
		RespondBadRequest(ctx, err.Error(), nil)
	default:
		if h.exposeStoreErrors {
			RespondBadRequest(ctx, err.Error(), nil)
			return
		}

		RespondBadRequest(ctx, "Something went wrong. Please try again.", nil)
	}
}

func (h *AccountsHandler) countLogin(result string) {
	if h.prom != nil {
		h.prom.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (h *AccountsHandler) countRegistration(result string) {
	if h.prom != nil {
		h.prom.RegistrationsTotal.WithLabelValues(result).Inc()
	}
}
