package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/syncovids/backend/internal/auth"
	"github.com/syncovids/backend/internal/identity"
	"github.com/syncovids/backend/internal/logging"
	"github.com/syncovids/backend/internal/models"
)

var validate = validator.New()

// AuthHandler implements the authentication endpoints.
type AuthHandler struct {
	Identity IdentityService
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Username string `json:"username" validate:"required,min=3"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User   profilePayload       `json:"user"`
	Tokens models.SessionTokens `json:"tokens"`
}

type profilePayload struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		logger.Warn("signup validation failed", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": signUpValidationMessage(err)})
		return
	}

	account, tokens, err := h.Identity.SignUp(ctx, req.Email, req.Password, req.Username)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, identity.ErrEmailInUse) {
			status = http.StatusConflict
		}
		logger.Warn("signup rejected", "email", req.Email, "error", err)
		respondJSON(ctx, w, status, map[string]string{"error": identity.Message(err)})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, authResponse{
		User:   accountPayload(account),
		Tokens: tokens,
	})
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validate.Struct(req); err != nil {
		logger.Warn("login validation failed", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	account, tokens, err := h.Identity.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		logger.Warn("login rejected", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": identity.Message(err)})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{
		User:   accountPayload(account),
		Tokens: tokens,
	})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "refresh token is required"})
		return
	}

	tokens, err := h.Identity.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warn("refresh failed", "error", err)
		respondJSON(ctx, w, status, map[string]string{"error": "unable to refresh session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]models.SessionTokens{"tokens": tokens})
}

// Logout revokes the refresh token. Always succeeds from the caller's view.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		h.Identity.SignOut(ctx, strings.TrimSpace(req.RefreshToken))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "signed out"})
}

func accountPayload(account *models.Account) profilePayload {
	return profilePayload{
		UID:         account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}
}

func signUpValidationMessage(err error) string {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) || len(invalid) == 0 {
		return "invalid request"
	}

	switch invalid[0].Field() {
	case "Email":
		return identity.Message(identity.ErrInvalidEmail)
	case "Password":
		return identity.Message(identity.ErrWeakPassword)
	case "Username":
		return identity.Message(identity.ErrUsernameTooShort)
	default:
		return "invalid request"
	}
}
