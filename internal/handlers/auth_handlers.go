package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/database"
	"realtime-chat/internal/models"
	"realtime-chat/pkg/logger"
)

// AuthHandlers issue the tokens the websocket handshake later accepts.
type AuthHandlers struct {
	authService *auth.Service
}

func NewAuthHandlers(authService *auth.Service) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Register creates an account and answers 201 with a token, 409 when the
// email is taken.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var body models.RegisterRequest
	if !decodeBody(w, r, &body) {
		return
	}

	resp, err := h.authService.Register(r.Context(), &body)
	var invalid validator.ValidationErrors
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, resp)
	case errors.As(err, &invalid):
		http.Error(w, invalid.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrConflict):
		http.Error(w, "email already registered", http.StatusConflict)
	default:
		logger.Error("Register %s failed: %v", body.Email, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// Login answers 401 for any unknown email or wrong password alike.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var body models.LoginRequest
	if !decodeBody(w, r, &body) {
		return
	}

	resp, err := h.authService.Login(r.Context(), &body)
	var invalid validator.ValidationErrors
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.As(err, &invalid):
		http.Error(w, invalid.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidCredentials):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	default:
		logger.Error("Login %s failed: %v", body.Email, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}
