package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/chepyr/go-todo-tree/internal/auth"
	"github.com/gorilla/mux"
)

// POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	body, _, err := readDocument(w, r, registerSchema)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	var input struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"c_password"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		h.sendServiceError(w, r, errBadJSON)
		return
	}

	user, token, err := h.Auth.Register(r.Context(), auth.RegisterInput{
		Name:            input.Name,
		Email:           input.Email,
		Password:        input.Password,
		ConfirmPassword: input.ConfirmPassword,
	})
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"name":    user.Name,
		"message": "Please check your email for verification link.",
	})
}

// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	body, _, err := readDocument(w, r, emailSchema)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		h.sendServiceError(w, r, errBadJSON)
		return
	}

	user, token, err := h.Auth.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

// POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthenticated.", http.StatusUnauthorized)
		return
	}
	if err := h.Auth.Logout(r.Context(), user.ID); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, messageResponse{Message: "Successfully logged out"})
}

// GET /api/user
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthenticated.", http.StatusUnauthorized)
		return
	}
	sendJSON(w, http.StatusOK, user)
}

// GET /api/email/verify/{id}/{hash}
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	already, err := h.Auth.VerifyEmail(r.Context(), vars["id"], vars["hash"])
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	if already {
		sendJSON(w, http.StatusOK, messageResponse{Message: "Email already verified"})
		return
	}
	sendJSON(w, http.StatusOK, messageResponse{Message: "Email verified successfully"})
}

// POST /api/email/resend
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	body, _, err := readDocument(w, r, emailSchema)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	var input struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		h.sendServiceError(w, r, errBadJSON)
		return
	}

	already, err := h.Auth.ResendVerification(r.Context(), input.Email)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	if already {
		sendJSON(w, http.StatusOK, messageResponse{Message: "Email already verified."})
		return
	}
	sendJSON(w, http.StatusOK, messageResponse{Message: "Verification link sent."})
}
