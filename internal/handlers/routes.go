package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes mounts the JSON API on router under /api.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.LogRequests)

	api.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/email/verify/{id}/{hash}", h.VerifyEmail).Methods(http.MethodGet)
	api.HandleFunc("/email/resend", h.ResendVerification).Methods(http.MethodPost)
	api.Handle("/ws", tokenFromQuery(h.AuthMiddleware(http.HandlerFunc(h.HandleWebSocket)))).
		Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(h.AuthMiddleware)
	protected.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/user", h.CurrentUser).Methods(http.MethodGet)
	protected.HandleFunc("/tasks", h.ListTasks).Methods(http.MethodGet)
	protected.HandleFunc("/tasks", h.CreateTask).Methods(http.MethodPost)
	protected.HandleFunc("/tasks/{taskID}", h.GetTask).Methods(http.MethodGet)
	protected.HandleFunc("/tasks/{taskID}", h.UpdateTask).Methods(http.MethodPut, http.MethodPatch)
	protected.HandleFunc("/tasks/{taskID}", h.DeleteTask).Methods(http.MethodDelete)
}
