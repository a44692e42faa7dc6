// Package api provides HTTP handlers for the TalentLink real-time API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/talentlink/talentlink/internal/chat"
	"github.com/talentlink/talentlink/internal/notify"
	"github.com/talentlink/talentlink/internal/presence"
	"github.com/talentlink/talentlink/internal/store"
)

// Handler provides the REST surface over the delivery pipeline and store.
type Handler struct {
	repo     store.Repository
	chat     *chat.Service
	notifier *notify.Notifier
	registry *presence.Registry
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, chatSvc *chat.Service, notifier *notify.Notifier, registry *presence.Registry) *Handler {
	return &Handler{
		repo:     repo,
		chat:     chatSvc,
		notifier: notifier,
		registry: registry,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
