package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"parley/pkg/auth"
	"parley/pkg/models"
	"parley/pkg/store"
)

// RegisterNotifications registers the inbox endpoints on an
// authenticated router.
func RegisterNotifications(r *mux.Router) {
	r.HandleFunc("/notifications", listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{id}/read", markNotificationRead).Methods(http.MethodPost)
}

// listNotifications handles GET /notifications: the caller's own
// notifications in creation order. "unread=true" filters to unread.
func listNotifications(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u, _ := auth.UserFromContext(r.Context())
	all, err := store.ListNotifications(u.ID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	out := all
	if r.URL.Query().Get("unread") == "true" {
		out = out[:0]
		for _, n := range all {
			if !n.Read {
				out = append(out, n)
			}
		}
	}
	if out == nil {
		out = []models.Notification{}
	}
	_ = json.NewEncoder(w).Encode(struct {
		Notifications []models.Notification `json:"notifications"`
	}{Notifications: out})
}

// markNotificationRead handles POST /notifications/{id}/read. Keys are
// scoped by the caller's id, so other users' notifications are
// unreachable by construction.
func markNotificationRead(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u, _ := auth.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	n, err := store.MarkNotificationRead(u.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"notification not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(n)
}
