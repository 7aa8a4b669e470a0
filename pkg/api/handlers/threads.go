package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"parley/pkg/auth"
	"parley/pkg/store"
	"parley/pkg/threads"
)

// RegisterThreads registers the thread retrieval endpoint on an
// authenticated router.
func RegisterThreads(r *mux.Router) {
	r.HandleFunc("/threads/{id}", getThread).Methods(http.MethodGet)
}

// getThread handles GET /threads/{id}. Threads are addressed by their
// root message: the id of a reply returns 404 rather than silently
// resolving to the actual root.
func getThread(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u, _ := auth.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]

	node, err := threads.Loader{}.Load(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"thread not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	c, err := store.GetConversation(node.Conversation)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if !auth.CanViewConversation(u, c) {
		http.Error(w, `{"error":"not a participant of this conversation"}`, http.StatusForbidden)
		return
	}
	_ = json.NewEncoder(w).Encode(node)
}
