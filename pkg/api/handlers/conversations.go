package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"parley/pkg/auth"
	"parley/pkg/models"
	"parley/pkg/store"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

// RegisterConversations registers conversation collection and detail
// routes on an authenticated router.
func RegisterConversations(r *mux.Router) {
	r.HandleFunc("/conversations", createConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", getConversation).Methods(http.MethodGet)
}

// createConversation handles POST /conversations. Participants are
// required, every id must name an existing user, and the creator is
// always included.
func createConversation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u, _ := auth.UserFromContext(r.Context())
	var body struct {
		Participants []string `json:"participants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateConversation(body.Participants); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	known, err := store.GetUsers(body.Participants)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	for _, p := range body.Participants {
		if _, ok := known[p]; !ok {
			http.Error(w, `{"error":"one or more participant ids are invalid"}`, http.StatusBadRequest)
			return
		}
	}
	participants := body.Participants
	if !contains(participants, u.ID) {
		participants = append(participants, u.ID)
	}
	c := models.Conversation{
		ID:           utils.GenID(),
		Participants: participants,
		CreatedTS:    time.Now().UTC().UnixNano(),
	}
	if err := store.SaveConversation(c); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, c)
}

// listConversations handles GET /conversations. Superusers see all,
// everyone else only conversations they participate in.
func listConversations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u, _ := auth.UserFromContext(r.Context())
	var (
		out []models.Conversation
		err error
	)
	if u.Superuser {
		out, err = store.ListConversations()
	} else {
		out, err = store.ListConversationsFor(u.ID)
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: out})
}

// getConversation handles GET /conversations/{id}. Unknown ids return
// 404; known ids without membership return 403 so non-participants
// learn nothing beyond existence.
func getConversation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u, _ := auth.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	c, err := store.GetConversation(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"conversation not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if !auth.CanViewConversation(u, c) {
		http.Error(w, `{"error":"not a participant of this conversation"}`, http.StatusForbidden)
		return
	}
	_ = json.NewEncoder(w).Encode(c)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
