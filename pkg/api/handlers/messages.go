package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"parley/pkg/auth"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

// RegisterMessages registers conversation-scoped message routes and the
// message history endpoint on an authenticated router.
func RegisterMessages(r *mux.Router) {
	r.HandleFunc("/conversations/{id}/messages", createMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", listMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages/{mid}", getMessage).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages/{mid}", updateMessage).Methods(http.MethodPatch)
	r.HandleFunc("/conversations/{id}/messages/{mid}", deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{mid}/history", listMessageHistory).Methods(http.MethodGet)
}

// conversationForRequest loads the conversation and enforces the
// participant check, writing the error response itself on failure.
func conversationForRequest(w http.ResponseWriter, r *http.Request) (models.Conversation, models.User, bool) {
	u, _ := auth.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	c, err := store.GetConversation(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"conversation not found"}`, http.StatusNotFound)
		} else {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		}
		return c, u, false
	}
	if !auth.CanViewConversation(u, c) {
		http.Error(w, `{"error":"not a participant of this conversation"}`, http.StatusForbidden)
		return c, u, false
	}
	return c, u, true
}

// createMessage handles POST /conversations/{id}/messages. The receiver
// defaults to the other participant of a two-party conversation and
// must always be a participant; an optional parent must name an
// existing message of the same conversation.
func createMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	c, u, ok := conversationForRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Body     string `json:"body"`
		Receiver string `json:"receiver"`
		Parent   string `json:"parent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	receiver := body.Receiver
	if receiver == "" && len(c.Participants) == 2 {
		for _, p := range c.Participants {
			if p != u.ID {
				receiver = p
			}
		}
	}
	m := models.Message{
		Conversation: c.ID,
		Sender:       u.ID,
		Receiver:     receiver,
		Body:         body.Body,
		Parent:       body.Parent,
		TS:           time.Now().UTC().UnixNano(),
	}
	if err := validation.ValidateMessage(m); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	if !c.HasParticipant(receiver) {
		http.Error(w, `{"error":"receiver is not a participant of this conversation"}`, http.StatusBadRequest)
		return
	}
	m, err := store.CreateMessage(m)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

// listMessages handles GET /conversations/{id}/messages. Optional query
// parameter "limit" restricts the number of messages returned.
func listMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	c, _, ok := conversationForRequest(w, r)
	if !ok {
		return
	}
	var msgs []models.Message
	var err error
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		if lim, perr := strconv.Atoi(limStr); perr == nil && lim > 0 {
			msgs, err = store.ListConversationMessages(c.ID, lim)
		} else {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
	} else {
		msgs, err = store.ListConversationMessages(c.ID)
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Conversation string           `json:"conversation"`
		Messages     []models.Message `json:"messages"`
	}{Conversation: c.ID, Messages: msgs})
}

// messageForRequest loads the message and checks it belongs to the
// request's conversation.
func messageForRequest(w http.ResponseWriter, r *http.Request, c models.Conversation) (models.Message, bool) {
	mid := mux.Vars(r)["mid"]
	m, err := store.GetMessage(mid)
	if err != nil || m.Conversation != c.ID {
		http.Error(w, `{"error":"message not found"}`, http.StatusNotFound)
		return m, false
	}
	return m, true
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	c, _, ok := conversationForRequest(w, r)
	if !ok {
		return
	}
	m, ok := messageForRequest(w, r, c)
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(m)
}

// updateMessage handles PATCH .../messages/{mid}. Only the original
// sender (or a superuser) may edit; a changed body lands in the edit
// history atomically with the content write.
func updateMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	c, u, ok := conversationForRequest(w, r)
	if !ok {
		return
	}
	m, ok := messageForRequest(w, r, c)
	if !ok {
		return
	}
	if !auth.CanMutateMessage(u, m) {
		http.Error(w, `{"error":"only the sender may modify this message"}`, http.StatusForbidden)
		return
	}
	var body struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	candidate := m
	candidate.Body = body.Body
	if err := validation.ValidateMessage(candidate); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	updated, err := store.UpdateMessage(m.ID, body.Body, u.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between read and write; the edit has nothing to apply to.
			http.Error(w, `{"error":"message not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	logger.Info("message_edited", "message", m.ID, "editor", u.ID)
	_ = json.NewEncoder(w).Encode(updated)
}

// deleteMessage handles DELETE .../messages/{mid}. Sender-only, like
// updates; replies cascade with their parent.
func deleteMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	c, u, ok := conversationForRequest(w, r)
	if !ok {
		return
	}
	m, ok := messageForRequest(w, r, c)
	if !ok {
		return
	}
	if !auth.CanMutateMessage(u, m) {
		http.Error(w, `{"error":"only the sender may modify this message"}`, http.StatusForbidden)
		return
	}
	if err := store.DeleteMessage(m.ID); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listMessageHistory handles GET /messages/{mid}/history for
// conversation participants.
func listMessageHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u, _ := auth.UserFromContext(r.Context())
	mid := mux.Vars(r)["mid"]
	m, err := store.GetMessage(mid)
	if err != nil {
		http.Error(w, `{"error":"message not found"}`, http.StatusNotFound)
		return
	}
	c, err := store.GetConversation(m.Conversation)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if !auth.CanViewConversation(u, c) {
		http.Error(w, `{"error":"not a participant of this conversation"}`, http.StatusForbidden)
		return
	}
	hist, err := store.ListHistory(mid)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Message string                  `json:"message"`
		History []models.MessageHistory `json:"history"`
	}{Message: mid, History: hist})
}
