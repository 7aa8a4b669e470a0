package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gorilla/mux"

	"parley/pkg/auth"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

// RegisterAccounts registers account endpoints: public registration and
// authenticated self-deletion.
func RegisterAccounts(public, authed *mux.Router) {
	public.HandleFunc("/users", registerUser).Methods(http.MethodPost)
	authed.HandleFunc("/users/me", deleteAccount).Methods(http.MethodDelete)
}

// registerUser handles POST /users to create an account. The superuser
// flag can never be set through this path.
func registerUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateCredentials(body.Username, body.Password); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, `{"error":"hashing failed"}`, http.StatusInternalServerError)
		return
	}
	u := models.User{
		ID:           utils.GenID(),
		Username:     body.Username,
		PasswordHash: string(hash),
		CreatedTS:    time.Now().UTC().UnixNano(),
	}
	if err := store.CreateUser(u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, `{"error":"username already taken"}`, http.StatusConflict)
			return
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, u.Public())
}

// deleteAccount handles DELETE /users/me. The cascade removes the
// user's messages (with history), notifications and indexes before the
// account itself; any failure rolls the whole batch back.
func deleteAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}
	if err := store.DeleteUser(u.ID); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	logger.Info("account_deleted", "user", u.ID)
	w.WriteHeader(http.StatusNoContent)
}
