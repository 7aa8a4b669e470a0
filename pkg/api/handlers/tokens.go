package handlers

import (
	"encoding/json"
	"net"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/gorilla/mux"

	"parley/pkg/auth"
	"parley/pkg/logger"
	"parley/pkg/store"
)

// RegisterTokens registers the JWT obtain/refresh endpoints.
func RegisterTokens(r *mux.Router, logins *auth.LoginLimiter) {
	r.HandleFunc("/token", func(w http.ResponseWriter, req *http.Request) {
		obtainToken(w, req, logins)
	}).Methods(http.MethodPost)
	r.HandleFunc("/token/refresh", refreshToken).Methods(http.MethodPost)
}

// obtainToken handles POST /token: verifies credentials and returns an
// access+refresh pair. Attempts are throttled per client IP.
func obtainToken(w http.ResponseWriter, r *http.Request, logins *auth.LoginLimiter) {
	w.Header().Set("Content-Type", "application/json")
	if !logins.Allow(clientIP(r)) {
		logger.Warn("login_rate_limited", "remote", r.RemoteAddr)
		http.Error(w, `{"error":"too many attempts"}`, http.StatusTooManyRequests)
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	u, err := store.GetUserByUsername(body.Username)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(body.Password)) != nil {
		logger.Warn("login_failed", "username", body.Username)
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	pair, err := auth.IssuePair(u)
	if err != nil {
		http.Error(w, `{"error":"token issuance failed"}`, http.StatusInternalServerError)
		return
	}
	logger.Info("token_issued", "user", u.ID)
	_ = json.NewEncoder(w).Encode(pair)
}

// refreshToken handles POST /token/refresh: exchanges a valid refresh
// token for a fresh access token.
func refreshToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	claims, err := auth.Verify(body.Refresh, auth.TokenRefresh)
	if err != nil {
		http.Error(w, `{"error":"invalid refresh token"}`, http.StatusUnauthorized)
		return
	}
	u, err := store.GetUser(claims.Subject)
	if err != nil {
		http.Error(w, `{"error":"invalid token or user"}`, http.StatusUnauthorized)
		return
	}
	pair, err := auth.IssuePair(u)
	if err != nil {
		http.Error(w, `{"error":"token issuance failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Access string `json:"access"`
	}{Access: pair.Access})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
