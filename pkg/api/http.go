package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"parley/pkg/api/handlers"
	"parley/pkg/auth"
	"parley/pkg/security"
	"parley/pkg/store"
)

// NewRouter builds the HTTP surface: a public health endpoint, token
// and registration routes, and the authenticated /v1 API, all wrapped
// by the request gate.
func NewRouter(gate *security.Gate, logins *auth.LoginLimiter) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !store.Ready() {
			http.Error(w, `{"error":"store not ready"}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterTokens(v1, logins)

	authed := v1.NewRoute().Subrouter()
	authed.Use(auth.RequireUser)

	handlers.RegisterAccounts(v1, authed)
	handlers.RegisterConversations(authed)
	handlers.RegisterMessages(authed)
	handlers.RegisterThreads(authed)
	handlers.RegisterNotifications(authed)

	return gate.Middleware(r)
}
