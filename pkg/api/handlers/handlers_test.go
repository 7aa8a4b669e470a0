package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"parley/pkg/api"
	"parley/pkg/auth"
	"parley/pkg/config"
	"parley/pkg/models"
	"parley/pkg/security"
	"parley/pkg/store"
	"parley/pkg/threads"
)

// setupServer boots a live server over a temp store with both request
// gates disabled and a generous login limiter.
func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	config.SetRuntime(&config.RuntimeConfig{JWTSecret: []byte("test-secret")})
	gate := security.NewGate(security.GateConfig{})
	logins := auth.NewLoginLimiter(1000, 1000)
	srv := httptest.NewServer(api.NewRouter(gate, logins))
	t.Cleanup(func() {
		srv.Close()
		config.SetRuntime(nil)
		_ = store.Close()
	})
	return srv
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

type account struct {
	id    string
	token string
}

func register(t *testing.T, base, username string) account {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/v1/users", "", map[string]string{
		"username": username, "password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, resp.StatusCode, body)
	}
	var u models.User
	if err := json.Unmarshal(body, &u); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	resp, body = doJSON(t, http.MethodPost, base+"/v1/token", "", map[string]string{
		"username": username, "password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token %s: status %d body %s", username, resp.StatusCode, body)
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		t.Fatalf("decode token pair: %v", err)
	}
	return account{id: u.ID, token: pair.Access}
}

func startConversation(t *testing.T, base string, creator account, with ...string) models.Conversation {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/v1/conversations", creator.token, map[string][]string{
		"participants": with,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation: status %d body %s", resp.StatusCode, body)
	}
	var c models.Conversation
	if err := json.Unmarshal(body, &c); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	return c
}

func TestRegistration(t *testing.T) {
	srv := setupServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/users", "", map[string]string{
		"username": "alice", "password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201; got %d body %s", resp.StatusCode, body)
	}
	if bytes.Contains(body, []byte("password")) {
		t.Fatalf("response must not leak the password hash: %s", body)
	}

	// Duplicate username.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/users", "", map[string]string{
		"username": "alice", "password": "password123",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username; got %d", resp.StatusCode)
	}

	// Weak password.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/users", "", map[string]string{
		"username": "bob", "password": "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password; got %d", resp.StatusCode)
	}
}

func TestTokenObtainAndRefresh(t *testing.T) {
	srv := setupServer(t)
	register(t, srv.URL, "alice")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/token", "", map[string]string{
		"username": "alice", "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401; got %d body %s", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/token", "", map[string]string{
		"username": "ghost", "password": "password123",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401; got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/token", "", map[string]string{
		"username": "alice", "password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("obtain: expected 200; got %d", resp.StatusCode)
	}
	var pair auth.TokenPair
	_ = json.Unmarshal(body, &pair)
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("expected both tokens; got %s", body)
	}

	// A refresh token does not authenticate API calls.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/conversations", pair.Refresh, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh-as-access: expected 401; got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/token/refresh", "", map[string]string{
		"refresh": pair.Refresh,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200; got %d body %s", resp.StatusCode, body)
	}
	var refreshed struct {
		Access string `json:"access"`
	}
	_ = json.Unmarshal(body, &refreshed)
	if refreshed.Access == "" {
		t.Fatalf("expected fresh access token; got %s", body)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/conversations", refreshed.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refreshed access token rejected: %d", resp.StatusCode)
	}
}

func TestConversationAccessControl(t *testing.T) {
	srv := setupServer(t)
	alice := register(t, srv.URL, "alice")
	bob := register(t, srv.URL, "bob")
	mallory := register(t, srv.URL, "mallory")

	c := startConversation(t, srv.URL, alice, alice.id, bob.id)

	// Unauthenticated requests never pass.
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/conversations/"+c.ID, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token; got %d", resp.StatusCode)
	}

	for _, p := range []account{alice, bob} {
		resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/conversations/"+c.ID, p.token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("participant expected 200; got %d", resp.StatusCode)
		}
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/conversations/"+c.ID, mallory.token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider expected 403; got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/conversations/ghost", alice.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id expected 404; got %d", resp.StatusCode)
	}

	// Listing is scoped to membership.
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/conversations", mallory.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list expected 200; got %d", resp.StatusCode)
	}
	var listed struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	_ = json.Unmarshal(body, &listed)
	if len(listed.Conversations) != 0 {
		t.Fatalf("outsider must see no conversations; got %d", len(listed.Conversations))
	}

	// Unknown participant ids are rejected up front.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/conversations", alice.token, map[string][]string{
		"participants": {alice.id, "ghost"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown participant expected 400; got %d", resp.StatusCode)
	}
}

func TestSuperuserSeesEverything(t *testing.T) {
	srv := setupServer(t)
	alice := register(t, srv.URL, "alice")
	bob := register(t, srv.URL, "bob")
	c := startConversation(t, srv.URL, alice, alice.id, bob.id)

	// Promote an account directly in the store; registration never grants
	// the flag.
	root := register(t, srv.URL, "root")
	u, err := store.GetUser(root.id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Superuser {
		t.Fatalf("registration must not grant superuser")
	}
	if err := store.DeleteUser(root.id); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	u.Superuser = true
	if err := store.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/token", "", map[string]string{
		"username": "root", "password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("root token: %d", resp.StatusCode)
	}
	var pair auth.TokenPair
	_ = json.Unmarshal(body, &pair)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/conversations/"+c.ID, pair.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("superuser expected 200 on foreign conversation; got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/conversations", pair.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("superuser list: %d", resp.StatusCode)
	}
	var listed struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	_ = json.Unmarshal(body, &listed)
	if len(listed.Conversations) != 1 {
		t.Fatalf("superuser must see all conversations; got %d", len(listed.Conversations))
	}
}

func TestMessageLifecycle(t *testing.T) {
	srv := setupServer(t)
	alice := register(t, srv.URL, "alice")
	bob := register(t, srv.URL, "bob")
	mallory := register(t, srv.URL, "mallory")
	c := startConversation(t, srv.URL, alice, alice.id, bob.id)
	msgURL := srv.URL + "/v1/conversations/" + c.ID + "/messages"

	// Receiver defaults to the other participant.
	resp, body := doJSON(t, http.MethodPost, msgURL, alice.token, map[string]string{"body": "hello bob"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send: expected 201; got %d body %s", resp.StatusCode, body)
	}
	var m models.Message
	_ = json.Unmarshal(body, &m)
	if m.Receiver != bob.id || m.Sender != alice.id {
		t.Fatalf("unexpected routing: %+v", m)
	}

	// Empty body rejected.
	resp, _ = doJSON(t, http.MethodPost, msgURL, alice.token, map[string]string{"body": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank body expected 400; got %d", resp.StatusCode)
	}
	// Receiver outside the conversation rejected.
	resp, _ = doJSON(t, http.MethodPost, msgURL, alice.token, map[string]string{
		"body": "psst", "receiver": mallory.id,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("foreign receiver expected 400; got %d", resp.StatusCode)
	}
	// Outsiders cannot post at all.
	resp, _ = doJSON(t, http.MethodPost, msgURL, mallory.token, map[string]string{"body": "hi"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider post expected 403; got %d", resp.StatusCode)
	}
	// Unknown parent rejected.
	resp, _ = doJSON(t, http.MethodPost, msgURL, bob.token, map[string]string{
		"body": "re", "parent": "ghost",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown parent expected 400; got %d", resp.StatusCode)
	}

	// Edit: only the sender.
	resp, _ = doJSON(t, http.MethodPatch, msgURL+"/"+m.ID, bob.token, map[string]string{"body": "hijacked"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-sender edit expected 403; got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodPatch, msgURL+"/"+m.ID, alice.token, map[string]string{"body": "hello bob!"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sender edit expected 200; got %d body %s", resp.StatusCode, body)
	}
	var edited models.Message
	_ = json.Unmarshal(body, &edited)
	if !edited.Edited || edited.Body != "hello bob!" {
		t.Fatalf("expected edited message; got %+v", edited)
	}

	// History visible to participants, hidden from outsiders.
	histURL := srv.URL + "/v1/messages/" + m.ID + "/history"
	resp, body = doJSON(t, http.MethodGet, histURL, bob.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: expected 200; got %d", resp.StatusCode)
	}
	var hist struct {
		History []models.MessageHistory `json:"history"`
	}
	_ = json.Unmarshal(body, &hist)
	if len(hist.History) != 1 || hist.History[0].OldBody != "hello bob" {
		t.Fatalf("unexpected history: %s", body)
	}
	resp, _ = doJSON(t, http.MethodGet, histURL, mallory.token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider history expected 403; got %d", resp.StatusCode)
	}

	// Delete: only the sender.
	resp, _ = doJSON(t, http.MethodDelete, msgURL+"/"+m.ID, bob.token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-sender delete expected 403; got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, msgURL+"/"+m.ID, alice.token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("sender delete expected 204; got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, msgURL+"/"+m.ID, alice.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted message expected 404; got %d", resp.StatusCode)
	}
}

func TestThreadEndpoint(t *testing.T) {
	srv := setupServer(t)
	alice := register(t, srv.URL, "alice")
	bob := register(t, srv.URL, "bob")
	mallory := register(t, srv.URL, "mallory")
	c := startConversation(t, srv.URL, alice, alice.id, bob.id)
	msgURL := srv.URL + "/v1/conversations/" + c.ID + "/messages"

	_, body := doJSON(t, http.MethodPost, msgURL, alice.token, map[string]string{"body": "root"})
	var root models.Message
	_ = json.Unmarshal(body, &root)
	_, body = doJSON(t, http.MethodPost, msgURL, bob.token, map[string]string{"body": "reply", "parent": root.ID})
	var reply models.Message
	_ = json.Unmarshal(body, &reply)
	for i := 0; i < 2; i++ {
		doJSON(t, http.MethodPost, msgURL, alice.token, map[string]string{
			"body": fmt.Sprintf("nested %d", i), "parent": reply.ID,
		})
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/threads/"+root.ID, alice.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("thread: expected 200; got %d body %s", resp.StatusCode, body)
	}
	var node threads.Node
	if err := json.Unmarshal(body, &node); err != nil {
		t.Fatalf("decode thread: %v", err)
	}
	if len(node.Replies) != 1 || len(node.Replies[0].Replies) != 2 {
		t.Fatalf("unexpected thread shape: %s", body)
	}
	if node.Replies[0].SenderUser.Username != "bob" {
		t.Fatalf("reply sender not resolved: %s", body)
	}

	// A reply id is not a thread.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/threads/"+reply.ID, alice.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("reply as thread expected 404; got %d", resp.StatusCode)
	}
	// Membership still applies.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/threads/"+root.ID, mallory.token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider thread expected 403; got %d", resp.StatusCode)
	}
}

func TestNotificationFlow(t *testing.T) {
	srv := setupServer(t)
	alice := register(t, srv.URL, "alice")
	bob := register(t, srv.URL, "bob")
	c := startConversation(t, srv.URL, alice, alice.id, bob.id)
	msgURL := srv.URL + "/v1/conversations/" + c.ID + "/messages"

	doJSON(t, http.MethodPost, msgURL, alice.token, map[string]string{"body": "ping"})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/notifications", bob.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notifications: expected 200; got %d", resp.StatusCode)
	}
	var inbox struct {
		Notifications []models.Notification `json:"notifications"`
	}
	_ = json.Unmarshal(body, &inbox)
	if len(inbox.Notifications) != 1 || inbox.Notifications[0].Read {
		t.Fatalf("expected one unread notification; got %s", body)
	}

	// The sender's inbox stays empty.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/notifications", alice.token, nil)
	_ = json.Unmarshal(body, &inbox)
	if resp.StatusCode != http.StatusOK || len(inbox.Notifications) != 0 {
		t.Fatalf("sender inbox should be empty; got %s", body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/notifications", bob.token, nil)
	_ = json.Unmarshal(body, &inbox)
	nid := inbox.Notifications[0].ID
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/notifications/"+nid+"/read", bob.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark read: expected 200; got %d body %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/notifications?unread=true", bob.token, nil)
	_ = json.Unmarshal(body, &inbox)
	if len(inbox.Notifications) != 0 {
		t.Fatalf("unread filter should be empty after marking; got %s", body)
	}

	// One user cannot touch another's notifications.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/notifications/"+nid+"/read", alice.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign notification expected 404; got %d", resp.StatusCode)
	}
}

func TestAccountDeletion(t *testing.T) {
	srv := setupServer(t)
	alice := register(t, srv.URL, "alice")
	bob := register(t, srv.URL, "bob")
	c := startConversation(t, srv.URL, alice, alice.id, bob.id)
	msgURL := srv.URL + "/v1/conversations/" + c.ID + "/messages"

	_, body := doJSON(t, http.MethodPost, msgURL, bob.token, map[string]string{"body": "soon gone"})
	var m models.Message
	_ = json.Unmarshal(body, &m)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/v1/users/me", bob.token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete account: expected 204; got %d", resp.StatusCode)
	}

	// The token dies with the account.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/conversations", bob.token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deleted account token expected 401; got %d", resp.StatusCode)
	}
	// So do the messages and notifications.
	resp, _ = doJSON(t, http.MethodGet, msgURL+"/"+m.ID, alice.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted user's message expected 404; got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/notifications", alice.token, nil)
	var inbox struct {
		Notifications []models.Notification `json:"notifications"`
	}
	_ = json.Unmarshal(body, &inbox)
	if len(inbox.Notifications) != 0 {
		t.Fatalf("notifications for deleted user's messages must be gone; got %s", body)
	}
}

func TestHealthz(t *testing.T) {
	srv := setupServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200; got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("ok")) {
		t.Fatalf("unexpected healthz body: %s", body)
	}
}
