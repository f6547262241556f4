package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/cordless/internal/account"
	"github.com/jason-s-yu/cordless/internal/auth"
	"github.com/jason-s-yu/cordless/internal/database"
	"github.com/jason-s-yu/cordless/internal/feed"
	"github.com/jason-s-yu/cordless/internal/friends"
	"github.com/jason-s-yu/cordless/internal/notify"
	"github.com/jason-s-yu/cordless/internal/session"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv *httptest.Server
	mem *database.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	mem := database.NewMemory()
	changes := feed.NewMemory()

	sessions := session.NewManager(session.Config{}, mem, logger)
	hasher := auth.NewHasher(&auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	engine := friends.NewEngine(mem, database.NewPublishingFriends(mem, changes, logger), logger)
	tickets, err := auth.NewTicketSigner(time.Minute)
	require.NoError(t, err)

	api := &APIServer{
		Accounts: account.NewService(mem, sessions, hasher, logger),
		Sessions: sessions,
		Friends:  engine,
		Tickets:  tickets,
		Users:    mem,
		Source:   notify.NewPushSource(changes, engine, logger),
		Names:    mem,
		Logger:   logger,
	}
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, mem: mem}
}

// client is one browser with its own cookie jar.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *testEnv) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: e.srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func creds(username, password string) map[string]string {
	return map[string]string{"username": username, "password": password}
}

func TestAliceAndBob(t *testing.T) {
	env := newTestEnv(t)
	alice, bob, other := env.client(t), env.client(t), env.client(t)

	code, body := alice.do("POST", "/api/auth/signup", creds("alice", "password123"))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])

	code, body = other.do("POST", "/api/auth/signup", creds("alice", "other1234"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Username already exists.", body["error"])

	code, _ = alice.do("POST", "/api/auth/login", creds("alice", "password123"))
	assert.Equal(t, http.StatusOK, code)

	code, body = other.do("POST", "/api/auth/login", creds("alice", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid username or password.", body["error"])

	code, body = alice.do("POST", "/api/friends/request", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "That username does not exist.", body["error"])

	code, _ = bob.do("POST", "/api/auth/signup", creds("bob", "password123"))
	require.Equal(t, http.StatusOK, code)

	code, body = alice.do("POST", "/api/friends/request", map[string]string{"username": "bob"})
	require.Equal(t, http.StatusOK, code, body)
	request := body["request"].(map[string]any)
	assert.Equal(t, "pending", request["status"])
	requestID := request["id"].(string)

	code, body = bob.do("POST", "/api/friends/request", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Request/friendship already exists.", body["error"])

	code, body = alice.do("POST", "/api/friends/accept", map[string]string{"requestId": requestID})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["accepted"], "the sender cannot accept")

	code, body = bob.do("POST", "/api/friends/accept", map[string]string{"requestId": requestID})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["accepted"])

	code, body = alice.do("GET", "/api/friends/list", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"bob"}, body["friends"])

	code, body = bob.do("GET", "/api/friends/list", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"alice"}, body["friends"])
	assert.Equal(t, []any{}, body["incomingPending"])
}

func TestLogoutKillsSession(t *testing.T) {
	env := newTestEnv(t)
	alice := env.client(t)

	code, _ := alice.do("POST", "/api/auth/signup", creds("alice", "password123"))
	require.Equal(t, http.StatusOK, code)

	code, body := alice.do("GET", "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])

	code, body = alice.do("POST", "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Empty(t, env.mem.SessionHashes())

	code, body = alice.do("GET", "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, body, "user")
	assert.Nil(t, body["user"])

	code, _ = alice.do("POST", "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestSignupCookie(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Post(env.srv.URL+"/api/auth/signup", "application/json",
		strings.NewReader(`{"username":"alice","password":"password123"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var c *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == session.CookieName {
			c = ck
		}
	}
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.False(t, c.Secure)
	assert.Equal(t, []string{auth.HashToken(c.Value)}, env.mem.SessionHashes())
}

func TestPartialSignupReportsUser(t *testing.T) {
	env := newTestEnv(t)
	env.mem.Faults.CreateSession = errors.New("relation app_sessions does not exist")

	code, body := env.client(t).do("POST", "/api/auth/signup", creds("alice", "password123"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Account created, but signing in failed. Please log in.", body["error"])
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t)
	alice := env.client(t)

	resp, err := http.Post(env.srv.URL+"/api/auth/login", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	code, _ := alice.do("POST", "/api/friends/request", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = alice.do("POST", "/api/auth/signup", creds("alice", "password123"))
	require.Equal(t, http.StatusOK, code)

	code, body := alice.do("POST", "/api/friends/accept", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "requestId is required", body["error"])

	code, body = alice.do("POST", "/api/friends/accept", map[string]string{"requestId": "not-a-uuid"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["accepted"])

	code, body = alice.do("POST", "/api/friends/request", map[string]string{"username": "Alice"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "You cannot add yourself.", body["error"])

	code, body = env.client(t).do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRealtimeNotifiesRecipient(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.client(t), env.client(t)
	for c, name := range map[*client]string{alice: "alice", bob: "bob"} {
		code, _ := c.do("POST", "/api/auth/signup", creds(name, "password123"))
		require.Equal(t, http.StatusOK, code)
	}

	code, body := bob.do("GET", "/realtime/ticket", nil)
	require.Equal(t, http.StatusOK, code)
	ticket := body["ticket"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/realtime/ws?ticket=" + ticket
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{Subprotocols: []string{"friends"}})
	require.NoError(t, err)
	defer conn.CloseNow()

	var note notify.Notification
	require.NoError(t, wsjson.Read(ctx, conn, &note))
	require.Equal(t, notify.KindSnapshot, note.Kind)

	code, _ = alice.do("POST", "/api/friends/request", map[string]string{"username": "bob"})
	require.Equal(t, http.StatusOK, code)

	for {
		require.NoError(t, wsjson.Read(ctx, conn, &note))
		if note.Kind == notify.KindRequestReceived {
			break
		}
	}
	assert.Equal(t, "alice sent you a friend request.", note.Message)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestRealtimeRejectsBadTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/realtime/ws?ticket=garbage"
	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{Subprotocols: []string{"friends"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
