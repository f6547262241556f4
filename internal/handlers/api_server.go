// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/cordless/internal/account"
	"github.com/jason-s-yu/cordless/internal/auth"
	"github.com/jason-s-yu/cordless/internal/friends"
	"github.com/jason-s-yu/cordless/internal/middleware"
	"github.com/jason-s-yu/cordless/internal/notify"
	"github.com/jason-s-yu/cordless/internal/session"
	"github.com/sirupsen/logrus"
)

// APIServer holds the services behind the HTTP routes. Everything is built
// once in cmd/server and injected here.
type APIServer struct {
	Accounts *account.Service
	Sessions *session.Manager
	Friends  *friends.Engine
	Tickets  *auth.TicketSigner
	Users    UserLookup

	// Source feeds realtime connections; Names resolves sender usernames
	// for their notifications.
	Source notify.Source
	Names  notify.UsernameResolver

	SecureCookies  bool
	// OriginPatterns widens the websocket origin check; nil allows only
	// same-origin browsers.
	OriginPatterns []string
	Logger         *logrus.Logger
}

// Routes returns the full handler tree wrapped in request logging.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()
	authed := middleware.RequireUser(s.Sessions)

	mux.HandleFunc("GET /health", s.HealthHandler)

	mux.HandleFunc("POST /api/auth/signup", s.SignupHandler)
	mux.HandleFunc("POST /api/auth/login", s.LoginHandler)
	mux.HandleFunc("POST /api/auth/logout", s.LogoutHandler)
	mux.HandleFunc("GET /api/auth/me", s.MeHandler)

	mux.Handle("POST /api/friends/request", authed(http.HandlerFunc(s.SendFriendRequestHandler)))
	mux.Handle("POST /api/friends/accept", authed(http.HandlerFunc(s.AcceptFriendHandler)))
	mux.Handle("GET /api/friends/list", authed(http.HandlerFunc(s.ListFriendsHandler)))

	mux.Handle("GET /realtime/ticket", authed(http.HandlerFunc(s.TicketHandler)))
	mux.HandleFunc("GET /realtime/ws", s.RealtimeWSHandler)

	return middleware.LogMiddleware(s.Logger)(mux)
}

func (s *APIServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
