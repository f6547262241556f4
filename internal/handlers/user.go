package handlers

import (
	"net/http"

	"github.com/jason-s-yu/cordless/internal/apperr"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/jason-s-yu/cordless/internal/session"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	User *models.User `json:"user"`
}

// SignupHandler creates an account and signs it in.
//
// Request payload:
//
//	{ "username": "alice", "password": "password123" }
//
// Response payload:
//
//	{ "user": { "id": "...", "username": "alice" } }
//
// The session token travels only in the cordless_session cookie.
func (s *APIServer) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.Accounts.Signup(r.Context(), req.Username, req.Password)
	if apperr.Is(err, apperr.KindPartialSignup) {
		s.Logger.WithError(err).WithField("user_id", res.User.ID).Error("signup finished without a session")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": apperr.Public(err),
			"user":  res.User,
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, session.NewCookie(res.Token, s.Sessions.MaxAge(), s.SecureCookies))
	writeJSON(w, http.StatusOK, userResponse{User: res.User})
}

// LoginHandler verifies credentials and sets the session cookie. Unknown
// usernames and wrong passwords get the same 401.
func (s *APIServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.Accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, session.NewCookie(res.Token, s.Sessions.MaxAge(), s.SecureCookies))
	writeJSON(w, http.StatusOK, userResponse{User: res.User})
}

// LogoutHandler always succeeds and always clears the cookie.
func (s *APIServer) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	s.Accounts.Logout(r.Context(), session.TokenFromRequest(r))
	http.SetCookie(w, session.ClearCookie(s.SecureCookies))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MeHandler answers {user} or 401 {user:null}.
func (s *APIServer) MeHandler(w http.ResponseWriter, r *http.Request) {
	u, err := s.Accounts.WhoAmI(r.Context(), session.TokenFromRequest(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, userResponse{})
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: u})
}
