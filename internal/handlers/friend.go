// internal/handlers/friend.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/apperr"
	"github.com/jason-s-yu/cordless/internal/middleware"
)

// SendFriendRequestHandler handles a user sending a friend request by username.
//
// Request payload: { "username": "bob" }
func (s *APIServer) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	me := middleware.UserFrom(r.Context())

	var req struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	fr, err := s.Friends.SendRequest(r.Context(), me, req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "request": fr})
}

// AcceptFriendHandler handles the recipient accepting a pending request.
//
// Request payload: { "requestId": "some-uuid-string" }
//
// The response is {ok:true, accepted:false} when the id is unknown, not
// addressed to the caller, or already accepted.
func (s *APIServer) AcceptFriendHandler(w http.ResponseWriter, r *http.Request) {
	me := middleware.UserFrom(r.Context())

	var req struct {
		RequestID string `json:"requestId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	raw := strings.TrimSpace(req.RequestID)
	if raw == "" {
		s.writeError(w, r, apperr.Invalid("requestId is required"))
		return
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		// a malformed id can match no row
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "accepted": false})
		return
	}

	accepted, err := s.Friends.AcceptRequest(r.Context(), me.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "accepted": accepted})
}

// ListFriendsHandler returns the caller's requests, friends and incoming
// pending requests.
func (s *APIServer) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.Friends.ListView(r.Context(), middleware.UserFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
