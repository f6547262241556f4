// internal/handlers/realtime_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/apperr"
	"github.com/jason-s-yu/cordless/internal/middleware"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/jason-s-yu/cordless/internal/notify"
	"github.com/jason-s-yu/cordless/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	realtimeSubprotocol = "friends"
	pingInterval        = 30 * time.Second
	writeTimeout        = 10 * time.Second
)

// UserLookup is implemented by the user stores.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TicketHandler issues a short-lived ticket for /realtime/ws?ticket=...
func (s *APIServer) TicketHandler(w http.ResponseWriter, r *http.Request) {
	me := middleware.UserFrom(r.Context())
	ticket, exp, err := s.Tickets.Issue(me.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket, "expiresAt": exp})
}

// RealtimeWSHandler streams friend notifications over a websocket speaking
// the "friends" subprotocol. The caller authenticates with a ticket query
// parameter or the session cookie.
func (s *APIServer) RealtimeWSHandler(w http.ResponseWriter, r *http.Request) {
	me, err := s.realtimeUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{realtimeSubprotocol},
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.CloseNow()

	if c.Subprotocol() != realtimeSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the friends subprotocol")
		return
	}

	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path, logrus.Fields{"user_id": me.ID})

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx, cancel := context.WithCancel(c.CloseRead(r.Context()))
	defer cancel()
	go keepAlive(ctx, cancel, c)

	n := notify.NewNotifier(me, s.Names, s.Logger)
	err = notify.Run(ctx, s.Source, n, func(note notify.Notification) error {
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		defer wcancel()
		return wsjson.Write(wctx, c, note)
	})

	if errors.Is(err, context.Canceled) {
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, nil)
		c.Close(websocket.StatusNormalClosure, "")
		return
	}
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
	c.Close(FeedUnavailableError, "notification stream ended")
}

// realtimeUser prefers the ticket and falls back to the session cookie.
func (s *APIServer) realtimeUser(r *http.Request) (*models.User, error) {
	unauthorized := apperr.Unauthenticated("Unauthorized")

	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		userID, err := s.Tickets.Verify(ticket)
		if err != nil {
			s.Logger.WithError(err).Debug("rejected realtime ticket")
			return nil, unauthorized
		}
		u, err := s.Users.GetUserByID(r.Context(), userID)
		if err != nil {
			return nil, apperr.Config("Could not open realtime stream.", err)
		}
		if u == nil {
			return nil, unauthorized
		}
		return u, nil
	}

	u := s.Sessions.ResolveOrAnonymous(r.Context(), session.TokenFromRequest(r))
	if u == nil {
		return nil, unauthorized
	}
	return u, nil
}

func keepAlive(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pctx)
			pcancel()
			if err != nil {
				cancel()
				return
			}
		}
	}
}
