// Package friends is the relationship state machine: send a request,
// accept it, and compute a user's view of both.
package friends

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/account"
	"github.com/jason-s-yu/cordless/internal/apperr"
	"github.com/jason-s-yu/cordless/internal/database"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	msgUsernameRequired = "Username is required."
	msgSelfRequest      = "You cannot add yourself."
	msgUnknownUser      = "That username does not exist."
	msgAlreadyExists    = "Request/friendship already exists."
	msgAcceptFailed     = "Could not accept request."
	msgSendFailed       = "Could not send request."
	msgListFailed       = "Could not load friends."
)

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// IncomingRequest is a pending request addressed to the viewer.
type IncomingRequest struct {
	models.FriendRequest
	FromUsername string `json:"from_username"`
}

// View is everything a client renders for its friends screen.
type View struct {
	Me              *models.User           `json:"me"`
	Requests        []models.FriendRequest `json:"requests"`
	Friends         []string               `json:"friends"`
	IncomingPending []IncomingRequest      `json:"incomingPending"`
	UsernamesByID   map[string]string      `json:"usernamesById"`
}

type Engine struct {
	users   UserStore
	friends database.FriendStore
	logger  *logrus.Logger
	now     func() time.Time
}

func NewEngine(users UserStore, friends database.FriendStore, logger *logrus.Logger) *Engine {
	return &Engine{users: users, friends: friends, logger: logger, now: time.Now}
}

// SendRequest creates a pending request from requester to targetUsername.
// Any existing row between the two, in either direction and any status, is
// a conflict.
func (e *Engine) SendRequest(ctx context.Context, requester *models.User, targetUsername string) (*models.FriendRequest, error) {
	targetUsername = account.Normalize(targetUsername)
	if targetUsername == "" {
		return nil, apperr.Invalid(msgUsernameRequired)
	}
	if targetUsername == requester.Username {
		return nil, apperr.Invalid(msgSelfRequest)
	}

	target, err := e.users.GetUserByUsername(ctx, targetUsername)
	if err != nil {
		return nil, apperr.Config(msgSendFailed, err)
	}
	if target == nil {
		return nil, apperr.NotFound(msgUnknownUser)
	}

	existing, err := e.friends.FindBetween(ctx, requester.ID, target.ID)
	if err != nil {
		return nil, apperr.Config(msgSendFailed, err)
	}
	if existing != nil {
		return nil, apperr.Conflict(msgAlreadyExists)
	}

	fr := &models.FriendRequest{
		ID:         uuid.New(),
		FromUserID: requester.ID,
		ToUserID:   target.ID,
		Status:     models.FriendPending,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.friends.InsertFriendRequest(ctx, fr); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperr.Conflict(msgAlreadyExists)
		}
		return nil, apperr.Config(msgSendFailed, err)
	}

	e.logger.WithFields(logrus.Fields{
		"request_id": fr.ID,
		"from":       fr.FromUserID,
		"to":         fr.ToUserID,
	}).Info("friend request sent")
	return fr, nil
}

// AcceptRequest moves a pending request addressed to accepterID to
// accepted. It reports false, without saying why, when nothing matched.
func (e *Engine) AcceptRequest(ctx context.Context, accepterID, requestID uuid.UUID) (bool, error) {
	n, err := e.friends.AcceptFriendRequest(ctx, requestID, accepterID)
	if err != nil {
		return false, apperr.Config(msgAcceptFailed, err)
	}
	if n > 0 {
		e.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    accepterID,
		}).Info("friend request accepted")
	}
	return n > 0, nil
}

// ListView recomputes user's view from the store. Names that cannot be
// resolved fall back to the raw id.
func (e *Engine) ListView(ctx context.Context, user *models.User) (*View, error) {
	requests, err := e.friends.ListFriendRequests(ctx, user.ID)
	if err != nil {
		return nil, apperr.Config(msgListFailed, err)
	}

	names := e.resolveNames(ctx, user, requests)
	nameOf := func(id uuid.UUID) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id.String()
	}

	view := &View{
		Me:              user,
		Requests:        make([]models.FriendRequest, 0, len(requests)),
		Friends:         []string{},
		IncomingPending: []IncomingRequest{},
		UsernamesByID:   make(map[string]string, len(names)),
	}
	seen := make(map[uuid.UUID]bool)
	for _, fr := range requests {
		view.Requests = append(view.Requests, fr)
		switch {
		case fr.Status == models.FriendAccepted:
			other := fr.Other(user.ID)
			if !seen[other] {
				seen[other] = true
				view.Friends = append(view.Friends, nameOf(other))
			}
		case fr.Status == models.FriendPending && fr.ToUserID == user.ID:
			view.IncomingPending = append(view.IncomingPending, IncomingRequest{
				FriendRequest: fr,
				FromUsername:  nameOf(fr.FromUserID),
			})
		}
	}
	for id, n := range names {
		view.UsernamesByID[id.String()] = n
	}
	return view, nil
}

func (e *Engine) resolveNames(ctx context.Context, user *models.User, requests []models.FriendRequest) map[uuid.UUID]string {
	ids := []uuid.UUID{user.ID}
	seen := map[uuid.UUID]bool{user.ID: true}
	for _, fr := range requests {
		for _, id := range []uuid.UUID{fr.FromUserID, fr.ToUserID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	names, err := e.users.GetUsernames(ctx, ids)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", user.ID).Warn("username lookup failed, falling back to ids")
		return map[uuid.UUID]string{user.ID: user.Username}
	}
	return names
}
