package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/models"
)

// Faults lets tests make individual Memory operations fail.
type Faults struct {
	CreateUser    error
	GetUser       error
	GetUsernames  error
	CreateSession error
	GetSession    error
	DeleteSession error
	FindBetween   error
	InsertFriend  error
	AcceptFriend  error
	ListFriends   error
}

// Memory implements the user, session and relationship stores in process,
// enforcing the same uniqueness rules as the Postgres schema. Foreign keys
// are not enforced. It backs STORE=memory and the service tests.
type Memory struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]models.User
	byName   map[string]uuid.UUID
	sessions map[string]models.Session
	friends  map[uuid.UUID]models.FriendRequest
	seq      map[uuid.UUID]int
	nextSeq  int

	Faults Faults
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[uuid.UUID]models.User),
		byName:   make(map[string]uuid.UUID),
		sessions: make(map[string]models.Session),
		friends:  make(map[uuid.UUID]models.FriendRequest),
		seq:      make(map[uuid.UUID]int),
	}
}

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Faults.CreateUser != nil {
		return m.Faults.CreateUser
	}
	if _, taken := m.byName[u.Username]; taken {
		return fmt.Errorf("%w (app_users_username_key)", ErrDuplicate)
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.users[u.ID] = *u
	m.byName[u.Username] = u.ID
	return nil
}

func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Faults.GetUser != nil {
		return nil, m.Faults.GetUser
	}
	id, ok := m.byName[username]
	if !ok {
		return nil, nil
	}
	u := m.users[id]
	return &u, nil
}

func (m *Memory) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Faults.GetUser != nil {
		return nil, m.Faults.GetUser
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) GetUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Faults.GetUsernames != nil {
		return nil, m.Faults.GetUsernames
	}
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u.Username
		}
	}
	return out, nil
}

// UserCount is a test helper.
func (m *Memory) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *Memory) CreateSession(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Faults.CreateSession != nil {
		return m.Faults.CreateSession
	}
	if _, dup := m.sessions[s.TokenHash]; dup {
		return fmt.Errorf("%w (app_sessions_token_hash_key)", ErrDuplicate)
	}
	m.sessions[s.TokenHash] = *s
	return nil
}

func (m *Memory) GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Faults.GetSession != nil {
		return nil, m.Faults.GetSession
	}
	s, ok := m.sessions[tokenHash]
	if !ok || s.Expired(now) {
		return nil, nil
	}
	u, ok := m.users[s.UserID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) DeleteSessionByHash(ctx context.Context, tokenHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Faults.DeleteSession != nil {
		return 0, m.Faults.DeleteSession
	}
	if _, ok := m.sessions[tokenHash]; !ok {
		return 0, nil
	}
	delete(m.sessions, tokenHash)
	return 1, nil
}

// SessionHashes is a test helper listing every stored token hash.
func (m *Memory) SessionHashes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for h := range m.sessions {
		out = append(out, h)
	}
	return out
}

func (m *Memory) findBetween(a, b uuid.UUID) *models.FriendRequest {
	for _, fr := range m.friends {
		if (fr.FromUserID == a && fr.ToUserID == b) || (fr.FromUserID == b && fr.ToUserID == a) {
			return &fr
		}
	}
	return nil
}

func (m *Memory) FindBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Faults.FindBetween != nil {
		return nil, m.Faults.FindBetween
	}
	return m.findBetween(a, b), nil
}

func (m *Memory) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fr, ok := m.friends[id]
	if !ok {
		return nil, nil
	}
	return &fr, nil
}

func (m *Memory) InsertFriendRequest(ctx context.Context, fr *models.FriendRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Faults.InsertFriend != nil {
		return m.Faults.InsertFriend
	}
	if m.findBetween(fr.FromUserID, fr.ToUserID) != nil {
		return fmt.Errorf("%w (friend_requests_pair_key)", ErrDuplicate)
	}
	if fr.ID == uuid.Nil {
		fr.ID = uuid.New()
	}
	m.friends[fr.ID] = *fr
	m.seq[fr.ID] = m.nextSeq
	m.nextSeq++
	return nil
}

func (m *Memory) AcceptFriendRequest(ctx context.Context, id, recipient uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Faults.AcceptFriend != nil {
		return 0, m.Faults.AcceptFriend
	}
	fr, ok := m.friends[id]
	if !ok || fr.ToUserID != recipient || fr.Status != models.FriendPending {
		return 0, nil
	}
	fr.Status = models.FriendAccepted
	m.friends[id] = fr
	return 1, nil
}

func (m *Memory) ListFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Faults.ListFriends != nil {
		return nil, m.Faults.ListFriends
	}
	var out []models.FriendRequest
	for _, fr := range m.friends {
		if fr.Touches(userID) {
			out = append(out, fr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.seq[out[i].ID] > m.seq[out[j].ID]
	})
	return out, nil
}
