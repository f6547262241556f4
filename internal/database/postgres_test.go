package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestUsersCreate(t *testing.T) {
	mock := newMock(t)
	users := NewUsers(mock)

	mock.ExpectExec(`INSERT INTO app_users \(id, username, password_hash\)`).
		WithArgs(pgxmock.AnyArg(), "alice", "hash").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	u := &models.User{Username: "alice", PasswordHash: "hash"}
	require.NoError(t, users.CreateUser(context.Background(), u))
	assert.NotEqual(t, uuid.Nil, u.ID)
}

func TestUsersCreateDuplicate(t *testing.T) {
	mock := newMock(t)
	users := NewUsers(mock)

	mock.ExpectExec(`INSERT INTO app_users`).
		WithArgs(pgxmock.AnyArg(), "alice", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "app_users_username_key"})

	err := users.CreateUser(context.Background(), &models.User{Username: "alice", PasswordHash: "hash"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "app_users_username_key")
}

func TestUsersCreateOtherError(t *testing.T) {
	mock := newMock(t)
	users := NewUsers(mock)

	mock.ExpectExec(`INSERT INTO app_users`).
		WithArgs(pgxmock.AnyArg(), "alice", "hash").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "app_users" does not exist`})

	err := users.CreateUser(context.Background(), &models.User{Username: "alice", PasswordHash: "hash"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicate))
}

func TestUsersGetByUsername(t *testing.T) {
	mock := newMock(t)
	users := NewUsers(mock)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, username, password_hash FROM app_users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash"}).
			AddRow(id.String(), "alice", "hash"))
	mock.ExpectQuery(`FROM app_users WHERE username = \$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash"}))

	u, err := users.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "hash", u.PasswordHash)

	u, err = users.GetUserByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUsersGetUsernamesBatches(t *testing.T) {
	mock := newMock(t)
	users := NewUsers(mock)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id, username FROM app_users WHERE id = ANY\(\$1\)`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}).
			AddRow(a.String(), "alice").
			AddRow(b.String(), "bob"))

	names, err := users.GetUsernames(context.Background(), []uuid.UUID{a, b, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{a: "alice", b: "bob"}, names)
}

func TestUsersGetUsernamesEmpty(t *testing.T) {
	mock := newMock(t)
	names, err := NewUsers(mock).GetUsernames(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSessionsLifecycle(t *testing.T) {
	mock := newMock(t)
	sessions := NewSessions(mock)
	now := time.Now()
	userID := uuid.New()

	mock.ExpectExec(`INSERT INTO app_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "digest", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`JOIN app_users u ON u.id = s.user_id\s+WHERE s.token_hash = \$1 AND s.expires_at > \$2`).
		WithArgs("digest", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash"}).
			AddRow(userID.String(), "alice", "hash"))
	mock.ExpectExec(`DELETE FROM app_sessions WHERE token_hash = \$1`).
		WithArgs("digest").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM app_sessions WHERE token_hash = \$1`).
		WithArgs("digest").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ctx := context.Background()
	require.NoError(t, sessions.CreateSession(ctx, &models.Session{
		ID: uuid.New(), UserID: userID, TokenHash: "digest", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))

	u, err := sessions.GetSessionUser(ctx, "digest", now)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, userID, u.ID)

	n, err := sessions.DeleteSessionByHash(ctx, "digest")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = sessions.DeleteSessionByHash(ctx, "digest")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestSessionsMissing(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM app_sessions s`).
		WithArgs("nope", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash"}))

	u, err := NewSessions(mock).GetSessionUser(context.Background(), "nope", time.Now())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSessionsLookupError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM app_sessions s`).
		WithArgs("digest", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	u, err := NewSessions(mock).GetSessionUser(context.Background(), "digest", time.Now())
	assert.Error(t, err)
	assert.Nil(t, u)
}

func TestFriendsFindBetweenChecksBothDirections(t *testing.T) {
	mock := newMock(t)
	friends := NewFriends(mock)
	a, b := uuid.New(), uuid.New()
	id := uuid.New()
	created := time.Now()

	mock.ExpectQuery(`FROM friend_requests WHERE \(\(from_user_id = \$1 AND to_user_id = \$2\) OR \(from_user_id = \$3 AND to_user_id = \$4\)\) LIMIT 1`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_user_id", "to_user_id", "status", "created_at"}).
			AddRow(id.String(), b.String(), a.String(), "accepted", created))

	fr, err := friends.FindBetween(context.Background(), a, b)
	require.NoError(t, err)
	require.NotNil(t, fr)
	assert.Equal(t, id, fr.ID)
	assert.Equal(t, b, fr.FromUserID)
	assert.Equal(t, models.FriendAccepted, fr.Status)
}

func TestFriendsFindBetweenNone(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM friend_requests WHERE`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_user_id", "to_user_id", "status", "created_at"}))

	fr, err := NewFriends(mock).FindBetween(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, fr)
}

func TestFriendsInsertPairViolation(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO friend_requests`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "pending", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "friend_requests_pair_key"})

	err := NewFriends(mock).InsertFriendRequest(context.Background(), &models.FriendRequest{
		FromUserID: uuid.New(), ToUserID: uuid.New(), Status: models.FriendPending, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestFriendsAcceptIsConditional(t *testing.T) {
	mock := newMock(t)
	friends := NewFriends(mock)

	q := `UPDATE friend_requests SET status = \$1 WHERE \(id = \$2 AND to_user_id = \$3 AND status = \$4\)`
	mock.ExpectExec(q).
		WithArgs("accepted", pgxmock.AnyArg(), pgxmock.AnyArg(), "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q).
		WithArgs("accepted", pgxmock.AnyArg(), pgxmock.AnyArg(), "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := friends.AcceptFriendRequest(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = friends.AcceptFriendRequest(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestFriendsList(t *testing.T) {
	mock := newMock(t)
	me, other := uuid.New(), uuid.New()
	newer, older := time.Now(), time.Now().Add(-time.Hour)

	mock.ExpectQuery(`WHERE \(from_user_id = \$1 OR to_user_id = \$2\) ORDER BY created_at DESC`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_user_id", "to_user_id", "status", "created_at"}).
			AddRow(uuid.NewString(), other.String(), me.String(), "pending", newer).
			AddRow(uuid.NewString(), me.String(), other.String(), "accepted", older))

	list, err := NewFriends(mock).ListFriendRequests(context.Background(), me)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.FriendPending, list[0].Status)
	assert.Equal(t, models.FriendAccepted, list[1].Status)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
}
