package store

import (
	"context"
	"errors"
	"testing"

	"fitrank/backend/internal/database/dbtest"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestFindUser(t *testing.T) {
	db := dbtest.New(t)
	users := dbtest.CreateUsers(t, db, "alice")
	r := New()

	u, err := r.FindUser(db, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	u, err = r.FindUserByUsername(db, "alice")
	require.NoError(t, err)
	assert.Equal(t, users[0].ID, u.ID)

	_, err = r.FindUser(db, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = r.FindUserByUsername(db, "nobody")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLockUsersOrdersAndDedupes(t *testing.T) {
	db := dbtest.New(t)
	users := dbtest.CreateUsers(t, db, "a", "b", "c")
	r := New()

	locked, err := r.LockUsers(db, users[2].ID, users[0].ID, users[2].ID)
	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.Equal(t, users[0].ID, locked[0].ID)
	assert.Equal(t, users[2].ID, locked[1].ID)

	_, err = r.LockUsers(db, users[0].ID, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRequestPair(t *testing.T) {
	db := dbtest.New(t)
	users := dbtest.CreateUsers(t, db, "alice", "bob")
	a, b := users[0].ID, users[1].ID
	r := New()

	out, in, err := r.CreateRequestPair(db, a, b)
	require.NoError(t, err)
	assert.Equal(t, b, out.OutgoingID)
	assert.Equal(t, b, in.UserID)
	assert.Equal(t, a, in.IncomingID)

	got, err := r.IncomingRequest(db, b, a)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in.ID, got.ID)

	none, err := r.IncomingRequest(db, a, b)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, _, err = r.CreateRequestPair(db, a, b)
	assert.Error(t, err, "unique index rejects a second request")

	delOut, delIn, err := r.DeleteRequestPair(db, a, b)
	require.NoError(t, err)
	assert.Equal(t, out.ID, delOut.ID)
	assert.Equal(t, in.ID, delIn.ID)
	assert.Zero(t, dbtest.Count(t, db, &models.OutgoingRequest{}))
	assert.Zero(t, dbtest.Count(t, db, &models.IncomingRequest{}))

	_, _, err = r.DeleteRequestPair(db, a, b)
	assert.ErrorIs(t, err, ErrRowMissing)
}

func TestDeleteRequestPairHalfMissing(t *testing.T) {
	db := dbtest.New(t)
	users := dbtest.CreateUsers(t, db, "alice", "bob")
	a, b := users[0].ID, users[1].ID
	r := New()

	require.NoError(t, db.Create(&models.OutgoingRequest{UserID: a, OutgoingID: b}).Error)
	_, _, err := r.DeleteRequestPair(db, a, b)
	assert.True(t, errors.Is(err, ErrRowMissing))
	assert.Equal(t, int64(1), dbtest.Count(t, db, &models.OutgoingRequest{}), "nothing deleted")
}

func TestFriendshipPairCounters(t *testing.T) {
	db := dbtest.New(t)
	users := dbtest.CreateUsers(t, db, "alice", "bob")
	a, b := users[0].ID, users[1].ID
	r := New()

	ab, ba, err := r.CreateFriendshipPair(db, a, b)
	require.NoError(t, err)
	assert.Equal(t, a, ab.UserID)
	assert.Equal(t, a, ba.FriendID)

	for _, id := range []uint{a, b} {
		u, err := r.FindUser(db, id)
		require.NoError(t, err)
		assert.Equal(t, 1, u.TotalFriends)
	}

	_, _, err = r.DeleteFriendshipPair(db, b, a)
	require.NoError(t, err)
	for _, id := range []uint{a, b} {
		u, err := r.FindUser(db, id)
		require.NoError(t, err)
		assert.Equal(t, 0, u.TotalFriends)
	}
	assert.Zero(t, dbtest.Count(t, db, &models.Friendship{}))

	_, _, err = r.DeleteFriendshipPair(db, a, b)
	assert.ErrorIs(t, err, ErrRowMissing)
}

func TestBlocks(t *testing.T) {
	db := dbtest.New(t)
	users := dbtest.CreateUsers(t, db, "alice", "bob", "carol")
	a, b, c := users[0].ID, users[1].ID, users[2].ID
	r := New()

	_, err := r.CreateBlock(db, a, b)
	require.NoError(t, err)

	for _, tc := range []struct {
		x, y uint
		want bool
	}{{a, b, true}, {b, a, true}, {a, c, false}} {
		got, err := r.BlockedEitherWay(db, tc.x, tc.y)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err = r.DeleteBlock(db, b, a)
	assert.ErrorIs(t, err, ErrRowMissing)
	_, err = r.DeleteBlock(db, a, b)
	require.NoError(t, err)
	blocked, err := r.BlockedEitherWay(db, a, b)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestSnapshotAndKnownProfiles(t *testing.T) {
	db := dbtest.New(t)
	users := dbtest.CreateUsers(t, db, "me", "friend", "asker", "asked", "blocked", "stranger")
	me := users[0].ID
	r := New()

	_, _, err := r.CreateFriendshipPair(db, me, users[1].ID)
	require.NoError(t, err)
	_, _, err = r.CreateRequestPair(db, users[2].ID, me)
	require.NoError(t, err)
	_, _, err = r.CreateRequestPair(db, me, users[3].ID)
	require.NoError(t, err)
	_, err = r.CreateBlock(db, me, users[4].ID)
	require.NoError(t, err)

	snap, err := r.Snapshot(context.Background(), db, me)
	require.NoError(t, err)
	assert.Equal(t, hub.Snapshot{
		Friends:  []uint{users[1].ID},
		Incoming: []uint{users[2].ID},
		Outgoing: []uint{users[3].ID},
		Blocked:  []uint{users[4].ID},
	}, snap)

	via := Hydrator{DB: db, Relations: r}
	hydrated, err := via.Hydrate(context.Background(), me)
	require.NoError(t, err)
	assert.Equal(t, snap, hydrated)

	profiles, err := r.KnownProfiles(db, me)
	require.NoError(t, err)
	var names []string
	for _, p := range profiles {
		names = append(names, p.Username)
	}
	assert.Equal(t, []string{"friend", "asker", "asked", "blocked"}, names)

	empty, err := r.Snapshot(context.Background(), db, users[5].ID)
	require.NoError(t, err)
	assert.Empty(t, empty.Friends)
}
