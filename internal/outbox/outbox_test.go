package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/database"
	"fitrank/backend/internal/database/dbtest"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/hub/hubtest"
	"fitrank/backend/internal/logging"
	"fitrank/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func emptyHydrator() hub.Hydrator {
	return hub.HydratorFunc(func(context.Context, uint) (hub.Snapshot, error) { return hub.Snapshot{}, nil })
}

func setup(t *testing.T) (*Outbox, *hub.Hub, *gorm.DB, []models.User) {
	t.Helper()
	db := dbtest.New(t)
	users := dbtest.CreateUsers(t, db, "alice", "bob")
	h := hub.New(emptyHydrator(), logging.Discard())
	return New(db, h, logging.Discard()), h, db, users
}

func appendEvent(t *testing.T, o *Outbox, db *gorm.DB, userID, actorID uint, typ models.EventType, payload any) *models.Event {
	t.Helper()
	var ev *models.Event
	err := database.WithTx(context.Background(), db, func(tx *gorm.DB, _ database.AfterCommit) error {
		var err error
		ev, err = o.Append(tx, userID, typ, actorID, 0, payload)
		return err
	})
	require.NoError(t, err)
	return ev
}

func TestMissedEventsReplayInOrder(t *testing.T) {
	o, _, db, users := setup(t)
	bob := users[1]
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 5; i++ {
		ev := appendEvent(t, o, db, bob.ID, users[0].ID, models.EventFriendRequestInitiated, map[string]int{"n": i})
		ids = append(ids, ev.ID)
	}

	unseen, err := o.GetAllUnseenEvents(ctx, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, unseen, 5)
	for i, ev := range unseen {
		assert.Equal(t, ids[i], ev.ID)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(ev.Payload))
	}

	n, err := o.MarkEventsSeen(ctx, bob.ID, ids[2])
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	unseen, err = o.GetAllUnseenEvents(ctx, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, unseen, 2)
	assert.Equal(t, ids[3], unseen[0].ID)

	n, err = o.MarkEventsSeen(ctx, bob.ID, ids[4])
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = o.MarkEventsSeen(ctx, bob.ID, ids[4])
	require.NoError(t, err)
	assert.Zero(t, n, "marking twice is a no-op")

	unseen, err = o.GetAllUnseenEvents(ctx, bob.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, unseen)

	after, err := o.GetEventsAfterRef(ctx, bob.ID, ids[1], 0)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, ids[2], after[0].ID)
	assert.NotNil(t, after[0].SeenAt)
}

func TestFetchIsPerRecipient(t *testing.T) {
	o, _, db, users := setup(t)
	alice, bob := users[0], users[1]

	appendEvent(t, o, db, alice.ID, bob.ID, models.EventFriendRemoved, nil)
	appendEvent(t, o, db, bob.ID, alice.ID, models.EventFriendRemoved, nil)

	n, err := o.MarkEventsSeen(context.Background(), alice.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unseen, err := o.FetchUnseen(context.Background(), bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, unseen, 1)
	assert.Equal(t, alice.ID, unseen[0].ActorID)
	assert.Equal(t, "{}", string(unseen[0].Payload))
}

func TestAppendUnknownRecipient(t *testing.T) {
	o, _, db, _ := setup(t)
	err := database.WithTx(context.Background(), db, func(tx *gorm.DB, _ database.AfterCommit) error {
		_, err := o.Append(tx, 999, models.EventLevelUp, 0, 0, nil)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, dbtest.Count(t, db, &models.Event{}))
}

func TestRolledBackEventIsNeitherStoredNorDelivered(t *testing.T) {
	o, h, db, users := setup(t)
	bob := users[1]
	conn := hubtest.NewConn("bob-1")
	_, _, err := h.Attach(context.Background(), bob.ID, conn)
	require.NoError(t, err)

	boom := errors.New("later write failed")
	err = database.WithTx(context.Background(), db, func(tx *gorm.DB, afterCommit database.AfterCommit) error {
		ev, err := o.Append(tx, bob.ID, models.EventFriendRemoved, users[0].ID, 0, nil)
		if err != nil {
			return err
		}
		afterCommit(func() { o.Deliver(ev) })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, dbtest.Count(t, db, &models.Event{}))
	assert.Empty(t, conn.Messages())
}

func TestCreateEventDeliversToEveryConnection(t *testing.T) {
	o, h, _, users := setup(t)
	bob := users[1]
	first, second := hubtest.NewConn("bob-1"), hubtest.NewConn("bob-2")
	for _, c := range []*hubtest.Conn{first, second} {
		_, _, err := h.Attach(context.Background(), bob.ID, c)
		require.NoError(t, err)
	}

	ev, err := o.CreateEvent(context.Background(), bob.ID, models.EventLevelUp, bob.ID, 0, map[string]int{"level": 2})
	require.NoError(t, err)

	for _, c := range []*hubtest.Conn{first, second} {
		msgs := c.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, string(models.EventLevelUp), msgs[0].Event)
		got, ok := msgs[0].Data.(*models.Event)
		require.True(t, ok)
		assert.Equal(t, ev.ID, got.ID)
	}
}

func TestDeliveryFailureLeavesEventUnseen(t *testing.T) {
	o, h, db, users := setup(t)
	bob := users[1]
	good, bad := hubtest.NewConn("a"), hubtest.NewConn("b")
	bad.SetErr(errors.New("send buffer full"))
	b, _, err := h.Attach(context.Background(), bob.ID, good)
	require.NoError(t, err)
	_, _, err = h.Attach(context.Background(), bob.ID, bad)
	require.NoError(t, err)

	ev := appendEvent(t, o, db, bob.ID, users[0].ID, models.EventFriendRequestDeclined, nil)
	assert.Equal(t, 1, o.DeliverIfOnline(ev, b))
	assert.Equal(t, 0, o.DeliverIfOnline(ev, nil))

	unseen, err := o.FetchUnseen(context.Background(), bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, unseen, 1)
	assert.Equal(t, ev.ID, unseen[0].ID)
}

func TestPruneKeepsUnseen(t *testing.T) {
	o, _, db, users := setup(t)
	bob := users[1]
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	old := appendEvent(t, o, db, bob.ID, 0, models.EventLevelUp, nil)
	recent := appendEvent(t, o, db, bob.ID, 0, models.EventLevelUp, nil)
	unseen := appendEvent(t, o, db, bob.ID, 0, models.EventLevelUp, nil)

	o.now = func() time.Time { return now.Add(-48 * time.Hour) }
	_, err := o.MarkEventsSeen(ctx, bob.ID, old.ID)
	require.NoError(t, err)
	o.now = func() time.Time { return now.Add(-time.Hour) }
	_, err = o.MarkEventsSeen(ctx, bob.ID, recent.ID)
	require.NoError(t, err)
	o.now = func() time.Time { return now }

	p, err := NewPruner(o, "@every 1h", 24*time.Hour, logging.Discard())
	require.NoError(t, err)
	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left []uint
	require.NoError(t, db.Model(&models.Event{}).Order("id").Pluck("id", &left).Error)
	assert.Equal(t, []uint{recent.ID, unseen.ID}, left)
}

func TestNewPrunerRejectsBadSchedule(t *testing.T) {
	o, _, _, _ := setup(t)
	_, err := NewPruner(o, "every now and then", time.Hour, logging.Discard())
	assert.Error(t, err)
}

func TestEncodePayload(t *testing.T) {
	p, err := encodePayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(p))

	p, err = encodePayload(models.Payload(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(p))

	p, err = encodePayload(struct {
		Level int `json:"level"`
	}{3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":3}`, string(p))

	_, err = encodePayload(make(chan int))
	assert.Error(t, err)
}
