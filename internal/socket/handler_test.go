package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fitrank/backend/internal/database/dbtest"
	"fitrank/backend/internal/friends"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/logging"
	"fitrank/backend/internal/models"
	"fitrank/backend/internal/outbox"
	"fitrank/backend/internal/store"
	"fitrank/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type server struct {
	url     string
	hub     *hub.Hub
	outbox  *outbox.Outbox
	friends *friends.Service
	users   []models.User
}

func defaultOptions() Options {
	return Options{AckTimeout: 2 * time.Second, SendBuffer: 32, RateLimit: 100, RateBurst: 100, ReplayLimit: 50}
}

func newServer(t *testing.T, opts Options) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	log := logging.Discard()
	rel := store.New()
	h := hub.New(store.Hydrator{DB: db, Relations: rel}, log)
	ob := outbox.New(db, h, log)
	fs := friends.NewService(db, rel, ob, h, log)

	r := gin.New()
	r.GET("/ws", NewHandler(testSecret, h, fs, ob, nil, opts, log).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &server{
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		hub:     h,
		outbox:  ob,
		friends: fs,
		users:   dbtest.CreateUsers(t, db, "alice", "bob"),
	}
}

func (s *server) dial(t *testing.T, userID uint) *websocket.Conn {
	t.Helper()
	token, err := jwt.GenerateToken(testSecret, userID)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool {
		b := s.hub.Get(userID)
		return b != nil && b.Hydrated()
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

type ackResult struct {
	OK    bool            `json:"ok"`
	Code  string          `json:"code"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func send(t *testing.T, conn *websocket.Conn, event, ackID string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "ackId": ackID, "data": data}))
}

// readUntil skips frames until one named event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == event {
			return f
		}
	}
}

func readAck(t *testing.T, conn *websocket.Conn, ackID string) ackResult {
	t.Helper()
	for {
		f := readUntil(t, conn, EventAck)
		if f.AckID != ackID {
			continue
		}
		var res ackResult
		require.NoError(t, json.Unmarshal(f.Data, &res))
		return res
	}
}

func TestRejectsBadToken(t *testing.T) {
	s := newServer(t, defaultOptions())

	_, resp, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(s.url+"?token=forged", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerHeaderAccepted(t *testing.T) {
	s := newServer(t, defaultOptions())
	token, err := jwt.GenerateToken(testSecret, s.users[0].ID)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(s.url, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool { return s.hub.IsOnline(s.users[0].ID) }, 2*time.Second, 5*time.Millisecond)
}

func TestAddFriendOverSocket(t *testing.T) {
	s := newServer(t, defaultOptions())
	alice, bob := s.users[0], s.users[1]
	aliceConn := s.dial(t, alice.ID)
	bobConn := s.dial(t, bob.ID)

	send(t, aliceConn, "add-friend", "req-1", map[string]string{"username": "bob"})
	res := readAck(t, aliceConn, "req-1")
	require.True(t, res.OK, "%+v", res.Error)
	assert.Equal(t, string(friends.CodeRequestInitiated), res.Code)

	pushed := readUntil(t, bobConn, string(models.EventFriendRequestInitiated))
	var ev models.Event
	require.NoError(t, json.Unmarshal(pushed.Data, &ev))
	assert.Equal(t, alice.ID, ev.ActorID)
	assert.Equal(t, bob.ID, ev.UserID)

	send(t, bobConn, "accept-request", "req-2", map[string]uint{"userId": alice.ID})
	res = readAck(t, bobConn, "req-2")
	require.True(t, res.OK, "%+v", res.Error)
	assert.Equal(t, string(friends.CodeRequestAccepted), res.Code)
	readUntil(t, aliceConn, string(models.EventFriendRequestAccepted))

	send(t, aliceConn, "get-friend-status", "req-3", map[string]uint{"userId": bob.ID})
	res = readAck(t, aliceConn, "req-3")
	require.True(t, res.OK)
	var st friends.FriendStatus
	require.NoError(t, json.Unmarshal(res.Data, &st))
	assert.Equal(t, friends.RelationFriends, st.Relation)
	assert.True(t, st.Online)
}

func statusJSON(userID uint, status hub.Status) string {
	return fmt.Sprintf(`{"userId":%d,"status":%q}`, userID, status)
}

func TestStatusChangeReachesFriends(t *testing.T) {
	s := newServer(t, defaultOptions())
	alice, bob := s.users[0], s.users[1]
	ctx := context.Background()
	_, err := s.friends.AddFriend(ctx, alice.ID, friends.ByID(bob.ID), nil)
	require.NoError(t, err)
	_, err = s.friends.AcceptRequest(ctx, bob.ID, friends.ByID(alice.ID), nil)
	require.NoError(t, err)

	bobConn := s.dial(t, bob.ID)
	aliceConn := s.dial(t, alice.ID)

	online := readUntil(t, bobConn, hub.EventStatusChanged)
	assert.JSONEq(t, statusJSON(alice.ID, hub.StatusOnline), string(online.Data))

	send(t, aliceConn, "set-status", "s1", map[string]string{"status": "busy"})
	require.True(t, readAck(t, aliceConn, "s1").OK)
	busy := readUntil(t, bobConn, hub.EventStatusChanged)
	assert.JSONEq(t, statusJSON(alice.ID, hub.StatusBusy), string(busy.Data))

	require.NoError(t, aliceConn.Close())
	offline := readUntil(t, bobConn, hub.EventStatusChanged)
	assert.JSONEq(t, statusJSON(alice.ID, hub.StatusOffline), string(offline.Data))
	assert.Eventually(t, func() bool { return !s.hub.IsOnline(alice.ID) }, 2*time.Second, 5*time.Millisecond)
}

func TestUnseenEventsReplayedOnConnect(t *testing.T) {
	s := newServer(t, defaultOptions())
	alice, bob := s.users[0], s.users[1]
	ctx := context.Background()

	out, err := s.friends.AddFriend(ctx, alice.ID, friends.ByID(bob.ID), nil)
	require.NoError(t, err)

	bobConn := s.dial(t, bob.ID)
	f := readUntil(t, bobConn, EventUnseenEvents)
	require.NotEmpty(t, f.AckID)
	var events []models.Event
	require.NoError(t, json.Unmarshal(f.Data, &events))
	require.Len(t, events, 1)
	assert.Equal(t, out.Event.ID, events[0].ID)

	send(t, bobConn, EventAck, f.AckID, map[string]uint{"seenUpTo": events[0].ID})
	assert.Eventually(t, func() bool {
		unseen, err := s.outbox.FetchUnseen(ctx, bob.ID, 0)
		return err == nil && len(unseen) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsOverSocket(t *testing.T) {
	s := newServer(t, defaultOptions())
	alice, bob := s.users[0], s.users[1]
	ctx := context.Background()
	bobConn := s.dial(t, bob.ID)

	out, err := s.friends.AddFriend(ctx, alice.ID, friends.ByID(bob.ID), nil)
	require.NoError(t, err)
	readUntil(t, bobConn, string(models.EventFriendRequestInitiated))

	send(t, bobConn, "get-unseen-events", "u1", nil)
	res := readAck(t, bobConn, "u1")
	require.True(t, res.OK)
	var unseen []models.Event
	require.NoError(t, json.Unmarshal(res.Data, &unseen))
	require.Len(t, unseen, 1)

	send(t, bobConn, "mark-events-seen", "m1", map[string]uint{"uptoId": out.Event.ID})
	res = readAck(t, bobConn, "m1")
	require.True(t, res.OK)
	assert.JSONEq(t, `{"marked":1}`, string(res.Data))

	send(t, bobConn, "get-events-after", "a1", map[string]uint{"after": 0})
	res = readAck(t, bobConn, "a1")
	require.True(t, res.OK)
	var all []models.Event
	require.NoError(t, json.Unmarshal(res.Data, &all))
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].SeenAt)
}

func TestRequestErrors(t *testing.T) {
	s := newServer(t, defaultOptions())
	conn := s.dial(t, s.users[0].ID)

	for _, tc := range []struct {
		event string
		data  any
		code  string
	}{
		{"add-friend", map[string]any{}, "BAD_DATA"},
		{"add-friend", map[string]string{"username": "nobody"}, "NOT_FOUND"},
		{"accept-request", map[string]uint{"userId": s.users[1].ID}, "BAD_DATA"},
		{"set-status", map[string]string{"status": "dancing"}, "BAD_DATA"},
		{"mark-events-seen", "not an object", "BAD_DATA"},
		{"no-such-event", nil, "BAD_DATA"},
	} {
		t.Run(tc.event, func(t *testing.T) {
			send(t, conn, tc.event, "e-"+tc.event, tc.data)
			res := readAck(t, conn, "e-"+tc.event)
			assert.False(t, res.OK)
			require.NotNil(t, res.Error)
			assert.Equal(t, tc.code, res.Error.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	opts := defaultOptions()
	opts.RateLimit = 0.001
	opts.RateBurst = 1
	s := newServer(t, opts)
	conn := s.dial(t, s.users[0].ID)

	send(t, conn, "get-all-known-profiles", "r1", nil)
	assert.True(t, readAck(t, conn, "r1").OK)

	send(t, conn, "get-all-known-profiles", "r2", nil)
	res := readAck(t, conn, "r2")
	assert.False(t, res.OK)
	assert.Equal(t, "rate limit exceeded", res.Error.Message)
}
