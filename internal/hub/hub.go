package hub

import (
	"context"
	"sync"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/metrics"

	"github.com/segmentio/fasthash/fnv1a"
	"github.com/sirupsen/logrus"
)

const shardCount = 32

// EventStatusChanged is pushed to online friends when a user's visible status changes.
const EventStatusChanged = "friend-status-changed"

// StatusChange is the payload of EventStatusChanged.
type StatusChange struct {
	UserID uint   `json:"userId"`
	Status Status `json:"status"`
}

type shard struct {
	mu      sync.RWMutex
	buckets map[uint]*Bucket
}

// Hub owns the buckets of every connected user. The map is sharded so attach and
// detach for different users rarely contend; each bucket guards its own fields.
type Hub struct {
	shards   [shardCount]*shard
	hydrator Hydrator
	log      logrus.FieldLogger
}

// New creates a Hub that hydrates new buckets through hydrator.
func New(hydrator Hydrator, log logrus.FieldLogger) *Hub {
	h := &Hub{hydrator: hydrator, log: log.WithField("component", "hub")}
	for i := range h.shards {
		h.shards[i] = &shard{buckets: make(map[uint]*Bucket)}
	}
	return h
}

func (h *Hub) shard(userID uint) *shard {
	return h.shards[fnv1a.HashUint64(uint64(userID))%shardCount]
}

// Attach adds conn to userID's bucket, creating and hydrating the bucket on the
// first connection. first is true for the call that created the bucket. Concurrent
// attaches for the same user wait for the one hydration.
func (h *Hub) Attach(ctx context.Context, userID uint, conn Conn) (b *Bucket, first bool, err error) {
	sh := h.shard(userID)

	sh.mu.Lock()
	if existing, ok := sh.buckets[userID]; ok {
		existing.addConn(conn)
		sh.mu.Unlock()
		metrics.PresenceConnections.Inc()

		if err := existing.wait(ctx); err != nil {
			h.Detach(userID, conn)
			return nil, false, err
		}
		return existing, false, nil
	}
	b = newBucket(userID)
	b.addConn(conn)
	sh.buckets[userID] = b
	sh.mu.Unlock()
	metrics.PresenceConnections.Inc()
	metrics.PresenceBuckets.Inc()

	snap, err := h.hydrator.Hydrate(ctx, userID)
	if err != nil {
		b.fail(err)
		sh.mu.Lock()
		if sh.buckets[userID] == b {
			delete(sh.buckets, userID)
		}
		sh.mu.Unlock()
		metrics.PresenceConnections.Sub(float64(b.ConnCount()))
		metrics.PresenceBuckets.Dec()
		h.log.WithError(err).WithField("user_id", userID).Error("bucket hydration failed")
		return nil, false, err
	}
	b.load(snap)

	h.log.WithFields(logrus.Fields{
		"user_id": userID,
		"conn_id": conn.ID(),
		"friends": len(snap.Friends),
	}).Debug("bucket created")
	return b, true, nil
}

// Detach removes conn from userID's bucket and evicts the bucket when it was the
// last connection. It reports whether the bucket was evicted.
func (h *Hub) Detach(userID uint, conn Conn) (evicted bool) {
	sh := h.shard(userID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[userID]
	if !ok {
		return false
	}
	removed, remaining := b.removeConn(conn.ID())
	if !removed {
		return false
	}
	metrics.PresenceConnections.Dec()
	if remaining > 0 {
		return false
	}
	delete(sh.buckets, userID)
	b.evict()
	metrics.PresenceBuckets.Dec()
	h.log.WithField("user_id", userID).Debug("bucket evicted")
	return true
}

// Get returns userID's bucket, or nil when the user has no live connection.
// The bucket may still be hydrating; see Bucket.Hydrated.
func (h *Hub) Get(userID uint) *Bucket {
	sh := h.shard(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.buckets[userID]
}

// IsOnline reports whether userID currently has a bucket.
func (h *Hub) IsOnline(userID uint) bool {
	return h.Get(userID) != nil
}

// Online filters ids down to the users that are currently connected.
func (h *Hub) Online(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if h.IsOnline(id) {
			out = append(out, id)
		}
	}
	return out
}

// OnlineCount returns the number of users with a bucket.
func (h *Hub) OnlineCount() int {
	n := 0
	for _, sh := range h.shards {
		sh.mu.RLock()
		n += len(sh.buckets)
		sh.mu.RUnlock()
	}
	return n
}

// VisibleStatus is what other users see for userID.
func (h *Hub) VisibleStatus(userID uint) Status {
	b := h.Get(userID)
	if b == nil {
		return StatusOffline
	}
	return b.Status().Visible()
}

// Emit pushes msg to every connection in b. A failing connection is logged and
// skipped; Emit never returns an error to the caller.
func (h *Hub) Emit(b *Bucket, msg Message) (delivered int) {
	if b == nil {
		return 0
	}
	for _, c := range b.Conns() {
		if err := c.Emit(msg); err != nil {
			h.log.WithError(apperr.Websocket("emit failed", err)).WithFields(logrus.Fields{
				"user_id": b.UserID,
				"conn_id": c.ID(),
				"event":   msg.Event,
			}).Warn("live delivery failed")
			continue
		}
		delivered++
	}
	return delivered
}

// SetStatus changes the user's status and tells their online friends.
func (h *Hub) SetStatus(userID uint, status Status) error {
	if !status.Valid() {
		return apperr.BadData("unknown status " + string(status))
	}
	b := h.Get(userID)
	if b == nil {
		return apperr.NotFound("user is not connected")
	}
	before := b.Status().Visible()
	b.setStatus(status)
	if after := status.Visible(); after != before {
		h.BroadcastStatus(b, after)
	}
	return nil
}

// BroadcastStatus pushes a status change for b's user to each online friend.
// Friends on either side of a block are skipped.
func (h *Hub) BroadcastStatus(b *Bucket, status Status) {
	msg := Message{Event: EventStatusChanged, Data: StatusChange{UserID: b.UserID, Status: status}}
	for _, friendID := range b.Friends() {
		if b.HasBlocked(friendID) {
			continue
		}
		peer := h.Get(friendID)
		if peer == nil || peer.HasBlocked(b.UserID) {
			continue
		}
		h.Emit(peer, msg)
	}
}
