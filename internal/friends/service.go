// Package friends runs the friend relationship state machine. Each action checks
// the actor's cached sets, re-validates against the rows in one transaction that
// also appends the counterpart's event, and only after commit updates buckets and
// pushes the event live.
package friends

import (
	"context"
	"errors"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/database"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/metrics"
	"fitrank/backend/internal/models"
	"fitrank/backend/internal/outbox"
	"fitrank/backend/internal/store"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutcomeCode names what an action did.
type OutcomeCode string

const (
	CodeRequestInitiated OutcomeCode = "friend-request-initiated"
	CodeRequestAccepted  OutcomeCode = "friend-request-accepted"
	CodeRequestDeclined  OutcomeCode = "friend-request-declined"
	CodeRequestCancelled OutcomeCode = "friend-request-cancelled"
	CodeFriendRemoved    OutcomeCode = "friend-removed"
	CodeUserBlocked      OutcomeCode = "user-blocked"
	CodeUserUnblocked    OutcomeCode = "user-unblocked"
)

// Target identifies the counterpart of an action, by id or, for AddFriend, by username.
type Target struct {
	ID       uint   `json:"userId"`
	Username string `json:"username"`
}

func ByID(id uint) Target { return Target{ID: id} }

func ByUsername(username string) Target { return Target{Username: username} }

// Outcome is the success payload of a mutating action.
type Outcome struct {
	Code  OutcomeCode   `json:"code"`
	User  *models.User  `json:"user"`
	Event *models.Event `json:"event,omitempty"`
}

type Service struct {
	db     *gorm.DB
	store  *store.Relations
	outbox *outbox.Outbox
	hub    *hub.Hub
	locks  *pairLocks
	log    logrus.FieldLogger
}

func NewService(db *gorm.DB, rel *store.Relations, ob *outbox.Outbox, h *hub.Hub, log logrus.FieldLogger) *Service {
	return &Service{
		db:     db,
		store:  rel,
		outbox: ob,
		hub:    h,
		locks:  newPairLocks(),
		log:    log.WithField("component", "friends"),
	}
}

// change collects what one transaction did so it can be applied after commit.
type change struct {
	actor, target uint
	cached        bool

	code  OutcomeCode
	event *models.Event
	self  func(*hub.Sets)
	peer  func(*hub.Sets)
	stale func(*hub.Sets)
}

// missing reports a precondition row that is not in the table. If the actor's
// bucket said it was there the cache is out of sync, which is an internal error and
// the stale entry is dropped; otherwise the caller asked for something that never existed.
func (c *change) missing(msg string, fix func(*hub.Sets)) error {
	if c.cached {
		c.stale = fix
		return apperr.Internal("cache out of sync: "+msg, store.ErrRowMissing)
	}
	return apperr.BadData(msg)
}

func (s *Service) resolve(ctx context.Context, actor uint, target Target, allowUsername bool) (*models.User, error) {
	if actor == 0 {
		return nil, apperr.BadData("actor is required")
	}
	db := s.db.WithContext(ctx)

	var (
		u   *models.User
		err error
	)
	switch {
	case target.ID != 0:
		u, err = s.store.FindUser(db, target.ID)
	case allowUsername && target.Username != "":
		u, err = s.store.FindUserByUsername(db, target.Username)
	default:
		return nil, apperr.BadData("target user is required")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}
	if u.ID == actor {
		return nil, apperr.BadData("cannot target yourself")
	}
	return u, nil
}

func wrapDB(msg string, err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Duplicate(msg + ": already exists")
	}
	return apperr.Internal(msg, err)
}

type fastCheck func(b *hub.Bucket, target uint) error

type mutation func(tx *gorm.DB, c *change) error

// run executes one relationship action for actor against target.
func (s *Service) run(ctx context.Context, action string, actor uint, target Target, bucket *hub.Bucket,
	allowUsername bool, fast fastCheck, mutate mutation) (*Outcome, error) {
	out, err := s.exec(ctx, action, actor, target, bucket, allowUsername, fast, mutate)
	result := "ok"
	if err != nil {
		result = string(apperr.CodeOf(err))
	}
	metrics.Transitions.WithLabelValues(action, result).Inc()
	return out, err
}

func (s *Service) exec(ctx context.Context, action string, actor uint, target Target, bucket *hub.Bucket,
	allowUsername bool, fast fastCheck, mutate mutation) (*Outcome, error) {
	u, err := s.resolve(ctx, actor, target, allowUsername)
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"action": action, "actor_id": actor, "target_id": u.ID})

	unlock := s.locks.Lock(actor, u.ID)
	defer unlock()

	if bucket == nil {
		bucket = s.hub.Get(actor)
	}
	cached := bucket != nil && bucket.Hydrated()
	if cached {
		if err := fast(bucket, u.ID); err != nil {
			return nil, err
		}
	}

	c := &change{actor: actor, target: u.ID, cached: cached}
	err = database.WithTx(ctx, s.db, func(tx *gorm.DB, afterCommit database.AfterCommit) error {
		if _, err := s.store.LockUsers(tx, actor, u.ID); err != nil {
			return wrapDB("lock users", err)
		}
		if err := mutate(tx, c); err != nil {
			return err
		}
		fresh, err := s.store.FindUser(tx, u.ID)
		if err != nil {
			return wrapDB("reload target", err)
		}
		u = fresh
		afterCommit(func() { s.publish(bucket, c) })
		return nil
	})
	if err != nil {
		if c.stale != nil && bucket != nil {
			bucket.Update(c.stale)
		}
		if apperr.CodeOf(err) == apperr.CodeInternal {
			log.WithError(err).Error("relationship action failed")
		}
		return nil, err
	}

	log.WithField("code", c.code).Info("relationship changed")
	return &Outcome{Code: c.code, User: u, Event: c.event}, nil
}

// publish applies a committed change to both buckets and pushes the event.
func (s *Service) publish(bucket *hub.Bucket, c *change) {
	if bucket != nil && c.self != nil {
		bucket.Update(c.self)
	}
	peer := s.hub.Get(c.target)
	if peer != nil && c.peer != nil {
		peer.Update(c.peer)
	}
	if c.event != nil {
		s.outbox.DeliverIfOnline(c.event, peer)
	}
}

// AddFriend sends a friend request to target, or accepts theirs if they already
// asked the actor.
func (s *Service) AddFriend(ctx context.Context, actor uint, target Target, bucket *hub.Bucket) (*Outcome, error) {
	fast := func(b *hub.Bucket, id uint) error {
		switch {
		case b.HasBlocked(id):
			return apperr.Blocked("you blocked this user")
		case b.IsFriend(id):
			return apperr.Duplicate("already friends")
		case b.HasOutgoing(id):
			return apperr.Duplicate("friend request already sent")
		}
		return nil
	}
	return s.run(ctx, "add-friend", actor, target, bucket, true, fast, func(tx *gorm.DB, c *change) error {
		blocked, err := s.store.BlockedEitherWay(tx, c.actor, c.target)
		if err != nil {
			return wrapDB("check blocks", err)
		}
		if blocked {
			return apperr.Blocked("a block exists between these users")
		}
		if f, err := s.store.Friendship(tx, c.actor, c.target); err != nil {
			return wrapDB("check friendship", err)
		} else if f != nil {
			return apperr.Duplicate("already friends")
		}
		if out, err := s.store.OutgoingRequest(tx, c.actor, c.target); err != nil {
			return wrapDB("check outgoing request", err)
		} else if out != nil {
			return apperr.Duplicate("friend request already sent")
		}
		theirs, err := s.store.IncomingRequest(tx, c.actor, c.target)
		if err != nil {
			return wrapDB("check incoming request", err)
		}
		if theirs != nil {
			return s.accept(tx, c)
		}

		_, in, err := s.store.CreateRequestPair(tx, c.actor, c.target)
		if err != nil {
			return wrapDB("create friend request", err)
		}
		ev, err := s.outbox.Append(tx, c.target, models.EventFriendRequestInitiated, c.actor, in.ID, nil)
		if err != nil {
			return err
		}
		actor, target := c.actor, c.target
		c.code = CodeRequestInitiated
		c.event = ev
		c.self = func(sets *hub.Sets) { sets.Outgoing.Add(target) }
		c.peer = func(sets *hub.Sets) { sets.Incoming.Add(actor) }
		return nil
	})
}

// accept turns target's pending request to actor into a friendship.
func (s *Service) accept(tx *gorm.DB, c *change) error {
	actor, target := c.actor, c.target
	_, _, err := s.store.DeleteRequestPair(tx, target, actor)
	if errors.Is(err, store.ErrRowMissing) {
		return c.missing("no friend request from this user", func(sets *hub.Sets) { sets.Incoming.Remove(target) })
	}
	if err != nil {
		return wrapDB("delete friend request", err)
	}
	_, theirs, err := s.store.CreateFriendshipPair(tx, actor, target)
	if err != nil {
		return wrapDB("create friendship", err)
	}
	ev, err := s.outbox.Append(tx, target, models.EventFriendRequestAccepted, actor, theirs.ID, nil)
	if err != nil {
		return err
	}
	c.code = CodeRequestAccepted
	c.event = ev
	c.self = func(sets *hub.Sets) {
		sets.Incoming.Remove(target)
		sets.Outgoing.Remove(target)
		sets.Friends.Add(target)
	}
	c.peer = func(sets *hub.Sets) {
		sets.Outgoing.Remove(actor)
		sets.Incoming.Remove(actor)
		sets.Friends.Add(actor)
	}
	return nil
}

// AcceptRequest accepts the pending request target sent to actor.
func (s *Service) AcceptRequest(ctx context.Context, actor uint, target Target, bucket *hub.Bucket) (*Outcome, error) {
	fast := func(b *hub.Bucket, id uint) error {
		if !b.HasIncoming(id) {
			return apperr.BadData("no friend request from this user")
		}
		return nil
	}
	return s.run(ctx, "accept-request", actor, target, bucket, false, fast, s.accept)
}

// DeclineRequest rejects the pending request target sent to actor.
func (s *Service) DeclineRequest(ctx context.Context, actor uint, target Target, bucket *hub.Bucket) (*Outcome, error) {
	fast := func(b *hub.Bucket, id uint) error {
		if !b.HasIncoming(id) {
			return apperr.BadData("no friend request from this user")
		}
		return nil
	}
	return s.run(ctx, "decline-request", actor, target, bucket, false, fast, func(tx *gorm.DB, c *change) error {
		actor, target := c.actor, c.target
		// target asked actor: Outgoing{target, actor} and Incoming{actor, target}.
		_, in, err := s.store.DeleteRequestPair(tx, target, actor)
		if errors.Is(err, store.ErrRowMissing) {
			return c.missing("no friend request from this user", func(sets *hub.Sets) { sets.Incoming.Remove(target) })
		}
		if err != nil {
			return wrapDB("delete friend request", err)
		}
		ev, err := s.outbox.Append(tx, target, models.EventFriendRequestDeclined, actor, in.ID, nil)
		if err != nil {
			return err
		}
		c.code = CodeRequestDeclined
		c.event = ev
		c.self = func(sets *hub.Sets) { sets.Incoming.Remove(target) }
		c.peer = func(sets *hub.Sets) { sets.Outgoing.Remove(actor) }
		return nil
	})
}

// CancelRequest withdraws the pending request actor sent to target.
func (s *Service) CancelRequest(ctx context.Context, actor uint, target Target, bucket *hub.Bucket) (*Outcome, error) {
	fast := func(b *hub.Bucket, id uint) error {
		if !b.HasOutgoing(id) {
			return apperr.BadData("no friend request to this user")
		}
		return nil
	}
	return s.run(ctx, "cancel-request", actor, target, bucket, false, fast, func(tx *gorm.DB, c *change) error {
		actor, target := c.actor, c.target
		// actor asked target: Outgoing{actor, target} and Incoming{target, actor}.
		_, in, err := s.store.DeleteRequestPair(tx, actor, target)
		if errors.Is(err, store.ErrRowMissing) {
			return c.missing("no friend request to this user", func(sets *hub.Sets) { sets.Outgoing.Remove(target) })
		}
		if err != nil {
			return wrapDB("delete friend request", err)
		}
		ev, err := s.outbox.Append(tx, target, models.EventFriendRequestCancelled, actor, in.ID, nil)
		if err != nil {
			return err
		}
		c.code = CodeRequestCancelled
		c.event = ev
		c.self = func(sets *hub.Sets) { sets.Outgoing.Remove(target) }
		c.peer = func(sets *hub.Sets) { sets.Incoming.Remove(actor) }
		return nil
	})
}

// RemoveFriend ends the friendship between actor and target.
func (s *Service) RemoveFriend(ctx context.Context, actor uint, target Target, bucket *hub.Bucket) (*Outcome, error) {
	fast := func(b *hub.Bucket, id uint) error {
		if !b.IsFriend(id) {
			return apperr.BadData("not friends with this user")
		}
		return nil
	}
	return s.run(ctx, "remove-friend", actor, target, bucket, false, fast, func(tx *gorm.DB, c *change) error {
		actor, target := c.actor, c.target
		_, theirs, err := s.store.DeleteFriendshipPair(tx, actor, target)
		if errors.Is(err, store.ErrRowMissing) {
			return c.missing("not friends with this user", func(sets *hub.Sets) { sets.Friends.Remove(target) })
		}
		if err != nil {
			return wrapDB("delete friendship", err)
		}
		ev, err := s.outbox.Append(tx, target, models.EventFriendRemoved, actor, theirs.ID, nil)
		if err != nil {
			return err
		}
		c.code = CodeFriendRemoved
		c.event = ev
		c.self = func(sets *hub.Sets) { sets.Friends.Remove(target) }
		c.peer = func(sets *hub.Sets) { sets.Friends.Remove(actor) }
		return nil
	})
}

// BlockUser blocks target. An existing friendship is left in place.
func (s *Service) BlockUser(ctx context.Context, actor uint, target Target, bucket *hub.Bucket) (*Outcome, error) {
	fast := func(b *hub.Bucket, id uint) error {
		if b.HasBlocked(id) {
			return apperr.Duplicate("user already blocked")
		}
		return nil
	}
	return s.run(ctx, "block-user", actor, target, bucket, false, fast, func(tx *gorm.DB, c *change) error {
		target := c.target
		existing, err := s.store.Block(tx, c.actor, target)
		if err != nil {
			return wrapDB("check block", err)
		}
		if existing != nil {
			return apperr.Duplicate("user already blocked")
		}
		if _, err := s.store.CreateBlock(tx, c.actor, target); err != nil {
			return wrapDB("create block", err)
		}
		c.code = CodeUserBlocked
		c.self = func(sets *hub.Sets) { sets.Blocked.Add(target) }
		return nil
	})
}

// UnblockUser lifts actor's block on target.
func (s *Service) UnblockUser(ctx context.Context, actor uint, target Target, bucket *hub.Bucket) (*Outcome, error) {
	fast := func(b *hub.Bucket, id uint) error {
		if !b.HasBlocked(id) {
			return apperr.BadData("user is not blocked")
		}
		return nil
	}
	return s.run(ctx, "unblock-user", actor, target, bucket, false, fast, func(tx *gorm.DB, c *change) error {
		target := c.target
		_, err := s.store.DeleteBlock(tx, c.actor, target)
		if errors.Is(err, store.ErrRowMissing) {
			return c.missing("user is not blocked", func(sets *hub.Sets) { sets.Blocked.Remove(target) })
		}
		if err != nil {
			return wrapDB("delete block", err)
		}
		c.code = CodeUserUnblocked
		c.self = func(sets *hub.Sets) { sets.Blocked.Remove(target) }
		return nil
	})
}
