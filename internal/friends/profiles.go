package friends

import (
	"context"
	"errors"
	"slices"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/models"

	"gorm.io/gorm"
)

// Relation is how the actor relates to another user.
type Relation string

const (
	RelationNone     Relation = "none"
	RelationFriends  Relation = "friends"
	RelationOutgoing Relation = "outgoing"
	RelationIncoming Relation = "incoming"
)

// FriendStatus is the actor's view of one other user.
type FriendStatus struct {
	UserID    uint       `json:"userId"`
	Relation  Relation   `json:"relation"`
	Blocked   bool       `json:"blocked"`
	BlockedBy bool       `json:"blockedBy"`
	Online    bool       `json:"online"`
	Status    hub.Status `json:"status"`
}

// KnownProfile is a user the actor has any relationship with.
type KnownProfile struct {
	User *models.User `json:"user"`
	FriendStatus
}

func relationIn(snap hub.Snapshot, id uint) (rel Relation, blocked bool) {
	rel = RelationNone
	switch {
	case slices.Contains(snap.Friends, id):
		rel = RelationFriends
	case slices.Contains(snap.Outgoing, id):
		rel = RelationOutgoing
	case slices.Contains(snap.Incoming, id):
		rel = RelationIncoming
	}
	return rel, slices.Contains(snap.Blocked, id)
}

// snapshot reads the actor's sets from their bucket when it is trustworthy and
// from the store otherwise.
func (s *Service) snapshot(ctx context.Context, actor uint) (hub.Snapshot, error) {
	if b := s.hub.Get(actor); b != nil && b.Hydrated() {
		return b.Snapshot(), nil
	}
	snap, err := s.store.Snapshot(ctx, s.db, actor)
	if err != nil {
		return hub.Snapshot{}, apperr.Internal("load relationships", err)
	}
	return snap, nil
}

func (s *Service) blockedBy(ctx context.Context, actor uint) (map[uint]bool, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Block{}).
		Where("blocked_id = ?", actor).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, apperr.Internal("load blocks", err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// status fills presence. Only friends see each other's presence and a block in
// either direction hides it.
func (s *Service) status(fs *FriendStatus) {
	fs.Status = hub.StatusOffline
	if fs.Relation != RelationFriends || fs.Blocked || fs.BlockedBy {
		return
	}
	fs.Status = s.hub.VisibleStatus(fs.UserID)
	fs.Online = fs.Status != hub.StatusOffline
}

func (s *Service) friendStatus(ctx context.Context, actor uint, target uint) (*FriendStatus, error) {
	snap, err := s.snapshot(ctx, actor)
	if err != nil {
		return nil, err
	}
	fs := &FriendStatus{UserID: target}
	fs.Relation, fs.Blocked = relationIn(snap, target)

	theirs, err := s.store.Block(s.db.WithContext(ctx), target, actor)
	if err != nil {
		return nil, apperr.Internal("load block", err)
	}
	fs.BlockedBy = theirs != nil
	s.status(fs)
	return fs, nil
}

// GetFriendStatus reports the relation between actor and target.
func (s *Service) GetFriendStatus(ctx context.Context, actor uint, target Target) (*FriendStatus, error) {
	u, err := s.resolve(ctx, actor, target, false)
	if err != nil {
		return nil, err
	}
	return s.friendStatus(ctx, actor, u.ID)
}

// GetKnownProfile returns target's profile if they are in any of actor's sets.
// Looking up yourself always succeeds.
func (s *Service) GetKnownProfile(ctx context.Context, actor uint, target Target) (*KnownProfile, error) {
	if actor != 0 && target.ID == actor {
		me, err := s.store.FindUser(s.db.WithContext(ctx), actor)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		if err != nil {
			return nil, apperr.Internal("find user", err)
		}
		return &KnownProfile{
			User:         me,
			FriendStatus: FriendStatus{UserID: me.ID, Relation: RelationNone, Online: s.hub.IsOnline(me.ID), Status: s.hub.VisibleStatus(me.ID)},
		}, nil
	}

	u, err := s.resolve(ctx, actor, target, false)
	if err != nil {
		return nil, err
	}
	fs, err := s.friendStatus(ctx, actor, u.ID)
	if err != nil {
		return nil, err
	}
	if fs.Relation == RelationNone && !fs.Blocked {
		return nil, apperr.NotFound("user is not known to you")
	}
	return &KnownProfile{User: u, FriendStatus: *fs}, nil
}

// GetAllKnownProfiles lists everyone in actor's friend, request and block sets.
func (s *Service) GetAllKnownProfiles(ctx context.Context, actor uint) ([]KnownProfile, error) {
	if actor == 0 {
		return nil, apperr.BadData("actor is required")
	}
	snap, err := s.snapshot(ctx, actor)
	if err != nil {
		return nil, err
	}
	users, err := s.store.KnownProfiles(s.db.WithContext(ctx), actor)
	if err != nil {
		return nil, apperr.Internal("load profiles", err)
	}
	blockedBy, err := s.blockedBy(ctx, actor)
	if err != nil {
		return nil, err
	}

	out := make([]KnownProfile, 0, len(users))
	for i := range users {
		u := &users[i]
		fs := FriendStatus{UserID: u.ID, BlockedBy: blockedBy[u.ID]}
		fs.Relation, fs.Blocked = relationIn(snap, u.ID)
		s.status(&fs)
		out = append(out, KnownProfile{User: u, FriendStatus: fs})
	}
	return out, nil
}
