// Package store is the durable relationship store: outgoing and incoming request
// halves, friendship pairs and blocks. Every method takes the *gorm.DB to run on so
// callers can pass their transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRowMissing means an edge expected to exist was not there.
var ErrRowMissing = errors.New("store: expected row missing")

// Relations holds no state; it groups the relationship queries.
type Relations struct{}

func New() *Relations { return &Relations{} }

// FindUser returns gorm.ErrRecordNotFound when the user does not exist.
func (r *Relations) FindUser(db *gorm.DB, id uint) (*models.User, error) {
	var u models.User
	if err := db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Relations) FindUserByUsername(db *gorm.DB, username string) (*models.User, error) {
	var u models.User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// LockUsers takes row locks on the given users in ascending id order, so two
// transactions over the same pair always lock in the same order.
func (r *Relations) LockUsers(db *gorm.DB, ids ...uint) ([]models.User, error) {
	sorted := append([]uint(nil), ids...)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	users := make([]models.User, 0, len(sorted))
	for _, id := range sorted {
		var u models.User
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, id).Error
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func findOne[T any](db *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	res := db.Where(query, args...).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}

// OutgoingRequest returns the row for "userID requested outgoingID", or nil.
func (r *Relations) OutgoingRequest(db *gorm.DB, userID, outgoingID uint) (*models.OutgoingRequest, error) {
	return findOne[models.OutgoingRequest](db, "user_id = ? AND outgoing_id = ?", userID, outgoingID)
}

// IncomingRequest returns the row for "incomingID requested userID", or nil.
func (r *Relations) IncomingRequest(db *gorm.DB, userID, incomingID uint) (*models.IncomingRequest, error) {
	return findOne[models.IncomingRequest](db, "user_id = ? AND incoming_id = ?", userID, incomingID)
}

// Friendship returns userID's half of the friendship with friendID, or nil.
func (r *Relations) Friendship(db *gorm.DB, userID, friendID uint) (*models.Friendship, error) {
	return findOne[models.Friendship](db, "user_id = ? AND friend_id = ?", userID, friendID)
}

// Block returns the row for "userID blocked blockedID", or nil.
func (r *Relations) Block(db *gorm.DB, userID, blockedID uint) (*models.Block, error) {
	return findOne[models.Block](db, "user_id = ? AND blocked_id = ?", userID, blockedID)
}

// BlockedEitherWay reports whether a or b blocked the other.
func (r *Relations) BlockedEitherWay(db *gorm.DB, a, b uint) (bool, error) {
	var n int64
	err := db.Model(&models.Block{}).
		Where("(user_id = ? AND blocked_id = ?) OR (user_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// CreateRequestPair records "from requested to" on both ends.
func (r *Relations) CreateRequestPair(db *gorm.DB, from, to uint) (*models.OutgoingRequest, *models.IncomingRequest, error) {
	out := &models.OutgoingRequest{UserID: from, OutgoingID: to}
	if err := db.Create(out).Error; err != nil {
		return nil, nil, err
	}
	in := &models.IncomingRequest{UserID: to, IncomingID: from}
	if err := db.Create(in).Error; err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// DeleteRequestPair destroys both halves of "from requested to". Either half being
// absent is ErrRowMissing, and nothing is deleted.
func (r *Relations) DeleteRequestPair(db *gorm.DB, from, to uint) (*models.OutgoingRequest, *models.IncomingRequest, error) {
	out, err := r.OutgoingRequest(db, from, to)
	if err != nil {
		return nil, nil, err
	}
	in, err := r.IncomingRequest(db, to, from)
	if err != nil {
		return nil, nil, err
	}
	if out == nil || in == nil {
		return nil, nil, fmt.Errorf("%w: request %d->%d (outgoing=%t incoming=%t)", ErrRowMissing, from, to, out != nil, in != nil)
	}
	if err := db.Delete(out).Error; err != nil {
		return nil, nil, err
	}
	if err := db.Delete(in).Error; err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// CreateFriendshipPair writes both friendship rows and bumps both counters.
// The returned rows are a's half then b's half.
func (r *Relations) CreateFriendshipPair(db *gorm.DB, a, b uint) (*models.Friendship, *models.Friendship, error) {
	ab := &models.Friendship{UserID: a, FriendID: b}
	if err := db.Create(ab).Error; err != nil {
		return nil, nil, err
	}
	ba := &models.Friendship{UserID: b, FriendID: a}
	if err := db.Create(ba).Error; err != nil {
		return nil, nil, err
	}
	if err := adjustFriends(db, 1, a, b); err != nil {
		return nil, nil, err
	}
	return ab, ba, nil
}

// DeleteFriendshipPair removes both friendship rows and decrements both counters.
func (r *Relations) DeleteFriendshipPair(db *gorm.DB, a, b uint) (*models.Friendship, *models.Friendship, error) {
	ab, err := r.Friendship(db, a, b)
	if err != nil {
		return nil, nil, err
	}
	ba, err := r.Friendship(db, b, a)
	if err != nil {
		return nil, nil, err
	}
	if ab == nil || ba == nil {
		return nil, nil, fmt.Errorf("%w: friendship %d<->%d (forward=%t reverse=%t)", ErrRowMissing, a, b, ab != nil, ba != nil)
	}
	if err := db.Delete(ab).Error; err != nil {
		return nil, nil, err
	}
	if err := db.Delete(ba).Error; err != nil {
		return nil, nil, err
	}
	if err := adjustFriends(db, -1, a, b); err != nil {
		return nil, nil, err
	}
	return ab, ba, nil
}

func adjustFriends(db *gorm.DB, delta int, ids ...uint) error {
	res := db.Model(&models.User{}).
		Where("id IN ?", ids).
		UpdateColumn("total_friends", gorm.Expr("total_friends + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("%w: total_friends updated %d of %d users", ErrRowMissing, res.RowsAffected, len(ids))
	}
	return nil
}

func (r *Relations) CreateBlock(db *gorm.DB, userID, blockedID uint) (*models.Block, error) {
	b := &models.Block{UserID: userID, BlockedID: blockedID}
	if err := db.Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Relations) DeleteBlock(db *gorm.DB, userID, blockedID uint) (*models.Block, error) {
	b, err := r.Block(db, userID, blockedID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: block %d->%d", ErrRowMissing, userID, blockedID)
	}
	if err := db.Delete(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// Snapshot loads the four id-sets of userID with one query per set.
func (r *Relations) Snapshot(ctx context.Context, db *gorm.DB, userID uint) (hub.Snapshot, error) {
	db = db.WithContext(ctx)
	var snap hub.Snapshot
	queries := []struct {
		model  any
		column string
		dst    *[]uint
	}{
		{&models.Friendship{}, "friend_id", &snap.Friends},
		{&models.IncomingRequest{}, "incoming_id", &snap.Incoming},
		{&models.OutgoingRequest{}, "outgoing_id", &snap.Outgoing},
		{&models.Block{}, "blocked_id", &snap.Blocked},
	}
	for _, q := range queries {
		if err := db.Model(q.model).Where("user_id = ?", userID).Pluck(q.column, q.dst).Error; err != nil {
			return hub.Snapshot{}, err
		}
	}
	return snap, nil
}

// Hydrator adapts Relations to hub.Hydrator.
type Hydrator struct {
	DB        *gorm.DB
	Relations *Relations
}

func (h Hydrator) Hydrate(ctx context.Context, userID uint) (hub.Snapshot, error) {
	return h.Relations.Snapshot(ctx, h.DB, userID)
}

// KnownProfiles returns every user appearing in any of userID's relationship sets,
// ordered by id.
func (r *Relations) KnownProfiles(db *gorm.DB, userID uint) ([]models.User, error) {
	var users []models.User
	err := db.Where("id IN (?) OR id IN (?) OR id IN (?) OR id IN (?)",
		db.Model(&models.Friendship{}).Select("friend_id").Where("user_id = ?", userID),
		db.Model(&models.IncomingRequest{}).Select("incoming_id").Where("user_id = ?", userID),
		db.Model(&models.OutgoingRequest{}).Select("outgoing_id").Where("user_id = ?", userID),
		db.Model(&models.Block{}).Select("blocked_id").Where("user_id = ?", userID),
	).Order("id").Find(&users).Error
	return users, err
}
