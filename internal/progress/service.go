// Package progress turns logged workouts into XP, levels and coin rewards.
package progress

import (
	"context"
	"errors"
	"strings"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/database"
	"fitrank/backend/internal/leveling"
	"fitrank/backend/internal/metrics"
	"fitrank/backend/internal/models"
	"fitrank/backend/internal/outbox"
	"fitrank/backend/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var validate = validator.New()

// WorkoutInput is one logged workout.
type WorkoutInput struct {
	Category      string  `json:"category" binding:"required,max=64" validate:"required,max=64"`
	Volume        float64 `json:"volume" binding:"gte=0,max=1000000" validate:"gte=0,max=1000000"`
	PersonalBests int     `json:"personalBests" binding:"gte=0,max=100" validate:"gte=0,max=100"`
	StreakDays    int     `json:"streakDays" binding:"gte=0,max=3650" validate:"gte=0,max=3650"`
}

// WorkoutResult reports what a workout earned.
type WorkoutResult struct {
	Workout   *models.Workout      `json:"workout"`
	XPAwarded int64                `json:"xpAwarded"`
	Coins     int64                `json:"coins"`
	User      leveling.Advancement `json:"user"`
	Category  leveling.Advancement `json:"category"`
}

// LevelUpPayload is the payload of level-up and category-level-up events.
type LevelUpPayload struct {
	Level    int    `json:"level"`
	Reward   int64  `json:"reward"`
	Category string `json:"category,omitempty"`
}

type Service struct {
	db       *gorm.DB
	store    *store.Relations
	outbox   *outbox.Outbox
	user     *leveling.Curve
	category *leveling.Curve
	log      logrus.FieldLogger
}

func NewService(db *gorm.DB, rel *store.Relations, ob *outbox.Outbox, log logrus.FieldLogger) *Service {
	return &Service{
		db:       db,
		store:    rel,
		outbox:   ob,
		user:     leveling.UserCurve,
		category: leveling.CategoryCurve,
		log:      log.WithField("component", "progress"),
	}
}

// RecordWorkout grants the XP for in, advancing the user and category curves and
// appending one event per level crossed. Events are pushed once the grant commits.
func (s *Service) RecordWorkout(ctx context.Context, userID uint, in WorkoutInput) (*WorkoutResult, error) {
	if userID == 0 {
		return nil, apperr.BadData("user id is required")
	}
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	if err := validate.Struct(in); err != nil {
		return nil, apperr.BadData("invalid workout: " + err.Error())
	}

	res := &WorkoutResult{XPAwarded: leveling.WorkoutXP(in.Volume, in.PersonalBests, in.StreakDays)}
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB, afterCommit database.AfterCommit) error {
		users, err := s.store.LockUsers(tx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user not found")
		}
		if err != nil {
			return apperr.Internal("lock user", err)
		}
		u := users[0]

		w := &models.Workout{
			UserID:        userID,
			Category:      in.Category,
			Volume:        in.Volume,
			PersonalBests: in.PersonalBests,
			StreakDays:    in.StreakDays,
			XPAwarded:     res.XPAwarded,
		}
		if err := tx.Create(w).Error; err != nil {
			return apperr.Internal("record workout", err)
		}
		res.Workout = w

		cp := models.CategoryProgress{UserID: userID, Category: in.Category}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.CategoryProgress{UserID: userID, Category: in.Category}).
			Attrs(models.CategoryProgress{Level: 1}).
			FirstOrCreate(&cp).Error
		if err != nil {
			return apperr.Internal("load category progress", err)
		}

		res.User = s.user.Advance(u.Level, u.XP, res.XPAwarded)
		res.Category = s.category.Advance(cp.Level, cp.XP, res.XPAwarded)
		res.Coins = res.User.Coins() + res.Category.Coins()

		err = tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
			"xp":          res.User.XP,
			"level":       res.User.To,
			"total_coins": gorm.Expr("total_coins + ?", res.Coins),
		}).Error
		if err != nil {
			return apperr.Internal("update user progress", err)
		}
		err = tx.Model(&cp).Updates(map[string]any{"xp": res.Category.XP, "level": res.Category.To}).Error
		if err != nil {
			return apperr.Internal("update category progress", err)
		}

		var events []*models.Event
		for _, up := range res.User.LevelUps {
			ev, err := s.outbox.Append(tx, userID, models.EventLevelUp, userID, w.ID,
				LevelUpPayload{Level: up.Level, Reward: up.Reward})
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		for _, up := range res.Category.LevelUps {
			ev, err := s.outbox.Append(tx, userID, models.EventCategoryLevelUp, userID, w.ID,
				LevelUpPayload{Level: up.Level, Reward: up.Reward, Category: in.Category})
			if err != nil {
				return err
			}
			events = append(events, ev)
		}

		afterCommit(func() {
			for _, ev := range events {
				s.outbox.Deliver(ev)
			}
		})
		return nil
	})
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			s.log.WithError(err).WithField("user_id", userID).Error("workout grant failed")
		}
		return nil, err
	}

	metrics.LevelUps.WithLabelValues(s.user.Name).Add(float64(len(res.User.LevelUps)))
	metrics.LevelUps.WithLabelValues(s.category.Name).Add(float64(len(res.Category.LevelUps)))
	s.log.WithFields(logrus.Fields{
		"user_id":        userID,
		"category":       in.Category,
		"xp":             res.XPAwarded,
		"level":          res.User.To,
		"level_ups":      len(res.User.LevelUps),
		"category_level": res.Category.To,
		"coins":          res.Coins,
	}).Info("workout recorded")
	return res, nil
}

// CategoryProgress lists a user's per-category levels ordered by category.
func (s *Service) CategoryProgress(ctx context.Context, userID uint) ([]models.CategoryProgress, error) {
	out := []models.CategoryProgress{}
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("category").Find(&out).Error
	if err != nil {
		return nil, apperr.Internal("load category progress", err)
	}
	return out, nil
}
