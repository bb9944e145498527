// Package outbox is the durable per-recipient event log. Events are appended in
// the transaction of the change they describe and pushed to live connections only
// after that transaction commits; anything not pushed stays unseen until fetched.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/database"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/metrics"
	"fitrank/backend/internal/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultLimit bounds fetches that pass no limit.
const DefaultLimit = 200

type Outbox struct {
	db  *gorm.DB
	hub *hub.Hub
	log logrus.FieldLogger
	now func() time.Time
}

func New(db *gorm.DB, h *hub.Hub, log logrus.FieldLogger) *Outbox {
	return &Outbox{
		db:  db,
		hub: h,
		log: log.WithField("component", "outbox"),
		now: time.Now,
	}
}

func encodePayload(payload any) (models.Payload, error) {
	switch p := payload.(type) {
	case nil:
		return models.Payload("{}"), nil
	case models.Payload:
		return p, nil
	case json.RawMessage:
		return models.Payload(p), nil
	}
	b, err := codec.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return models.Payload(b), nil
}

// Append writes an event for userID inside tx. It locks the recipient's user row
// first, so two transactions appending for the same recipient commit in id order.
func (o *Outbox) Append(tx *gorm.DB, userID uint, typ models.EventType, actorID, resourceID uint, payload any) (*models.Event, error) {
	if userID == 0 {
		return nil, apperr.BadData("event recipient is required")
	}
	data, err := encodePayload(payload)
	if err != nil {
		return nil, apperr.Internal("encode event payload", err)
	}

	var recipient models.User
	res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Limit(1).Find(&recipient, userID)
	if res.Error != nil {
		return nil, apperr.Internal("lock event recipient", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("event recipient not found")
	}

	ev := &models.Event{
		UserID:     userID,
		Type:       typ,
		ActorID:    actorID,
		ResourceID: resourceID,
		Payload:    data,
	}
	if err := tx.Create(ev).Error; err != nil {
		return nil, apperr.Internal("append event", err)
	}
	metrics.EventsAppended.WithLabelValues(string(typ)).Inc()
	return ev, nil
}

// Message is the frame an event is pushed as.
func Message(ev *models.Event) hub.Message {
	return hub.Message{Event: string(ev.Type), Data: ev}
}

// DeliverIfOnline pushes ev to every connection of bucket. It must only be called
// after the event's transaction committed. Failures are logged and counted; the
// event simply stays unseen.
func (o *Outbox) DeliverIfOnline(ev *models.Event, bucket *hub.Bucket) int {
	if ev == nil || bucket == nil {
		metrics.Deliveries.WithLabelValues("offline").Inc()
		return 0
	}
	conns := bucket.ConnCount()
	delivered := o.hub.Emit(bucket, Message(ev))
	metrics.Deliveries.WithLabelValues("ok").Add(float64(delivered))
	if failed := conns - delivered; failed > 0 {
		metrics.Deliveries.WithLabelValues("failed").Add(float64(failed))
	}
	return delivered
}

// Deliver looks up the recipient's bucket and pushes ev if they are online.
func (o *Outbox) Deliver(ev *models.Event) int {
	return o.DeliverIfOnline(ev, o.hub.Get(ev.UserID))
}

// MarkSeen stamps seen_at on every unseen event of userID with id <= uptoID.
// Repeating it is a no-op. It returns the number of events stamped.
func (o *Outbox) MarkSeen(tx *gorm.DB, userID, uptoID uint) (int64, error) {
	if userID == 0 {
		return 0, apperr.BadData("user id is required")
	}
	res := tx.Model(&models.Event{}).
		Where("user_id = ? AND id <= ? AND seen_at IS NULL", userID, uptoID).
		Update("seen_at", o.now().UTC())
	if res.Error != nil {
		return 0, apperr.Internal("mark events seen", res.Error)
	}
	return res.RowsAffected, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultLimit*5 {
		return DefaultLimit
	}
	return limit
}

// FetchUnseen returns userID's unseen events in id order.
func (o *Outbox) FetchUnseen(ctx context.Context, userID uint, limit int) ([]models.Event, error) {
	events := []models.Event{}
	err := o.db.WithContext(ctx).
		Where("user_id = ? AND seen_at IS NULL", userID).
		Order("id").Limit(clampLimit(limit)).
		Find(&events).Error
	if err != nil {
		return nil, apperr.Internal("fetch unseen events", err)
	}
	return events, nil
}

// FetchAfter returns userID's events with id > refID in id order, seen or not.
func (o *Outbox) FetchAfter(ctx context.Context, userID, refID uint, limit int) ([]models.Event, error) {
	events := []models.Event{}
	err := o.db.WithContext(ctx).
		Where("user_id = ? AND id > ?", userID, refID).
		Order("id").Limit(clampLimit(limit)).
		Find(&events).Error
	if err != nil {
		return nil, apperr.Internal("fetch events", err)
	}
	return events, nil
}

// CreateEvent appends an event in its own transaction and delivers it once committed.
func (o *Outbox) CreateEvent(ctx context.Context, userID uint, typ models.EventType, actorID, resourceID uint, payload any) (*models.Event, error) {
	var ev *models.Event
	err := database.WithTx(ctx, o.db, func(tx *gorm.DB, afterCommit database.AfterCommit) error {
		var err error
		ev, err = o.Append(tx, userID, typ, actorID, resourceID, payload)
		if err != nil {
			return err
		}
		afterCommit(func() { o.Deliver(ev) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// MarkEventsSeen advances userID's seen watermark to uptoID.
func (o *Outbox) MarkEventsSeen(ctx context.Context, userID, uptoID uint) (int64, error) {
	var n int64
	err := database.WithTx(ctx, o.db, func(tx *gorm.DB, _ database.AfterCommit) error {
		var err error
		n, err = o.MarkSeen(tx, userID, uptoID)
		return err
	})
	if err != nil {
		return 0, err
	}
	o.log.WithFields(logrus.Fields{"user_id": userID, "upto_id": uptoID, "stamped": n}).Debug("events seen")
	return n, nil
}

func (o *Outbox) GetEventsAfterRef(ctx context.Context, userID, refID uint, limit int) ([]models.Event, error) {
	return o.FetchAfter(ctx, userID, refID, limit)
}

func (o *Outbox) GetAllUnseenEvents(ctx context.Context, userID uint, limit int) ([]models.Event, error) {
	return o.FetchUnseen(ctx, userID, limit)
}

// Prune deletes events seen before cutoff. Unseen events are kept however old.
func (o *Outbox) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := o.db.WithContext(ctx).
		Where("seen_at IS NOT NULL AND seen_at < ?", cutoff.UTC()).
		Delete(&models.Event{})
	if res.Error != nil {
		return 0, apperr.Internal("prune events", res.Error)
	}
	return res.RowsAffected, nil
}
