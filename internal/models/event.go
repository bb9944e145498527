package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// EventType names a notification delivered to a user.
type EventType string

const (
	EventFriendRequestInitiated EventType = "friend-request-initiated"
	EventFriendRequestAccepted  EventType = "friend-request-accepted"
	EventFriendRequestDeclined  EventType = "friend-request-declined"
	EventFriendRequestCancelled EventType = "friend-request-cancelled"
	EventFriendRemoved          EventType = "friend-removed"
	EventLevelUp                EventType = "level-up"
	EventCategoryLevelUp        EventType = "category-level-up"
)

// Event is a row of the per-recipient outbox. Rows are only ever inserted, stamped
// with SeenAt, or pruned once seen.
type Event struct {
	ID         uint       `gorm:"primaryKey;index:idx_events_user_id_id,priority:2" json:"id"`
	UserID     uint       `gorm:"not null;index:idx_events_user_id_id,priority:1" json:"userId"`
	Type       EventType  `gorm:"size:64;not null" json:"type"`
	ActorID    uint       `gorm:"not null" json:"actorId"`
	ResourceID uint       `gorm:"not null;default:0" json:"resourceId"`
	Payload    Payload    `gorm:"type:text;not null" json:"payload"`
	SeenAt     *time.Time `gorm:"index" json:"seenAt"`
	CreatedAt  time.Time  `json:"createdAt"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
}

// Payload is a JSON document stored as text and emitted verbatim on the wire.
type Payload []byte

func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	return string(p), nil
}

func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = Payload(v)
	default:
		return fmt.Errorf("models: cannot scan %T into Payload", src)
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("{}"), nil
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}
