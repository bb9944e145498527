package models

import "time"

// Every relationship is stored as directed edges. A pending request between A and B
// is one OutgoingRequest{A,B} plus one IncomingRequest{B,A}; a friendship is two
// Friendship rows. Both halves are always written and destroyed in one transaction.

// OutgoingRequest is the requester's half of a pending friend request.
type OutgoingRequest struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_outgoing_pair,priority:1" json:"userId"`
	OutgoingID uint      `gorm:"not null;uniqueIndex:idx_outgoing_pair,priority:2;index" json:"outgoingId"`
	CreatedAt  time.Time `json:"createdAt"`

	User     User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Outgoing User `gorm:"foreignKey:OutgoingID;constraint:OnDelete:CASCADE;" json:"-"`
}

// IncomingRequest is the recipient's half of a pending friend request.
type IncomingRequest struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_incoming_pair,priority:1" json:"userId"`
	IncomingID uint      `gorm:"not null;uniqueIndex:idx_incoming_pair,priority:2;index" json:"incomingId"`
	CreatedAt  time.Time `json:"createdAt"`

	User     User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Incoming User `gorm:"foreignKey:IncomingID;constraint:OnDelete:CASCADE;" json:"-"`
}

// Friendship is one direction of a symmetric friendship.
type Friendship struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_friendship_pair,priority:1" json:"userId"`
	FriendID  uint      `gorm:"not null;uniqueIndex:idx_friendship_pair,priority:2;index" json:"friendId"`
	CreatedAt time.Time `json:"createdAt"`

	User   User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Friend User `gorm:"foreignKey:FriendID;constraint:OnDelete:CASCADE;" json:"-"`
}

// Block is directed: UserID blocked BlockedID.
type Block struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_block_pair,priority:1" json:"userId"`
	BlockedID uint      `gorm:"not null;uniqueIndex:idx_block_pair,priority:2;index" json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`

	User    User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Blocked User `gorm:"foreignKey:BlockedID;constraint:OnDelete:CASCADE;" json:"-"`
}
