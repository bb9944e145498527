package models

import "time"

// User is the identity record plus the gamification counters the core mutates.
// Password material belongs to the auth collaborator and is never read here.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:255;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"-"`
	PasswordHash string    `gorm:"size:255;not null;default:''" json:"-"`
	Level        int       `gorm:"not null;default:1" json:"level"`
	XP           int64     `gorm:"not null;default:0" json:"xp"`
	TotalFriends int       `gorm:"not null;default:0" json:"totalFriends"`
	TotalCoins   int64     `gorm:"not null;default:0" json:"totalCoins"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}
