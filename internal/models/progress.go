package models

import "time"

// CategoryProgress is a user's position on the per-muscle-category curve.
type CategoryProgress struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	Category  string    `gorm:"primaryKey;size:64" json:"category"`
	XP        int64     `gorm:"not null;default:0" json:"xp"`
	Level     int       `gorm:"not null;default:1" json:"level"`
	UpdatedAt time.Time `json:"updatedAt"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
}

// Workout records the XP grant a logged workout produced, so rewards can be audited
// and replayed.
type Workout struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"userId"`
	Category      string    `gorm:"size:64;not null" json:"category"`
	Volume        float64   `gorm:"not null" json:"volume"`
	PersonalBests int       `gorm:"not null;default:0" json:"personalBests"`
	StreakDays    int       `gorm:"not null;default:0" json:"streakDays"`
	XPAwarded     int64     `gorm:"not null" json:"xpAwarded"`
	CreatedAt     time.Time `json:"createdAt"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
}
