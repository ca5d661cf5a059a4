package model

import "time"

// Link is a profile link owned by the surrounding application. This core
// only reads it: a click is counted solely for an existing, active link.
type Link struct {
	ID        string    `db:"id" gorm:"primaryKey;size:36"`
	ProfileID string    `db:"profile_id" gorm:"size:36;not null;index"`
	Title     string    `db:"title" gorm:"size:255"`
	URL       string    `db:"url" gorm:"type:text;not null"`
	IsActive  bool      `db:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}
