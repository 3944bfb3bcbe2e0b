package models

import "time"

// ExportRecord keeps track of generated exports.
type ExportRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"size:32;not null" json:"type"`
	Format    string    `gorm:"size:16;not null" json:"format"`
	FileName  string    `gorm:"size:255;not null" json:"file_name"`
	URL       string    `gorm:"size:512" json:"url"`
	Rows      int       `json:"rows"`
	ActorID   uint      `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}
