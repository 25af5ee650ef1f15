package models

import (
	"time"

	"gorm.io/gorm"
)

// Audit is the envelope every entity carries: timestamps, soft delete and
// an optimistic-lock version. Guarded updates must check the version and
// increment it; a raw overwrite is never performed.
type Audit struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Version   int            `gorm:"not null;default:1" json:"-"`
}
