// Package models defines the gorm models for the mas-bot audit store.
// The store is a write-behind record of what the bot did; it is never
// read to resume work after a restart.
package models

import "time"

// SessionRecord is the audit row for one story session, from the moment
// the load begins to its terminal state.
type SessionRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Collection  string `gorm:"size:128;not null;index"`
	RequestedBy string `gorm:"size:128"`
	Status      string `gorm:"size:16;not null;index"` // loading, dispatching, completed, cancelled, failed
	Posts       int
	Error       string `gorm:"type:text"`
	StartedAt   time.Time
	EndedAt     *time.Time

	PostRecords []PostRecord `gorm:"foreignKey:SessionID"`
}

// PostRecord is the audit row for one published script entry.
type PostRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID uint   `gorm:"index"`
	Row       int    // source worksheet row
	Account   string `gorm:"size:64;not null"`
	Content   string `gorm:"type:text;not null"`
	URL       string `gorm:"size:512"`
	PostedAt  time.Time
}
