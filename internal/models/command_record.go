package models

import "time"

// CommandRecord is the audit row for one inbound trigger command, whether
// it was accepted or rejected.
type CommandRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Sender     string `gorm:"size:128;not null;index"`
	Keyword    string `gorm:"size:32;not null"`
	Collection string `gorm:"size:128;not null"`
	Accepted   bool
	Reason     string `gorm:"size:255"` // rejection reason, empty when accepted
	CreatedAt  time.Time
}
