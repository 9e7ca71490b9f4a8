package models

import "time"

// ReservationRecord marks a reserved toot as posted (or failed) so a sheet
// re-sync or process restart does not post the same reservation twice.
// The key is the worksheet row plus its scheduled time: editing a row's
// time in the sheet makes it a new reservation.
type ReservationRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Worksheet   string `gorm:"size:128;not null;uniqueIndex:idx_reservation_key"`
	Row         int    `gorm:"not null;uniqueIndex:idx_reservation_key"`
	ScheduledAt time.Time `gorm:"not null;uniqueIndex:idx_reservation_key"`
	Account     string `gorm:"size:64;not null"`
	Status      string `gorm:"size:16;not null"` // posted, failed
	URL         string `gorm:"size:512"`
	PostedAt    time.Time
}
