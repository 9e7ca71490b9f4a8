// Package history writes audit rows for sessions, posts, commands and
// reservations. All methods are nil-receiver safe so callers can run
// without a store (tests, --no-db deployments) without guarding every
// call site.
package history

import (
	"fmt"
	"log"
	"time"

	"github.com/eden-chang/mas-bot/internal/models"
	"github.com/eden-chang/mas-bot/internal/script"
	"gorm.io/gorm"
)

// Recorder wraps the audit-store connection. Recording is best-effort:
// store errors are logged, never propagated, so a broken disk cannot take
// down a running session.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates a Recorder. db may be nil, which disables recording.
func NewRecorder(db *gorm.DB) *Recorder {
	if db == nil {
		return nil
	}
	return &Recorder{db: db}
}

// SessionStarted inserts a session row in "loading" state and returns its ID.
func (r *Recorder) SessionStarted(collection, requestedBy string) uint {
	if r == nil {
		return 0
	}
	rec := models.SessionRecord{
		Collection:  collection,
		RequestedBy: requestedBy,
		Status:      "loading",
		StartedAt:   time.Now(),
	}
	if err := r.db.Create(&rec).Error; err != nil {
		log.Printf("history: record session start: %v", err)
		return 0
	}
	return rec.ID
}

// SessionDispatching marks a session as dispatching.
func (r *Recorder) SessionDispatching(id uint) {
	r.updateSession(id, map[string]interface{}{"status": "dispatching"})
}

// SessionEnded marks a session terminal with its outcome.
func (r *Recorder) SessionEnded(id uint, status string, posts int, errMsg string) {
	now := time.Now()
	r.updateSession(id, map[string]interface{}{
		"status":   status,
		"posts":    posts,
		"error":    errMsg,
		"ended_at": &now,
	})
}

func (r *Recorder) updateSession(id uint, fields map[string]interface{}) {
	if r == nil || id == 0 {
		return
	}
	if err := r.db.Model(&models.SessionRecord{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		log.Printf("history: update session %d: %v", id, err)
	}
}

// PostPublished inserts a post row for a published script entry.
func (r *Recorder) PostPublished(sessionID uint, entry script.Entry, url string) {
	if r == nil {
		return
	}
	rec := models.PostRecord{
		SessionID: sessionID,
		Row:       entry.Row,
		Account:   entry.Account,
		Content:   entry.Text,
		URL:       url,
		PostedAt:  time.Now(),
	}
	if err := r.db.Create(&rec).Error; err != nil {
		log.Printf("history: record post: %v", err)
	}
}

// CommandSeen inserts a command row. reason is empty for accepted commands.
func (r *Recorder) CommandSeen(sender, keyword, collection string, accepted bool, reason string) {
	if r == nil {
		return
	}
	rec := models.CommandRecord{
		Sender:     sender,
		Keyword:    keyword,
		Collection: collection,
		Accepted:   accepted,
		Reason:     reason,
	}
	if err := r.db.Create(&rec).Error; err != nil {
		log.Printf("history: record command: %v", err)
	}
}

// RecentPosts returns the most recent post rows, newest first.
func (r *Recorder) RecentPosts(limit int) ([]models.PostRecord, error) {
	if r == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var posts []models.PostRecord
	if err := r.db.Order("id DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("history: recent posts: %w", err)
	}
	return posts, nil
}

// RecentSessions returns the most recent session rows, newest first.
func (r *Recorder) RecentSessions(limit int) ([]models.SessionRecord, error) {
	if r == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var sessions []models.SessionRecord
	if err := r.db.Order("id DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("history: recent sessions: %w", err)
	}
	return sessions, nil
}

// ReservationPosted marks a reservation key as posted (or failed).
// Returns false when the key was already recorded, which callers treat
// as "do not post again".
func (r *Recorder) ReservationPosted(worksheet string, row int, scheduledAt time.Time, acct, status, url string) bool {
	if r == nil {
		return true
	}
	rec := models.ReservationRecord{
		Worksheet:   worksheet,
		Row:         row,
		ScheduledAt: scheduledAt,
		Account:     acct,
		Status:      status,
		URL:         url,
		PostedAt:    time.Now(),
	}
	if err := r.db.Create(&rec).Error; err != nil {
		// Unique-index violation means another cycle already posted it.
		log.Printf("history: record reservation %s row %d: %v", worksheet, row, err)
		return false
	}
	return true
}

// ReservationDone reports whether a reservation key was already posted.
func (r *Recorder) ReservationDone(worksheet string, row int, scheduledAt time.Time) bool {
	if r == nil {
		return false
	}
	var count int64
	r.db.Model(&models.ReservationRecord{}).
		Where("worksheet = ? AND row = ? AND scheduled_at = ?", worksheet, row, scheduledAt).
		Count(&count)
	return count > 0
}
