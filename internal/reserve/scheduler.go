// Package reserve posts reserved toots at their scheduled times. A cron
// job periodically re-syncs the reservation worksheet; a per-minute job
// posts whatever has come due. The audit store keeps a posted-key record
// so a re-sync or restart never posts a reservation twice.
package reserve

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eden-chang/mas-bot/internal/feed"
	"github.com/eden-chang/mas-bot/internal/history"
)

// RowSource fetches raw cells from a worksheet.
type RowSource interface {
	Range(ctx context.Context, worksheet, span string) ([][]string, error)
}

// Publisher posts text to the feed as a named account.
type Publisher interface {
	Publish(ctx context.Context, account, text, visibility string) (string, error)
}

// Entry is one pending reservation.
type Entry struct {
	Row     int // 1-based worksheet row
	At      time.Time
	Account string
	Text    string
}

// Scheduler owns the reservation sync and dispatch jobs.
type Scheduler struct {
	src       RowSource
	pub       Publisher
	recorder  *history.Recorder
	worksheet string
	syncSpec  string
	loc       *time.Location
	out       io.Writer

	mu      sync.Mutex
	entries []Entry
}

// SchedulerOpts holds parameters for creating a Scheduler.
type SchedulerOpts struct {
	Source    RowSource
	Pub       Publisher
	Recorder  *history.Recorder
	Worksheet string
	SyncCron  string // 5-field cron spec for worksheet re-sync
	Location  *time.Location
	Out       io.Writer
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("reserve: row source is required")
	}
	if opts.Pub == nil {
		return nil, fmt.Errorf("reserve: publisher is required")
	}
	if opts.Worksheet == "" {
		return nil, fmt.Errorf("reserve: worksheet name is required")
	}
	if _, err := cron.ParseStandard(opts.SyncCron); err != nil {
		return nil, fmt.Errorf("reserve: sync cron %q: %w", opts.SyncCron, err)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Scheduler{
		src:       opts.Source,
		pub:       opts.Pub,
		recorder:  opts.Recorder,
		worksheet: opts.Worksheet,
		syncSpec:  opts.SyncCron,
		loc:       loc,
		out:       out,
	}, nil
}

// Run syncs once, starts the cron jobs and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.sync(ctx); err != nil {
		log.Printf("reserve: initial sync: %v", err)
	}

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.syncSpec, func() {
		if err := s.sync(ctx); err != nil {
			log.Printf("reserve: sync: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("reserve: schedule sync: %w", err)
	}
	if _, err := c.AddFunc("* * * * *", func() {
		s.dispatchDue(ctx, time.Now())
	}); err != nil {
		return fmt.Errorf("reserve: schedule dispatch: %w", err)
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

// sync replaces the in-memory schedule with the worksheet's current rows.
func (s *Scheduler) sync(ctx context.Context) error {
	rows, err := s.src.Range(ctx, s.worksheet, "A2:D")
	if err != nil {
		return err
	}
	entries := s.parseRows(rows, 2)
	sort.Slice(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	fmt.Fprintf(s.out, "reserve: synced %d reservations from %q\n", len(entries), s.worksheet)
	return nil
}

// parseRows converts raw rows into entries. Unlike script parsing this is
// lenient: a broken reservation row is logged and skipped, it must not
// block the rows around it.
func (s *Scheduler) parseRows(rows [][]string, firstRow int) []Entry {
	var entries []Entry
	for i, row := range rows {
		rowIdx := firstRow + i
		date := cell(row, 0)
		clock := cell(row, 1)
		account := cell(row, 2)
		text := cell(row, 3)
		if date == "" && clock == "" && account == "" && text == "" {
			continue
		}
		if account == "" || text == "" {
			log.Printf("reserve: row %d: account or text is empty, skipping", rowIdx)
			continue
		}
		at, err := parseWhen(date, clock, s.loc)
		if err != nil {
			log.Printf("reserve: row %d: %v, skipping", rowIdx, err)
			continue
		}
		entries = append(entries, Entry{Row: rowIdx, At: at, Account: account, Text: text})
	}
	return entries
}

// dispatchDue posts every entry whose time has arrived. Already-posted
// keys recorded in the audit store are dropped silently.
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	now = now.In(s.loc)

	s.mu.Lock()
	var due, rest []Entry
	for _, e := range s.entries {
		if !e.At.After(now) {
			due = append(due, e)
		} else {
			rest = append(rest, e)
		}
	}
	s.entries = rest
	s.mu.Unlock()

	for _, e := range due {
		if s.recorder.ReservationDone(s.worksheet, e.Row, e.At) {
			continue
		}
		url, err := s.pub.Publish(ctx, e.Account, e.Text, feed.VisibilityUnlisted)
		if err != nil {
			log.Printf("reserve: post row %d as %s: %v", e.Row, e.Account, err)
			s.recorder.ReservationPosted(s.worksheet, e.Row, e.At, e.Account, "failed", "")
			continue
		}
		s.recorder.ReservationPosted(s.worksheet, e.Row, e.At, e.Account, "posted", url)
		fmt.Fprintf(s.out, "reserve: posted row %d as %s (scheduled %s)\n", e.Row, e.Account, e.At.Format("2006-01-02 15:04"))
	}
}

// Pending returns a copy of the in-memory schedule, soonest first.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

var (
	dateLayouts = []string{"2006-01-02", "2006.01.02", "2006/01/02"}
	timeLayouts = []string{"15:04", "15:04:05"}
)

// parseWhen combines a date cell and a time cell in loc.
func parseWhen(date, clock string, loc *time.Location) (time.Time, error) {
	for _, dl := range dateLayouts {
		for _, tl := range timeLayouts {
			if t, err := time.ParseInLocation(dl+" "+tl, date+" "+clock, loc); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse schedule %q %q", date, clock)
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
