package reserve

import (
	"context"
	"testing"
	"time"

	"github.com/eden-chang/mas-bot/internal/feed"
)

var seoul = mustLocation("Asia/Seoul")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type stubRows struct {
	rows [][]string
	err  error
}

func (s *stubRows) Range(ctx context.Context, worksheet, span string) ([][]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func newTestScheduler(t *testing.T, rows [][]string) (*Scheduler, *feed.MockAdapter) {
	t.Helper()
	adapter := feed.NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s, err := NewScheduler(SchedulerOpts{
		Source:    &stubRows{rows: rows},
		Pub:       adapter,
		Worksheet: "예약",
		SyncCron:  "*/20 * * * *",
		Location:  seoul,
		Out:       discard{},
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, adapter
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestParseRowsSkipsBrokenRows(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	entries := s.parseRows([][]string{
		{"2026-09-01", "09:00", "A", "아침 인사"},
		{"", "", "", ""},
		{"어제쯤", "09:00", "A", "날짜가 이상함"},
		{"2026-09-01", "21:30", "", "계정이 비었음"},
		{"2026.09.02", "12:00", "B", "점심 공지"},
	}, 2)

	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (broken rows skipped)", len(entries))
	}
	if entries[0].Row != 2 || entries[1].Row != 6 {
		t.Errorf("rows = %d, %d, want 2 and 6", entries[0].Row, entries[1].Row)
	}
	want := time.Date(2026, 9, 1, 9, 0, 0, 0, seoul)
	if !entries[0].At.Equal(want) {
		t.Errorf("at = %v, want %v", entries[0].At, want)
	}
}

func TestSyncSortsBySchedule(t *testing.T) {
	s, _ := newTestScheduler(t, [][]string{
		{"2026-09-02", "10:00", "B", "나중"},
		{"2026-09-01", "10:00", "A", "먼저"},
	})
	if err := s.sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	pending := s.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Account != "A" || pending[1].Account != "B" {
		t.Errorf("order = %s, %s, want A then B", pending[0].Account, pending[1].Account)
	}
}

func TestDispatchDuePostsOnlyDueEntries(t *testing.T) {
	s, adapter := newTestScheduler(t, [][]string{
		{"2026-09-01", "09:00", "A", "지난 예약"},
		{"2026-09-01", "09:30", "B", "방금 예약"},
		{"2026-09-01", "18:00", "C", "저녁 예약"},
	})
	if err := s.sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	now := time.Date(2026, 9, 1, 9, 30, 0, 0, seoul)
	s.dispatchDue(context.Background(), now)

	posts := adapter.PublishedPosts()
	if len(posts) != 2 {
		t.Fatalf("published %d posts, want 2", len(posts))
	}
	if posts[0].Account != "A" || posts[1].Account != "B" {
		t.Errorf("accounts = %s, %s, want A then B", posts[0].Account, posts[1].Account)
	}
	for _, p := range posts {
		if p.Visibility != feed.VisibilityUnlisted {
			t.Errorf("visibility = %q, want unlisted", p.Visibility)
		}
	}

	pending := s.Pending()
	if len(pending) != 1 || pending[0].Account != "C" {
		t.Errorf("pending = %+v, want only C", pending)
	}

	// Nothing new is due, so a second tick posts nothing.
	s.dispatchDue(context.Background(), now)
	if posts := adapter.PublishedPosts(); len(posts) != 2 {
		t.Errorf("second tick grew posts to %d", len(posts))
	}
}

func TestParseWhen(t *testing.T) {
	tests := []struct {
		date, clock string
		ok          bool
	}{
		{"2026-09-01", "09:00", true},
		{"2026.09.01", "09:00:30", true},
		{"2026/09/01", "23:59", true},
		{"9월 1일", "09:00", false},
		{"2026-09-01", "아침", false},
	}
	for _, tt := range tests {
		_, err := parseWhen(tt.date, tt.clock, seoul)
		if (err == nil) != tt.ok {
			t.Errorf("parseWhen(%q, %q) error = %v, want ok=%v", tt.date, tt.clock, err, tt.ok)
		}
	}
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	adapter := feed.NewMockAdapter()
	_, err := NewScheduler(SchedulerOpts{
		Source:    &stubRows{},
		Pub:       adapter,
		Worksheet: "예약",
		SyncCron:  "언제나",
		Location:  seoul,
	})
	if err == nil {
		t.Fatal("bad cron accepted")
	}
}
