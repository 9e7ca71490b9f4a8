package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/eden-chang/mas-bot/internal/feed"
	"github.com/eden-chang/mas-bot/internal/script"
)

type stubSource struct {
	mu   sync.Mutex
	rows map[string][][]string
	errs map[string]error
	gate chan struct{} // when non-nil, FetchCollection blocks until it closes
}

func (s *stubSource) FetchCollection(ctx context.Context, name string) ([][]string, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[name]; ok {
		return nil, err
	}
	rows, ok := s.rows[name]
	if !ok {
		return nil, script.ErrNotFound
	}
	return rows, nil
}

func newTestMachine(t *testing.T, src *stubSource) (*Machine, *feed.MockAdapter) {
	t.Helper()
	adapter := feed.NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("connect mock adapter: %v", err)
	}
	m, err := NewMachine(Opts{Source: src, Pub: adapter, Out: io.Discard})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m, adapter
}

// waitTerminal polls until the machine leaves loading/dispatching.
func waitTerminal(t *testing.T, m *Machine) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.Snapshot()
		if !snap.State.busy() && snap.State != StateIdle {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("machine did not reach a terminal state, stuck at %s", m.Snapshot().State)
	return Snapshot{}
}

func TestDispatchOrderAndWaits(t *testing.T) {
	src := &stubSource{rows: map[string][][]string{
		"1장": {
			{"A", "5", "첫 번째 문구"},
			{"B", "0", "두 번째 문구"},
			{"C", "2", "세 번째 문구"},
		},
	}}
	m, adapter := newTestMachine(t, src)

	var mu sync.Mutex
	var waits []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) bool {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return true
	}

	if err := m.Start(context.Background(), "1장", "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, m)
	if snap.State != StateCompleted {
		t.Fatalf("state = %s, want %s", snap.State, StateCompleted)
	}
	if snap.Posts != 3 {
		t.Fatalf("posts = %d, want 3", snap.Posts)
	}

	posts := adapter.PublishedPosts()
	if len(posts) != 3 {
		t.Fatalf("published %d posts, want 3", len(posts))
	}
	wantAccounts := []string{"A", "B", "C"}
	for i, p := range posts {
		if p.Account != wantAccounts[i] {
			t.Errorf("post %d account = %q, want %q", i, p.Account, wantAccounts[i])
		}
		if p.Visibility != "unlisted" {
			t.Errorf("post %d visibility = %q, want unlisted", i, p.Visibility)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	wantWaits := []time.Duration{5 * time.Second, 0, 2 * time.Second}
	if len(waits) != len(wantWaits) {
		t.Fatalf("recorded %d waits, want %d", len(waits), len(wantWaits))
	}
	for i, d := range waits {
		if d != wantWaits[i] {
			t.Errorf("wait %d = %v, want %v", i, d, wantWaits[i])
		}
	}
}

func TestConcurrentStartRejected(t *testing.T) {
	gate := make(chan struct{})
	src := &stubSource{
		rows: map[string][][]string{"1장": {{"A", "0", "문구"}}},
		gate: gate,
	}
	m, _ := newTestMachine(t, src)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- m.Start(context.Background(), "1장", "first")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.Snapshot().State != StateLoading {
		if time.Now().After(deadline) {
			t.Fatal("first start never entered loading")
		}
		time.Sleep(time.Millisecond)
	}

	if err := m.Start(context.Background(), "1장", "second"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second start error = %v, want ErrSessionActive", err)
	}

	close(gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first start: %v", err)
	}
	waitTerminal(t, m)
}

func TestMalformedRowFailsWithoutPosting(t *testing.T) {
	src := &stubSource{rows: map[string][][]string{
		"2장": {
			{"A", "3", "정상 문구"},
			{"B", "잠시후", "간격이 숫자가 아님"},
		},
	}}
	m, adapter := newTestMachine(t, src)

	err := m.Start(context.Background(), "2장", "tester")
	var malformed *script.MalformedRowError
	if !errors.As(err, &malformed) {
		t.Fatalf("start error = %v, want MalformedRowError", err)
	}
	if malformed.Row != 3 {
		t.Errorf("malformed row = %d, want 3", malformed.Row)
	}
	if got := m.Snapshot().State; got != StateFailed {
		t.Errorf("state = %s, want %s", got, StateFailed)
	}
	if posts := adapter.PublishedPosts(); len(posts) != 0 {
		t.Errorf("published %d posts, want 0", len(posts))
	}
}

func TestCancelSkipsRemainingEntries(t *testing.T) {
	src := &stubSource{rows: map[string][][]string{
		"3장": {
			{"A", "5", "하나"},
			{"B", "0", "둘"},
			{"C", "2", "셋"},
		},
	}}
	m, adapter := newTestMachine(t, src)

	sleeping := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	m.sleep = func(ctx context.Context, d time.Duration) bool {
		once.Do(func() {
			close(sleeping)
			<-release
		})
		return true
	}

	if err := m.Start(context.Background(), "3장", "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}

	<-sleeping
	if err := m.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(release)

	snap := waitTerminal(t, m)
	if snap.State != StateCancelled {
		t.Fatalf("state = %s, want %s", snap.State, StateCancelled)
	}
	posts := adapter.PublishedPosts()
	if len(posts) != 1 || posts[0].Account != "A" {
		t.Fatalf("published = %+v, want only A's post", posts)
	}
	if snap.Posts != 1 {
		t.Errorf("posts = %d, want 1", snap.Posts)
	}
}

func TestCancelRequiresDispatching(t *testing.T) {
	src := &stubSource{rows: map[string][][]string{}}
	m, _ := newTestMachine(t, src)
	if err := m.Cancel(); !errors.Is(err, ErrNotDispatching) {
		t.Fatalf("cancel on idle = %v, want ErrNotDispatching", err)
	}
}

func TestNotFoundFailsThenRecovers(t *testing.T) {
	src := &stubSource{
		rows: map[string][][]string{"2장": {{"A", "0", "문구"}}},
	}
	m, adapter := newTestMachine(t, src)

	err := m.Start(context.Background(), "없는장", "tester")
	if !errors.Is(err, script.ErrNotFound) {
		t.Fatalf("start error = %v, want ErrNotFound", err)
	}
	if got := m.Snapshot().State; got != StateFailed {
		t.Fatalf("state = %s, want %s", got, StateFailed)
	}

	if err := m.Start(context.Background(), "2장", "tester"); err != nil {
		t.Fatalf("recovery start: %v", err)
	}
	snap := waitTerminal(t, m)
	if snap.State != StateCompleted {
		t.Fatalf("state after recovery = %s, want %s", snap.State, StateCompleted)
	}
	if posts := adapter.PublishedPosts(); len(posts) != 1 {
		t.Fatalf("published %d posts, want 1", len(posts))
	}
}

func TestPublishFailureEndsSession(t *testing.T) {
	src := &stubSource{rows: map[string][][]string{
		"4장": {
			{"A", "0", "하나"},
			{"B", "0", "둘"},
		},
	}}
	m, adapter := newTestMachine(t, src)
	adapter.FailPublish("B", errors.New("boom"))

	if err := m.Start(context.Background(), "4장", "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, m)
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want %s", snap.State, StateFailed)
	}
	if snap.Posts != 1 {
		t.Errorf("posts = %d, want 1", snap.Posts)
	}
	if snap.Err == "" {
		t.Error("snapshot error is empty, want the publish failure")
	}
}

func TestEmptyWorksheetCompletes(t *testing.T) {
	src := &stubSource{rows: map[string][][]string{
		"빈장": {{"", "", ""}},
	}}
	m, adapter := newTestMachine(t, src)

	if err := m.Start(context.Background(), "빈장", "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := m.Snapshot().State; got != StateCompleted {
		t.Fatalf("state = %s, want %s", got, StateCompleted)
	}
	if posts := adapter.PublishedPosts(); len(posts) != 0 {
		t.Errorf("published %d posts, want 0", len(posts))
	}
}

func TestShutdownDuringWaitCancels(t *testing.T) {
	src := &stubSource{rows: map[string][][]string{
		"5장": {
			{"A", "30", "하나"},
			{"B", "0", "둘"},
		},
	}}
	m, adapter := newTestMachine(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx, "5장", "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(adapter.PublishedPosts()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first post never published")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	snap := waitTerminal(t, m)
	if snap.State != StateCancelled {
		t.Fatalf("state = %s, want %s", snap.State, StateCancelled)
	}
	if posts := adapter.PublishedPosts(); len(posts) != 1 {
		t.Fatalf("published %d posts, want 1", len(posts))
	}
}
