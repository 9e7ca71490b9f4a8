// Package session implements the story dispatch engine: a single-flight
// state machine that loads a worksheet's script collection and drives the
// timed posting loop. The notification router and the dispatch loop run
// concurrently and share nothing but the Machine, which serializes every
// transition behind one mutex.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/eden-chang/mas-bot/internal/history"
	"github.com/eden-chang/mas-bot/internal/script"
)

// State is the lifecycle state of the session machine.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateDispatching
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns the lower-case state name used in logs and audit rows.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateDispatching:
		return "dispatching"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name for the status API.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// busy reports whether a session is in flight in this state. Terminal
// states and Idle accept a fresh Start.
func (s State) busy() bool {
	return s == StateLoading || s == StateDispatching
}

var (
	// ErrSessionActive rejects a Start while another session is loading
	// or dispatching. Only one collection may be in flight at any instant.
	ErrSessionActive = errors.New("session: another session is already in flight")

	// ErrNotDispatching rejects a Cancel when no dispatch loop is running.
	ErrNotDispatching = errors.New("session: no dispatching session")
)

// DataSource fetches the raw rows of a named worksheet. Rows begin at
// worksheet row 2 (row 1 is the header) and carry the account / interval /
// text cells in that order. Missing worksheets yield script.ErrNotFound.
type DataSource interface {
	FetchCollection(ctx context.Context, name string) ([][]string, error)
}

// Publisher posts text to the feed as a named account.
type Publisher interface {
	Publish(ctx context.Context, account, text, visibility string) (string, error)
}

// publishVisibility is fixed for story posts.
const publishVisibility = "unlisted"

// Snapshot is a consistent copy of the machine's observable state.
type Snapshot struct {
	State      State     `json:"state"`
	Collection string    `json:"collection,omitempty"`
	Cursor     int       `json:"cursor"`
	Total      int       `json:"total"`
	Posts      int       `json:"posts"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	Err        string    `json:"error,omitempty"`
}

// Machine owns the single process-wide session. All mutation goes through
// Start, Cancel and the dispatch loop's advance, each of which holds the
// mutex for the transition only, never across a network call.
type Machine struct {
	source   DataSource
	pub      Publisher
	recorder *history.Recorder
	out      io.Writer
	sleep    func(ctx context.Context, d time.Duration) bool
	alert    func(ctx context.Context, msg string)

	mu            sync.Mutex
	state         State
	name          string
	collection    *script.Collection
	cursor        int
	posts         int
	startedAt     time.Time
	lastErr       error
	cancelPending bool
	gen           uint64
}

// Opts holds parameters for creating a Machine.
type Opts struct {
	Source   DataSource
	Pub      Publisher
	Recorder *history.Recorder // optional; nil disables audit rows
	Out      io.Writer         // defaults to os.Stdout

	// Alert, when set, is invoked with a short operator message whenever
	// a session ends in failure.
	Alert func(ctx context.Context, msg string)
}

// NewMachine creates a Machine in the Idle state.
func NewMachine(opts Opts) (*Machine, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("session: data source is required")
	}
	if opts.Pub == nil {
		return nil, fmt.Errorf("session: publisher is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	al := opts.Alert
	if al == nil {
		al = func(context.Context, string) {}
	}
	return &Machine{
		source:   opts.Source,
		pub:      opts.Pub,
		recorder: opts.Recorder,
		out:      out,
		sleep:    sleepCtx,
		alert:    al,
		state:    StateIdle,
	}, nil
}

// sleepCtx waits d or until ctx is done. Returns false when interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start begins a new session for the named worksheet. It transitions
// Idle (or any terminal state) to Loading, performs the load with no lock
// held, and on success moves to Dispatching and launches the dispatch
// loop. The call blocks through the load, so run it from a goroutine when
// the caller must stay responsive; a concurrent Start observes Loading
// and is rejected with ErrSessionActive immediately.
//
// The returned error is the load failure, ErrSessionActive, or nil once
// the session is dispatching (or completed, for an empty worksheet).
func (m *Machine) Start(ctx context.Context, name, requestedBy string) error {
	m.mu.Lock()
	if m.state.busy() {
		m.mu.Unlock()
		return ErrSessionActive
	}
	m.gen++
	gen := m.gen
	m.state = StateLoading
	m.name = name
	m.collection = nil
	m.cursor = 0
	m.posts = 0
	m.cancelPending = false
	m.lastErr = nil
	m.startedAt = time.Now()
	m.mu.Unlock()

	fmt.Fprintf(m.out, "session: loading worksheet %q (requested by %s)\n", name, requestedBy)
	recID := m.recorder.SessionStarted(name, requestedBy)

	col, err := m.load(ctx, name)
	if err != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.state = StateFailed
			m.lastErr = err
		}
		m.mu.Unlock()
		m.recorder.SessionEnded(recID, "failed", 0, err.Error())
		fmt.Fprintf(m.out, "session: load %q failed: %v\n", name, err)
		m.alert(ctx, fmt.Sprintf("스토리 [%s] 불러오기 실패: %v", name, err))
		return err
	}

	if col.Len() == 0 {
		m.mu.Lock()
		if m.gen == gen {
			m.state = StateCompleted
		}
		m.mu.Unlock()
		m.recorder.SessionEnded(recID, "completed", 0, "")
		fmt.Fprintf(m.out, "session: worksheet %q has no entries, nothing to dispatch\n", name)
		return nil
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	m.collection = col
	m.cursor = 0
	m.state = StateDispatching
	m.mu.Unlock()

	m.recorder.SessionDispatching(recID)
	fmt.Fprintf(m.out, "session: dispatching %s\n", col)
	go m.runLoop(ctx, gen, recID, col)
	return nil
}

// load fetches and parses the collection. Unexpected data-source errors
// are wrapped as transport failures; script errors pass through.
func (m *Machine) load(ctx context.Context, name string) (*script.Collection, error) {
	rows, err := m.source.FetchCollection(ctx, name)
	if err != nil {
		var te *script.TransportError
		if errors.Is(err, script.ErrNotFound) || errors.As(err, &te) {
			return nil, err
		}
		return nil, &script.TransportError{Err: err}
	}
	return script.ParseRows(name, rows, 2)
}

// Cancel requests cancellation of the dispatching session. It takes
// effect at the next entry boundary: an in-flight wait completes and the
// next publish is skipped.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDispatching {
		return ErrNotDispatching
	}
	m.cancelPending = true
	return nil
}

// Snapshot returns a consistent copy of the machine's state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		State:      m.state,
		Collection: m.name,
		Cursor:     m.cursor,
		Total:      m.collection.Len(),
		Posts:      m.posts,
		StartedAt:  m.startedAt,
	}
	if m.lastErr != nil {
		snap.Err = m.lastErr.Error()
	}
	return snap
}
