package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/eden-chang/mas-bot/internal/script"
)

// runLoop drives one dispatching session to a terminal state. For each
// entry it checks for a pending cancel, publishes, waits the entry's
// interval, then advances the cursor. A cancel requested mid-wait lets
// the wait finish and skips the next publish. The gen check keeps a
// stale loop from touching state after a newer session has taken over.
func (m *Machine) runLoop(ctx context.Context, gen uint64, recID uint, col *script.Collection) {
	for {
		m.mu.Lock()
		if m.gen != gen || m.state != StateDispatching {
			m.mu.Unlock()
			return
		}
		if m.cancelPending {
			m.state = StateCancelled
			m.collection = nil
			posts := m.posts
			m.mu.Unlock()
			m.recorder.SessionEnded(recID, "cancelled", posts, "")
			fmt.Fprintf(m.out, "session: %q cancelled after %d of %d posts\n", col.Name, posts, col.Len())
			return
		}
		entry := col.Entries[m.cursor]
		m.mu.Unlock()

		url, err := m.pub.Publish(ctx, entry.Account, entry.Text, publishVisibility)
		if err != nil {
			m.mu.Lock()
			if m.gen == gen {
				m.state = StateFailed
				m.lastErr = err
				m.collection = nil
			}
			posts := m.posts
			m.mu.Unlock()
			m.recorder.SessionEnded(recID, "failed", posts, err.Error())
			log.Printf("session: publish row %d of %q as %s: %v", entry.Row, col.Name, entry.Account, err)
			m.alert(ctx, fmt.Sprintf("스토리 [%s] %d번째 행 게시 실패 (%s): %v", col.Name, entry.Row, entry.Account, err))
			return
		}

		m.mu.Lock()
		m.posts++
		m.mu.Unlock()
		m.recorder.PostPublished(recID, entry, url)
		fmt.Fprintf(m.out, "session: posted row %d of %q as %s\n", entry.Row, col.Name, entry.Account)

		if !m.sleep(ctx, time.Duration(entry.Interval)*time.Second) {
			m.mu.Lock()
			if m.gen == gen && m.state == StateDispatching {
				m.state = StateCancelled
				m.collection = nil
			}
			posts := m.posts
			m.mu.Unlock()
			m.recorder.SessionEnded(recID, "cancelled", posts, "shutdown")
			fmt.Fprintf(m.out, "session: %q interrupted by shutdown after %d posts\n", col.Name, posts)
			return
		}

		m.mu.Lock()
		if m.gen != gen || m.state != StateDispatching {
			m.mu.Unlock()
			return
		}
		m.cursor++
		if m.cursor >= col.Len() {
			m.state = StateCompleted
			m.collection = nil
			posts := m.posts
			m.mu.Unlock()
			m.recorder.SessionEnded(recID, "completed", posts, "")
			fmt.Fprintf(m.out, "session: %q completed, %d posts\n", col.Name, posts)
			return
		}
		m.mu.Unlock()
	}
}
