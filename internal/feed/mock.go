package feed

import (
	"context"
	"fmt"
	"sync"
)

// Published records one Publish call made against the MockAdapter.
type Published struct {
	Account    string
	Text       string
	Visibility string
}

// MockAdapter implements Adapter for testing. It records published posts
// and allows simulating inbound messages via SimulateInbound.
type MockAdapter struct {
	mu         sync.Mutex
	connected  bool
	closed     bool
	inbound    chan Message
	published  []Published
	publishErr map[string]error // per-account forced failure
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound:    make(chan Message, 100),
		publishErr: make(map[string]error),
	}
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Publish records the post, or returns the forced error for the account.
func (m *MockAdapter) Publish(ctx context.Context, account, text, visibility string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return "", fmt.Errorf("mock adapter: not connected")
	}
	if err, ok := m.publishErr[account]; ok {
		return "", err
	}
	m.published = append(m.published, Published{Account: account, Text: text, Visibility: visibility})
	return fmt.Sprintf("https://mock.example/@%s/%d", account, len(m.published)), nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// SimulateInbound delivers a message as if it arrived from the platform.
func (m *MockAdapter) SimulateInbound(msg Message) {
	m.inbound <- msg
}

// FailPublish forces Publish for the given account to return err.
func (m *MockAdapter) FailPublish(account string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr[account] = err
}

// PublishedPosts returns a copy of all recorded posts.
func (m *MockAdapter) PublishedPosts() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.published))
	copy(out, m.published)
	return out
}
