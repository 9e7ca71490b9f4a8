package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eden-chang/mas-bot/internal/account"
	"github.com/mattn/go-mastodon"
)

const (
	// defaultPollInterval matches the original bot's 5 second notification poll.
	defaultPollInterval = 5 * time.Second
	// defaultPageSize is the number of notifications fetched per poll.
	defaultPageSize = 20
	// seenHighWater / seenLowWater bound the processed-notification cache.
	seenHighWater = 1000
	seenLowWater  = 500
)

// Mastodon implements Adapter against a Mastodon instance, holding one
// API client per configured account. Inbound messages are obtained by
// polling the notifications API of the default account.
type Mastodon struct {
	instance string
	registry *account.Registry
	poll     time.Duration
	pageSize int
	out      io.Writer

	mu        sync.Mutex
	connected bool
	closed    bool
	clients   map[string]*mastodon.Client
	botAcct   string // default account's own handle, for self-filtering
	sinceID   mastodon.ID
	seen      map[string]struct{}
	seenOrder []string
}

// MastodonOpts holds parameters for creating a Mastodon adapter.
type MastodonOpts struct {
	Instance     string // base URL of the instance
	Registry     *account.Registry
	PollInterval time.Duration // defaults to defaultPollInterval
	PageSize     int           // defaults to defaultPageSize
	Out          io.Writer     // defaults to os.Stdout
}

// NewMastodon creates a Mastodon adapter.
func NewMastodon(opts MastodonOpts) (*Mastodon, error) {
	if opts.Instance == "" {
		return nil, fmt.Errorf("feed: instance URL is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("feed: account registry is required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Mastodon{
		instance: strings.TrimRight(opts.Instance, "/"),
		registry: opts.Registry,
		poll:     poll,
		pageSize: pageSize,
		out:      out,
		seen:     make(map[string]struct{}),
	}, nil
}

// Connect builds an API client per account and verifies the default
// account's credentials against the instance.
func (m *Mastodon) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("feed: adapter is closed")
	}

	clients := make(map[string]*mastodon.Client)
	for _, name := range m.registry.Names() {
		acct, _ := m.registry.Get(name)
		clients[name] = mastodon.NewClient(&mastodon.Config{
			Server:      m.instance,
			AccessToken: acct.AccessToken,
		})
	}

	def := m.registry.Default()
	self, err := clients[def.Name].GetAccountCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("feed: verify %s credentials: %w", def.Name, err)
	}

	m.clients = clients
	m.botAcct = self.Acct
	m.connected = true
	fmt.Fprintf(m.out, "feed: connected to %s as @%s (%d accounts)\n",
		m.instance, self.Acct, len(clients))
	return nil
}

// Publish posts text as the named account. The account name is matched
// case-insensitively against the registry; unknown names yield
// ErrUnknownAccount without any API call.
func (m *Mastodon) Publish(ctx context.Context, acctName, text, visibility string) (string, error) {
	name, ok := m.registry.Normalize(acctName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAccount, acctName)
	}

	m.mu.Lock()
	client := m.clients[name]
	connected := m.connected
	m.mu.Unlock()
	if !connected {
		return "", fmt.Errorf("feed: not connected")
	}

	status, err := client.PostStatus(ctx, &mastodon.Toot{
		Status:     text,
		Visibility: visibility,
	})
	if err != nil {
		return "", fmt.Errorf("feed: publish as %s: %w", name, err)
	}
	return status.URL, nil
}

// Listen starts the notification poll loop and returns its message
// channel. Only mention notifications carried by a direct status are
// surfaced; everything else is dropped here so the router never sees it.
func (m *Mastodon) Listen(ctx context.Context) (<-chan Message, error) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil, fmt.Errorf("feed: not connected")
	}
	def := m.registry.Default()
	client := m.clients[def.Name]
	m.mu.Unlock()

	ch := make(chan Message, 16)
	go m.pollLoop(ctx, client, ch)
	return ch, nil
}

// Close marks the adapter closed. The poll loop stops with its context.
func (m *Mastodon) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	return nil
}

// pollLoop fetches notifications on a fixed interval until ctx is done.
// Fetch errors are logged and retried on the next tick; the feed is an
// infinite restartable source, so transient failures never propagate.
func (m *Mastodon) pollLoop(ctx context.Context, client *mastodon.Client, ch chan<- Message) {
	defer close(ch)
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.fetchOnce(ctx, client, ch); err != nil {
				log.Printf("feed: poll notifications: %v", err)
			}
		}
	}
}

// fetchOnce pulls one page of notifications and forwards new direct
// mentions to ch, oldest first.
func (m *Mastodon) fetchOnce(ctx context.Context, client *mastodon.Client, ch chan<- Message) error {
	m.mu.Lock()
	pg := mastodon.Pagination{SinceID: m.sinceID, Limit: int64(m.pageSize)}
	m.mu.Unlock()

	notifs, err := client.GetNotifications(ctx, &pg)
	if err != nil {
		return err
	}
	if len(notifs) == 0 {
		return nil
	}

	m.mu.Lock()
	// Notifications arrive newest first.
	m.sinceID = notifs[0].ID
	var fresh []*mastodon.Notification
	for i := len(notifs) - 1; i >= 0; i-- {
		n := notifs[i]
		id := string(n.ID)
		if _, dup := m.seen[id]; dup {
			continue
		}
		m.seen[id] = struct{}{}
		m.seenOrder = append(m.seenOrder, id)
		fresh = append(fresh, n)
	}
	m.pruneSeenLocked()
	m.mu.Unlock()

	for _, n := range fresh {
		if n.Type != "mention" || n.Status == nil {
			continue
		}
		if n.Status.Visibility != VisibilityDirect {
			continue
		}
		if strings.EqualFold(n.Account.Acct, m.botAcct) {
			continue
		}
		msg := Message{
			ID:        string(n.ID),
			Sender:    n.Account.Acct,
			Text:      StripHTML(n.Status.Content),
			CreatedAt: n.CreatedAt,
		}
		select {
		case ch <- msg:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// pruneSeenLocked trims the dedupe cache once it exceeds the high-water
// mark. Caller holds m.mu.
func (m *Mastodon) pruneSeenLocked() {
	if len(m.seenOrder) <= seenHighWater {
		return
	}
	drop := len(m.seenOrder) - seenLowWater
	for _, id := range m.seenOrder[:drop] {
		delete(m.seen, id)
	}
	m.seenOrder = append([]string(nil), m.seenOrder[drop:]...)
}
