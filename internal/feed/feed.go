// Package feed bridges the bot to its social-feed transport. The core
// engine only sees the Adapter interface; the Mastodon implementation
// lives in mastodon.go and a mock for tests in mock.go.
package feed

import (
	"context"
	"errors"
	"time"
)

// Visibility values accepted by Publish.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityDirect   = "direct"
)

// ErrUnknownAccount indicates a publish was requested for an account the
// adapter has no credentials for. Account matching is case-insensitive.
var ErrUnknownAccount = errors.New("feed: unknown account")

// Message is one inbound direct message addressed to the bot.
type Message struct {
	ID        string    // platform notification ID
	Sender    string    // sender handle (acct), without leading @
	Text      string    // plain text, HTML stripped
	CreatedAt time.Time
}

// Adapter is the transport the bot talks to the feed through.
type Adapter interface {
	// Connect verifies credentials for every configured account.
	Connect(ctx context.Context) error

	// Publish posts text as the named account with the given visibility.
	// Returns the post URL. Unknown accounts yield ErrUnknownAccount.
	Publish(ctx context.Context, account, text, visibility string) (string, error)

	// Listen returns a channel of inbound direct messages. The channel is
	// closed when the context is cancelled. Listen must only be called
	// after Connect.
	Listen(ctx context.Context) (<-chan Message, error)

	// Close shuts down the adapter.
	Close() error
}
