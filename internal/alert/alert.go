// Package alert delivers operator notifications when something goes
// wrong mid-session. Delivery is best-effort: a dead alert channel is
// logged and never interrupts the bot.
package alert

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"

	"github.com/eden-chang/mas-bot/internal/config"
	"github.com/eden-chang/mas-bot/internal/feed"
)

// Notifier delivers one operator message.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Fanout sends each alert to every configured notifier.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout creates a Fanout over the given notifiers. Nil entries are
// skipped so callers can pass optional notifiers directly.
func NewFanout(notifiers ...Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Notify delivers msg to all notifiers, logging individual failures.
// It never returns an error itself.
func (f *Fanout) Notify(ctx context.Context, msg string) error {
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			log.Printf("alert: %v", err)
		}
	}
	return nil
}

// Len returns the number of wired notifiers.
func (f *Fanout) Len() int { return len(f.notifiers) }

// FeedNotifier DMs the admin account on the bot's own instance.
type FeedNotifier struct {
	pub     feed.Adapter
	account string // posting account for the DM
	admin   string // feed handle to mention
}

// NewFeedNotifier creates a FeedNotifier. admin is the handle that
// receives the DM, account the bot account that sends it.
func NewFeedNotifier(pub feed.Adapter, account, admin string) *FeedNotifier {
	return &FeedNotifier{pub: pub, account: account, admin: admin}
}

func (n *FeedNotifier) Notify(ctx context.Context, msg string) error {
	body := fmt.Sprintf("@%s %s", n.admin, msg)
	if _, err := n.pub.Publish(ctx, n.account, body, feed.VisibilityDirect); err != nil {
		return fmt.Errorf("feed notifier: dm %s: %w", n.admin, err)
	}
	return nil
}

// DiscordNotifier posts alerts to a Discord channel over the REST API.
// No gateway connection is opened; a bot token with send permission on
// the channel is enough.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordNotifier creates a DiscordNotifier from a bot token.
func NewDiscordNotifier(botToken, channelID string) (*DiscordNotifier, error) {
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord notifier: %w", err)
	}
	return &DiscordNotifier{session: s, channelID: channelID}, nil
}

func (n *DiscordNotifier) Notify(ctx context.Context, msg string) error {
	if _, err := n.session.ChannelMessageSend(n.channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord notifier: send to %s: %w", n.channelID, err)
	}
	return nil
}

// SlackNotifier posts alerts to a Slack channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a SlackNotifier from a bot token.
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	return &SlackNotifier{client: slack.New(botToken), channel: channel}
}

func (n *SlackNotifier) Notify(ctx context.Context, msg string) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(msg, false))
	if err != nil {
		return fmt.Errorf("slack notifier: post to %s: %w", n.channel, err)
	}
	return nil
}

// FromConfig builds the alert fanout described by cfg. pub delivers the
// admin DM and may be nil when no admin account is configured.
func FromConfig(cfg config.AlertsConfig, pub feed.Adapter, replyAccount string) (*Fanout, error) {
	var notifiers []Notifier
	if cfg.AdminAccount != "" && pub != nil {
		notifiers = append(notifiers, NewFeedNotifier(pub, replyAccount, cfg.AdminAccount))
	}
	if cfg.Discord.Enabled {
		d, err := NewDiscordNotifier(cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
	}
	if cfg.Slack.Enabled {
		notifiers = append(notifiers, NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.Channel))
	}
	return NewFanout(notifiers...), nil
}
