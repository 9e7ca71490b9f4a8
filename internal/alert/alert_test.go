package alert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/eden-chang/mas-bot/internal/config"
	"github.com/eden-chang/mas-bot/internal/feed"
)

type stubNotifier struct {
	msgs []string
	err  error
}

func (s *stubNotifier) Notify(ctx context.Context, msg string) error {
	s.msgs = append(s.msgs, msg)
	return s.err
}

func TestFanoutDeliversToAll(t *testing.T) {
	a := &stubNotifier{}
	b := &stubNotifier{err: errors.New("channel is gone")}
	c := &stubNotifier{}
	f := NewFanout(a, nil, b, c)

	if f.Len() != 3 {
		t.Fatalf("len = %d, want 3 (nil skipped)", f.Len())
	}
	if err := f.Notify(context.Background(), "경고"); err != nil {
		t.Fatalf("fanout notify: %v", err)
	}
	for i, s := range []*stubNotifier{a, b, c} {
		if len(s.msgs) != 1 || s.msgs[0] != "경고" {
			t.Errorf("notifier %d got %v, want [경고]", i, s.msgs)
		}
	}
}

func TestFeedNotifierSendsDirectMessage(t *testing.T) {
	adapter := feed.NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	n := NewFeedNotifier(adapter, "NARRATOR", "admin@example.social")

	if err := n.Notify(context.Background(), "스토리 진행 실패"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	posts := adapter.PublishedPosts()
	if len(posts) != 1 {
		t.Fatalf("published %d posts, want 1", len(posts))
	}
	if posts[0].Visibility != feed.VisibilityDirect {
		t.Errorf("visibility = %q, want direct", posts[0].Visibility)
	}
	if !strings.HasPrefix(posts[0].Text, "@admin@example.social ") {
		t.Errorf("text = %q, want admin mention prefix", posts[0].Text)
	}
	if posts[0].Account != "NARRATOR" {
		t.Errorf("account = %q, want NARRATOR", posts[0].Account)
	}
}

func TestFeedNotifierReportsPublishFailure(t *testing.T) {
	adapter := feed.NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	adapter.FailPublish("NARRATOR", errors.New("instance unreachable"))
	n := NewFeedNotifier(adapter, "NARRATOR", "admin@example.social")

	if err := n.Notify(context.Background(), "실패"); err == nil {
		t.Fatal("notify succeeded, want error")
	}
}

func TestFromConfig(t *testing.T) {
	adapter := feed.NewMockAdapter()

	f, err := FromConfig(config.AlertsConfig{}, adapter, "NARRATOR")
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if f.Len() != 0 {
		t.Errorf("empty config produced %d notifiers", f.Len())
	}

	f, err = FromConfig(config.AlertsConfig{
		AdminAccount: "admin@example.social",
		Slack: config.SlackAlertConfig{
			Enabled:  true,
			BotToken: "xoxb-test",
			Channel:  "#ops",
		},
	}, adapter, "NARRATOR")
	if err != nil {
		t.Fatalf("full config: %v", err)
	}
	if f.Len() != 2 {
		t.Errorf("notifiers = %d, want feed + slack", f.Len())
	}
}
