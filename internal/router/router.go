// Package router turns inbound direct messages into session commands. It
// filters by sender, parses the trigger grammar, starts sessions and
// replies to the requester with the outcome.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/eden-chang/mas-bot/internal/feed"
	"github.com/eden-chang/mas-bot/internal/history"
	"github.com/eden-chang/mas-bot/internal/script"
	"github.com/eden-chang/mas-bot/internal/session"
)

// Router consumes the adapter's inbound message stream.
type Router struct {
	machine  *session.Machine
	pub      session.Publisher
	replyAs  string // account name replies are sent from
	allowed  string // sender acct permitted to trigger sessions; "" allows anyone
	recorder *history.Recorder
	out      io.Writer
	wg       sync.WaitGroup
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Machine       *session.Machine
	Pub           session.Publisher
	ReplyAccount  string
	AllowedSender string
	Recorder      *history.Recorder
	Out           io.Writer
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Machine == nil {
		return nil, fmt.Errorf("router: session machine is required")
	}
	if opts.Pub == nil {
		return nil, fmt.Errorf("router: publisher is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		machine:  opts.Machine,
		pub:      opts.Pub,
		replyAs:  opts.ReplyAccount,
		allowed:  opts.AllowedSender,
		recorder: opts.Recorder,
		out:      out,
	}, nil
}

// Run consumes messages until ctx is cancelled or the channel closes,
// then waits for in-flight command handlers to finish.
func (r *Router) Run(ctx context.Context, msgs <-chan feed.Message) {
	defer r.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.handle(ctx, msg)
		}
	}
}

// handle screens one inbound message. Accepted commands start the session
// from a goroutine so the router keeps draining the inbound channel while
// a worksheet loads.
func (r *Router) handle(ctx context.Context, msg feed.Message) {
	cmd, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}
	if r.allowed != "" && !strings.EqualFold(msg.Sender, r.allowed) {
		fmt.Fprintf(r.out, "router: ignoring [%s/%s] from unauthorized sender %s\n", cmd.Keyword, cmd.Collection, msg.Sender)
		r.recorder.CommandSeen(msg.Sender, cmd.Keyword, cmd.Collection, false, "unauthorized sender")
		return
	}

	fmt.Fprintf(r.out, "router: [%s/%s] from %s\n", cmd.Keyword, cmd.Collection, msg.Sender)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.dispatch(ctx, msg.Sender, cmd)
	}()
}

// dispatch starts the session and reports the outcome back to the sender.
func (r *Router) dispatch(ctx context.Context, sender string, cmd Command) {
	err := r.machine.Start(ctx, cmd.Collection, sender)

	var malformed *script.MalformedRowError
	switch {
	case err == nil:
		r.recorder.CommandSeen(sender, cmd.Keyword, cmd.Collection, true, "")
		r.reply(ctx, sender, fmt.Sprintf("[%s] 스토리를 시작합니다.", cmd.Collection))
	case errors.Is(err, session.ErrSessionActive):
		r.recorder.CommandSeen(sender, cmd.Keyword, cmd.Collection, false, "session active")
		r.reply(ctx, sender, "이미 진행 중인 스토리가 있습니다. 끝난 뒤에 다시 시도해 주세요.")
	case errors.Is(err, script.ErrNotFound):
		r.recorder.CommandSeen(sender, cmd.Keyword, cmd.Collection, false, "worksheet not found")
		r.reply(ctx, sender, fmt.Sprintf("[%s] 워크시트를 찾을 수 없습니다. 이름을 확인해 주세요.", cmd.Collection))
	case errors.As(err, &malformed):
		r.recorder.CommandSeen(sender, cmd.Keyword, cmd.Collection, false, err.Error())
		r.reply(ctx, sender, fmt.Sprintf("[%s] 시트 %d번째 행이 올바르지 않아 시작할 수 없습니다.", cmd.Collection, malformed.Row))
	default:
		r.recorder.CommandSeen(sender, cmd.Keyword, cmd.Collection, false, err.Error())
		r.reply(ctx, sender, fmt.Sprintf("[%s] 시트를 불러오지 못했습니다. 잠시 후 다시 시도해 주세요.", cmd.Collection))
	}
}

// reply sends a direct message to the sender from the reply account.
func (r *Router) reply(ctx context.Context, sender, text string) {
	body := fmt.Sprintf("@%s %s", sender, text)
	if _, err := r.pub.Publish(ctx, r.replyAs, body, feed.VisibilityDirect); err != nil {
		log.Printf("router: reply to %s: %v", sender, err)
	}
}
