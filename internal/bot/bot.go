// Package bot assembles the configured components and runs the daemon.
package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/eden-chang/mas-bot/internal/account"
	"github.com/eden-chang/mas-bot/internal/alert"
	"github.com/eden-chang/mas-bot/internal/config"
	"github.com/eden-chang/mas-bot/internal/db"
	"github.com/eden-chang/mas-bot/internal/feed"
	"github.com/eden-chang/mas-bot/internal/history"
	"github.com/eden-chang/mas-bot/internal/reserve"
	"github.com/eden-chang/mas-bot/internal/router"
	"github.com/eden-chang/mas-bot/internal/session"
	"github.com/eden-chang/mas-bot/internal/sheets"
	"github.com/eden-chang/mas-bot/internal/status"
)

// Run builds the bot from cfg and blocks until ctx is cancelled. The
// router loop is the foreground job; the status server and reservation
// scheduler run beside it when enabled.
func Run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	accounts := make([]account.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts = append(accounts, account.Account{Name: a.Name, AccessToken: a.AccessToken})
	}
	reg, err := account.NewRegistry(accounts, cfg.DefaultAccount)
	if err != nil {
		return err
	}

	adapter, err := feed.NewMastodon(feed.MastodonOpts{
		Instance:     cfg.Instance,
		Registry:     reg,
		PollInterval: time.Duration(cfg.Poll.IntervalSec) * time.Second,
		PageSize:     cfg.Poll.PageSize,
		Out:          out,
	})
	if err != nil {
		return err
	}

	gdb, err := db.Open(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}
	recorder := history.NewRecorder(gdb)

	sheetsClient, err := sheets.NewClient(ctx, sheets.ClientOpts{
		CredentialsFile: cfg.Sheets.CredentialsFile,
		SpreadsheetID:   cfg.Sheets.SpreadsheetID,
	})
	if err != nil {
		return err
	}

	fanout, err := alert.FromConfig(cfg.Alerts, adapter, reg.Default().Name)
	if err != nil {
		return err
	}

	machine, err := session.NewMachine(session.Opts{
		Source:   sheetsClient,
		Pub:      adapter,
		Recorder: recorder,
		Out:      out,
		Alert: func(ctx context.Context, msg string) {
			_ = fanout.Notify(ctx, msg)
		},
	})
	if err != nil {
		return err
	}

	rt, err := router.NewRouter(router.RouterOpts{
		Machine:       machine,
		Pub:           adapter,
		ReplyAccount:  reg.Default().Name,
		AllowedSender: cfg.AllowedSender,
		Recorder:      recorder,
		Out:           out,
	})
	if err != nil {
		return err
	}

	if err := adapter.Connect(ctx); err != nil {
		return err
	}
	defer adapter.Close()

	msgs, err := adapter.Listen(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	var pending func() []reserve.Entry

	if cfg.Reserve.Enabled {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("bot: timezone %q: %w", cfg.Timezone, err)
		}
		sched, err := reserve.NewScheduler(reserve.SchedulerOpts{
			Source:    sheetsClient,
			Pub:       adapter,
			Recorder:  recorder,
			Worksheet: cfg.Reserve.Worksheet,
			SyncCron:  cfg.Reserve.SyncCron,
			Location:  loc,
			Out:       out,
		})
		if err != nil {
			return err
		}
		pending = sched.Pending
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Run(ctx); err != nil {
				log.Printf("bot: reservation scheduler: %v", err)
			}
		}()
	}

	if cfg.Status.Enabled {
		srv, err := status.NewServer(status.ServerOpts{
			Machine:  machine,
			Recorder: recorder,
			Pending:  pending,
			Port:     cfg.Status.Port,
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.Printf("bot: status server: %v", err)
			}
		}()
	}

	fmt.Fprintf(out, "bot: ready, watching DMs from %s\n", cfg.AllowedSender)
	rt.Run(ctx, msgs)
	wg.Wait()
	return nil
}
