package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/eden-chang/mas-bot/internal/account"
	"github.com/eden-chang/mas-bot/internal/config"
	"github.com/eden-chang/mas-bot/internal/db"
	"github.com/eden-chang/mas-bot/internal/feed"
	"github.com/eden-chang/mas-bot/internal/sheets"
)

func newDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Long:  "Runs diagnostic checks: config, Google Sheets credentials and worksheets, the audit database and the Mastodon account tokens.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "masbot.yaml", "path to masbot config file")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "masbot doctor")
	fmt.Fprintln(out, "=============")

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var results []checkResult

	cfg, cfgResult := checkConfig(configPath)
	results = append(results, cfgResult)

	if cfg != nil {
		results = append(results, checkSheets(ctx, cfg)...)
		results = append(results, checkDatabase(cfg))
		results = append(results, checkMastodon(ctx, cfg))
	}

	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}

func checkConfig(path string) (*config.Config, checkResult) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, checkResult{"Config file", "FAIL", fmt.Sprintf("%s: %v", path, err)}
	}
	return cfg, checkResult{"Config file", "PASS", path}
}

func checkSheets(ctx context.Context, cfg *config.Config) []checkResult {
	client, err := sheets.NewClient(ctx, sheets.ClientOpts{
		CredentialsFile: cfg.Sheets.CredentialsFile,
		SpreadsheetID:   cfg.Sheets.SpreadsheetID,
	})
	if err != nil {
		return []checkResult{{"Sheets credentials", "FAIL", err.Error()}}
	}
	results := []checkResult{{"Sheets credentials", "PASS", cfg.Sheets.CredentialsFile}}

	names, err := client.WorksheetNames(ctx)
	if err != nil {
		results = append(results, checkResult{"Spreadsheet", "FAIL", err.Error()})
		return results
	}
	results = append(results, checkResult{"Spreadsheet", "PASS", fmt.Sprintf("%d worksheets", len(names))})

	if cfg.Reserve.Enabled {
		found := false
		for _, n := range names {
			if n == cfg.Reserve.Worksheet {
				found = true
				break
			}
		}
		if found {
			results = append(results, checkResult{"Reservation worksheet", "PASS", cfg.Reserve.Worksheet})
		} else {
			results = append(results, checkResult{"Reservation worksheet", "WARN", fmt.Sprintf("%q not found", cfg.Reserve.Worksheet)})
		}
	}
	return results
}

func checkDatabase(cfg *config.Config) checkResult {
	gdb, err := db.Open(cfg.DB)
	if err != nil {
		return checkResult{"Database", "FAIL", err.Error()}
	}
	if err := db.Migrate(gdb); err != nil {
		return checkResult{"Database", "FAIL", err.Error()}
	}
	detail := cfg.DB.Path
	if cfg.DB.Driver == "mysql" {
		detail = fmt.Sprintf("%s:%d/%s", cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	}
	return checkResult{"Database", "PASS", detail}
}

func checkMastodon(ctx context.Context, cfg *config.Config) checkResult {
	accounts := make([]account.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts = append(accounts, account.Account{Name: a.Name, AccessToken: a.AccessToken})
	}
	reg, err := account.NewRegistry(accounts, cfg.DefaultAccount)
	if err != nil {
		return checkResult{"Mastodon accounts", "FAIL", err.Error()}
	}
	adapter, err := feed.NewMastodon(feed.MastodonOpts{
		Instance: cfg.Instance,
		Registry: reg,
		Out:      io.Discard,
	})
	if err != nil {
		return checkResult{"Mastodon accounts", "FAIL", err.Error()}
	}
	defer adapter.Close()
	if err := adapter.Connect(ctx); err != nil {
		return checkResult{"Mastodon accounts", "FAIL", err.Error()}
	}
	return checkResult{"Mastodon accounts", "PASS", fmt.Sprintf("%d accounts on %s", len(accounts), cfg.Instance)}
}
