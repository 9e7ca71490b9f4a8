package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/eden-chang/mas-bot/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		configPath string
		instance   string
		accounts   []string
		sender     string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long:  "Creates a masbot config file, prompting for each account's access token on the terminal so tokens never land in shell history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, configPath, instance, accounts, sender)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "masbot.yaml", "path to write the config file")
	cmd.Flags().StringVar(&instance, "instance", "", "Mastodon instance base URL")
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "posting account name (repeatable)")
	cmd.Flags().StringVar(&sender, "allowed-sender", "", "account handle whose DMs may start sessions")
	return cmd
}

func runInit(cmd *cobra.Command, configPath, instance string, accountNames []string, sender string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", configPath)
	}
	if instance == "" {
		return fmt.Errorf("--instance is required")
	}
	if len(accountNames) == 0 {
		return fmt.Errorf("at least one --account is required")
	}
	if sender == "" {
		return fmt.Errorf("--allowed-sender is required")
	}

	out := cmd.OutOrStdout()
	cfg := config.Config{
		Instance:      instance,
		AllowedSender: sender,
		Sheets: config.SheetsConfig{
			SpreadsheetID:   "<spreadsheet id>",
			CredentialsFile: "service-account.json",
		},
		Status: config.StatusConfig{Enabled: true},
	}

	for _, name := range accountNames {
		name = strings.TrimSpace(name)
		token, err := promptToken(cmd, name)
		if err != nil {
			return err
		}
		cfg.Accounts = append(cfg.Accounts, config.AccountConfig{Name: name, AccessToken: token})
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}

	fmt.Fprintf(out, "wrote %s\n", configPath)
	fmt.Fprintln(out, "next: fill in sheets.spreadsheet_id and place the service-account key, then run `masbot doctor`")
	return nil
}

// promptToken reads an access token without echoing. When stdin is not a
// terminal (tests, piped input) it falls back to a plain line read.
func promptToken(cmd *cobra.Command, accountName string) (string, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "access token for %s: ", accountName)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		token := strings.TrimSpace(string(raw))
		if token == "" {
			return "", fmt.Errorf("empty token for %s", accountName)
		}
		return token, nil
	}

	var token string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &token); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("empty token for %s", accountName)
	}
	return token, nil
}
