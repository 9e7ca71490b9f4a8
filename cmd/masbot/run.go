package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eden-chang/mas-bot/internal/bot"
	"github.com/eden-chang/mas-bot/internal/config"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot daemon",
		Long:  "Connects to the Mastodon instance, watches direct messages for story triggers and serves the status endpoints until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "masbot.yaml", "path to masbot config file")
	return cmd
}

func runBot(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "masbot %s starting\n", Version)
	if err := bot.Run(ctx, cfg, out); err != nil {
		return err
	}
	fmt.Fprintln(out, "masbot stopped")
	return nil
}
