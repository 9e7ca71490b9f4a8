package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/eden-chang/mas-bot/internal/config"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		cancel     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running bot's status server",
		Long:  "Fetches the live session snapshot from the status server, or requests cancellation of the dispatching session with --cancel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, cancel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "masbot.yaml", "path to masbot config file")
	cmd.Flags().BoolVar(&cancel, "cancel", false, "request cancellation of the dispatching session")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string, cancel bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Status.Enabled {
		return fmt.Errorf("status server is disabled in %s", configPath)
	}

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Status.Port)
	client := &http.Client{Timeout: 5 * time.Second}

	if cancel {
		return requestCancel(cmd, client, base)
	}
	return printStatus(cmd, client, base)
}

func printStatus(cmd *cobra.Command, client *http.Client, base string) error {
	resp, err := client.Get(base + "/status")
	if err != nil {
		return fmt.Errorf("is the bot running? %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	formatted, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
	return nil
}

func requestCancel(cmd *cobra.Command, client *http.Client, base string) error {
	resp, err := client.Post(base+"/session/cancel", "application/json", nil)
	if err != nil {
		return fmt.Errorf("is the bot running? %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintln(cmd.OutOrStdout(), "cancel requested; the session stops at the next entry")
		return nil
	case http.StatusConflict:
		return fmt.Errorf("no session is dispatching")
	default:
		return fmt.Errorf("unexpected response %s", resp.Status)
	}
}
