// Package config provides YAML-based configuration loading for mas-bot.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level mas-bot configuration, loaded from config.yaml.
type Config struct {
	Instance       string          `yaml:"instance"` // Mastodon base URL, e.g. https://planet.example
	Accounts       []AccountConfig `yaml:"accounts"`
	DefaultAccount string          `yaml:"default_account"` // replies and operator DMs post as this account
	AllowedSender  string          `yaml:"allowed_sender"`  // the single account whose DMs may start sessions
	Sheets         SheetsConfig    `yaml:"sheets"`
	Poll           PollConfig      `yaml:"poll"`
	DB             DBConfig        `yaml:"db"`
	Status         StatusConfig    `yaml:"status"`
	Alerts         AlertsConfig    `yaml:"alerts"`
	Reserve        ReserveConfig   `yaml:"reserve"`
	Timezone       string          `yaml:"timezone"` // IANA name for reservation times
}

// AccountConfig holds credentials for one posting account.
type AccountConfig struct {
	Name        string `yaml:"name"`
	AccessToken string `yaml:"access_token"`
}

// SheetsConfig holds Google Sheets access settings.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsFile string `yaml:"credentials_file"` // service-account JSON key
}

// PollConfig controls the notification poll loop.
type PollConfig struct {
	IntervalSec int `yaml:"interval_sec"` // default 5
	PageSize    int `yaml:"page_size"`    // notifications per fetch, default 20
}

// DBConfig holds connection settings for the audit store.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// StatusConfig controls the HTTP status server.
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"` // default 8990
}

// AlertsConfig controls operator failure notifications.
type AlertsConfig struct {
	AdminAccount string             `yaml:"admin_account"` // feed handle to DM on failures
	Discord      DiscordAlertConfig `yaml:"discord"`
	Slack        SlackAlertConfig   `yaml:"slack"`
}

// DiscordAlertConfig enables alert delivery to a Discord channel.
type DiscordAlertConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackAlertConfig enables alert delivery to a Slack channel.
type SlackAlertConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// ReserveConfig controls the reserved-toot scheduler.
type ReserveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Worksheet string `yaml:"worksheet"` // default "예약"
	SyncCron  string `yaml:"sync_cron"` // 5-field cron, default every 20 minutes
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DefaultAccount == "" && len(c.Accounts) > 0 {
		c.DefaultAccount = c.Accounts[0].Name
	}
	if c.Poll.IntervalSec == 0 {
		c.Poll.IntervalSec = 5
	}
	if c.Poll.PageSize == 0 {
		c.Poll.PageSize = 20
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "masbot.db"
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
	}
	if c.Status.Port == 0 {
		c.Status.Port = 8990
	}
	if c.Reserve.Worksheet == "" {
		c.Reserve.Worksheet = "예약"
	}
	if c.Reserve.SyncCron == "" {
		c.Reserve.SyncCron = "*/20 * * * *"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Seoul"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Instance == "" {
		errs = append(errs, "instance is required")
	}
	if len(c.Accounts) == 0 {
		errs = append(errs, "at least one account is required")
	}
	for i, a := range c.Accounts {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].name is required", i))
		}
		if a.AccessToken == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].access_token is required", i))
		}
	}
	if c.AllowedSender == "" {
		errs = append(errs, "allowed_sender is required")
	}
	if c.Sheets.SpreadsheetID == "" {
		errs = append(errs, "sheets.spreadsheet_id is required")
	}
	if c.Sheets.CredentialsFile == "" {
		errs = append(errs, "sheets.credentials_file is required")
	}
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}
	if c.DB.Driver == "mysql" && c.DB.Database == "" {
		errs = append(errs, "db.database is required for mysql")
	}
	if c.Alerts.Discord.Enabled && (c.Alerts.Discord.BotToken == "" || c.Alerts.Discord.ChannelID == "") {
		errs = append(errs, "alerts.discord requires bot_token and channel_id")
	}
	if c.Alerts.Slack.Enabled && (c.Alerts.Slack.BotToken == "" || c.Alerts.Slack.Channel == "") {
		errs = append(errs, "alerts.slack requires bot_token and channel")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
