package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eden-chang/mas-bot/internal/config"
)

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if stdin != "" {
		cmd.SetIn(strings.NewReader(stdin))
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "masbot dev") {
		t.Errorf("output = %q, want version line", out)
	}
}

func TestDoctorFailsWithoutConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	out, err := runCommand(t, "", "doctor", "-c", path)
	if err == nil {
		t.Fatal("doctor passed with missing config")
	}
	if !strings.Contains(out, "[FAIL] Config file") {
		t.Errorf("output = %q, want config FAIL line", out)
	}
}

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "masbot.yaml")
	out, err := runCommand(t, "token-luna\ntoken-sol\n",
		"init", "-c", path,
		"--instance", "https://planet.example",
		"--account", "LUNA",
		"--account", "SOL",
		"--allowed-sender", "master@planet.example",
	)
	if err != nil {
		t.Fatalf("init: %v\noutput: %s", err, out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Instance != "https://planet.example" {
		t.Errorf("instance = %q", cfg.Instance)
	}
	if len(cfg.Accounts) != 2 || cfg.Accounts[0].AccessToken != "token-luna" {
		t.Errorf("accounts = %+v", cfg.Accounts)
	}
	if cfg.AllowedSender != "master@planet.example" {
		t.Errorf("allowed_sender = %q", cfg.AllowedSender)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "masbot.yaml")
	if err := os.WriteFile(path, []byte("instance: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := runCommand(t, "", "init", "-c", path,
		"--instance", "https://planet.example",
		"--account", "LUNA",
		"--allowed-sender", "master@planet.example",
	)
	if err == nil || !strings.Contains(err.Error(), "refusing to overwrite") {
		t.Fatalf("err = %v, want overwrite refusal", err)
	}
}

func TestStatusRequiresEnabledServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "masbot.yaml")
	cfgYAML := `instance: https://planet.example
accounts:
  - name: LUNA
    access_token: token
allowed_sender: master@planet.example
sheets:
  spreadsheet_id: sheet-id
  credentials_file: sa.json
`
	if err := os.WriteFile(path, []byte(cfgYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := runCommand(t, "", "status", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("err = %v, want disabled-server error", err)
	}
}
