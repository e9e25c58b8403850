package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/config"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("VICTRON_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidFlowsFile verifies run stops before serving when the
// saved flows cannot be parsed.
func TestRun_InvalidFlowsFile(t *testing.T) {
	dir := t.TempDir()
	flowsPath := filepath.Join(dir, "flows.yaml")
	if err := os.WriteFile(flowsPath, []byte("nodes: [unclosed"), 0600); err != nil {
		t.Fatalf("failed to write flows: %v", err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: "` + filepath.Join(dir, "bridge.db") + `"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
runtime:
  flows_file: "` + flowsPath + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("VICTRON_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with an unparseable flows file")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("VICTRON_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("VICTRON_CONFIG", "/etc/victron/bridge.yaml")
	if got := getConfigPath(); got != "/etc/victron/bridge.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}

func TestRecordAddresses(t *testing.T) {
	addrs := recordAddresses([]config.RecordConfig{
		{Service: "com.victronenergy.battery.ttyO1", Path: "Soc"},
		{Service: "com.victronenergy.system", Path: "/Dc/Battery/Power"},
	})
	if len(addrs) != 2 {
		t.Fatalf("len = %d, want 2", len(addrs))
	}
	if addrs[0].Path != "/Soc" {
		t.Errorf("Path = %q, want /Soc", addrs[0].Path)
	}
}

func TestTokenTTL(t *testing.T) {
	cfg := &config.Config{}
	if got := tokenTTL(cfg); got != 15*time.Minute {
		t.Errorf("tokenTTL() = %v, want 15m", got)
	}
	cfg.Security.JWT.AccessTokenTTL = 60
	if got := tokenTTL(cfg); got != time.Hour {
		t.Errorf("tokenTTL() = %v, want 1h", got)
	}
}

func TestPrintToken_Usage(t *testing.T) {
	if err := printToken(nil); err == nil {
		t.Error("printToken() without a subject should fail")
	}
}
