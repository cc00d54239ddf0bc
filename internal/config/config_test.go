package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr() != "0.0.0.0:8000" {
		t.Errorf("addr = %q", cfg.Addr())
	}
	if cfg.AgentCLIPath != "claude" {
		t.Errorf("cli path = %q", cfg.AgentCLIPath)
	}
	if cfg.TotalTimeout != time.Hour {
		t.Errorf("total timeout = %v", cfg.TotalTimeout)
	}
	if cfg.InactivityTimeout != 5*time.Minute {
		t.Errorf("inactivity timeout = %v", cfg.InactivityTimeout)
	}
	if cfg.KillTimeout != 5*time.Second {
		t.Errorf("kill timeout = %v", cfg.KillTimeout)
	}
	if cfg.AuthEnabled() {
		t.Error("auth should be off by default")
	}
	if cfg.UsePTY {
		t.Error("pty mode should be off by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("AGENT_CLI_PATH", "/opt/agent/bin/claude")
	t.Setenv("AGENT_INACTIVITY_TIMEOUT_MS", "1500")
	t.Setenv("WORKSPACE_BASE_PATH", "/srv/agent")
	t.Setenv("AGENT_USE_PTY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9001 {
		t.Errorf("port = %d", cfg.Port)
	}
	if cfg.AgentCLIPath != "/opt/agent/bin/claude" {
		t.Errorf("cli path = %q", cfg.AgentCLIPath)
	}
	if cfg.InactivityTimeout != 1500*time.Millisecond {
		t.Errorf("inactivity timeout = %v", cfg.InactivityTimeout)
	}
	if cfg.WorkspaceBase != "/srv/agent" {
		t.Errorf("workspace base = %q", cfg.WorkspaceBase)
	}
	if !cfg.UsePTY {
		t.Error("pty mode should be on")
	}
}

func TestValidAPIKeysMergesAndDeduplicates(t *testing.T) {
	t.Setenv("API_KEY", "alpha")
	t.Setenv("API_KEYS", "alpha, beta , ,gamma")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	keys := cfg.ValidAPIKeys()
	want := []string{"alpha", "beta", "gamma"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	if !cfg.AuthEnabled() {
		t.Error("auth should be enabled")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Load(); err == nil {
		t.Error("out-of-range port should fail")
	}
}
