package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdirTemp runs Load from an empty directory so a developer's local
// config.yaml cannot leak into the test.
func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != 8742 {
		t.Errorf("server_port default = %d", cfg.ServerPort)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("db_driver default = %q", cfg.DBDriver)
	}
	if cfg.QueuePrefix != "mon-" {
		t.Errorf("queue_prefix default = %q", cfg.QueuePrefix)
	}
	if cfg.PollInterval != 30 {
		t.Errorf("poll_interval default = %d", cfg.PollInterval)
	}
	if cfg.DefaultThresholdKb != 10 {
		t.Errorf("default_threshold_kb default = %d", cfg.DefaultThresholdKb)
	}
	if cfg.FirstAlertDelay() != 5*time.Minute || cfg.SecondAlertDelay() != 60*time.Minute {
		t.Errorf("delay defaults = %s / %s", cfg.FirstAlertDelay(), cfg.SecondAlertDelay())
	}
	if !cfg.NotifyOnRecovery {
		t.Errorf("notify_on_recovery should default to true")
	}
	if cfg.RouterTransport != "rest" {
		t.Errorf("router_transport default = %q", cfg.RouterTransport)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("QWATCH_DEFAULT_THRESHOLD_KB", "25")
	t.Setenv("QWATCH_QUEUE_PREFIX", "cust-")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultThresholdKb != 25 {
		t.Errorf("env override ignored: threshold = %d", cfg.DefaultThresholdKb)
	}
	if cfg.QueuePrefix != "cust-" {
		t.Errorf("env override ignored: prefix = %q", cfg.QueuePrefix)
	}
}

func TestLoadConfigFile(t *testing.T) {
	chdirTemp(t)
	dir, _ := os.Getwd()
	yaml := "poll_interval_seconds: 60\nrouter_transport: ssh\nrouter_addr: 10.1.1.1\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 60 || cfg.RouterTransport != "ssh" || cfg.RouterAddr != "10.1.1.1" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestValidateRejections(t *testing.T) {
	chdirTemp(t)

	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"zero threshold", "QWATCH_DEFAULT_THRESHOLD_KB", "0"},
		{"negative threshold", "QWATCH_DEFAULT_THRESHOLD_KB", "-5"},
		{"zero interval", "QWATCH_POLL_INTERVAL_SECONDS", "0"},
		{"second delay below first", "QWATCH_SECOND_ALERT_DELAY_MINUTES", "1"},
		{"unknown transport", "QWATCH_ROUTER_TRANSPORT", "telnet"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv(c.key, c.value)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s accepted", c.key, c.value)
			}
		})
	}
}
