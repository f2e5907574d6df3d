// Package config provides dynamic configuration management for QueueWatch.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for QueueWatch.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`
	DBPath     string `mapstructure:"db_path"`
	DBDriver   string `mapstructure:"db_driver"` // "sqlite" or "mysql"
	DBDSN      string `mapstructure:"db_dsn"`    // used when db_driver = mysql

	// ── Security ──────────────────────────────────────────────────────────────
	// JWTSecret: HS256 signing key for the admin API tokens.
	// Change this in production — default is a random-looking placeholder.
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminUser string `mapstructure:"admin_user"`
	AdminPass string `mapstructure:"admin_pass"`

	// ── Router collaborator ───────────────────────────────────────────────────
	// RouterTransport selects how queue rates are fetched: "rest" talks to the
	// RouterOS-style REST API, "ssh" runs a print script over SSH for firmwares
	// without the REST service.
	RouterTransport string `mapstructure:"router_transport"`
	RouterAddr      string `mapstructure:"router_addr"`
	RouterUser      string `mapstructure:"router_user"`
	RouterPass      string `mapstructure:"router_pass"`
	RouterTimeout   int    `mapstructure:"router_timeout_seconds"`
	RouterRetries   int    `mapstructure:"router_max_attempts"`

	// ── Polling & thresholds ──────────────────────────────────────────────────
	// QueuePrefix: only queues whose name starts with this prefix are sampled.
	QueuePrefix  string `mapstructure:"queue_prefix"`
	PollInterval int    `mapstructure:"poll_interval_seconds"`
	// DefaultThresholdKb applies to entities without a per-entity threshold.
	DefaultThresholdKb  int  `mapstructure:"default_threshold_kb"`
	FirstAlertDelayMin  int  `mapstructure:"first_alert_delay_minutes"`
	SecondAlertDelayMin int  `mapstructure:"second_alert_delay_minutes"`
	NotifyOnRecovery    bool `mapstructure:"notify_on_recovery"`

	// ── Notification channels ─────────────────────────────────────────────────
	EmailEnabled bool     `mapstructure:"email_enabled"`
	SMTPHost     string   `mapstructure:"smtp_host"`
	SMTPPort     int      `mapstructure:"smtp_port"`
	SMTPUser     string   `mapstructure:"smtp_user"`
	SMTPPass     string   `mapstructure:"smtp_pass"`
	EmailFrom    string   `mapstructure:"email_from"`
	EmailTo      []string `mapstructure:"email_to"`

	TelegramEnabled  bool   `mapstructure:"telegram_enabled"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
}

// FirstAlertDelay returns the first escalation gate as a duration.
func (c *Config) FirstAlertDelay() time.Duration {
	return time.Duration(c.FirstAlertDelayMin) * time.Minute
}

// SecondAlertDelay returns the second escalation gate as a duration.
func (c *Config) SecondAlertDelay() time.Duration {
	return time.Duration(c.SecondAlertDelayMin) * time.Minute
}

// Load reads config from file (./config.yaml or ~/.queuewatch/config.yaml)
// and falls back to smart defaults. Environment variables with prefix QWATCH_
// override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Smart Defaults ---
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8742)
	v.SetDefault("db_path", "queuewatch.db")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")

	// Security defaults — MUST be overridden in production via config.yaml or env vars.
	v.SetDefault("jwt_secret", "Qw7#tK2$nX9@pV4!mB6^rL1&zD8*cF3")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass", "admin")

	v.SetDefault("router_transport", "rest")
	v.SetDefault("router_addr", "192.168.88.1")
	v.SetDefault("router_user", "monitor")
	v.SetDefault("router_pass", "")
	v.SetDefault("router_timeout_seconds", 10)
	v.SetDefault("router_max_attempts", 3)

	v.SetDefault("queue_prefix", "mon-")
	v.SetDefault("poll_interval_seconds", 30)
	v.SetDefault("default_threshold_kb", 10)
	v.SetDefault("first_alert_delay_minutes", 5)
	v.SetDefault("second_alert_delay_minutes", 60)
	v.SetDefault("notify_on_recovery", true)

	v.SetDefault("email_enabled", false)
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 25)
	v.SetDefault("smtp_user", "")
	v.SetDefault("smtp_pass", "")
	v.SetDefault("email_from", "queuewatch@localhost")
	v.SetDefault("email_to", []string{})

	v.SetDefault("telegram_enabled", false)
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", "")

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.queuewatch")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("QWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects values the poll core cannot operate with.
func (c *Config) validate() error {
	if c.DefaultThresholdKb <= 0 {
		return fmt.Errorf("default_threshold_kb must be a positive integer, got %d", c.DefaultThresholdKb)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollInterval)
	}
	if c.SecondAlertDelayMin < c.FirstAlertDelayMin {
		return fmt.Errorf("second_alert_delay_minutes (%d) must not be lower than first_alert_delay_minutes (%d)",
			c.SecondAlertDelayMin, c.FirstAlertDelayMin)
	}
	switch c.RouterTransport {
	case "rest", "ssh":
	default:
		return fmt.Errorf("unsupported router_transport %q (use 'rest' or 'ssh')", c.RouterTransport)
	}
	return nil
}
