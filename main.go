// QueueWatch — Router queue traffic monitor with staged low-traffic alerting.
// Author: vesaa | License: MIT | https://github.com/vesaa/queuewatch
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/vesaa/queuewatch/internal/alert"
	"github.com/vesaa/queuewatch/internal/clock"
	"github.com/vesaa/queuewatch/internal/config"
	"github.com/vesaa/queuewatch/internal/notify"
	"github.com/vesaa/queuewatch/internal/poller"
	"github.com/vesaa/queuewatch/internal/router"
	"github.com/vesaa/queuewatch/internal/sampler"
	"github.com/vesaa/queuewatch/internal/server"
	"github.com/vesaa/queuewatch/internal/store"
)

const asciiLogo = `
  ██████╗ ██╗   ██╗███████╗██╗   ██╗███████╗██╗    ██╗ █████╗ ████████╗ ██████╗██╗  ██╗
 ██╔═══██╗██║   ██║██╔════╝██║   ██║██╔════╝██║    ██║██╔══██╗╚══██╔══╝██╔════╝██║  ██║
 ██║   ██║██║   ██║█████╗  ██║   ██║█████╗  ██║ █╗ ██║███████║   ██║   ██║     ███████║
 ██║▄▄ ██║██║   ██║██╔══╝  ██║   ██║██╔══╝  ██║███╗██║██╔══██║   ██║   ██║     ██╔══██║
 ╚██████╔╝╚██████╔╝███████╗╚██████╔╝███████╗╚███╔███╔╝██║  ██║   ██║   ╚██████╗██║  ██║
  ╚══▀▀═╝  ╚═════╝ ╚══════╝ ╚═════╝ ╚══════╝ ╚══╝╚══╝ ╚═╝  ╚═╝   ╚═╝    ╚═════╝╚═╝  ╚═╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Print(asciiLogo, "\n")
	fmt.Printf("  ► QueueWatch %s  |  Author: vesaa  |  Mode: %s\n\n", version, mode)
}

func main() {
	root := &cobra.Command{
		Use:   "queuewatch",
		Short: "QueueWatch — router queue traffic monitor with staged alerting",
		Long: `QueueWatch polls a router's queue API on a fixed interval, persists
traffic samples, and escalates low-traffic alerts per entity in two stages
with recovery detection. Alerts survive restarts.`,
		SilenceUsage: true,
	}

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the QueueWatch server (poll scheduler + admin API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}

			ev, p, err := buildCore(cfg, st)
			if err != nil {
				return err
			}

			// Inject security settings into server package globals.
			server.SetJWTSecret(cfg.JWTSecret)
			server.SetAdminCredentials(cfg.AdminUser, cfg.AdminPass)

			gin.SetMode(gin.ReleaseMode)
			corsMiddleware := func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
				c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				if c.Request.Method == "OPTIONS" {
					c.AbortWithStatus(204)
					return
				}
				c.Next()
			}

			engine := gin.New()
			engine.Use(gin.Recovery(), corsMiddleware)
			server.New(cfg, st, ev, p).RegisterRoutes(engine)

			addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
			fmt.Printf("  ✓ Admin API + metrics → http://%s\n", addr)
			fmt.Printf("  ✓ Router (%s)     → %s\n", cfg.RouterTransport, cfg.RouterAddr)
			fmt.Printf("  ✓ Poll interval       → %ds\n", cfg.PollInterval)
			fmt.Printf("  ✓ Default login: %s / %s\n\n", cfg.AdminUser, cfg.AdminPass)

			// Run the poll loop and the API concurrently; shut down gracefully
			// on SIGINT. The in-flight cycle may finish or be abandoned — the
			// evaluator tolerates a lost transition via its boot-time restore.
			pollCtx, stopPolling := context.WithCancel(context.Background())
			defer stopPolling()
			go p.Run(pollCtx)

			srv := &http.Server{Addr: addr, Handler: engine}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt) // os.Interrupt = SIGINT; works on all platforms

			select {
			case err := <-errCh:
				return err
			case <-quit:
				fmt.Println("\n  → Shutting down gracefully…")
				stopPolling()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
				return nil
			}
		},
	}

	// ── poll subcommand ───────────────────────────────────────────────────────
	pollCmd := &cobra.Command{
		Use:   "poll",
		Short: "Run exactly one sample-then-evaluate cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("POLL")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			_, p, err := buildCore(cfg, st)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := p.RunOnce(ctx); err != nil {
				return fmt.Errorf("poll cycle: %w", err)
			}
			fmt.Println("  ✓ Cycle complete")
			return nil
		},
	}

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print QueueWatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("QueueWatch %s  |  Author: vesaa\n", version)
		},
	}

	root.AddCommand(serverCmd, pollCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildCore constructs the poll pipeline: router client, sampler, notifier
// channels, evaluator (with tracker restored from the database), and poller.
func buildCore(cfg *config.Config, st *store.Store) (*alert.Evaluator, *poller.Poller, error) {
	clk := clock.Real{}

	var rc router.Client
	timeout := time.Duration(cfg.RouterTimeout) * time.Second
	switch cfg.RouterTransport {
	case "ssh":
		rc = router.NewSSHClient(cfg.RouterAddr, cfg.RouterUser, cfg.RouterPass, timeout)
	default:
		rc = router.NewRESTClient(cfg.RouterAddr, cfg.RouterUser, cfg.RouterPass, timeout, cfg.RouterRetries)
	}

	dispatcher := notify.NewDispatcher(buildChannels(cfg))

	tracker := alert.NewTracker()
	ev := alert.NewEvaluator(st, dispatcher, clk, tracker, alert.Options{
		DefaultThresholdKb: cfg.DefaultThresholdKb,
		FirstAlertDelay:    cfg.FirstAlertDelay(),
		SecondAlertDelay:   cfg.SecondAlertDelay(),
		NotifyOnRecovery:   cfg.NotifyOnRecovery,
	})
	if err := ev.Restore(); err != nil {
		return nil, nil, fmt.Errorf("restoring alert state: %w", err)
	}

	smp := sampler.New(st, clk, cfg.QueuePrefix)
	p := poller.New(st, rc, smp, ev, time.Duration(cfg.PollInterval)*time.Second)
	return ev, p, nil
}

// buildChannels assembles the enabled notification channels. A channel with
// incomplete credentials is skipped with a warning rather than failing boot —
// monitoring without notifications still beats no monitoring.
func buildChannels(cfg *config.Config) []notify.Channel {
	var channels []notify.Channel

	if cfg.EmailEnabled {
		ch, err := notify.NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom, cfg.EmailTo)
		if err != nil {
			log.Printf("[notify] email channel disabled: %v", err)
		} else {
			channels = append(channels, ch)
		}
	}
	if cfg.TelegramEnabled {
		ch, err := notify.NewTelegramChannel(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("[notify] telegram channel disabled: %v", err)
		} else {
			channels = append(channels, ch)
		}
	}

	if len(channels) == 0 {
		log.Printf("[notify] no notification channels configured — alerts will only be recorded")
	}
	return channels
}
