package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailtide/mailtide/internal/api"
	"github.com/mailtide/mailtide/internal/backend"
	"github.com/mailtide/mailtide/internal/daemon"
	"github.com/mailtide/mailtide/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run mailtide as a daemon",
	Long: `Run mailtide as a long-running daemon that keeps the local cache in
step with the backend.

The daemon runs in the foreground and performs:
  - Background incremental refresh of the selected account (default: every 30s)
  - Push-event consumption from the backend (sync progress, delete lifecycle)
  - A local HTTP status API on the configured port (default: 8930)

Configure accounts in config.toml:
  [[accounts]]
  email = "you@example.com"
  provider = "gmail"
  enabled = true

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	if len(cfg.EnabledAccounts()) == 0 {
		return fmt.Errorf("no enabled accounts configured\n\nAdd accounts to config.toml:\n\n  [[accounts]]\n  email = \"you@example.com\"\n  provider = \"gmail\"\n  enabled = true")
	}

	client, err := newBackendClient()
	if err != nil {
		return err
	}

	// Open the local cache database
	cache, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer cache.Close()

	if err := cache.InitSchema(); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	d := daemon.New(cfg, client, cache, logger)
	defer d.Close()

	count := d.ConnectConfigured()
	d.Start()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Consume backend push events for the daemon's lifetime
	stream := backend.NewEventStream(client, d).WithLogger(logger)
	go func() {
		_ = stream.Run(ctx)
	}()

	// Start the status API server
	apiServer := api.NewServer(cfg, d, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("mailtide daemon started\n")
	fmt.Printf("  Status API: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Backend: %s\n", cfg.Backend.URL)
	fmt.Printf("  Accounts: %d (polling %s every %s)\n", count, d.Registry().Selected(), cfg.PollInterval())
	fmt.Printf("  Data directory: %s\n", cfg.Data.DataDir)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		logger.Error("status API error", "error", err)
		fmt.Printf("\nStatus API error: %v\n", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("status API shutdown error", "error", err)
	}

	fmt.Println("Shutdown complete.")
	return nil
}
