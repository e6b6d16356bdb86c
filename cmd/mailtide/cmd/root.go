package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailtide/mailtide/internal/backend"
	"github.com/mailtide/mailtide/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailtide",
	Short: "Mail backend reconciliation client",
	Long: `mailtide keeps a local view of your mailboxes in step with the mail
backend process: it syncs message caches, reconciles sender groupings,
tracks in-flight remote deletions, and aggregates delete throughput
metrics.

The backend process owns the actual IMAP/provider connections; mailtide
only speaks to it over its local HTTP API and push channel.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Ensure home directory exists on first use
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.Data.DataDir, err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// newBackendClient creates the backend HTTP client from the loaded config.
func newBackendClient() (*backend.HTTPClient, error) {
	client, err := backend.NewHTTPClient(backend.Config{
		URL:           cfg.Backend.URL,
		APIKey:        cfg.Backend.APIKey,
		AllowInsecure: cfg.Backend.AllowInsecure,
		Timeout:       cfg.BackendTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}
	return client, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mailtide/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
