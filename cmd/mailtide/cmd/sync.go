package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/config"
	"github.com/mailtide/mailtide/internal/daemon"
)

var (
	syncFull  bool
	syncSince string
	syncUntil string
)

var syncCmd = &cobra.Command{
	Use:   "sync [email]",
	Short: "Run a one-shot sync",
	Long: `Run a single sync against the backend and exit.

Without flags an incremental sync fetches only messages newer than the
cached state. --full re-fetches the mailbox; --since (with optional
--until) syncs a date window.

With no email argument the first enabled account from config.toml is
synced.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "re-fetch the entire mailbox")
	syncCmd.Flags().StringVar(&syncSince, "since", "", "window start date (YYYY-MM-DD)")
	syncCmd.Flags().StringVar(&syncUntil, "until", "", "window end date (YYYY-MM-DD), requires --since")
	rootCmd.AddCommand(syncCmd)
}

// resolveAccount picks the account to operate on: the argument when given,
// otherwise the first enabled account.
func resolveAccount(args []string) (*config.AccountConfig, error) {
	if len(args) > 0 {
		acc := cfg.FindAccount(args[0])
		if acc == nil {
			return nil, fmt.Errorf("account %s is not configured", args[0])
		}
		return acc, nil
	}
	enabled := cfg.EnabledAccounts()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no enabled accounts configured")
	}
	return &enabled[0], nil
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncFull && syncSince != "" {
		return fmt.Errorf("--full and --since are mutually exclusive")
	}
	if syncUntil != "" && syncSince == "" {
		return fmt.Errorf("--until requires --since")
	}

	acc, err := resolveAccount(args)
	if err != nil {
		return err
	}

	client, err := newBackendClient()
	if err != nil {
		return err
	}

	d := daemon.New(cfg, client, nil, logger).WithNotifier(cliNotifier{})
	defer d.Close()

	d.Registry().Connect(account.Account{
		Email:    acc.Email,
		Provider: acc.Provider,
		Host:     acc.Host,
		Port:     acc.Port,
	})
	acct, _ := d.Registry().Account(acc.Email)

	ctx := cmd.Context()
	coord := d.Coordinator()
	switch {
	case syncSince != "":
		err = coord.WindowSync(ctx, acct, syncSince, syncUntil)
	case syncFull:
		err = coord.FullSync(ctx, acct)
	default:
		err = coord.Refresh(ctx, acct, 0, true)
	}
	if err != nil {
		return err
	}

	if report, ok := coord.Report(acct.Email); ok {
		fmt.Printf("Fetched %d, stored %d in %dms\n", report.Fetched, report.Stored, report.DurationMs)
	}
	return nil
}
