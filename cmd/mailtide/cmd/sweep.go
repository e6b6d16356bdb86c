package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/daemon"
)

var sweepAccount string

var sweepCmd = &cobra.Command{
	Use:   "sweep UID [UID...]",
	Short: "Queue messages for remote deletion",
	Long: `Queue the given message UIDs for remote deletion.

The backend archives each message locally and confirms the remote
expunge asynchronously; this command returns once every UID has been
accepted into the delete queue.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAccount, "account", "", "account email (default: first enabled account)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	var accountArgs []string
	if sweepAccount != "" {
		accountArgs = []string{sweepAccount}
	}
	acc, err := resolveAccount(accountArgs)
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

	if err := d.Coordinator().SweepUIDs(cmd.Context(), acct, args); err != nil {
		return err
	}

	counters, _ := d.Tracker().Counters(acct.Email)
	fmt.Printf("Queued %d messages for remote deletion\n", counters.Pending)
	return nil
}
