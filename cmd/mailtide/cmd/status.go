package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running daemon",
	Long: `Query the status API of a running mailtide daemon and print the
connected accounts, their sync state, and any active delete cycles.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusAccount mirrors the status API account shape.
type statusAccount struct {
	Email      string `json:"email"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	Selected   bool   `json:"selected"`
	LastSyncAt string `json:"last_sync_at"`
}

// statusDeletes mirrors the status API deletes shape.
type statusDeletes struct {
	Active   bool `json:"active"`
	Counters struct {
		Pending   int `json:"pending"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"counters"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	baseURL := "http://" + net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort))
	client := &http.Client{Timeout: 5 * time.Second}

	var accountsResp struct {
		Accounts []statusAccount `json:"accounts"`
	}
	if err := getStatusJSON(client, baseURL+"/api/v1/accounts", &accountsResp); err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}

	if len(accountsResp.Accounts) == 0 {
		fmt.Println("No accounts connected.")
		return nil
	}

	for _, acc := range accountsResp.Accounts {
		marker := " "
		if acc.Selected {
			marker = "*"
		}
		lastSync := "never"
		if acc.LastSyncAt != "" {
			lastSync = acc.LastSyncAt
		}
		fmt.Printf("%s %s (%s)  status=%s  last_sync=%s\n", marker, acc.Email, acc.Provider, acc.Status, lastSync)

		var deletes statusDeletes
		if err := getStatusJSON(client, baseURL+"/api/v1/accounts/"+acc.Email+"/deletes", &deletes); err != nil {
			continue
		}
		if deletes.Active {
			fmt.Printf("    deletes: %d pending, %d completed, %d failed\n",
				deletes.Counters.Pending, deletes.Counters.Completed, deletes.Counters.Failed)
		}
	}
	return nil
}

// getStatusJSON performs an authenticated GET against the status API.
func getStatusJSON(client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	if cfg.Server.APIKey != "" {
		req.Header.Set("X-API-Key", cfg.Server.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status API returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
