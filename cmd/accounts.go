package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zooyoda/workspace-mcp/internal/auth"
	"github.com/zooyoda/workspace-mcp/internal/config"
)

// newAccountsCmd lists the Google accounts with stored credentials.
func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List Google accounts with stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv(config.Config{})
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			store, err := auth.NewTokenStore(cfg.CredentialsPath, logger)
			if err != nil {
				return err
			}

			accounts, err := store.List()
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Println("No accounts with stored credentials.")
				fmt.Printf("Credentials directory: %s\n", cfg.CredentialsPath)
				return nil
			}

			for _, account := range accounts {
				record, err := store.Load(account)
				if err != nil {
					fmt.Printf("%s\t(unreadable: %v)\n", account, err)
					continue
				}
				state := "valid"
				if time.Now().After(record.Expiry()) {
					state = "expired"
					if record.RefreshToken != "" {
						state = "expired, refreshable"
					}
				}
				fmt.Printf("%s\t%s\texpires %s\n", account, state,
					record.Expiry().Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}
