package main

import (
	"context"
	"fmt"
	"time"

	fila "github.com/filaone/fila-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and session status",
	Long:  "Display the current configuration, local token expiry, and live token/session status from the server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Print config summary.
		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:  %s\n", valueOrDefault(cfg.Default.BaseURL, "(default)"))
		fmt.Printf("  Tenant:    %s\n", valueOrDefault(cfg.Default.TenantID, "(not set)"))

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.AgentEmail != "" {
			fmt.Printf("  Agent:     %s (%s)\n", cfg.Auth.AgentName, cfg.Auth.AgentEmail)
		} else {
			fmt.Println("  Agent:     (not logged in)")
		}
		if cfg.Auth.AccessToken != "" {
			fmt.Printf("  Token:     %s\n", maskToken(cfg.Auth.AccessToken))
		} else {
			fmt.Println("  Token:     none")
			return nil
		}

		client := fila.NewClient(cfg.Auth.AccessToken, clientOptions(cfg)...)

		// Local expiry from the token itself, no network needed.
		if exp, ok := client.TokenManager(nil).ExpiresAt(); ok {
			if time.Now().Before(exp) {
				fmt.Printf("  Expires:   %s (in %s)\n",
					exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
			} else {
				fmt.Printf("  Expires:   EXPIRED at %s\n", exp.Format(time.RFC3339))
			}
		}

		fmt.Println()
		fmt.Println("Live status:")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		status, err := client.Dashboard().TokenStatus(ctx)
		if err != nil {
			fmt.Printf("  Error fetching token status: %v\n", err)
			return nil
		}
		fmt.Printf("  Status:          %s\n", status.Status)
		fmt.Printf("  Time to expire:  %s\n", status.TimeToExpire)
		fmt.Printf("  Should refresh:  %t\n", status.ShouldRefresh)

		info, err := client.Dashboard().SessionInfo(ctx)
		if err != nil {
			fmt.Printf("  Error fetching session info: %v\n", err)
			return nil
		}
		fmt.Printf("  Role:            %s\n", info.Role)
		fmt.Printf("  Session start:   %s\n", info.SessionStart)
		fmt.Printf("  Last activity:   %s\n", info.LastActivity)
		if info.Warnings.TokenExpiring {
			fmt.Printf("  WARNING: token expiring, %s remaining\n", info.Warnings.TimeRemaining)
		}

		return nil
	},
}
