package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	fila "github.com/filaone/fila-go"
	"github.com/spf13/cobra"
)

var initPassword string

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initPassword, "password", "p", "", "password (prompted when omitted)")
}

var initCmd = &cobra.Command{
	Use:   "init <email>",
	Short: "Authenticate and store the session in ~/.fila/config.toml",
	Long:  "Log in with your staff credentials and store the access token in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		password := initPassword
		if password == "" {
			fmt.Print("Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("cannot read password: %w", err)
			}
			password = strings.TrimSpace(line)
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		client := fila.NewClient("", clientOptions(cfg)...)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		auth, err := client.Auth().Login(ctx, &fila.LoginOptions{Email: email, Password: password})
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg.Auth.AccessToken = auth.AccessToken
		cfg.Auth.AgentID = auth.User.ID
		cfg.Auth.AgentEmail = auth.User.Email
		cfg.Auth.AgentName = auth.User.Name
		if cfg.Default.TenantID == "" {
			cfg.Default.TenantID = auth.User.TenantID
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Logged in as %s. Session saved to %s\n", auth.User.Email, path)
		return nil
	},
}
