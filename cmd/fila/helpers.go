package main

import (
	"fmt"
	"os"

	fila "github.com/filaone/fila-go"
)

// clientOptions builds the options shared by every command from the config
// file and environment.
func clientOptions(cfg *Config) []fila.ClientOption {
	var opts []fila.ClientOption
	if url := os.Getenv("FILA_API_URL"); url != "" {
		opts = append(opts, fila.WithBaseURL(url))
	} else if cfg.Default.BaseURL != "" {
		opts = append(opts, fila.WithBaseURL(cfg.Default.BaseURL))
	}
	return opts
}

// getClient creates a client authenticated with the stored access token.
func getClient() (*fila.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.AccessToken == "" {
		fmt.Fprintln(os.Stderr, "Not authenticated. Run 'fila init <email>' first.")
		os.Exit(1)
	}

	return fila.NewClient(cfg.Auth.AccessToken, clientOptions(cfg)...), cfg
}

// requireTenant returns the tenant id from config or exits with guidance.
func requireTenant(cfg *Config) string {
	if cfg.Default.TenantID == "" {
		fmt.Fprintln(os.Stderr, "No tenant configured. Run 'fila config set default.tenant_id <id>'.")
		os.Exit(1)
	}
	return cfg.Default.TenantID
}

// maskToken shows the first 12 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 16 {
		if len(token) <= 8 {
			return "****"
		}
		return token[:4] + "..." + token[len(token)-4:]
	}
	return token[:12] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
