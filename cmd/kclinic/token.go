package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/kclinic/internal/api"
	"github.com/goodtune/kclinic/internal/config"
	"github.com/spf13/cobra"
)

var (
	tokenPractitioner string
	tokenRole         string
	tokenTTL          time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token",
	Long:  `Sign a JWT for the KClinic API with the configured api.jwt_secret.`,
	Example: `  kclinic token --practitioner dr-amal
  kclinic token --role admin --ttl 1h`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenPractitioner, "practitioner", "", "Practitioner ID the token acts for")
	tokenCmd.Flags().StringVar(&tokenRole, "role", api.RolePractitioner, "Token role (practitioner or admin)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to api.token_expiration)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	auth := api.NewAuthService(cfg.API.JWTSecret, parseDuration(cfg.API.TokenExpiration, api.DefaultTokenExpiration))

	token, expiresAt, err := auth.IssueToken(tokenPractitioner, tokenRole, tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	// Token on stdout so it can be captured; details on stderr
	fmt.Fprintln(os.Stdout, token)
	_, _ = color.New(color.Faint).Fprintf(os.Stderr, "role=%s practitioner=%s expires=%s\n",
		tokenRole, tokenPractitioner, expiresAt.Format(time.RFC3339))

	return nil
}
