package cli

import (
	"github.com/spf13/cobra"

	"github.com/ab-optimizer/ab-optimizer/internal/config"
)

var (
	dbPath    string
	apiURL    string
	websiteID string
	apiToken  string
)

var rootCmd = &cobra.Command{
	Use:   "abopt",
	Short: "ab-optimizer - A/B testing client for live-page variations",
	Long: `ab-optimizer fetches variation definitions for a website, assigns each
visitor to a traffic bucket deterministically, applies the chosen
variation's element changes, and reports impression and conversion
events. It also ships a local dev API server and an authoring flow for
building variations.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.EnvOrDefault("ABO_DB_PATH", "./abopt.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", config.EnvOrDefault("ABO_API_URL", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&websiteID, "website", config.EnvOrDefault("ABO_WEBSITE_ID", ""), "website id")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", config.EnvOrDefault("ABO_API_TOKEN", ""), "API bearer token")
}
