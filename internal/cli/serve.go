package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ab-optimizer/ab-optimizer/internal/server"
	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dev API server",
	Long: `Start the local ab-optimizer API server.

The server mirrors the hosted service's endpoint surface: variation
reads (including the public and JSONP twins the client's fallback chain
probes), authoring writes, and event intake.

Example:
  abopt serve --port 8080`,
	RunE: runServe,
}

func init() {
	defaultPort := 8080
	if p := os.Getenv("ABO_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			defaultPort = parsed
		}
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	srv := server.New(s, port, apiToken)
	return srv.Start()
}
