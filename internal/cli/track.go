package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ab-optimizer/ab-optimizer/internal/config"
	"github.com/ab-optimizer/ab-optimizer/internal/track"
)

func init() {
	rootCmd.AddCommand(newTrackCmd())
}

func newTrackCmd() *cobra.Command {
	var experimentID string
	var variationID string
	var pageURL string

	cmd := &cobra.Command{
		Use:   "track <impression|conversion>",
		Short: "Send a tracking event by hand",
		Long:  "Sends a single impression or conversion event to the API, useful for smoke-testing a deployment.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType := args[0]
			if eventType != track.EventImpression && eventType != track.EventConversion {
				return fmt.Errorf("unknown event type: %s", eventType)
			}
			if experimentID == "" && variationID == "" {
				return fmt.Errorf("--experiment or --variation required")
			}

			page := config.ParsePageURL(pageURL)
			reporter := track.New(apiURL)
			if eventType == track.EventConversion {
				reporter.ReportConversion(context.Background(), experimentID, variationID, page)
			} else {
				reporter.ReportImpression(context.Background(), experimentID, variationID, page)
			}

			// Delivery is best effort, so all we can report is that it left.
			fmt.Printf("Sent %s for variation %s\n", eventType, variationID)
			return nil
		},
	}

	cmd.Flags().StringVar(&experimentID, "experiment", "", "experiment ID")
	cmd.Flags().StringVar(&variationID, "variation", "", "variation ID")
	cmd.Flags().StringVar(&pageURL, "page", "", "page URL to attribute the event to")
	return cmd
}
