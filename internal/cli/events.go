package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

func init() {
	rootCmd.AddCommand(newEventsCmd())
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List events recorded by the local server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				events, err := s.ListEvents(context.Background(), websiteID)
				if err != nil {
					return fmt.Errorf("failed to list events: %w", err)
				}
				if len(events) == 0 {
					fmt.Println("No events recorded")
					return nil
				}

				for _, ev := range events {
					fmt.Printf("%s  %-10s  experiment=%s variation=%s  %s\n",
						ev.CreatedAt.Format("2006-01-02 15:04:05"),
						ev.EventType, ev.ExperimentID, ev.VariationID, ev.URL)
				}
				return nil
			})
		},
	}
}
