package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "Inspect or clear stored variation assignments",
	}
	cmd.AddCommand(newAssignmentsListCmd())
	cmd.AddCommand(newAssignmentsClearCmd())
	rootCmd.AddCommand(cmd)
}

func newAssignmentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				assignments, err := s.ListAssignments(context.Background())
				if err != nil {
					return fmt.Errorf("failed to list assignments: %w", err)
				}
				if len(assignments) == 0 {
					fmt.Println("No active assignments")
					return nil
				}

				keys := make([]string, 0, len(assignments))
				for k := range assignments {
					keys = append(keys, k)
				}
				sort.Strings(keys)

				for _, k := range keys {
					rec := assignments[k]
					full := ""
					if rec.IsFullAllocation {
						full = "  (full allocation)"
					}
					fmt.Printf("%s\n  experiment=%s variation=%s expires=%s%s\n",
						k, rec.ExperimentID, rec.VariationID,
						rec.ExpiresAt.Format("2006-01-02 15:04"), full)
				}
				return nil
			})
		},
	}
}

func newAssignmentsClearCmd() *cobra.Command {
	var website string
	var path string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored assignments",
		Long:  "Clears all assignments, or only those for a website page when --website is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				if website == "" {
					if err := s.ClearAll(ctx); err != nil {
						return fmt.Errorf("failed to clear assignments: %w", err)
					}
					fmt.Println("Cleared all assignments")
					return nil
				}

				prefix := store.KeyPrefix(website, path)
				if err := s.ClearPrefix(ctx, prefix, ""); err != nil {
					return fmt.Errorf("failed to clear assignments: %w", err)
				}
				fmt.Printf("Cleared assignments for %s\n", prefix)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&website, "website", "", "Clear only this website's assignments")
	cmd.Flags().StringVar(&path, "path", "/", "Page path to clear (with --website)")
	return cmd
}
