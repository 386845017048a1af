package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "variations",
		Short: "Inspect variations for a website",
	}
	cmd.AddCommand(newVariationsListCmd())
	cmd.AddCommand(newVariationsGetCmd())
	rootCmd.AddCommand(cmd)
}

func newVariationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the website's variations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := clientConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				variations := newTransport(s).FetchVariations(context.Background(), cfg.WebsiteID)
				if len(variations) == 0 {
					fmt.Println("No variations found")
					return nil
				}
				for _, v := range variations {
					fmt.Printf("%s  %-30s  %5.1f%%  %d changes\n",
						v.ID, v.Name, v.TrafficAllocation, len(v.Changes))
				}
				return nil
			})
		},
	}
}

func newVariationsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one variation's changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				v := newTransport(s).FetchVariationByID(context.Background(), args[0])
				if v == nil {
					return fmt.Errorf("variation not found: %s", args[0])
				}

				fmt.Printf("%s (%s)\n", v.Name, v.ID)
				fmt.Printf("  website: %s  allocation: %.1f%%\n", v.WebsiteID, v.TrafficAllocation)
				if v.URL != "" {
					fmt.Printf("  url: %s\n", v.URL)
				}
				for _, c := range v.Changes {
					switch {
					case c.Src != "":
						fmt.Printf("  [%s] %s -> %s (visible=%t)\n", c.Type, c.Selector, c.Src, c.Visible)
					case c.Type == "section":
						fmt.Printf("  [%s] %s (visible=%t)\n", c.Type, c.Selector, c.Visible)
					default:
						fmt.Printf("  [%s] %s -> %q (visible=%t)\n", c.Type, c.Selector, c.Content, c.Visible)
					}
				}
				return nil
			})
		},
	}
}
