package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ab-optimizer/ab-optimizer/internal/dom"
	"github.com/ab-optimizer/ab-optimizer/internal/session"
	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	var convert bool

	cmd := &cobra.Command{
		Use:   "run <page-url>",
		Short: "Execute the assignment pipeline for a page",
		Long: `Run the full pipeline for a page URL: fetch candidate variations,
allocate a traffic bucket (consulting the persisted assignment), apply
the chosen variation's changes, and report an impression.

The page URL's query string is interpreted the same way the embedded
client interprets it: exp_<id> forces a variation, ab_reset clears all
persisted assignments, design enables authoring preview semantics.

Without a live page there is no document to mutate, so changes are
resolved against an empty document and reported as missing selectors;
the allocation decision and event reporting are real.

Examples:
  abopt run https://example.com/ --website site-1
  abopt run "https://example.com/?exp_42" --website site-1
  abopt run https://example.com/pricing --convert`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageURL := args[0]

			cfg := clientConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				sess := session.New(cfg, pageURL, s)
				res := sess.Run(ctx, dom.NewDocument())

				switch {
				case res.DesignMode:
					fmt.Println("Design mode: no experiment applied")
				case res.Variation == nil:
					fmt.Println("Default content selected (no variation applied)")
				default:
					fmt.Printf("Selected variation %s (%q)\n", res.Variation.ID, res.Variation.Name)
					fmt.Printf("  applied: %d  missing: %d  failed: %d\n",
						len(res.Report.Applied), len(res.Report.Missing), len(res.Report.Failed))
					for _, sel := range res.Report.Missing {
						fmt.Printf("  missing selector: %s\n", sel)
					}
				}

				if convert {
					sess.Convert(ctx)
					fmt.Println("Conversion reported")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&convert, "convert", false, "also report a conversion for the applied variation")
	return cmd
}
