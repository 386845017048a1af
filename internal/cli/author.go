package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ab-optimizer/ab-optimizer/internal/author"
	"github.com/ab-optimizer/ab-optimizer/internal/dom"
	"github.com/ab-optimizer/ab-optimizer/internal/store"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

func init() {
	rootCmd.AddCommand(newAuthorCmd())
}

func newAuthorCmd() *cobra.Command {
	var editID string
	var pageURL string

	cmd := &cobra.Command{
		Use:   "author",
		Short: "Build a variation interactively",
		Long: `Build a variation change by change and save it to the API.

Each change names an element by CSS selector and describes the edit:
a text replacement, a media source swap, or a section visibility toggle.
Use --edit to load an existing variation and continue from its changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := clientConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				sess := author.New(dom.NewDocument(), newTransport(s), cfg.WebsiteID, pageURL)

				if editID != "" {
					if err := sess.LoadExisting(ctx, editID); err != nil {
						return err
					}
					fmt.Printf("Editing %q (%d changes)\n", sess.Name(), len(sess.Changes()))
				}

				return runAuthorLoop(ctx, sess)
			})
		},
	}

	cmd.Flags().StringVarP(&editID, "edit", "e", "", "variation ID to edit")
	cmd.Flags().StringVarP(&pageURL, "url", "u", "", "page URL the variation applies to")
	return cmd
}

func runAuthorLoop(ctx context.Context, sess *author.Session) error {
	actions := []string{
		"Edit text",
		"Swap image",
		"Swap video",
		"Swap iframe",
		"Toggle section",
		"Remove a change",
		"Save and exit",
		"Discard and exit",
	}

	for {
		prompt := promptui.Select{
			Label: fmt.Sprintf("Action (%d changes so far)", len(sess.Changes())),
			Items: actions,
			Size:  len(actions),
		}

		idx, _, err := prompt.Run()
		if err != nil {
			if err == promptui.ErrInterrupt {
				os.Exit(0)
			}
			return err
		}

		switch idx {
		case 0:
			err = promptTextChange(sess)
		case 1:
			err = promptMediaChange(sess, variation.ChangeImage)
		case 2:
			err = promptMediaChange(sess, variation.ChangeVideo)
		case 3:
			err = promptMediaChange(sess, variation.ChangeIframe)
		case 4:
			err = promptSectionChange(sess)
		case 5:
			err = promptRemoveChange(sess)
		case 6:
			return saveVariation(ctx, sess)
		case 7:
			fmt.Println("Discarded")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func promptTextChange(sess *author.Session) error {
	sel, err := promptString("Element selector", "")
	if err != nil {
		return err
	}
	content, err := promptString("New text", "")
	if err != nil {
		return err
	}
	visible, err := promptVisible()
	if err != nil {
		return err
	}

	sess.Add(variation.Change{
		Selector: sel,
		Type:     variation.ChangeText,
		Content:  content,
		Visible:  visible,
	})
	return nil
}

func promptMediaChange(sess *author.Session, typ variation.ChangeType) error {
	sel, err := promptString("Element selector", "")
	if err != nil {
		return err
	}
	src, err := promptString("New source URL", "")
	if err != nil {
		return err
	}

	c := variation.Change{
		Selector: sel,
		Type:     typ,
		Src:      src,
		Visible:  true,
	}
	if typ == variation.ChangeImage {
		if c.Alt, err = promptString("Alt text (optional)", ""); err != nil {
			return err
		}
	}

	sess.Add(c)
	return nil
}

func promptSectionChange(sess *author.Session) error {
	sel, err := promptString("Section selector", "")
	if err != nil {
		return err
	}
	visible, err := promptVisible()
	if err != nil {
		return err
	}

	sess.Add(variation.Change{
		Selector: sel,
		Type:     variation.ChangeSection,
		Visible:  visible,
	})
	return nil
}

func promptRemoveChange(sess *author.Session) error {
	changes := sess.Changes()
	if len(changes) == 0 {
		fmt.Println("No changes to remove")
		return nil
	}

	items := make([]string, len(changes))
	for i, c := range changes {
		items[i] = fmt.Sprintf("[%s] %s", c.Type, c.Selector)
	}

	prompt := promptui.Select{
		Label: "Remove which change",
		Items: items,
		Size:  len(items),
	}
	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return err
	}
	return sess.RemoveChange(idx)
}

func saveVariation(ctx context.Context, sess *author.Session) error {
	name := sess.Name()
	if name == "" {
		var err error
		if name, err = promptString("Variation name", ""); err != nil {
			return err
		}
		sess.SetName(name)
	}

	pct, err := promptPercentage("Traffic allocation %", sess.Allocation())
	if err != nil {
		return err
	}
	sess.SetAllocation(pct)

	saved, err := sess.Save(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %q as %s (%d changes)\n", saved.Name, saved.ID, len(saved.Changes))
	return nil
}

func promptString(label, def string) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: def,
	}
	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return result, nil
}

func promptVisible() (bool, error) {
	prompt := promptui.Select{
		Label: "Element visibility",
		Items: []string{"Visible", "Hidden"},
		Size:  2,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return false, err
	}
	return idx == 0, nil
}

func promptPercentage(label string, def float64) (float64, error) {
	raw, err := promptString(label, strconv.FormatFloat(def, 'f', -1, 64))
	if err != nil {
		return 0, err
	}
	pct, err := strconv.ParseFloat(raw, 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, fmt.Errorf("invalid percentage: %s", raw)
	}
	return pct, nil
}
