package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/romega/certforge/pkg/batch"
	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/cert/placeholder"
)

// newPlaceholdersCmd creates the placeholders command group.
func newPlaceholdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "placeholders",
		Short: "List and validate placeholder usage in a design",
	}

	cmd.AddCommand(newPlaceholdersListCmd())
	cmd.AddCommand(newPlaceholdersValidateCmd())

	return cmd
}

// newPlaceholdersListCmd creates the "placeholders list" subcommand.
func newPlaceholdersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [design.json]",
		Short: "List the placeholders a design uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			design, err := cert.LoadDesign(args[0])
			if err != nil {
				return err
			}

			names := placeholder.ExtractFromElements(design.TextElements)
			if len(names) == 0 {
				printInfo("Design uses no placeholders")
				return nil
			}
			for _, name := range names {
				fmt.Println("  " + StyleHighlight.Render("{{"+name+"}}"))
			}
			return nil
		},
	}
}

// newPlaceholdersValidateCmd creates the "placeholders validate"
// subcommand: check that every recipient can fill every placeholder the
// design uses.
func newPlaceholdersValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [design.json] [recipients.json]",
		Short: "Check recipients against a design's placeholders",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			design, err := cert.LoadDesign(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read recipient file: %w", err)
			}
			recipients, err := batch.ParseRecipients(data)
			if err != nil {
				return err
			}

			required := placeholder.ExtractFromElements(design.TextElements)
			result := placeholder.ValidateRecipients(recipients, required)
			if !result.Valid {
				for _, msg := range result.Errors {
					printDetail("%s", msg)
				}
				return fmt.Errorf("%d missing fields", len(result.Errors))
			}

			printSuccess("All %d recipients fill all %d placeholders", len(recipients), len(required))
			return nil
		},
	}
}
