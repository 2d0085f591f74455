package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openbiblio/zotero-harvester/internal/translation"
)

// newExportCmd creates the 'export' subcommand: convert a harvested item
// array into one of the translation service's interchange formats.
func newExportCmd() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export <items.json>",
		Short: "Converts an item array into an interchange format",
		Long: `Sends a JSON item array (as harvested with output format json) to the
translation service's export endpoint and writes the converted result.
Pass '-' to read the items from stdin.

Supported formats: ` + strings.Join(translation.ExportFormats(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !translation.SupportedExportFormat(format) {
				return fmt.Errorf("unsupported export format %q (supported: %s)",
					format, strings.Join(translation.ExportFormats(), ", "))
			}

			var items []byte
			if args[0] == "-" {
				if items, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			} else if items, err = os.ReadFile(args[0]); err != nil {
				return fmt.Errorf("read items: %w", err)
			}

			converted, err := a.Client.Export(cmd.Context(), format, items)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(converted)
				return err
			}
			return os.WriteFile(output, converted, 0o644)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "ris", "target interchange format")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file ('-' or empty for stdout)")
	return cmd
}
