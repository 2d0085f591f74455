package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newJournalsCmd creates the 'journals' subcommand: validate and list the
// journal configuration without harvesting anything.
func newJournalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "journals",
		Short: "Lists the configured journals",
		Long: `Loads and validates the journal configuration and prints one line per
journal. Useful as a configuration smoke test before a live run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "JOURNAL\tGROUP\tTYPE\tMODE\tURL")
			for _, j := range a.Journals.Journals {
				group, err := a.Journals.GroupFor(j)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					j.Name, group.Name, j.Type, j.DeliveryMode, j.URL)
			}
			return w.Flush()
		},
	}
}
