package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/config"
	"github.com/openbiblio/zotero-harvester/internal/harvest"
)

// newHarvestCmd creates the 'harvest' subcommand: run every configured
// journal, or only the journals named as arguments.
func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest [journal...]",
		Short: "Runs the harvest for all or the named journals",
		Long: `Harvests the configured journals: discovers article URLs with each
journal's strategy, converts the extracted metadata into catalog records,
deduplicates against the delivery history, and writes the record files.
Without arguments every journal runs; with arguments only the named ones.`,
		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, args []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	if a.Server != nil {
		a.Server.Start()
	}

	var journals []*config.JournalParams
	if len(args) == 0 {
		journals = a.Journals.Journals
	} else {
		for _, name := range args {
			j, ok := a.Journals.Journal(name)
			if !ok {
				return fmt.Errorf("unknown journal %q", name)
			}
			journals = append(journals, j)
		}
	}

	var total harvest.Stats
	for _, j := range journals {
		stats, err := a.Harvester.HarvestJournal(cmd.Context(), j)
		if err != nil {
			return err
		}
		total.Add(stats)
		if cmd.Context().Err() != nil {
			return cmd.Context().Err()
		}
	}

	if path := a.Cfg.Harvest.ErrorReportFile; path != "" {
		if err := a.Reporter.WriteReport(path); err != nil {
			return err
		}
		a.Logger.Info("error report written", zap.String("path", path))
	}

	a.Logger.Info("harvest summary",
		zap.Int("journals", len(journals)),
		zap.Int("harvested_urls", total.Harvested),
		zap.Int("records", total.Records),
		zap.Int("previously_delivered", total.PreviouslyDelivered),
		zap.Int("filter_skips", total.FilterSkips),
		zap.Int("online_first_skips", total.OnlineFirstSkips),
		zap.Int("early_view_skips", total.EarlyViewSkips),
		zap.Int("errors", total.Errors))

	fmt.Fprintf(cmd.OutOrStdout(),
		"harvested %d urls, %d new records, %d previously delivered, %d errors\n",
		total.Harvested, total.Records, total.PreviouslyDelivered, total.Errors)
	return nil
}
