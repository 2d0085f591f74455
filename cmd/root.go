// Package cmd defines the CLI for the zotero-harvester executable.
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openbiblio/zotero-harvester/internal/app"
	"github.com/openbiblio/zotero-harvester/internal/config"
)

var cfgFile string

// appKeyType is the context key for the injected App.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can replace
// it with one that builds against fakes.
var newApp = func(ctx context.Context, cfgPath string) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates the root command. The application graph is built in
// PersistentPreRunE so every subcommand finds it in the context, and torn
// down again in PersistentPostRun.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zotero-harvester",
		Short: "Harvests journal article metadata through the Zotero translation service.",
		Long: `zotero-harvester walks configured journals (direct pages, syndication
feeds, or site crawls), converts what the Zotero translation service
extracts into MARC-21 catalog records, and tracks deliveries so unchanged
records are never sent twice.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close(context.Background())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"process config file (journal definitions are configured inside it)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newJournalsCmd())
	cmd.AddCommand(newExportCmd())
	return cmd
}

// resolveApp fetches the App injected by the root command.
func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}

// Execute runs the CLI with signal-driven cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
