package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/treecleaner/internal/app"
	"github.com/heartmarshall/treecleaner/internal/config"
)

const commandTimeout = 5 * time.Minute

type options struct {
	configPath string
	dataset    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "dqctl",
		Short:        "Detect and remediate data-quality issues in a family tree",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CONFIG_PATH or config.yaml)")
	root.PersistentFlags().StringVar(&opts.dataset, "file", "", "work on a JSON dataset in memory instead of the configured store")

	root.AddCommand(
		newMigrateCmd(opts),
		newScanCmd(opts),
		newSummaryCmd(opts),
		newIssuesCmd(opts),
		newActionsCmd(opts),
		newUndoCmd(opts),
		newRulesCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *options) offline() bool { return o.dataset != "" }

func (o *options) loadConfig() (*config.Config, error) {
	switch {
	case o.offline():
		return config.ForDataset(o.dataset)
	case o.configPath != "":
		return config.LoadFile(o.configPath)
	default:
		return config.Load()
	}
}

// withBackend opens the store for one command. An in-memory dataset starts
// with no issues, so offline runs scan it first unless the command is the
// scan itself.
func (o *options) withBackend(cmd *cobra.Command, prescan bool, fn func(ctx context.Context, b *app.Backend) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	if prescan && o.offline() {
		if _, err := backend.Scan.Scan(ctx, false); err != nil {
			return fmt.Errorf("scan dataset: %w", err)
		}
	}
	return fn(ctx, backend)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
