package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alexander-bruun/vitrine/config"
	"github.com/alexander-bruun/vitrine/models"
	"github.com/alexander-bruun/vitrine/scheduler"
)

// NewSyncCmd creates the sync command
func NewSyncCmd(dataDirectory *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Product image sync commands",
	}

	cmd.AddCommand(
		newSyncRunCmd(dataDirectory),
		newSyncRepairCmd(dataDirectory),
		newSyncDiagnosticsCmd(dataDirectory),
	)

	return cmd
}

// withComponents loads the configuration, opens the database and builds the
// pipeline components before calling fn.
func withComponents(dataDirectory string, cmd *cobra.Command, fn func(rt *components) error) {
	cfg, err := loadConfig(dataDirectory)
	if err != nil {
		cmd.PrintErrf("%v\n", err)
		exit(1)
		return
	}
	withDB(cfg.DataDirectory, cmd, func() error {
		rt, err := newComponents(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(rt)
	})
}

func newSyncRunCmd(dataDirectory *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync batch in the foreground",
		Run: func(cmd *cobra.Command, args []string) {
			withComponents(*dataDirectory, cmd, func(rt *components) error {
				counters, err := rt.scheduler.RunBatch(cmd.Context(), limit)
				printCounters(cmd.OutOrStdout(), counters)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of products to process (default SYNC_BATCH_SIZE)")
	return cmd
}

func newSyncRepairCmd(dataDirectory *string) *cobra.Command {
	var req scheduler.RepairRequest

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Reprocess selected products and print a per-product report",
		Run: func(cmd *cobra.Command, args []string) {
			withComponents(*dataDirectory, cmd, func(rt *components) error {
				report, err := rt.scheduler.Repair(cmd.Context(), req)
				if err != nil {
					return err
				}
				printRepairReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&req.ProductIDs, "id", nil, "Product id to repair (repeatable)")
	cmd.Flags().StringVar(&req.Brand, "brand", "", "Repair products of this brand")
	cmd.Flags().StringVar(&req.Search, "search", "", "Repair products whose name or reference matches")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum number of products (capped at SYNC_REPAIR_LIMIT)")
	return cmd
}

func newSyncDiagnosticsCmd(dataDirectory *string) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Count products with internal and external images",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(*dataDirectory)
			if err != nil {
				cmd.PrintErrf("%v\n", err)
				exit(1)
				return
			}
			withDB(cfg.DataDirectory, cmd, func() error {
				return printDiagnostics(cmd.Context(), cmd.OutOrStdout(), cfg)
			})
		},
	}
}

func printDiagnostics(ctx context.Context, w io.Writer, cfg *config.Config) error {
	internal, external, err := models.CountImageKinds(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	byStatus, err := models.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}

	fmt.Fprintf(w, "Storage: %s (bucket %s)\n", cfg.Storage.BackendType, cfg.Storage.Bucket)
	fmt.Fprintf(w, "Internal images: %d\n", internal)
	fmt.Fprintf(w, "External images: %d\n", external)
	fmt.Fprintf(w, "Pending: %d  Synced: %d  Failed: %d\n",
		byStatus[models.StatusPending], byStatus[models.StatusSynced], byStatus[models.StatusFailed])
	return nil
}

func printCounters(w io.Writer, c scheduler.Counters) {
	fmt.Fprintf(w, "Processed %d of %d products: %d synced, %d failed, %d skipped\n",
		c.Processed, c.Total, c.Succeeded, c.Failed, c.Skipped)
}

func printRepairReport(w io.Writer, r scheduler.RepairReport) {
	for _, line := range r.Logs {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Repair finished: %d synced, %d failed, %d skipped\n", r.SuccessCount, r.FailCount, r.SkippedCount)
}
