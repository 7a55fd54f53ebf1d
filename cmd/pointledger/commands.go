package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/point-ledger/backup"
	"github.com/warp/point-ledger/ledger"
)

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every record as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := writeExport(cmd.Context(), app.backup, out, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("failed to export: %w", err)
			}
			app.logger.Info("export finished", zap.Int("rows", n), zap.String("out", out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

// writeExport writes records.csv to out, or to stdout when out is empty.
// The file is only reported written once Close has succeeded.
func writeExport(ctx context.Context, gw *backup.Gateway, out string, stdout io.Writer) (n int, err error) {
	if out == "" {
		return gw.ExportAll(ctx, stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", out, cerr)
		}
	}()
	return gw.ExportAll(ctx, f)
}

func importCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace every record with the rows of a CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", in, err)
			}
			defer f.Close()

			summary, err := app.backup.ImportReplace(cmd.Context(), operator(), f)
			if err != nil {
				return fmt.Errorf("failed to import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records\n", summary.Rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "CSV file to import")
	cmd.MarkFlagRequired("in")
	return cmd
}

// lockCmd builds "lock" (lock=true) or "unlock".
func lockCmd(lock bool) *cobra.Command {
	use, short := "unlock", "Reopen a month"
	if lock {
		use, short = "lock", "Close a month for edits"
	}
	return &cobra.Command{
		Use:   use + " YYYY-MM",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ym, err := ledger.ParseYearMonth(args[0])
			if err != nil {
				return fmt.Errorf("invalid month %q: %w", args[0], err)
			}
			if lock {
				err = app.ledger.Lock(cmd.Context(), operator(), ym.First())
			} else {
				err = app.ledger.Unlock(cmd.Context(), operator(), ym.First())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: locked=%t\n", ym, lock)
			return nil
		},
	}
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Write the backup file now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.backup.SnapshotPath() == "" {
				return fmt.Errorf("backup.path is not configured")
			}
			// Failures are logged, not returned.
			app.backup.SnapshotLatest(cmd.Context())
			return nil
		},
	}
}
