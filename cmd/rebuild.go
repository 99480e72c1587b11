package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"medledger/internal/bootstrap"
	"medledger/internal/bootstrap/logging"
	"medledger/internal/errs"
	"medledger/internal/usecase/integrity"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the local reconciliation map from the ledger",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		logging.Info(ctx, "start reconciliation rebuild")

		report, err := svc.RebuildReconciliation(ctx)
		if err != nil {
			logging.Error(ctx, "reconciliation rebuild failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "rebuild reconciliation")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "rebuilt reconciliation map: scanned=%d upserted=%d failed=%d\n",
			report.Scanned, report.Upserted, report.Failed); err != nil {
			return errs.Wrap(err, "write rebuild output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
