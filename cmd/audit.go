package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"medledger/internal/bootstrap"
	"medledger/internal/bootstrap/logging"
	"medledger/internal/errs"
	"medledger/internal/ports"
	"medledger/internal/usecase/integrity"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List the ledger audit trail",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		operation, _ := cmd.Flags().GetString("operation")
		recordType, _ := cmd.Flags().GetString("type")
		recordID, _ := cmd.Flags().GetString("id")
		status, _ := cmd.Flags().GetString("status")
		createdBy, _ := cmd.Flags().GetInt("created-by")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")

		entries, total, err := svc.AuditTrail(ctx, ports.AuditFilter{
			OperationType: operation,
			RecordType:    recordType,
			RecordID:      recordID,
			Status:        status,
			CreatedBy:     createdBy,
			From:          from,
			To:            to,
			Page:          page,
			PerPage:       perPage,
		})
		if err != nil {
			logging.Error(ctx, "list audit trail failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list audit trail")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "%d entr(ies) total, showing %d\n", total, len(entries)); err != nil {
			return errs.Wrap(err, "write audit output")
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "ID\tOP\tTYPE\tRECORD\tSTATUS\tRESULT\tTX\tAT"); err != nil {
			return errs.Wrap(err, "write audit output")
		}
		for _, entry := range entries {
			if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				entry.ID, entry.OperationType, entry.RecordType, entry.RecordID,
				entry.Status, entry.VerificationResult, entry.TxID, entry.CreatedAt); err != nil {
				return errs.Wrap(err, "write audit output")
			}
		}
		return errs.Wrap(w.Flush(), "flush audit output")
	}),
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().String("operation", "", "Filter by operation (STORE, VERIFY, UPDATE)")
	auditCmd.Flags().String("type", "", "Filter by record type")
	auditCmd.Flags().String("id", "", "Filter by record id")
	auditCmd.Flags().String("status", "", "Filter by status (SUCCESS, FAILED, PENDING)")
	auditCmd.Flags().Int("created-by", 0, "Filter by acting user id")
	auditCmd.Flags().String("from", "", "Earliest created_at, RFC3339")
	auditCmd.Flags().String("to", "", "Latest created_at, RFC3339")
	auditCmd.Flags().Int("page", 1, "Page number")
	auditCmd.Flags().Int("per-page", 50, "Rows per page")
}
