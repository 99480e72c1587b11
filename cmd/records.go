package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"medledger/internal/bootstrap"
	"medledger/internal/bootstrap/logging"
	"medledger/internal/domain/ledger"
	"medledger/internal/errs"
	"medledger/internal/usecase/integrity"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List ledger records by patient or by type",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		patientID, _ := cmd.Flags().GetInt("patient")
		typeName, _ := cmd.Flags().GetString("type")

		var records []ledger.RecordHash
		var err error
		switch {
		case typeName != "":
			var recordType ledger.RecordType
			recordType, err = ledger.ParseRecordType(typeName)
			if err != nil {
				return errs.Wrap(err, "parse record type")
			}
			records, err = svc.RecordsByType(ctx, recordType)
		case cmd.Flags().Changed("patient"):
			records, err = svc.RecordsByPatient(ctx, patientID)
		default:
			return errs.Wrap(ledger.ErrInvalidRecordType, "either --patient or --type is required")
		}
		if err != nil {
			logging.Error(ctx, "list records failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list records")
		}

		return printRecords(cmd, records)
	}),
}

var patientSummaryCmd = &cobra.Command{
	Use:   "patient-summary",
	Short: "Summarize a patient's ledger records by type",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		patientID, _ := cmd.Flags().GetInt("patient")
		summary, err := svc.SummarizePatient(ctx, patientID)
		if err != nil {
			logging.Error(ctx, "patient summary failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "patient summary")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "patient %d: %d record(s)\n", summary.PatientID, summary.TotalRecords); err != nil {
			return errs.Wrap(err, "write summary output")
		}
		for _, recordType := range ledger.RecordTypes() {
			count := summary.CountsByType[recordType.String()]
			if count == 0 {
				continue
			}
			if _, err := fmt.Fprintf(out, "  %-12s %d\n", recordType, count); err != nil {
				return errs.Wrap(err, "write summary output")
			}
		}
		return nil
	}),
}

func printRecords(cmd *cobra.Command, records []ledger.RecordHash) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "TYPE\tID\tPATIENT\tTX\tTIMESTAMP"); err != nil {
		return errs.Wrap(err, "write records output")
	}
	for _, record := range records {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			record.RecordType, record.RecordID, record.PatientID, record.TxID, record.Timestamp); err != nil {
			return errs.Wrap(err, "write records output")
		}
	}
	return errs.Wrap(w.Flush(), "flush records output")
}

func init() {
	rootCmd.AddCommand(recordsCmd, patientSummaryCmd)

	recordsCmd.Flags().Int("patient", 0, "Patient id")
	recordsCmd.Flags().String("type", "", "Record type")

	patientSummaryCmd.Flags().Int("patient", 0, "Patient id")
	_ = patientSummaryCmd.MarkFlagRequired("patient")
}
