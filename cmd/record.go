package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"medledger/internal/bootstrap"
	"medledger/internal/bootstrap/logging"
	"medledger/internal/domain/ledger"
	"medledger/internal/errs"
	"medledger/internal/usecase/integrity"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Store and verify record fingerprints on the ledger",
}

var recordStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Fingerprint a record and store the hash on the ledger",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		recordType, recordID, err := recordFlags(cmd)
		if err != nil {
			return err
		}
		patientID, _ := cmd.Flags().GetInt("patient")
		createdBy, _ := cmd.Flags().GetInt("created-by")
		timestamp, _ := cmd.Flags().GetString("timestamp")

		fields, err := jsonObjectFlag(cmd, "fields")
		if err != nil {
			return err
		}
		medications, err := jsonListFlag(cmd, "medications")
		if err != nil {
			return err
		}
		items, err := jsonListFlag(cmd, "items")
		if err != nil {
			return err
		}

		result, err := svc.StoreRecord(ctx, integrity.StoreRecordInput{
			RecordType:  recordType,
			RecordID:    recordID,
			PatientID:   patientID,
			Fields:      fields,
			Medications: medications,
			Items:       items,
			CreatedBy:   createdBy,
			Timestamp:   timestamp,
		})
		if err != nil {
			logging.Error(ctx, "store record failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "store record")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s tx=%s hash=%s\n",
			result.RecordType, result.RecordID, result.TxID, result.RecordHash); err != nil {
			return errs.Wrap(err, "write store output")
		}
		return nil
	}),
}

var recordGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current ledger fingerprint of a record",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		recordType, recordID, err := recordFlags(cmd)
		if err != nil {
			return err
		}

		record, err := svc.RecordHash(ctx, recordType, recordID)
		if err != nil {
			logging.Error(ctx, "get record failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "get record")
		}

		encoded, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return errs.Wrap(err, "encode record")
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(encoded)); err != nil {
			return errs.Wrap(err, "write record output")
		}
		return nil
	}),
}

var recordVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a record against its ledger fingerprint",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		recordType, recordID, err := recordFlags(cmd)
		if err != nil {
			return err
		}
		createdBy, _ := cmd.Flags().GetInt("created-by")
		expectedHash, _ := cmd.Flags().GetString("hash")

		var outcome integrity.VerifyOutcome
		if expectedHash != "" {
			outcome, err = svc.Verify(ctx, recordType, recordID, expectedHash, createdBy)
		} else {
			var fields map[string]any
			fields, err = jsonObjectFlag(cmd, "fields")
			if err != nil {
				return err
			}
			var medications, items []map[string]any
			medications, err = jsonListFlag(cmd, "medications")
			if err != nil {
				return err
			}
			items, err = jsonListFlag(cmd, "items")
			if err != nil {
				return err
			}
			outcome, err = svc.VerifyRecord(ctx, integrity.VerifyRecordInput{
				RecordType:  recordType,
				RecordID:    recordID,
				Fields:      fields,
				Medications: medications,
				Items:       items,
				CreatedBy:   createdBy,
			})
		}
		if err != nil {
			logging.Error(ctx, "verify record failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "verify record")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s tx=%s\n",
			outcome.Result, outcome.RecordType, outcome.RecordID, outcome.TxID); err != nil {
			return errs.Wrap(err, "write verify output")
		}
		return nil
	}),
}

var recordHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every ledger version of a record",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		recordType, recordID, err := recordFlags(cmd)
		if err != nil {
			return err
		}

		history, err := svc.RecordHistory(ctx, recordType, recordID)
		if err != nil {
			logging.Error(ctx, "record history failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "record history")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "%s/%s: %d version(s)\n", recordType, recordID, len(history)); err != nil {
			return errs.Wrap(err, "write history output")
		}
		for i, entry := range history {
			hash := ""
			if entry.Record != nil {
				if h, hashErr := entry.Record.HashPayload.ComparableHash(); hashErr == nil {
					hash = h
				}
			}
			if _, err := fmt.Fprintf(out, "%3d  %s  tx=%s  hash=%s\n", i+1, entry.CommitTime, entry.TxID, hash); err != nil {
				return errs.Wrap(err, "write history output")
			}
		}
		return nil
	}),
}

func recordFlags(cmd *cobra.Command) (ledger.RecordType, string, error) {
	typeName, _ := cmd.Flags().GetString("type")
	recordType, err := ledger.ParseRecordType(typeName)
	if err != nil {
		return "", "", errs.Wrap(err, "parse record type")
	}
	recordID, _ := cmd.Flags().GetString("id")
	if strings.TrimSpace(recordID) == "" {
		return "", "", errs.Wrap(ledger.ErrInvalidPayload, "record id is required")
	}
	return recordType, recordID, nil
}

// jsonObjectFlag reads a flag holding inline JSON or, with a leading @, a
// path to a JSON file.
func jsonObjectFlag(cmd *cobra.Command, name string) (map[string]any, error) {
	raw, err := jsonFlagBytes(cmd, name)
	if err != nil || raw == nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errs.Wrapf(err, "parse --%s", name)
	}
	return fields, nil
}

func jsonListFlag(cmd *cobra.Command, name string) ([]map[string]any, error) {
	raw, err := jsonFlagBytes(cmd, name)
	if err != nil || raw == nil {
		return nil, err
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errs.Wrapf(err, "parse --%s", name)
	}
	return list, nil
}

func jsonFlagBytes(cmd *cobra.Command, name string) ([]byte, error) {
	value, _ := cmd.Flags().GetString(name)
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(value, "@"))
		if err != nil {
			return nil, errs.Wrapf(err, "read --%s file", name)
		}
		return data, nil
	}
	return []byte(value), nil
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(recordStoreCmd, recordGetCmd, recordVerifyCmd, recordHistoryCmd)

	for _, c := range []*cobra.Command{recordStoreCmd, recordGetCmd, recordVerifyCmd, recordHistoryCmd} {
		c.Flags().String("type", "", "Record type (PATIENT, VISIT, PRESCRIPTION, REPORT, BILLING, APPOINTMENT)")
		c.Flags().String("id", "", "Record id")
		_ = c.MarkFlagRequired("type")
		_ = c.MarkFlagRequired("id")
	}

	recordStoreCmd.Flags().Int("patient", 0, "Patient id")
	recordStoreCmd.Flags().Int("created-by", 0, "Acting user id")
	recordStoreCmd.Flags().String("timestamp", "", "Business timestamp, RFC3339; empty means now")
	recordStoreCmd.Flags().String("fields", "", "Record fields as inline JSON or @file")
	recordStoreCmd.Flags().String("medications", "", "Prescription medications as inline JSON list or @file")
	recordStoreCmd.Flags().String("items", "", "Invoice items as inline JSON list or @file")
	_ = recordStoreCmd.MarkFlagRequired("fields")

	recordVerifyCmd.Flags().Int("created-by", 0, "Acting user id")
	recordVerifyCmd.Flags().String("hash", "", "Precomputed hash to compare; omit to recompute from --fields")
	recordVerifyCmd.Flags().String("fields", "", "Record fields as inline JSON or @file")
	recordVerifyCmd.Flags().String("medications", "", "Prescription medications as inline JSON list or @file")
	recordVerifyCmd.Flags().String("items", "", "Invoice items as inline JSON list or @file")
}
