package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"medledger/internal/bootstrap"
	"medledger/internal/bootstrap/logging"
	"medledger/internal/errs"
	"medledger/internal/usecase/integrity"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Store and verify reports with attached files",
}

var reportSealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Hash and encrypt a report file for upload",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		inPath, _ := cmd.Flags().GetString("in")
		outPath, _ := cmd.Flags().GetString("out")

		data, err := os.ReadFile(inPath)
		if err != nil {
			return errs.Wrap(err, "read report file")
		}

		sealed, err := svc.SealReportFile(data)
		if err != nil {
			logging.Error(ctx, "seal report file failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "seal report file")
		}

		if err := os.WriteFile(outPath, sealed.Ciphertext, 0o600); err != nil {
			return errs.Wrap(err, "write sealed file")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "sealed %s -> %s fileHash=%s iv=%s\n",
			inPath, outPath, sealed.FileHash, sealed.IVHex); err != nil {
			return errs.Wrap(err, "write seal output")
		}
		return nil
	}),
}

var reportStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Fingerprint a report and store the hash on the ledger",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		recordID, _ := cmd.Flags().GetString("id")
		patientID, _ := cmd.Flags().GetInt("patient")
		createdBy, _ := cmd.Flags().GetInt("created-by")
		fileHash, _ := cmd.Flags().GetString("file-hash")
		ipfsHash, _ := cmd.Flags().GetString("ipfs-hash")
		encryptionIV, _ := cmd.Flags().GetString("iv")
		timestamp, _ := cmd.Flags().GetString("timestamp")

		fields, err := jsonObjectFlag(cmd, "fields")
		if err != nil {
			return err
		}

		result, err := svc.StoreReport(ctx, integrity.StoreReportInput{
			RecordID:     recordID,
			PatientID:    patientID,
			Fields:       fields,
			FileHash:     fileHash,
			IPFSHash:     ipfsHash,
			EncryptionIV: encryptionIV,
			CreatedBy:    createdBy,
			Timestamp:    timestamp,
		})
		if err != nil {
			logging.Error(ctx, "store report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "store report")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s tx=%s formHash=%s fileHash=%s\n",
			result.RecordType, result.RecordID, result.TxID, result.RecordHash, result.FileHash); err != nil {
			return errs.Wrap(err, "write store output")
		}
		return nil
	}),
}

var reportVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a report's form fields and optional file against the ledger",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *integrity.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		recordID, _ := cmd.Flags().GetString("id")
		createdBy, _ := cmd.Flags().GetInt("created-by")
		filePath, _ := cmd.Flags().GetString("file")

		fields, err := jsonObjectFlag(cmd, "fields")
		if err != nil {
			return err
		}

		var fileData []byte
		if filePath != "" {
			fileData, err = os.ReadFile(filePath)
			if err != nil {
				return errs.Wrap(err, "read report file")
			}
		}

		outcome, err := svc.VerifyReport(ctx, integrity.VerifyReportInput{
			RecordID:  recordID,
			Fields:    fields,
			FileData:  fileData,
			CreatedBy: createdBy,
		})
		if err != nil {
			logging.Error(ctx, "verify report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "verify report")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "%s REPORT/%s tx=%s\n", outcome.Result, outcome.RecordID, outcome.TxID); err != nil {
			return errs.Wrap(err, "write verify output")
		}
		if outcome.FileResult != "" {
			if _, err := fmt.Fprintf(out, "file: %s\n", outcome.FileResult); err != nil {
				return errs.Wrap(err, "write verify output")
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportSealCmd, reportStoreCmd, reportVerifyCmd)

	reportSealCmd.Flags().String("in", "", "Plaintext report file")
	reportSealCmd.Flags().String("out", "", "Destination for the encrypted file")
	_ = reportSealCmd.MarkFlagRequired("in")
	_ = reportSealCmd.MarkFlagRequired("out")

	reportStoreCmd.Flags().String("id", "", "Report record id")
	reportStoreCmd.Flags().Int("patient", 0, "Patient id")
	reportStoreCmd.Flags().Int("created-by", 0, "Acting user id")
	reportStoreCmd.Flags().String("fields", "", "Report fields as inline JSON or @file")
	reportStoreCmd.Flags().String("file-hash", "", "SHA-256 of the plaintext file")
	reportStoreCmd.Flags().String("ipfs-hash", "", "Content address of the encrypted file")
	reportStoreCmd.Flags().String("iv", "", "Hex IV used to encrypt the file")
	reportStoreCmd.Flags().String("timestamp", "", "Business timestamp, RFC3339; empty means now")
	_ = reportStoreCmd.MarkFlagRequired("id")
	_ = reportStoreCmd.MarkFlagRequired("fields")

	reportVerifyCmd.Flags().String("id", "", "Report record id")
	reportVerifyCmd.Flags().Int("created-by", 0, "Acting user id")
	reportVerifyCmd.Flags().String("fields", "", "Report fields as inline JSON or @file")
	reportVerifyCmd.Flags().String("file", "", "Plaintext file to check against the stored file hash")
	_ = reportVerifyCmd.MarkFlagRequired("id")
	_ = reportVerifyCmd.MarkFlagRequired("fields")
}
