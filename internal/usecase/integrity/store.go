package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"medledger/internal/bootstrap/logging"
	"medledger/internal/domain/canonical"
	"medledger/internal/domain/ledger"
	"medledger/internal/errs"
	"medledger/internal/ports"
)

// StoreRecordInput fingerprints one form-only business record. Medications
// and Items participate in the canonical hash for prescriptions and billing
// and are ignored otherwise.
type StoreRecordInput struct {
	RecordType  ledger.RecordType
	RecordID    string
	PatientID   int
	Fields      map[string]any
	Medications []map[string]any
	Items       []map[string]any
	CreatedBy   int
	// Timestamp is the business time of the write; empty means now.
	Timestamp string
	Metadata  map[string]any
}

// StoreReportInput fingerprints a report with an optional attached file. The
// file identifiers come from the external file pipeline (see SealReportFile
// for producing FileHash and EncryptionIV before upload).
type StoreReportInput struct {
	RecordID     string
	PatientID    int
	Fields       map[string]any
	FileHash     string
	IPFSHash     string
	EncryptionIV string
	CreatedBy    int
	Timestamp    string
	Metadata     map[string]any
}

// StoreResult reports one committed fingerprint.
type StoreResult struct {
	RecordType ledger.RecordType
	RecordID   string
	LedgerKey  string
	TxID       string
	RecordHash string
	FileHash   string
	IPFSHash   string
	Timestamp  string
}

// SealedFile is the output of preparing a report file for the external
// content-addressed store.
type SealedFile struct {
	Ciphertext []byte
	FileHash   string
	IVHex      string
}

// SealReportFile hashes the plaintext and encrypts it for upload. The hash
// is computed before encryption so verification works against the original
// bytes.
func (s *Service) SealReportFile(data []byte) (SealedFile, error) {
	if s.sealer == nil {
		return SealedFile{}, errors.New("file sealing requires an encryption key")
	}

	fileHash := canonical.FileHashHex(data)
	ciphertext, ivHex, err := s.sealer.Seal(data)
	if err != nil {
		return SealedFile{}, errs.Wrap(err, "seal report file")
	}
	return SealedFile{Ciphertext: ciphertext, FileHash: fileHash, IVHex: ivHex}, nil
}

// StoreRecord canonicalizes and fingerprints a form-only record, writes the
// fingerprint to the ledger, and reconciles + audits the outcome.
func (s *Service) StoreRecord(ctx context.Context, in StoreRecordInput) (StoreResult, error) {
	if ctx == nil {
		return StoreResult{}, errors.New("context is required")
	}
	if !in.RecordType.Valid() {
		return StoreResult{}, fmt.Errorf("%w: %q", ledger.ErrInvalidRecordType, in.RecordType)
	}

	var recordHash string
	var err error
	switch in.RecordType {
	case ledger.RecordTypePrescription:
		recordHash, err = s.profile.PrescriptionHash(in.Fields, in.Medications)
	case ledger.RecordTypeBilling:
		recordHash, err = s.profile.InvoiceHash(in.Fields, in.Items)
	default:
		recordHash, err = s.profile.RecordHash(in.RecordType, in.Fields)
	}
	if err != nil {
		return StoreResult{}, errs.Wrap(err, "build record hash")
	}

	payload := ledger.SimplePayload(recordHash)
	return s.store(ctx, storeParams{
		recordType: in.RecordType,
		recordID:   in.RecordID,
		patientID:  in.PatientID,
		payload:    payload,
		recordHash: recordHash,
		createdBy:  in.CreatedBy,
		timestamp:  in.Timestamp,
		metadata:   in.Metadata,
	})
}

// StoreReport fingerprints a report's form fields plus optional file
// identifiers as a complex payload.
func (s *Service) StoreReport(ctx context.Context, in StoreReportInput) (StoreResult, error) {
	if ctx == nil {
		return StoreResult{}, errors.New("context is required")
	}

	formHash, err := s.profile.ReportFormHash(in.Fields)
	if err != nil {
		return StoreResult{}, errs.Wrap(err, "build report form hash")
	}

	payload := ledger.ComplexPayload(formHash, in.FileHash, in.IPFSHash)
	return s.store(ctx, storeParams{
		recordType:   ledger.RecordTypeReport,
		recordID:     in.RecordID,
		patientID:    in.PatientID,
		payload:      payload,
		recordHash:   formHash,
		fileHash:     in.FileHash,
		ipfsHash:     in.IPFSHash,
		encryptionIV: in.EncryptionIV,
		createdBy:    in.CreatedBy,
		timestamp:    in.Timestamp,
		metadata:     in.Metadata,
	})
}

type storeParams struct {
	recordType   ledger.RecordType
	recordID     string
	patientID    int
	payload      ledger.HashPayload
	recordHash   string
	fileHash     string
	ipfsHash     string
	encryptionIV string
	createdBy    int
	timestamp    string
	metadata     map[string]any
}

func (s *Service) store(ctx context.Context, p storeParams) (StoreResult, error) {
	timestamp := p.timestamp
	if timestamp == "" {
		timestamp = now()
	}

	// STORE on first fingerprint, UPDATE on later versions of the same record.
	operation := ports.AuditOpStore
	if _, err := s.recordMap.Lookup(ctx, p.recordType.String(), p.recordID); err == nil {
		operation = ports.AuditOpUpdate
	} else if !errors.Is(err, ports.ErrRecordMapNotFound) {
		return StoreResult{}, errs.Wrap(err, "lookup record map")
	}

	payloadJSON, err := json.Marshal(p.payload)
	if err != nil {
		return StoreResult{}, errs.Wrap(err, "marshal hash payload")
	}

	var result ports.StoreHashResult
	for attempt := 1; ; attempt++ {
		result, err = s.ledger.StoreHash(ctx, ports.StoreHashInput{
			RecordID:    p.recordID,
			PatientID:   p.patientID,
			PayloadJSON: payloadJSON,
			RecordType:  p.recordType,
			CreatedBy:   p.createdBy,
			Timestamp:   timestamp,
		})
		if err == nil {
			break
		}
		if errors.Is(err, ledger.ErrWriteConflict) && attempt < storeAttempts {
			logging.Warn(ctx, "ledger write conflict, retrying",
				slog.String("record_type", p.recordType.String()),
				slog.String("record_id", p.recordID),
				slog.Int("attempt", attempt),
			)
			continue
		}

		s.recordAudit(ctx, ports.AuditAppend{
			OperationType: operation,
			RecordType:    p.recordType.String(),
			RecordID:      p.recordID,
			Status:        ports.AuditStatusFailed,
			ErrorMessage:  err.Error(),
			Metadata:      encodeMetadata(p.metadata),
			CreatedBy:     p.createdBy,
		})
		s.publish(ctx, ports.OperationalEvent{
			Kind:       ports.EventRecordStoreFailed,
			RecordType: p.recordType.String(),
			RecordID:   p.recordID,
			Status:     ports.AuditStatusFailed,
			Error:      err.Error(),
			At:         now(),
		})
		return StoreResult{}, errs.Wrap(err, "store hash on ledger")
	}

	// The local transaction runs strictly after the ledger commit; the
	// reconciliation map is eventually consistent with the ledger by design.
	txErr := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.recordMap.Upsert(txCtx, ports.RecordMapUpsert{
			RecordType:   p.recordType.String(),
			RecordID:     p.recordID,
			PatientID:    p.patientID,
			LedgerKey:    result.LedgerKey,
			TxID:         result.TxID,
			RecordHash:   p.recordHash,
			FileHash:     p.fileHash,
			IPFSHash:     p.ipfsHash,
			EncryptionIV: p.encryptionIV,
			CreatedBy:    p.createdBy,
		}); err != nil {
			return err
		}
		return s.audit.Append(txCtx, ports.AuditAppend{
			OperationType: operation,
			RecordType:    p.recordType.String(),
			RecordID:      p.recordID,
			LedgerKey:     result.LedgerKey,
			TxID:          result.TxID,
			Status:        ports.AuditStatusSuccess,
			Metadata:      encodeMetadata(p.metadata),
			CreatedBy:     p.createdBy,
		})
	})
	if txErr != nil {
		logging.Error(ctx, "reconciliation transaction failed after ledger commit",
			slog.String("tx_id", result.TxID),
			slog.String("record_type", p.recordType.String()),
			slog.String("record_id", p.recordID),
			slog.Any("err", errs.Loggable(txErr)),
		)
		s.publish(ctx, ports.OperationalEvent{
			Kind:       ports.EventAuditWriteFailed,
			RecordType: p.recordType.String(),
			RecordID:   p.recordID,
			TxID:       result.TxID,
			Status:     ports.AuditStatusFailed,
			Error:      txErr.Error(),
			At:         now(),
		})
		return StoreResult{}, &ReconciliationGapError{TxID: result.TxID, Err: txErr}
	}

	s.publish(ctx, ports.OperationalEvent{
		Kind:       ports.EventRecordStored,
		RecordType: p.recordType.String(),
		RecordID:   p.recordID,
		TxID:       result.TxID,
		Status:     ports.AuditStatusSuccess,
		At:         now(),
	})

	return StoreResult{
		RecordType: p.recordType,
		RecordID:   p.recordID,
		LedgerKey:  result.LedgerKey,
		TxID:       result.TxID,
		RecordHash: p.recordHash,
		FileHash:   p.fileHash,
		IPFSHash:   p.ipfsHash,
		Timestamp:  timestamp,
	}, nil
}

func encodeMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(encoded)
}
