package integrity

import (
	"context"
	"errors"
	"fmt"

	"medledger/internal/domain/canonical"
	"medledger/internal/domain/ledger"
	"medledger/internal/errs"
	"medledger/internal/ports"
)

// VerifyOutcome reports one verification, including the ledger facts it was
// judged against.
type VerifyOutcome struct {
	Result       VerificationResult
	RecordType   ledger.RecordType
	RecordID     string
	ProvidedHash string
	StoredHash   string
	TxID         string
	// LedgerTimestamp is the business timestamp of the current ledger version.
	LedgerTimestamp string
	// FileResult is set only by VerifyReport when a file hash was provided.
	FileResult VerificationResult
}

// Verify compares a freshly computed hash against the ledger's stored hash
// for a record. Absence from the reconciliation map short-circuits to
// NOT_FOUND without touching the ledger: a record that was never
// fingerprinted through this path is meaningfully different from a tampered
// one. The verification itself is an auditable event whatever its outcome.
func (s *Service) Verify(ctx context.Context, recordType ledger.RecordType, recordID, expectedHash string, createdBy int) (VerifyOutcome, error) {
	if ctx == nil {
		return VerifyOutcome{}, errors.New("context is required")
	}
	if !recordType.Valid() {
		return VerifyOutcome{}, fmt.Errorf("%w: %q", ledger.ErrInvalidRecordType, recordType)
	}

	outcome := VerifyOutcome{
		RecordType:   recordType,
		RecordID:     recordID,
		ProvidedHash: expectedHash,
	}

	row, err := s.recordMap.Lookup(ctx, recordType.String(), recordID)
	if errors.Is(err, ports.ErrRecordMapNotFound) {
		outcome.Result = VerificationNotFound
		s.auditVerify(ctx, outcome, createdBy, "", nil)
		return outcome, nil
	}
	if err != nil {
		return VerifyOutcome{}, errs.Wrap(err, "lookup record map")
	}

	record, err := s.ledger.GetHash(ctx, recordType, recordID)
	if errors.Is(err, ledger.ErrNotFound) {
		// The map points at a ledger key that no longer resolves. That is
		// either a bug or manual tampering with the ledger; surface it.
		inconsistency := fmt.Errorf("%w: %s maps to %s", ledger.ErrReconciliationInconsistency, recordID, row.LedgerKey)
		s.auditVerify(ctx, outcome, createdBy, row.LedgerKey, inconsistency)
		return VerifyOutcome{}, inconsistency
	}
	if err != nil {
		s.auditVerify(ctx, outcome, createdBy, row.LedgerKey, err)
		return VerifyOutcome{}, errs.Wrap(err, "read ledger hash")
	}

	stored, err := record.HashPayload.ComparableHash()
	if err != nil {
		s.auditVerify(ctx, outcome, createdBy, row.LedgerKey, err)
		return VerifyOutcome{}, errs.Wrap(err, "extract stored hash")
	}

	outcome.StoredHash = stored
	outcome.TxID = record.TxID
	outcome.LedgerTimestamp = record.Timestamp
	if stored == expectedHash {
		outcome.Result = VerificationValid
	} else {
		outcome.Result = VerificationTampered
	}

	s.auditVerify(ctx, outcome, createdBy, row.LedgerKey, nil)
	return outcome, nil
}

// VerifyRecordInput verifies a form-only record from its current database
// fields, recomputing the canonical hash before comparison.
type VerifyRecordInput struct {
	RecordType  ledger.RecordType
	RecordID    string
	Fields      map[string]any
	Medications []map[string]any
	Items       []map[string]any
	CreatedBy   int
}

func (s *Service) VerifyRecord(ctx context.Context, in VerifyRecordInput) (VerifyOutcome, error) {
	var expected string
	var err error
	switch in.RecordType {
	case ledger.RecordTypePrescription:
		expected, err = s.profile.PrescriptionHash(in.Fields, in.Medications)
	case ledger.RecordTypeBilling:
		expected, err = s.profile.InvoiceHash(in.Fields, in.Items)
	default:
		expected, err = s.profile.RecordHash(in.RecordType, in.Fields)
	}
	if err != nil {
		return VerifyOutcome{}, errs.Wrap(err, "build record hash")
	}
	return s.Verify(ctx, in.RecordType, in.RecordID, expected, in.CreatedBy)
}

// VerifyReportInput verifies a report's form fields and, when file bytes are
// at hand, the attached file as well.
type VerifyReportInput struct {
	RecordID  string
	Fields    map[string]any
	FileData  []byte
	CreatedBy int
}

// VerifyReport compares the recomputed form hash against the stored
// formHash, and the file hash against the stored fileHash when file bytes
// are provided. The overall result is VALID only when every provided hash
// matches.
func (s *Service) VerifyReport(ctx context.Context, in VerifyReportInput) (VerifyOutcome, error) {
	if ctx == nil {
		return VerifyOutcome{}, errors.New("context is required")
	}

	expectedForm, err := s.profile.ReportFormHash(in.Fields)
	if err != nil {
		return VerifyOutcome{}, errs.Wrap(err, "build report form hash")
	}

	outcome := VerifyOutcome{
		RecordType:   ledger.RecordTypeReport,
		RecordID:     in.RecordID,
		ProvidedHash: expectedForm,
	}

	row, err := s.recordMap.Lookup(ctx, ledger.RecordTypeReport.String(), in.RecordID)
	if errors.Is(err, ports.ErrRecordMapNotFound) {
		outcome.Result = VerificationNotFound
		s.auditVerify(ctx, outcome, in.CreatedBy, "", nil)
		return outcome, nil
	}
	if err != nil {
		return VerifyOutcome{}, errs.Wrap(err, "lookup record map")
	}

	record, err := s.ledger.GetHash(ctx, ledger.RecordTypeReport, in.RecordID)
	if errors.Is(err, ledger.ErrNotFound) {
		inconsistency := fmt.Errorf("%w: %s maps to %s", ledger.ErrReconciliationInconsistency, in.RecordID, row.LedgerKey)
		s.auditVerify(ctx, outcome, in.CreatedBy, row.LedgerKey, inconsistency)
		return VerifyOutcome{}, inconsistency
	}
	if err != nil {
		s.auditVerify(ctx, outcome, in.CreatedBy, row.LedgerKey, err)
		return VerifyOutcome{}, errs.Wrap(err, "read ledger hash")
	}

	payload := record.HashPayload
	storedForm := payload.FormHash
	if payload.IsLegacy() {
		storedForm, err = payload.ComparableHash()
		if err != nil {
			s.auditVerify(ctx, outcome, in.CreatedBy, row.LedgerKey, err)
			return VerifyOutcome{}, errs.Wrap(err, "extract stored hash")
		}
	}

	outcome.StoredHash = storedForm
	outcome.TxID = record.TxID
	outcome.LedgerTimestamp = record.Timestamp

	valid := storedForm == expectedForm
	if in.FileData != nil {
		if canonical.FileHashHex(in.FileData) == payload.FileHash {
			outcome.FileResult = VerificationValid
		} else {
			outcome.FileResult = VerificationTampered
			valid = false
		}
	}
	if valid {
		outcome.Result = VerificationValid
	} else {
		outcome.Result = VerificationTampered
	}

	s.auditVerify(ctx, outcome, in.CreatedBy, row.LedgerKey, nil)
	return outcome, nil
}

// BatchItem is one record in a batch verification.
type BatchItem struct {
	RecordType   ledger.RecordType
	RecordID     string
	ExpectedHash string
}

// BatchSummary aggregates a batch verification run.
type BatchSummary struct {
	Total    int
	Valid    int
	Tampered int
	NotFound int
	Errors   int
	Outcomes []VerifyOutcome
}

// VerifyBatch verifies records one by one; per-record errors count as Errors
// in the summary instead of aborting the batch.
func (s *Service) VerifyBatch(ctx context.Context, items []BatchItem, createdBy int) (BatchSummary, error) {
	if ctx == nil {
		return BatchSummary{}, errors.New("context is required")
	}

	summary := BatchSummary{Total: len(items), Outcomes: make([]VerifyOutcome, 0, len(items))}
	for _, item := range items {
		outcome, err := s.Verify(ctx, item.RecordType, item.RecordID, item.ExpectedHash, createdBy)
		if err != nil {
			summary.Errors++
			continue
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
		switch outcome.Result {
		case VerificationValid:
			summary.Valid++
		case VerificationTampered:
			summary.Tampered++
		case VerificationNotFound:
			summary.NotFound++
		}
	}
	return summary, nil
}

func (s *Service) auditVerify(ctx context.Context, outcome VerifyOutcome, createdBy int, ledgerKey string, opErr error) {
	entry := ports.AuditAppend{
		OperationType: ports.AuditOpVerify,
		RecordType:    outcome.RecordType.String(),
		RecordID:      outcome.RecordID,
		LedgerKey:     ledgerKey,
		TxID:          outcome.TxID,
		Status:        ports.AuditStatusSuccess,
		CreatedBy:     createdBy,
	}
	if opErr != nil {
		entry.Status = ports.AuditStatusFailed
		entry.ErrorMessage = opErr.Error()
	} else {
		entry.VerificationResult = string(outcome.Result)
	}
	s.recordAudit(ctx, entry)

	s.publish(ctx, ports.OperationalEvent{
		Kind:       ports.EventRecordVerified,
		RecordType: outcome.RecordType.String(),
		RecordID:   outcome.RecordID,
		TxID:       outcome.TxID,
		Status:     entry.Status,
		Result:     string(outcome.Result),
		At:         now(),
	})
}
