package integrity

import (
	"context"
	"errors"

	"medledger/internal/domain/ledger"
	"medledger/internal/errs"
	"medledger/internal/ports"
)

// RecordHash returns the current ledger fingerprint of a record. Pure reads
// are not audited; only STORE, VERIFY and UPDATE land on the trail.
func (s *Service) RecordHash(ctx context.Context, recordType ledger.RecordType, recordID string) (*ledger.RecordHash, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.ledger.GetHash(ctx, recordType, recordID)
}

// RecordHistory returns every ledger version of a record, oldest first.
func (s *Service) RecordHistory(ctx context.Context, recordType ledger.RecordType, recordID string) ([]ledger.HistoryEntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.ledger.GetHistory(ctx, recordType, recordID)
}

// RecordsByPatient returns the current fingerprints of every record of a
// patient, straight from the ledger.
func (s *Service) RecordsByPatient(ctx context.Context, patientID int) ([]ledger.RecordHash, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.ledger.GetByPatient(ctx, patientID)
}

// RecordsByType returns the current fingerprints of every record of a type.
func (s *Service) RecordsByType(ctx context.Context, recordType ledger.RecordType) ([]ledger.RecordHash, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.ledger.GetByType(ctx, recordType)
}

// PatientSummary groups a patient's ledger records by type.
type PatientSummary struct {
	PatientID    int
	TotalRecords int
	CountsByType map[string]int
	Records      []ledger.RecordHash
}

func (s *Service) SummarizePatient(ctx context.Context, patientID int) (PatientSummary, error) {
	records, err := s.RecordsByPatient(ctx, patientID)
	if err != nil {
		return PatientSummary{}, errs.Wrap(err, "list patient records")
	}

	summary := PatientSummary{
		PatientID:    patientID,
		TotalRecords: len(records),
		CountsByType: make(map[string]int),
		Records:      records,
	}
	for _, record := range records {
		summary.CountsByType[record.RecordType.String()]++
	}
	return summary, nil
}

// ReconciliationRow exposes the off-ledger mapping for a record.
func (s *Service) ReconciliationRow(ctx context.Context, recordType ledger.RecordType, recordID string) (ports.RecordMapRow, error) {
	if ctx == nil {
		return ports.RecordMapRow{}, errors.New("context is required")
	}
	return s.recordMap.Lookup(ctx, recordType.String(), recordID)
}

// ReconciliationByPatient lists the off-ledger mappings for every record of a
// patient. The rows are a cache over the ledger and may lag behind it.
func (s *Service) ReconciliationByPatient(ctx context.Context, patientID int) ([]ports.RecordMapRow, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.recordMap.ListByPatient(ctx, patientID)
}

// AuditTrail lists audit rows matching the filter, newest first, with the
// total row count for paging.
func (s *Service) AuditTrail(ctx context.Context, filter ports.AuditFilter) ([]ports.AuditEntry, int64, error) {
	if ctx == nil {
		return nil, 0, errors.New("context is required")
	}
	return s.audit.List(ctx, filter)
}
