package integrity

import (
	"context"
	"errors"
	"log/slog"

	"medledger/internal/bootstrap/logging"
	"medledger/internal/domain/ledger"
	"medledger/internal/errs"
	"medledger/internal/ports"
)

// RebuildReport summarizes a reconciliation rebuild run.
type RebuildReport struct {
	Scanned  int
	Upserted int
	Failed   int
	ByType   map[string]int
}

// RebuildReconciliation re-derives the off-ledger record map from ledger
// current state. The map is a cache and the ledger stays the source of
// truth, so a lost or corrupted local database is recovered by scanning
// every record type and upserting one row per record.
func (s *Service) RebuildReconciliation(ctx context.Context) (RebuildReport, error) {
	if ctx == nil {
		return RebuildReport{}, errors.New("context is required")
	}

	report := RebuildReport{ByType: make(map[string]int)}
	for _, recordType := range ledger.RecordTypes() {
		records, err := s.ledger.GetByType(ctx, recordType)
		if err != nil {
			return report, errs.Wrapf(err, "scan ledger type %s", recordType)
		}
		report.Scanned += len(records)

		for i := range records {
			record := records[i]
			hash, err := record.HashPayload.ComparableHash()
			if err != nil {
				// Unparseable payloads still get a row; the ledger key and
				// tx id are enough to find the record again.
				hash = ""
			}
			upsertErr := s.uow.WithTx(ctx, func(txCtx context.Context) error {
				return s.recordMap.Upsert(txCtx, ports.RecordMapUpsert{
					RecordType: record.RecordType.String(),
					RecordID:   record.RecordID,
					PatientID:  record.PatientID,
					LedgerKey:  ledger.DirectKey(record.RecordType, record.RecordID),
					TxID:       record.TxID,
					RecordHash: hash,
					FileHash:   record.HashPayload.FileHash,
					IPFSHash:   record.HashPayload.IPFSHash,
					CreatedBy:  record.CreatedBy,
				})
			})
			if upsertErr != nil {
				report.Failed++
				logging.Error(ctx, "rebuild upsert failed",
					slog.String("record_type", record.RecordType.String()),
					slog.String("record_id", record.RecordID),
					slog.Any("err", upsertErr),
				)
				continue
			}
			report.Upserted++
			report.ByType[record.RecordType.String()]++
		}
	}

	logging.Info(ctx, "reconciliation rebuild finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("upserted", report.Upserted),
		slog.Int("failed", report.Failed),
	)
	if report.Failed > 0 {
		return report, errs.Wrapf(ledger.ErrReconciliationInconsistency, "%d rows failed to upsert", report.Failed)
	}
	return report, nil
}
