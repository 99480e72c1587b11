package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medledger/internal/bootstrap/logging"
	"medledger/internal/crypto/seal"
	"medledger/internal/domain/canonical"
	"medledger/internal/ports"
)

// VerificationResult is the outcome of one verification. Callers must not
// conflate TAMPERED with any lower-severity state.
type VerificationResult string

const (
	VerificationValid    VerificationResult = "VALID"
	VerificationTampered VerificationResult = "TAMPERED"
	VerificationNotFound VerificationResult = "NOT_FOUND"
)

// storeAttempts bounds the retry loop around ledger write conflicts. Each
// retry re-simulates against fresh read state, so a retried store is a new
// version, never a duplicate.
const storeAttempts = 3

// Service orchestrates the hash ledger: it computes canonical fingerprints,
// submits them to the ledger, keeps the reconciliation map in step, and
// records every attempt on the audit trail.
type Service struct {
	ledger    ports.Ledger
	recordMap ports.RecordMapRepository
	audit     ports.AuditRepository
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	profile   canonical.Profile
	sealer    *seal.Sealer
}

// NewService wires the integrity usecases. sealer may be nil when no file
// encryption key is configured; SealReportFile then fails cleanly.
func NewService(
	ledgerClient ports.Ledger,
	recordMap ports.RecordMapRepository,
	audit ports.AuditRepository,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	profile canonical.Profile,
	sealer *seal.Sealer,
) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Service{
		ledger:    ledgerClient,
		recordMap: recordMap,
		audit:     audit,
		uow:       uow,
		publisher: publisher,
		profile:   profile,
		sealer:    sealer,
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ports.OperationalEvent) error { return nil }

// ReconciliationGapError reports a ledger write that committed while the
// local reconciliation/audit transaction failed. The ledger remains the
// source of truth; TxID lets the reconciliation map be rebuilt later.
type ReconciliationGapError struct {
	TxID string
	Err  error
}

func (e *ReconciliationGapError) Error() string {
	return fmt.Sprintf("ledger write %s committed but reconciliation store was not updated: %v", e.TxID, e.Err)
}

func (e *ReconciliationGapError) Unwrap() error { return e.Err }

// recordAudit appends one audit row. The trail must never fail the primary
// operation: on error it logs and raises an operational event instead.
func (s *Service) recordAudit(ctx context.Context, entry ports.AuditAppend) {
	if err := s.audit.Append(ctx, entry); err != nil {
		logging.Error(ctx, "audit append failed",
			slog.String("operation", entry.OperationType),
			slog.String("record_type", entry.RecordType),
			slog.String("record_id", entry.RecordID),
			slog.Any("err", err),
		)
		s.publish(ctx, ports.OperationalEvent{
			Kind:       ports.EventAuditWriteFailed,
			RecordType: entry.RecordType,
			RecordID:   entry.RecordID,
			TxID:       entry.TxID,
			Status:     entry.Status,
			Error:      err.Error(),
			At:         now(),
		})
	}
}

func (s *Service) publish(ctx context.Context, event ports.OperationalEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		logging.Warn(ctx, "operational event publish failed",
			slog.String("kind", event.Kind),
			slog.Any("err", err),
		)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
