package ports

import (
	"context"

	"medledger/internal/domain/ledger"
)

// StoreHashInput carries one StoreHash invocation through the ledger client.
type StoreHashInput struct {
	RecordID    string
	PatientID   int
	PayloadJSON []byte
	RecordType  ledger.RecordType
	CreatedBy   int
	// Timestamp is the business time of the write, supplied by the caller.
	Timestamp string
}

// StoreHashResult reports a committed ledger write.
type StoreHashResult struct {
	TxID       string
	LedgerKey  string
	CommitTime string
}

// Ledger is the invocation surface of the hash ledger. Implementations run
// the contract inside the hosting platform's transaction ordering; StoreHash
// may fail with ledger.ErrWriteConflict, which is retryable with fresh read
// state.
type Ledger interface {
	StoreHash(ctx context.Context, in StoreHashInput) (StoreHashResult, error)
	GetHash(ctx context.Context, recordType ledger.RecordType, recordID string) (*ledger.RecordHash, error)
	GetHistory(ctx context.Context, recordType ledger.RecordType, recordID string) ([]ledger.HistoryEntry, error)
	GetByPatient(ctx context.Context, patientID int) ([]ledger.RecordHash, error)
	GetByType(ctx context.Context, recordType ledger.RecordType) ([]ledger.RecordHash, error)
	VerifyHash(ctx context.Context, recordType ledger.RecordType, recordID string, providedHash string) (bool, error)
}
