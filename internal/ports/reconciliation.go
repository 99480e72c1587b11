package ports

import (
	"context"
	"errors"
)

var ErrRecordMapNotFound = errors.New("record map row not found")

// RecordMapRow maps an application record to its ledger entry. It is a
// denormalized cache over the ledger: mutable, rebuildable, and never
// authoritative for whether a fingerprint exists.
type RecordMapRow struct {
	RecordType   string
	RecordID     string
	PatientID    int
	LedgerKey    string
	TxID         string
	RecordHash   string
	FileHash     string
	IPFSHash     string
	EncryptionIV string
	CreatedBy    int
	CreatedAt    string
	UpdatedAt    string
}

// RecordMapUpsert inserts a row on the first successful ledger write for a
// record and overwrites tx id and hashes on every later write.
type RecordMapUpsert struct {
	RecordType   string
	RecordID     string
	PatientID    int
	LedgerKey    string
	TxID         string
	RecordHash   string
	FileHash     string
	IPFSHash     string
	EncryptionIV string
	CreatedBy    int
}

type RecordMapRepository interface {
	Upsert(ctx context.Context, in RecordMapUpsert) error
	Lookup(ctx context.Context, recordType, recordID string) (RecordMapRow, error)
	ListByPatient(ctx context.Context, patientID int) ([]RecordMapRow, error)
}
