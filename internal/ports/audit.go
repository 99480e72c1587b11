package ports

import "context"

// Operation types audited by the ledger subsystem. Pure reads are not audited.
const (
	AuditOpStore  = "STORE"
	AuditOpVerify = "VERIFY"
	AuditOpUpdate = "UPDATE"
)

// Outcome of the attempted operation, independent of ledger state.
const (
	AuditStatusSuccess = "SUCCESS"
	AuditStatusFailed  = "FAILED"
	AuditStatusPending = "PENDING"
)

// AuditEntry is one append-only row of the forensic trail. Rows are never
// updated or deleted.
type AuditEntry struct {
	ID                 uint64
	OperationType      string
	RecordType         string
	RecordID           string
	LedgerKey          string
	TxID               string
	Status             string
	VerificationResult string
	ErrorMessage       string
	Metadata           string
	CreatedBy          int
	CreatedAt          string
}

// AuditAppend is the write shape; the repository assigns id and created_at.
type AuditAppend struct {
	OperationType      string
	RecordType         string
	RecordID           string
	LedgerKey          string
	TxID               string
	Status             string
	VerificationResult string
	ErrorMessage       string
	Metadata           string
	CreatedBy          int
}

// AuditFilter narrows and pages audit listings. Zero values mean "any".
type AuditFilter struct {
	OperationType string
	RecordType    string
	RecordID      string
	Status        string
	CreatedBy     int
	From          string
	To            string
	Page          int
	PerPage       int
}

type AuditRepository interface {
	Append(ctx context.Context, in AuditAppend) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
}
