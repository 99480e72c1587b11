package model

// LedgerAuditLog is one row of the append-only forensic trail: every
// attempted store/verify/update against the ledger subsystem, whatever the
// outcome. Rows are never updated or deleted.
type LedgerAuditLog struct {
	ID                 uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	OperationType      string `gorm:"column:operation_type;type:text;not null;index"`
	RecordType         string `gorm:"column:record_type;type:text;not null;index:idx_ledger_audit_record"`
	RecordID           string `gorm:"column:record_id;type:text;not null;index:idx_ledger_audit_record"`
	LedgerKey          string `gorm:"column:ledger_key;type:text"`
	TxID               string `gorm:"column:tx_id;type:text;index"`
	Status             string `gorm:"column:status;type:text;not null;index"`
	VerificationResult string `gorm:"column:verification_result;type:text"`
	ErrorMessage       string `gorm:"column:error_message;type:text"`
	Metadata           string `gorm:"column:metadata;type:text"`
	CreatedBy          int    `gorm:"column:created_by"`
	CreatedAt          string `gorm:"column:created_at;type:text;not null;index"`
}

func (LedgerAuditLog) TableName() string {
	return "ledger_audit_logs"
}
