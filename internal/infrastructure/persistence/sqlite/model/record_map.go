package model

// RecordMap is the reconciliation row mapping an application record to its
// ledger entry. One row per (record_type, record_id); tx_id and hashes are
// overwritten on every ledger write while the ledger keeps full history.
type RecordMap struct {
	RecordType   string `gorm:"column:record_type;type:text;not null;primaryKey"`
	RecordID     string `gorm:"column:record_id;type:text;not null;primaryKey"`
	PatientID    int    `gorm:"column:patient_id;not null;index"`
	LedgerKey    string `gorm:"column:ledger_key;type:text;not null"`
	TxID         string `gorm:"column:tx_id;type:text;not null;index"`
	RecordHash   string `gorm:"column:record_hash;type:text;not null"`
	FileHash     string `gorm:"column:file_hash;type:text"`
	IPFSHash     string `gorm:"column:ipfs_hash;type:text"`
	EncryptionIV string `gorm:"column:encryption_iv;type:text"`
	CreatedBy    int    `gorm:"column:created_by"`
	CreatedAt    string `gorm:"column:created_at;type:text;not null"`
	UpdatedAt    string `gorm:"column:updated_at;type:text;not null"`
}

func (RecordMap) TableName() string {
	return "record_map"
}
