package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medledger/internal/errs"
	"medledger/internal/infrastructure/persistence/sqlite/model"
	"medledger/internal/ports"
)

type RecordMapRepository struct {
	db *gorm.DB
}

var _ ports.RecordMapRepository = (*RecordMapRepository)(nil)

func NewRecordMapRepository(db *gorm.DB) *RecordMapRepository {
	return &RecordMapRepository{db: db}
}

func (r *RecordMapRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// Upsert inserts the row on first write and overwrites tx_id/hashes on every
// later write for the same (record_type, record_id).
func (r *RecordMapRepository) Upsert(ctx context.Context, in ports.RecordMapUpsert) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := model.RecordMap{
		RecordType:   in.RecordType,
		RecordID:     in.RecordID,
		PatientID:    in.PatientID,
		LedgerKey:    in.LedgerKey,
		TxID:         in.TxID,
		RecordHash:   in.RecordHash,
		FileHash:     in.FileHash,
		IPFSHash:     in.IPFSHash,
		EncryptionIV: in.EncryptionIV,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "record_type"}, {Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"patient_id", "ledger_key", "tx_id", "record_hash",
			"file_hash", "ipfs_hash", "encryption_iv", "updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert record map row")
	}
	return nil
}

func (r *RecordMapRepository) Lookup(ctx context.Context, recordType, recordID string) (ports.RecordMapRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.RecordMapRow{}, err
	}

	var row model.RecordMap
	if err := db.
		Where("record_type = ? AND record_id = ?", recordType, recordID).
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.RecordMapRow{}, ports.ErrRecordMapNotFound
		}
		return ports.RecordMapRow{}, errs.Wrap(err, "query record map row")
	}
	return mapRecordMap(row), nil
}

func (r *RecordMapRepository) ListByPatient(ctx context.Context, patientID int) ([]ports.RecordMapRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.RecordMap
	if err := db.
		Where("patient_id = ?", patientID).
		Order("record_type asc, record_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query record map by patient")
	}

	items := make([]ports.RecordMapRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRecordMap(row))
	}
	return items, nil
}

func mapRecordMap(row model.RecordMap) ports.RecordMapRow {
	return ports.RecordMapRow{
		RecordType:   row.RecordType,
		RecordID:     row.RecordID,
		PatientID:    row.PatientID,
		LedgerKey:    row.LedgerKey,
		TxID:         row.TxID,
		RecordHash:   row.RecordHash,
		FileHash:     row.FileHash,
		IPFSHash:     row.IPFSHash,
		EncryptionIV: row.EncryptionIV,
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
