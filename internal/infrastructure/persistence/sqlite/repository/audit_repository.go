package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"medledger/internal/errs"
	"medledger/internal/infrastructure/persistence/sqlite/model"
	"medledger/internal/ports"
)

// AuditRepository persists the append-only forensic trail. There is
// deliberately no update or delete path.
type AuditRepository struct {
	db *gorm.DB
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
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

func (r *AuditRepository) Append(ctx context.Context, in ports.AuditAppend) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.LedgerAuditLog{
		OperationType:      in.OperationType,
		RecordType:         in.RecordType,
		RecordID:           in.RecordID,
		LedgerKey:          in.LedgerKey,
		TxID:               in.TxID,
		Status:             in.Status,
		VerificationResult: in.VerificationResult,
		ErrorMessage:       in.ErrorMessage,
		Metadata:           in.Metadata,
		CreatedBy:          in.CreatedBy,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "append audit row")
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, filter ports.AuditFilter) ([]ports.AuditEntry, int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := db.Model(&model.LedgerAuditLog{})
	if filter.OperationType != "" {
		query = query.Where("operation_type = ?", filter.OperationType)
	}
	if filter.RecordType != "" {
		query = query.Where("record_type = ?", filter.RecordType)
	}
	if filter.RecordID != "" {
		query = query.Where("record_id = ?", filter.RecordID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedBy != 0 {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.From != "" {
		query = query.Where("created_at >= ?", filter.From)
	}
	if filter.To != "" {
		query = query.Where("created_at <= ?", filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errs.Wrap(err, "count audit rows")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}

	var rows []model.LedgerAuditLog
	if err := query.
		Order("id desc").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&rows).Error; err != nil {
		return nil, 0, errs.Wrap(err, "query audit rows")
	}

	items := make([]ports.AuditEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.AuditEntry{
			ID:                 row.ID,
			OperationType:      row.OperationType,
			RecordType:         row.RecordType,
			RecordID:           row.RecordID,
			LedgerKey:          row.LedgerKey,
			TxID:               row.TxID,
			Status:             row.Status,
			VerificationResult: row.VerificationResult,
			ErrorMessage:       row.ErrorMessage,
			Metadata:           row.Metadata,
			CreatedBy:          row.CreatedBy,
			CreatedAt:          row.CreatedAt,
		})
	}
	return items, total, nil
}
