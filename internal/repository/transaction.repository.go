package repository

import (
	"context"
	"errors"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrTransactionNotFound is returned when a ledger entry does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) GetByDocumentID(ctx context.Context, documentID int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).Where("document_id = ?", documentID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// UpsertByDocument reconciles the ledger entry derived from one document.
// An existing row for the document is updated in place; otherwise a new row
// is inserted. The unique index on document_id backs the at-most-one-row
// invariant. Callable only inside the pipeline's reconciliation transaction.
func (r *TransactionRepository) UpsertByDocument(ctx context.Context, documentID int64, txn *model.Transaction) (*model.Transaction, error) {
	var existing TransactionEntity
	err := r.Write(ctx).WithContext(ctx).Where("document_id = ?", documentID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		entity := toTransactionEntity(txn)
		entity.DocumentID = &documentID
		if createErr := r.Write(ctx).WithContext(ctx).Create(entity).Error; createErr != nil {
			return nil, createErr
		}
		return toTransactionModel(entity), nil
	}

	updates := map[string]interface{}{
		"amount":           txn.Amount,
		"transaction_date": txn.TransactionDate,
		"description":      txn.Description,
	}
	if updateErr := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; updateErr != nil {
		return nil, updateErr
	}

	existing.Amount = txn.Amount
	existing.TransactionDate = txn.TransactionDate
	existing.Description = txn.Description
	return toTransactionModel(&existing), nil
}

func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.DocumentID != nil {
		q = q.Where("document_id = ?", *f.DocumentID)
	}
	if f.From != nil {
		q = q.Where("transaction_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("transaction_date < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "transaction_date"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*TransactionEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}
