package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
)

type DocumentRepository struct {
	*pg.DB
}

func NewDocumentRepository(db *pg.DB) *DocumentRepository {
	return &DocumentRepository{
		db,
	}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	entity := toDocumentEntity(doc)
	if entity.Status == "" {
		entity.Status = string(model.DocumentStatusPending)
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toDocumentModel(entity), nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	var entity DocumentEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toDocumentModel(&entity), nil
}

// MarkProcessing performs the pending -> processing transition as a single
// conditional UPDATE. The status column is the concurrency-control token: of
// N concurrent callers for one document, exactly one observes
// RowsAffected == 1 and proceeds; the rest must treat the run as a no-op.
//
// A document already in processing may be claimed again only when its lease
// (processing_at) is older than staleBefore. That is how redelivered work for
// a crashed consumer makes progress without ever regressing the status.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&DocumentEntity{}).
		Where("id = ? AND (status = ? OR (status = ? AND processing_at < ?))",
			id, model.DocumentStatusPending, model.DocumentStatusProcessing, staleBefore).
		Updates(map[string]interface{}{
			"status":        model.DocumentStatusProcessing,
			"processing_at": now,
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// Complete writes the extraction outcome and moves the document to its
// terminal completed state. The update is conditional on the row still being
// in processing, so a completed document is never regressed or overwritten.
func (r *DocumentRepository) Complete(ctx context.Context, id int64, res model.ExtractionResult, processedAt time.Time) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&DocumentEntity{}).
		Where("id = ? AND status = ?", id, model.DocumentStatusProcessing).
		Updates(map[string]interface{}{
			"status":           model.DocumentStatusCompleted,
			"total_value":      res.Amount,
			"transaction_date": res.TransactionDate,
			"description":      res.Description,
			"processed_at":     processedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed moves a processing document to the failed terminal state.
// Extraction currently never produces an unrecoverable marker, so this is
// kept for forward compatibility and for the failure tests.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id int64, processedAt time.Time) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&DocumentEntity{}).
		Where("id = ? AND status = ?", id, model.DocumentStatusProcessing).
		Updates(map[string]interface{}{
			"status":       model.DocumentStatusFailed,
			"processed_at": processedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStorageLocator records where the uploaded bytes landed.
func (r *DocumentRepository) SetStorageLocator(ctx context.Context, id int64, locator string) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&DocumentEntity{}).
		Where("id = ?", id).
		Update("storage_locator", locator).Error
}

func (r *DocumentRepository) List(ctx context.Context, f model.DocumentFilter) ([]*model.Document, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&DocumentEntity{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.From != nil {
		q = q.Where("uploaded_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("uploaded_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "uploaded_at"
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

	var entities []*DocumentEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toDocumentModels(entities), total, nil
}

// ListStuckProcessing returns documents that entered processing before the
// cutoff and never reached a terminal state. The reconciler resubmits their
// ids to the queue; that is safe because the pipeline upserts downstream
// effects instead of inserting blindly.
func (r *DocumentRepository) ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*model.Document, error) {
	if limit <= 0 {
		limit = 100
	}

	var entities []*DocumentEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ? AND processing_at < ?", model.DocumentStatusProcessing, cutoff).
		Order("processing_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	return toDocumentModels(entities), nil
}
