package repository

import (
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
)

type DocumentEntity struct {
	ID              int64      `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	UserID          int64      `db:"user_id"          gorm:"column:user_id;not null;index"`
	Filename        string     `db:"filename"         gorm:"column:filename;not null"`
	StorageLocator  string     `db:"storage_locator"  gorm:"column:storage_locator;not null"`
	Status          string     `db:"status"           gorm:"column:status;not null;index;default:pending"`
	UploadedAt      time.Time  `db:"uploaded_at"      gorm:"column:uploaded_at;autoCreateTime"`
	ProcessingAt    *time.Time `db:"processing_at"    gorm:"column:processing_at"`
	ProcessedAt     *time.Time `db:"processed_at"     gorm:"column:processed_at"`
	TotalValue      *float64   `db:"total_value"      gorm:"column:total_value"`
	TransactionDate *time.Time `db:"transaction_date" gorm:"column:transaction_date"`
	Description     *string    `db:"description"      gorm:"column:description"`
}

func (DocumentEntity) TableName() string {
	return "documents"
}

func toDocumentEntity(m *model.Document) *DocumentEntity {
	if m == nil {
		return nil
	}
	return &DocumentEntity{
		ID:              m.ID,
		UserID:          m.UserID,
		Filename:        m.Filename,
		StorageLocator:  m.StorageLocator,
		Status:          string(m.Status),
		UploadedAt:      m.UploadedAt,
		ProcessingAt:    m.ProcessingAt,
		ProcessedAt:     m.ProcessedAt,
		TotalValue:      m.TotalValue,
		TransactionDate: m.TransactionDate,
		Description:     m.Description,
	}
}

func toDocumentModel(e *DocumentEntity) *model.Document {
	if e == nil {
		return nil
	}
	return &model.Document{
		ID:              e.ID,
		UserID:          e.UserID,
		Filename:        e.Filename,
		StorageLocator:  e.StorageLocator,
		Status:          model.DocumentStatus(e.Status),
		UploadedAt:      e.UploadedAt,
		ProcessingAt:    e.ProcessingAt,
		ProcessedAt:     e.ProcessedAt,
		TotalValue:      e.TotalValue,
		TransactionDate: e.TransactionDate,
		Description:     e.Description,
	}
}

func toDocumentModels(entities []*DocumentEntity) []*model.Document {
	if entities == nil {
		return nil
	}
	models := make([]*model.Document, len(entities))
	for i, e := range entities {
		models[i] = toDocumentModel(e)
	}
	return models
}
