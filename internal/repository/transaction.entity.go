package repository

import (
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
)

type TransactionEntity struct {
	ID              int64     `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	UserID          int64     `db:"user_id"          gorm:"column:user_id;not null;index"`
	DocumentID      *int64    `db:"document_id"      gorm:"column:document_id;uniqueIndex"`
	Amount          float64   `db:"amount"           gorm:"column:amount;not null"`
	TransactionDate time.Time `db:"transaction_date" gorm:"column:transaction_date;not null;index"`
	Description     string    `db:"description"      gorm:"column:description"`
	CreatedAt       time.Time `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:              m.ID,
		UserID:          m.UserID,
		DocumentID:      m.DocumentID,
		Amount:          m.Amount,
		TransactionDate: m.TransactionDate,
		Description:     m.Description,
		CreatedAt:       m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:              e.ID,
		UserID:          e.UserID,
		DocumentID:      e.DocumentID,
		Amount:          e.Amount,
		TransactionDate: e.TransactionDate,
		Description:     e.Description,
		CreatedAt:       e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
