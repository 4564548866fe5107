package model

import "time"

// Transaction is one ledger entry. Document-derived transactions carry a
// non-nil DocumentID and there is at most one row per document; reprocessing
// updates the existing row in place.
type Transaction struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	DocumentID      *int64    `json:"document_id,omitempty"`
	Amount          float64   `json:"amount"`
	TransactionDate time.Time `json:"transaction_date"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
}

// TransactionFilter controls ledger List queries. The revenue/limits
// collaborator reads through this surface, summing Amount over
// transaction_date ranges per user.
type TransactionFilter struct {
	UserID     *int64
	DocumentID *int64
	From       *time.Time // transaction_date >=
	To         *time.Time // transaction_date <
	Limit      int
	Offset     int
	Desc       bool
}
