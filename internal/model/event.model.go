package model

import (
	"encoding/json"
	"time"
)

const EventTypeDocumentProcessed = "document_processed"

// Event is an immutable audit record. Rows are append-only.
type Event struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// DocumentProcessedPayload is the structured payload written for every
// successful pipeline run. Schema-versioned so decoders stay forward
// compatible when fields are added.
type DocumentProcessedPayload struct {
	SchemaVersion   int     `json:"schema_version"`
	DocumentID      int64   `json:"document_id"`
	UserID          int64   `json:"user_id"`
	Amount          float64 `json:"amount"`
	TransactionDate string  `json:"transaction_date"`
}

func NewDocumentProcessedEvent(documentID, userID int64, amount float64, transactionDate time.Time) (*Event, error) {
	payload, err := json.Marshal(DocumentProcessedPayload{
		SchemaVersion:   1,
		DocumentID:      documentID,
		UserID:          userID,
		Amount:          amount,
		TransactionDate: transactionDate.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}
	return &Event{
		EventType: EventTypeDocumentProcessed,
		Payload:   payload,
	}, nil
}
