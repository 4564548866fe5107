package model

import (
	"errors"
	"time"
)

// DocumentStatus is the lifecycle state of an uploaded document.
// Transitions only move forward: pending -> processing -> completed|failed.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Rank orders statuses for monotonicity checks. Completed and failed are
// both terminal and share the highest rank.
func (s DocumentStatus) Rank() int {
	switch s {
	case DocumentStatusPending:
		return 0
	case DocumentStatusProcessing:
		return 1
	case DocumentStatusCompleted, DocumentStatusFailed:
		return 2
	}
	return -1
}

func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

type Document struct {
	ID              int64          `json:"id"`
	UserID          int64          `json:"user_id"`
	Filename        string         `json:"filename"`
	StorageLocator  string         `json:"storage_locator"`
	Status          DocumentStatus `json:"status"`
	UploadedAt      time.Time      `json:"uploaded_at"`
	ProcessingAt    *time.Time     `json:"-"` // lease claim time, see DocumentRepository.MarkProcessing
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	TotalValue      *float64       `json:"total_value,omitempty"`
	TransactionDate *time.Time     `json:"transaction_date,omitempty"`
	Description     *string        `json:"description,omitempty"`
}

// DocumentUploadRequest is the input for intake.
type DocumentUploadRequest struct {
	UserID   int64
	Filename string
	Content  []byte
}

func (p DocumentUploadRequest) Validate() error {
	if p.UserID == 0 {
		return errors.New("user_id is required")
	}
	if p.Filename == "" {
		return errors.New("filename is required")
	}
	// Empty content is legal; extraction degrades to defaults.
	return nil
}

// DocumentFilter controls List queries.
type DocumentFilter struct {
	UserID   *int64
	Statuses []DocumentStatus
	From     *time.Time
	To       *time.Time
	Limit    int // default 50
	Offset   int
	Desc     bool // order by uploaded_at
}

// ExtractionResult is what the extraction engine derives from a document.
// Every field always carries a usable value; the engine never fails.
type ExtractionResult struct {
	Amount          float64
	TransactionDate time.Time
	Description     string
}
