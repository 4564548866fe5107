package fixtures

import (
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
)

func NewTestDocument(userID int64, filename, locator string) *model.Document {
	return &model.Document{
		ID:             0,
		UserID:         userID,
		Filename:       filename,
		StorageLocator: locator,
		Status:         model.DocumentStatusPending,
		UploadedAt:     time.Now(),
	}
}

func NewTestUploadRequest(userID int64, filename string, content []byte) model.DocumentUploadRequest {
	return model.DocumentUploadRequest{
		UserID:   userID,
		Filename: filename,
		Content:  content,
	}
}

func NewTestTransaction(userID int64, amount float64, documentID *int64) *model.Transaction {
	return &model.Transaction{
		ID:              0,
		UserID:          userID,
		DocumentID:      documentID,
		Amount:          amount,
		TransactionDate: time.Now(),
	}
}

var (
	// InvoiceWithAmountAndDate exercises both extraction heuristics at once.
	InvoiceWithAmountAndDate = []byte("Invoice total 123,45 dated 2024-03-15\nACME Utilities\n")

	ReceiptDotAmount = []byte("Grocery receipt\nTOTAL 42.50\npaid on 01/02/2023\n")

	PlainTextNoNumbers = []byte("handwritten note, no figures at all\n")

	EmptyContent = []byte(nil)
)

func UploadRequestInvoice(userID int64) model.DocumentUploadRequest {
	return NewTestUploadRequest(userID, "invoice_march.txt", InvoiceWithAmountAndDate)
}

func UploadRequestEmpty(userID int64) model.DocumentUploadRequest {
	return NewTestUploadRequest(userID, "empty_scan.txt", EmptyContent)
}

func DocumentFilterByUser(userID int64) model.DocumentFilter {
	return model.DocumentFilter{
		UserID: &userID,
		Limit:  50,
		Offset: 0,
		Desc:   false,
	}
}

func DocumentFilterWithPagination(userID int64, limit, offset int) model.DocumentFilter {
	return model.DocumentFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: offset,
		Desc:   false,
	}
}

func DocumentFilterByStatus(userID int64, statuses ...model.DocumentStatus) model.DocumentFilter {
	return model.DocumentFilter{
		UserID:   &userID,
		Statuses: statuses,
		Limit:    50,
		Offset:   0,
		Desc:     false,
	}
}

func TransactionFilterByUser(userID int64) model.TransactionFilter {
	return model.TransactionFilter{
		UserID: &userID,
		Limit:  50,
		Offset: 0,
	}
}

func TransactionFilterByDateRange(userID int64, from, to time.Time) model.TransactionFilter {
	return model.TransactionFilter{
		UserID: &userID,
		From:   &from,
		To:     &to,
		Limit:  50,
		Offset: 0,
	}
}
