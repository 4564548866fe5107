package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) List(ctx context.Context, f model.DocumentFilter) ([]*model.Document, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Document), args.Get(1).(int64), args.Error(2)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Transaction), args.Get(1).(int64), args.Error(2)
}

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Write(ctx context.Context, filename string, content []byte) (string, error) {
	args := m.Called(ctx, filename, content)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Read(ctx context.Context, locator string) ([]byte, error) {
	args := m.Called(ctx, locator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, documentID int64) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores blob, creates row and dispatches", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		blobs := new(MockBlobStore)
		dispatcher := new(MockDispatcher)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), blobs, dispatcher)

		created := &model.Document{
			ID:             123,
			UserID:         7,
			Filename:       "invoice.pdf",
			StorageLocator: "uploads/abc_invoice.pdf",
			Status:         model.DocumentStatusPending,
		}

		blobs.On("Write", mock.Anything, "invoice.pdf", []byte("Total 12.00")).
			Return("uploads/abc_invoice.pdf", nil)
		docRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
			return d.UserID == 7 && d.StorageLocator == "uploads/abc_invoice.pdf" && d.Status == model.DocumentStatusPending
		})).Return(created, nil)
		dispatcher.On("Dispatch", mock.Anything, int64(123)).Return(nil)
		docRepo.On("GetByID", mock.Anything, int64(123)).Return(created, nil)

		doc, err := svc.Upload(ctx, model.DocumentUploadRequest{
			UserID:   7,
			Filename: "invoice.pdf",
			Content:  []byte("Total 12.00"),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(123), doc.ID)
		assert.Equal(t, model.DocumentStatusPending, doc.Status)

		docRepo.AssertExpectations(t)
		blobs.AssertExpectations(t)
		dispatcher.AssertExpectations(t)
	})

	t.Run("blank filename gets a default before validation", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		blobs := new(MockBlobStore)
		dispatcher := new(MockDispatcher)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), blobs, dispatcher)

		created := &model.Document{ID: 1, UserID: 7, Filename: "uploaded_document"}

		blobs.On("Write", mock.Anything, "uploaded_document", mock.Anything).Return("uploads/x", nil)
		docRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
			return d.Filename == "uploaded_document"
		})).Return(created, nil)
		dispatcher.On("Dispatch", mock.Anything, int64(1)).Return(nil)
		docRepo.On("GetByID", mock.Anything, int64(1)).Return(created, nil)

		doc, err := svc.Upload(ctx, model.DocumentUploadRequest{UserID: 7, Filename: "   "})
		require.NoError(t, err)
		assert.Equal(t, "uploaded_document", doc.Filename)

		docRepo.AssertExpectations(t)
	})

	t.Run("missing user id is rejected before any side effect", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		blobs := new(MockBlobStore)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), blobs, new(MockDispatcher))

		_, err := svc.Upload(ctx, model.DocumentUploadRequest{Filename: "invoice.pdf"})
		assert.Error(t, err)

		blobs.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
		docRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("storage failure leaves no document row", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		blobs := new(MockBlobStore)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), blobs, new(MockDispatcher))

		blobs.On("Write", mock.Anything, "invoice.pdf", mock.Anything).
			Return("", errors.New("disk full"))

		_, err := svc.Upload(ctx, model.DocumentUploadRequest{UserID: 7, Filename: "invoice.pdf"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store upload")

		docRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("dispatch failure does not fail the upload", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		blobs := new(MockBlobStore)
		dispatcher := new(MockDispatcher)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), blobs, dispatcher)

		created := &model.Document{ID: 9, UserID: 7, Filename: "invoice.pdf", Status: model.DocumentStatusPending}

		blobs.On("Write", mock.Anything, "invoice.pdf", mock.Anything).Return("uploads/x", nil)
		docRepo.On("Create", mock.Anything, mock.Anything).Return(created, nil)
		dispatcher.On("Dispatch", mock.Anything, int64(9)).Return(errors.New("queue down"))
		docRepo.On("GetByID", mock.Anything, int64(9)).Return(created, nil)

		doc, err := svc.Upload(ctx, model.DocumentUploadRequest{UserID: 7, Filename: "invoice.pdf"})
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusPending, doc.Status)

		dispatcher.AssertExpectations(t)
	})

	t.Run("returns post-dispatch state after an inline run", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		blobs := new(MockBlobStore)
		dispatcher := new(MockDispatcher)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), blobs, dispatcher)

		created := &model.Document{ID: 5, UserID: 7, Filename: "invoice.pdf", Status: model.DocumentStatusPending}
		amount := 42.50
		completed := &model.Document{ID: 5, UserID: 7, Filename: "invoice.pdf", Status: model.DocumentStatusCompleted, TotalValue: &amount}

		blobs.On("Write", mock.Anything, "invoice.pdf", mock.Anything).Return("uploads/x", nil)
		docRepo.On("Create", mock.Anything, mock.Anything).Return(created, nil)
		dispatcher.On("Dispatch", mock.Anything, int64(5)).Return(nil)
		// The fallback dispatcher ran the pipeline inline before returning.
		docRepo.On("GetByID", mock.Anything, int64(5)).Return(completed, nil)

		doc, err := svc.Upload(ctx, model.DocumentUploadRequest{UserID: 7, Filename: "invoice.pdf"})
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusCompleted, doc.Status)
		require.NotNil(t, doc.TotalValue)
		assert.Equal(t, 42.50, *doc.TotalValue)
	})

	t.Run("refetch failure falls back to the created row", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		blobs := new(MockBlobStore)
		dispatcher := new(MockDispatcher)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), blobs, dispatcher)

		created := &model.Document{ID: 6, UserID: 7, Filename: "invoice.pdf", Status: model.DocumentStatusPending}

		blobs.On("Write", mock.Anything, "invoice.pdf", mock.Anything).Return("uploads/x", nil)
		docRepo.On("Create", mock.Anything, mock.Anything).Return(created, nil)
		dispatcher.On("Dispatch", mock.Anything, int64(6)).Return(nil)
		docRepo.On("GetByID", mock.Anything, int64(6)).Return(nil, errors.New("read replica down"))

		doc, err := svc.Upload(ctx, model.DocumentUploadRequest{UserID: 7, Filename: "invoice.pdf"})
		require.NoError(t, err)
		assert.Equal(t, int64(6), doc.ID)
	})
}

func TestDocumentService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns an existing document", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), new(MockBlobStore), new(MockDispatcher))

		docRepo.On("GetByID", mock.Anything, int64(1)).
			Return(&model.Document{ID: 1, UserID: 7}, nil)

		doc, err := svc.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.ID)
	})

	t.Run("maps a missing row to ErrNotFound", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), new(MockBlobStore), new(MockDispatcher))

		docRepo.On("GetByID", mock.Anything, int64(404)).Return(nil, repository.ErrNotFound)

		_, err := svc.Get(ctx, 404)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("passes through other errors", func(t *testing.T) {
		docRepo := new(MockDocumentRepository)
		svc := NewDocumentService(docRepo, new(MockTransactionRepository), new(MockBlobStore), new(MockDispatcher))

		dbErr := errors.New("connection reset")
		docRepo.On("GetByID", mock.Anything, int64(2)).Return(nil, dbErr)

		_, err := svc.Get(ctx, 2)
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestDocumentService_ListTransactions(t *testing.T) {
	txnRepo := new(MockTransactionRepository)
	svc := NewDocumentService(new(MockDocumentRepository), txnRepo, new(MockBlobStore), new(MockDispatcher))

	txnRepo.On("List", mock.Anything, mock.AnythingOfType("model.TransactionFilter")).
		Return([]*model.Transaction{{ID: 1, UserID: 7, Amount: 10}}, int64(1), nil)

	rows, total, err := svc.ListTransactions(context.Background(), model.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, rows, 1)
}
