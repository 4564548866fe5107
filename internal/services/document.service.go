package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/dispatch"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/repository"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/storage"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/logger"
)

var (
	ErrNotFound = errors.New("document not found")
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)
	GetByID(ctx context.Context, id int64) (*model.Document, error)
	List(ctx context.Context, f model.DocumentFilter) ([]*model.Document, int64, error)
}

type TransactionRepository interface {
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
}

// DocumentService is the intake boundary: it persists the uploaded bytes,
// records the document and dispatches its id toward the pipeline. The
// caller-facing user id is assumed verified upstream and trusted as-is.
type DocumentService struct {
	documentRepo    DocumentRepository
	transactionRepo TransactionRepository
	blobs           storage.Store
	dispatcher      dispatch.Dispatcher
}

func NewDocumentService(documentRepo DocumentRepository, transactionRepo TransactionRepository, blobs storage.Store, dispatcher dispatch.Dispatcher) *DocumentService {
	return &DocumentService{
		documentRepo:    documentRepo,
		transactionRepo: transactionRepo,
		blobs:           blobs,
		dispatcher:      dispatcher,
	}
}

// Upload writes the blob first and the document row second, so a storage
// failure never leaves a row referencing missing bytes. Dispatch failure is
// absorbed here: the fallback dispatcher runs the pipeline inline, and even
// a failed inline run leaves the document retriable, so the upload itself
// still succeeds.
func (s *DocumentService) Upload(ctx context.Context, p model.DocumentUploadRequest) (*model.Document, error) {
	p.Filename = strings.TrimSpace(p.Filename)
	if p.Filename == "" {
		p.Filename = "uploaded_document"
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	locator, err := s.blobs.Write(ctx, p.Filename, p.Content)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &model.Document{
		UserID:         p.UserID,
		Filename:       p.Filename,
		StorageLocator: locator,
		Status:         model.DocumentStatusPending,
	}

	created, err := s.documentRepo.Create(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, created.ID); err != nil {
		// Both the queue and the inline fallback failed. The document is
		// still pending or processing and the reconciler will pick it
		// up, so the upload is reported as accepted.
		logger.Error("dispatch failed, document left for reconciler", "document_id", created.ID, "error", err)
	}

	// The fallback path may have completed the document inline; return the
	// current state so the caller sees it immediately.
	current, err := s.documentRepo.GetByID(ctx, created.ID)
	if err != nil {
		return created, nil
	}
	return current, nil
}

func (s *DocumentService) Get(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, f model.DocumentFilter) ([]*model.Document, int64, error) {
	return s.documentRepo.List(ctx, f)
}

func (s *DocumentService) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	return s.transactionRepo.List(ctx, f)
}
