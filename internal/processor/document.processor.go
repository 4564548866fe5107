package processor

import (
	"context"
	"errors"
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/dispatch"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/extraction"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/queue"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/repository"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/storage"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/logger"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/prom"
)

// DefaultStaleAfter is how long a processing lease is honored before a
// redelivered task may claim the document again.
const DefaultStaleAfter = 5 * time.Minute

type DocumentRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Document, error)
	MarkProcessing(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error)
	Complete(ctx context.Context, id int64, res model.ExtractionResult, processedAt time.Time) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionRepository interface {
	UpsertByDocument(ctx context.Context, documentID int64, txn *model.Transaction) (*model.Transaction, error)
}

type EventRepository interface {
	Append(ctx context.Context, ev *model.Event) (*model.Event, error)
}

// DocumentProcessor drives one document through its state machine: claim the
// pending row, extract, then commit document completion, ledger upsert and
// event append as a single transaction. Safe to invoke from a queue consumer
// and inline from intake, concurrently, for the same document id.
type DocumentProcessor struct {
	documents    DocumentRepository
	transactions TransactionRepository
	events       EventRepository
	blobs        storage.Store
	engine       extraction.Engine
	staleAfter   time.Duration
}

func NewDocumentProcessor(
	documents DocumentRepository,
	transactions TransactionRepository,
	events EventRepository,
	blobs storage.Store,
	engine extraction.Engine,
) *DocumentProcessor {
	return &DocumentProcessor{
		documents:    documents,
		transactions: transactions,
		events:       events,
		blobs:        blobs,
		engine:       engine,
		staleAfter:   DefaultStaleAfter,
	}
}

// WithStaleAfter overrides the processing-lease duration.
func (p *DocumentProcessor) WithStaleAfter(d time.Duration) *DocumentProcessor {
	p.staleAfter = d
	return p
}

func (p *DocumentProcessor) GetType() string {
	return "document"
}

// Process consumes one queue delivery. A payload that cannot be decoded is
// returned as an error so the queue's retry/DLQ policy takes over.
func (p *DocumentProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	task, err := dispatch.DecodeTask(queueMessage.Data)
	if err != nil {
		logger.Error("failed to decode queue task", "error", err)
		return err
	}
	return p.Run(ctx, task.DocumentID)
}

// Run executes the pipeline for one document id. Repeated and concurrent
// invocations for the same id are safe: the status claim admits a single
// runner and completed documents are left untouched.
func (p *DocumentProcessor) Run(ctx context.Context, documentID int64) error {
	start := time.Now()

	doc, err := p.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Stale id: the queue delivered work for a record that no
			// longer exists. The work is moot, not erroneous.
			logger.Warn("document not found, dropping task", "document_id", documentID)
			return nil
		}
		return err
	}

	if doc.Status.Terminal() {
		logger.Debug("document already processed, skipping", "document_id", documentID, "status", string(doc.Status))
		return nil
	}

	now := time.Now().UTC()
	claimed, err := p.documents.MarkProcessing(ctx, documentID, now, now.Add(-p.staleAfter))
	if err != nil {
		return err
	}
	if !claimed {
		// Lost the race: another runner holds the document. Exit as a
		// no-op; at-least-once delivery makes this a normal outcome.
		logger.Debug("document claimed by another runner, skipping", "document_id", documentID)
		return nil
	}

	content, err := p.blobs.Read(ctx, doc.StorageLocator)
	if err != nil {
		if !errors.Is(err, storage.ErrBlobNotFound) {
			// Infrastructure error reading the blob: leave the document
			// in processing and let redelivery retry.
			return err
		}
		// A missing blob is equivalent to no content; extraction
		// degrades to defaults rather than failing the pipeline.
		content = nil
	}

	res := p.engine.Extract(ctx, content, doc.Filename)

	processedAt := time.Now().UTC()
	err = p.documents.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := p.documents.Complete(ctx, documentID, res, processedAt); err != nil {
			return err
		}

		txn := &model.Transaction{
			UserID:          doc.UserID,
			Amount:          res.Amount,
			TransactionDate: res.TransactionDate,
			Description:     res.Description,
		}
		if _, err := p.transactions.UpsertByDocument(ctx, documentID, txn); err != nil {
			return err
		}

		ev, err := model.NewDocumentProcessedEvent(documentID, doc.UserID, res.Amount, res.TransactionDate)
		if err != nil {
			return err
		}
		if _, err := p.events.Append(ctx, ev); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// The document stays in processing; the queue's redelivery
		// policy (or the reconciler) schedules the retry.
		prom.IncDocumentsFailed()
		logger.Error("failed to reconcile document", "document_id", documentID, "error", err)
		return err
	}

	prom.ObserveProcessingDuration(time.Since(start).Seconds())
	prom.IncDocumentsProcessed()

	logger.Info("document processed",
		"document_id", documentID,
		"user_id", doc.UserID,
		"amount", res.Amount,
		"transaction_date", res.TransactionDate.Format("2006-01-02"))

	return nil
}
