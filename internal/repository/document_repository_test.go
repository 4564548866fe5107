package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	t.Run("create document successfully", func(t *testing.T) {
		doc := &model.Document{
			UserID:         1,
			Filename:       "invoice.txt",
			StorageLocator: "uploads/abc_invoice.txt",
		}

		created, err := repo.Create(ctx, doc)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, doc.UserID, created.UserID)
		assert.Equal(t, doc.Filename, created.Filename)
		assert.Equal(t, doc.StorageLocator, created.StorageLocator)
		assert.Equal(t, model.DocumentStatusPending, created.Status)
		assert.NotZero(t, created.UploadedAt)
	})

	t.Run("new documents default to pending", func(t *testing.T) {
		doc := &model.Document{
			UserID:         2,
			Filename:       "receipt.txt",
			StorageLocator: "uploads/def_receipt.txt",
		}

		created, err := repo.Create(ctx, doc)
		require.NoError(t, err)

		fetched, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusPending, fetched.Status)
		assert.Nil(t, fetched.ProcessedAt)
		assert.Nil(t, fetched.TotalValue)
	})
}

func TestDocumentRepository_GetByID(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	t.Run("missing document returns ErrNotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 99999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentRepository_MarkProcessing(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	newDoc := func(t *testing.T) *model.Document {
		doc, err := repo.Create(ctx, &model.Document{
			UserID:         1,
			Filename:       "doc.txt",
			StorageLocator: "uploads/doc.txt",
		})
		require.NoError(t, err)
		return doc
	}

	t.Run("claims a pending document", func(t *testing.T) {
		doc := newDoc(t)
		now := time.Now().UTC()

		claimed, err := repo.MarkProcessing(ctx, doc.ID, now, now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.True(t, claimed)

		fetched, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusProcessing, fetched.Status)
	})

	t.Run("second claim on fresh lease loses", func(t *testing.T) {
		doc := newDoc(t)
		now := time.Now().UTC()
		staleBefore := now.Add(-5 * time.Minute)

		claimed, err := repo.MarkProcessing(ctx, doc.ID, now, staleBefore)
		require.NoError(t, err)
		require.True(t, claimed)

		claimed, err = repo.MarkProcessing(ctx, doc.ID, now, staleBefore)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("expired lease can be reclaimed", func(t *testing.T) {
		doc := newDoc(t)
		past := time.Now().UTC().Add(-time.Hour)

		claimed, err := repo.MarkProcessing(ctx, doc.ID, past, past.Add(-5*time.Minute))
		require.NoError(t, err)
		require.True(t, claimed)

		// The first runner died an hour ago; a redelivered task claims.
		now := time.Now().UTC()
		claimed, err = repo.MarkProcessing(ctx, doc.ID, now, now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("completed document cannot be claimed", func(t *testing.T) {
		doc := newDoc(t)
		now := time.Now().UTC()
		staleBefore := now.Add(-5 * time.Minute)

		claimed, err := repo.MarkProcessing(ctx, doc.ID, now, staleBefore)
		require.NoError(t, err)
		require.True(t, claimed)

		err = repo.Complete(ctx, doc.ID, model.ExtractionResult{
			Amount:          100,
			TransactionDate: now,
			Description:     "done",
		}, now)
		require.NoError(t, err)

		claimed, err = repo.MarkProcessing(ctx, doc.ID, now, staleBefore)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("exactly one of N concurrent claimers wins", func(t *testing.T) {
		doc := newDoc(t)
		now := time.Now().UTC()
		staleBefore := now.Add(-5 * time.Minute)

		const n = 10
		var wg sync.WaitGroup
		results := make(chan bool, n)

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := repo.MarkProcessing(ctx, doc.ID, now, staleBefore)
				assert.NoError(t, err)
				results <- claimed
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for claimed := range results {
			if claimed {
				wins++
			}
		}
		assert.Equal(t, 1, wins)
	})
}

func TestDocumentRepository_Complete(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	t.Run("writes extraction outcome", func(t *testing.T) {
		doc, err := repo.Create(ctx, &model.Document{
			UserID:         1,
			Filename:       "invoice.txt",
			StorageLocator: "uploads/invoice.txt",
		})
		require.NoError(t, err)

		now := time.Now().UTC()
		claimed, err := repo.MarkProcessing(ctx, doc.ID, now, now.Add(-5*time.Minute))
		require.NoError(t, err)
		require.True(t, claimed)

		txnDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		err = repo.Complete(ctx, doc.ID, model.ExtractionResult{
			Amount:          123.45,
			TransactionDate: txnDate,
			Description:     "Invoice total 123,45",
		}, now)
		require.NoError(t, err)

		fetched, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusCompleted, fetched.Status)
		require.NotNil(t, fetched.TotalValue)
		assert.Equal(t, 123.45, *fetched.TotalValue)
		require.NotNil(t, fetched.TransactionDate)
		assert.Equal(t, txnDate.Format("2006-01-02"), fetched.TransactionDate.Format("2006-01-02"))
		require.NotNil(t, fetched.Description)
		assert.Equal(t, "Invoice total 123,45", *fetched.Description)
		assert.NotNil(t, fetched.ProcessedAt)
	})

	t.Run("pending document cannot be completed", func(t *testing.T) {
		doc, err := repo.Create(ctx, &model.Document{
			UserID:         1,
			Filename:       "doc.txt",
			StorageLocator: "uploads/doc.txt",
		})
		require.NoError(t, err)

		err = repo.Complete(ctx, doc.ID, model.ExtractionResult{}, time.Now().UTC())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("double complete is rejected", func(t *testing.T) {
		doc, err := repo.Create(ctx, &model.Document{
			UserID:         1,
			Filename:       "doc.txt",
			StorageLocator: "uploads/doc.txt",
		})
		require.NoError(t, err)

		now := time.Now().UTC()
		claimed, err := repo.MarkProcessing(ctx, doc.ID, now, now.Add(-5*time.Minute))
		require.NoError(t, err)
		require.True(t, claimed)

		require.NoError(t, repo.Complete(ctx, doc.ID, model.ExtractionResult{Amount: 1, TransactionDate: now}, now))
		err = repo.Complete(ctx, doc.ID, model.ExtractionResult{Amount: 2, TransactionDate: now}, now)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	userID := int64(100)
	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, &model.Document{
			UserID:         userID,
			Filename:       "doc.txt",
			StorageLocator: "uploads/doc.txt",
		})
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	t.Run("list all documents", func(t *testing.T) {
		docs, total, err := repo.List(ctx, model.DocumentFilter{UserID: &userID, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, docs, 5)
	})

	t.Run("list with pagination", func(t *testing.T) {
		docs, total, err := repo.List(ctx, model.DocumentFilter{UserID: &userID, Limit: 2, Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, docs, 2)
	})

	t.Run("list with status filter", func(t *testing.T) {
		docs, total, err := repo.List(ctx, model.DocumentFilter{
			UserID:   &userID,
			Statuses: []model.DocumentStatus{model.DocumentStatusPending},
			Limit:    10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, docs, 5)
	})
}

func TestDocumentRepository_ListStuckProcessing(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	mkProcessing := func(t *testing.T, claimedAt time.Time) *model.Document {
		doc, err := repo.Create(ctx, &model.Document{
			UserID:         1,
			Filename:       "doc.txt",
			StorageLocator: "uploads/doc.txt",
		})
		require.NoError(t, err)
		claimed, err := repo.MarkProcessing(ctx, doc.ID, claimedAt, claimedAt.Add(-5*time.Minute))
		require.NoError(t, err)
		require.True(t, claimed)
		return doc
	}

	now := time.Now().UTC()
	stale := mkProcessing(t, now.Add(-time.Hour))
	fresh := mkProcessing(t, now)

	pending, err := repo.Create(ctx, &model.Document{
		UserID:         1,
		Filename:       "pending.txt",
		StorageLocator: "uploads/pending.txt",
	})
	require.NoError(t, err)

	stuck, err := repo.ListStuckProcessing(ctx, now.Add(-5*time.Minute), 100)
	require.NoError(t, err)

	ids := make([]int64, 0, len(stuck))
	for _, d := range stuck {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, stale.ID)
	assert.NotContains(t, ids, fresh.ID)
	assert.NotContains(t, ids, pending.ID)
}
