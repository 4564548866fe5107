package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	t.Run("create transaction successfully", func(t *testing.T) {
		txn := &model.Transaction{
			UserID:          1,
			Amount:          250.00,
			TransactionDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Description:     "Manual entry",
		}

		created, err := repo.Create(ctx, txn)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, txn.Amount, created.Amount)
		assert.NotZero(t, created.CreatedAt)
	})
}

func TestTransactionRepository_UpsertByDocument(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	txnDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("first upsert inserts", func(t *testing.T) {
		documentID := int64(501)

		created, err := repo.UpsertByDocument(ctx, documentID, &model.Transaction{
			UserID:          1,
			Amount:          123.45,
			TransactionDate: txnDate,
			Description:     "Invoice",
		})
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		require.NotNil(t, created.DocumentID)
		assert.Equal(t, documentID, *created.DocumentID)

		fetched, err := repo.GetByDocumentID(ctx, documentID)
		require.NoError(t, err)
		assert.Equal(t, 123.45, fetched.Amount)
	})

	t.Run("second upsert updates in place", func(t *testing.T) {
		documentID := int64(502)

		first, err := repo.UpsertByDocument(ctx, documentID, &model.Transaction{
			UserID:          1,
			Amount:          10.00,
			TransactionDate: txnDate,
			Description:     "first run",
		})
		require.NoError(t, err)

		second, err := repo.UpsertByDocument(ctx, documentID, &model.Transaction{
			UserID:          1,
			Amount:          20.00,
			TransactionDate: txnDate.AddDate(0, 0, 1),
			Description:     "second run",
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		fetched, err := repo.GetByDocumentID(ctx, documentID)
		require.NoError(t, err)
		assert.Equal(t, 20.00, fetched.Amount)
		assert.Equal(t, "second run", fetched.Description)

		// Still exactly one row for this document.
		rows, count, err := repo.List(ctx, model.TransactionFilter{DocumentID: &documentID, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.Len(t, rows, 1)
	})

	t.Run("missing document id returns not found", func(t *testing.T) {
		_, err := repo.GetByDocumentID(ctx, 99999)
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})
}

func TestTransactionRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	userID := int64(7)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		docID := int64(600 + i)
		_, err := repo.UpsertByDocument(ctx, docID, &model.Transaction{
			UserID:          userID,
			Amount:          float64(i + 1),
			TransactionDate: base.AddDate(0, i, 0),
			Description:     "entry",
		})
		require.NoError(t, err)
	}

	t.Run("filter by user", func(t *testing.T) {
		rows, total, err := repo.List(ctx, model.TransactionFilter{UserID: &userID, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, rows, 4)
	})

	t.Run("filter by date range", func(t *testing.T) {
		from := base.AddDate(0, 1, 0)
		to := base.AddDate(0, 3, 0)
		rows, total, err := repo.List(ctx, model.TransactionFilter{
			UserID: &userID,
			From:   &from,
			To:     &to,
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, rows, 2)
	})

	t.Run("ordered by transaction date desc", func(t *testing.T) {
		rows, _, err := repo.List(ctx, model.TransactionFilter{UserID: &userID, Limit: 10, Desc: true})
		require.NoError(t, err)
		require.NotEmpty(t, rows)
		assert.Equal(t, 4.0, rows[0].Amount)
	})
}
