package helpers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/repository"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/pg"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/redis"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// One connection keeps every session on the same in-memory database
	// and serializes concurrent writers.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&repository.DocumentEntity{},
		&repository.TransactionEntity{},
		&repository.EventEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test-"+t.Name(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestDocument(t *testing.T, db *pg.DB, userID int64, filename, locator string) *repository.DocumentEntity {
	ctx := context.Background()
	doc := &repository.DocumentEntity{
		UserID:         userID,
		Filename:       filename,
		StorageLocator: locator,
		Status:         "pending",
		UploadedAt:     time.Now(),
	}
	err := db.Write(ctx).Create(doc).Error
	require.NoError(t, err)
	return doc
}

func CreateTestTransaction(t *testing.T, db *pg.DB, userID int64, amount float64, documentID *int64) *repository.TransactionEntity {
	ctx := context.Background()
	txn := &repository.TransactionEntity{
		UserID:          userID,
		DocumentID:      documentID,
		Amount:          amount,
		TransactionDate: time.Now(),
	}
	err := db.Write(ctx).Create(txn).Error
	require.NoError(t, err)
	return txn
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
