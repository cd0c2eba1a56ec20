package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/common"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
)

func newTestStorage(t *testing.T) *TaskStorage {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "tasks.db")})
	require.NoError(t, err)

	storage := NewTaskStorage(db, logger)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestTaskStorage_SaveGetDelete(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	record := &models.TaskRecord{
		ID:            "abc123",
		State:         models.TaskStatePending,
		StatusMessage: "Задача принята в очередь",
		MaxValue:      100,
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	require.NoError(t, storage.SaveTask(ctx, record))
	created := record.CreatedAt
	assert.False(t, created.IsZero())

	got, err := storage.GetTask(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatePending, got.State)
	assert.Equal(t, "Задача принята в очередь", got.StatusMessage)

	got.State = models.TaskStateProcessing
	got.Progress = 40
	got.CreatedAt = time.Time{}
	require.NoError(t, storage.SaveTask(ctx, got))

	updated, err := storage.GetTask(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateProcessing, updated.State)
	assert.Equal(t, 40.0, updated.Percent())
	assert.True(t, updated.CreatedAt.Equal(created), "creation time preserved")

	require.NoError(t, storage.DeleteTask(ctx, "abc123"))
	_, err = storage.GetTask(ctx, "abc123")
	assert.ErrorIs(t, err, interfaces.ErrTaskNotFound)

	assert.NoError(t, storage.DeleteTask(ctx, "abc123"))
}

func TestTaskStorage_RejectsMissingID(t *testing.T) {
	storage := newTestStorage(t)
	assert.Error(t, storage.SaveTask(context.Background(), &models.TaskRecord{}))
}

func TestTaskStorage_ExpiredReadsAsNotFoundAndIsPurged(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.SaveTask(ctx, &models.TaskRecord{ID: "old", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, storage.SaveTask(ctx, &models.TaskRecord{ID: "fresh", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, storage.SaveTask(ctx, &models.TaskRecord{ID: "forever"}))

	_, err := storage.GetTask(ctx, "old")
	assert.ErrorIs(t, err, interfaces.ErrTaskNotFound)

	purged, err := storage.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = storage.GetTask(ctx, "fresh")
	assert.NoError(t, err)
	_, err = storage.GetTask(ctx, "forever")
	assert.NoError(t, err)

	purged, err = storage.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, purged)
}

func TestNewBadgerDB_ResetOnStartup(t *testing.T) {
	logger := arbor.NewLogger()
	path := filepath.Join(t.TempDir(), "tasks.db")
	ctx := context.Background()

	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: path})
	require.NoError(t, err)
	storage := NewTaskStorage(db, logger)
	require.NoError(t, storage.SaveTask(ctx, &models.TaskRecord{ID: "abc123"}))
	require.NoError(t, storage.Close())

	db, err = NewBadgerDB(logger, &common.BadgerConfig{Path: path, ResetOnStartup: true})
	require.NoError(t, err)
	storage = NewTaskStorage(db, logger)
	defer storage.Close()

	_, err = storage.GetTask(ctx, "abc123")
	assert.ErrorIs(t, err, interfaces.ErrTaskNotFound)
}
