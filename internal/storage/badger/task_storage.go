package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TaskStorage implements interfaces.TaskStorage
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewTaskStorage creates a task store on db
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) *TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// GetTask returns the record for id. Expired records read as not found.
func (s *TaskStorage) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	var record models.TaskRecord
	err := s.db.Store().Get(id, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	if record.IsExpired(s.now()) {
		return nil, interfaces.ErrTaskNotFound
	}
	return &record, nil
}

// SaveTask inserts or replaces a record, keeping the original creation time
func (s *TaskStorage) SaveTask(ctx context.Context, record *models.TaskRecord) error {
	if record.ID == "" {
		return fmt.Errorf("task record has no id")
	}

	now := s.now()
	record.UpdatedAt = now

	var existing models.TaskRecord
	err := s.db.Store().Get(record.ID, &existing)
	switch {
	case err == nil && !existing.CreatedAt.IsZero():
		record.CreatedAt = existing.CreatedAt
	case err != nil && !errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("failed to check task %s: %w", record.ID, err)
	case record.CreatedAt.IsZero():
		record.CreatedAt = now
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save task %s: %w", record.ID, err)
	}
	return nil
}

// DeleteTask removes a record; deleting a missing record is not an error
func (s *TaskStorage) DeleteTask(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.TaskRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// PurgeExpired deletes every record whose TTL ended before now
func (s *TaskStorage) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var candidates []models.TaskRecord
	if err := s.db.Store().Find(&candidates, badgerhold.Where("ExpiresAt").Lt(now)); err != nil {
		return 0, fmt.Errorf("failed to find expired tasks: %w", err)
	}

	purged := 0
	for _, record := range candidates {
		// Records without a TTL never expire
		if !record.IsExpired(now) {
			continue
		}
		if err := s.db.Store().Delete(record.ID, &models.TaskRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return purged, fmt.Errorf("failed to purge task %s: %w", record.ID, err)
		}
		purged++
	}

	if purged > 0 {
		s.logger.Debug().Int("count", purged).Msg("Purged expired tasks")
	}
	return purged, nil
}

// Close closes the underlying database
func (s *TaskStorage) Close() error {
	return s.db.Close()
}
