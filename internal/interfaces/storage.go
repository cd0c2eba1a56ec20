package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/highlight/internal/models"
)

// ErrTaskNotFound is returned when a task record does not exist or has expired
var ErrTaskNotFound = errors.New("task not found")

// TaskStorage persists task records for the development hub
type TaskStorage interface {
	GetTask(ctx context.Context, id string) (*models.TaskRecord, error)
	SaveTask(ctx context.Context, record *models.TaskRecord) error
	DeleteTask(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}
