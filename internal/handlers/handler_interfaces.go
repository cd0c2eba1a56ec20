package handlers

import (
	"context"

	"github.com/ternarybob/highlight/internal/hub"
	"github.com/ternarybob/highlight/internal/models"
)

// TaskService accepts submissions and reports stored task state.
type TaskService interface {
	Submit(ctx context.Context, sub hub.Submission) (string, error)
	Status(ctx context.Context, taskID string) (*models.TaskRecord, error)
}
