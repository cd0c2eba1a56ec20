// Package hub runs analyses for the development server: it stores task records,
// executes submissions on a worker pool and publishes progress to task rooms.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
	"github.com/ternarybob/highlight/internal/worker"
)

// Status messages stored with task records and sent to rooms
const (
	MessagePending    = "Задача принята в очередь"
	MessageProcessing = "Задача выполняется..."
	MessageNotFound   = "Задача не найдена или информация о ней утеряна."
)

// Notifier publishes task events to room members
type Notifier interface {
	SendProgress(taskID string, progress float64)
	SendStatus(taskID string, state models.TaskState, message string)
}

// Config configures a Service
type Config struct {
	Workers   int
	QueueSize int
	TaskTTL   time.Duration
}

// Service accepts submissions and drives them through the analysis lifecycle
type Service struct {
	storage  interfaces.TaskStorage
	notifier Notifier
	analyzer Analyzer
	logger   arbor.ILogger
	config   Config
	pool     *worker.WorkerPool
	now      func() time.Time

	// messages holds the analyzer's result text until the completion is recorded
	mu       sync.Mutex
	messages map[string]string
}

// NewService creates a service. Call Start before submitting.
func NewService(storage interfaces.TaskStorage, notifier Notifier, analyzer Analyzer, logger arbor.ILogger, config Config) *Service {
	if config.TaskTTL <= 0 {
		config.TaskTTL = time.Hour
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}

	s := &Service{
		storage:  storage,
		notifier: notifier,
		analyzer: analyzer,
		logger:   logger,
		config:   config,
		now:      time.Now,
		messages: make(map[string]string),
	}
	s.pool = worker.NewWorkerPool(s, s, logger, config.Workers, config.QueueSize)
	return s
}

// Start starts the analysis workers
func (s *Service) Start() {
	s.pool.Start()
}

// Stop stops the workers; running analyses are cancelled
func (s *Service) Stop() {
	s.pool.Stop()
}

// Submit stores a PENDING record for sub, queues it and returns the new task id
func (s *Service) Submit(ctx context.Context, sub Submission) (string, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("failed to encode submission: %w", err)
	}

	taskID := uuid.New().String()
	record := &models.TaskRecord{
		ID:            taskID,
		State:         models.TaskStatePending,
		StatusMessage: MessagePending,
		MaxValue:      100,
		SourceName:    sub.DisplayName(),
		ExpiresAt:     s.now().Add(s.config.TaskTTL),
	}
	if err := s.storage.SaveTask(ctx, record); err != nil {
		return "", fmt.Errorf("failed to save task state: %w", err)
	}
	s.notifier.SendStatus(taskID, models.TaskStatePending, MessagePending)

	if err := s.pool.Enqueue(worker.Job{TaskID: taskID, Payload: payload}); err != nil {
		message := fmt.Sprintf("Ошибка при постановке задачи: %v", err)
		s.setState(ctx, taskID, models.TaskStateFailure, message)
		return "", fmt.Errorf("failed to queue task %s: %w", taskID, err)
	}

	s.logger.Info().
		Str("task_id", taskID).
		Str("source", record.SourceName).
		Msg("Task submitted")

	return taskID, nil
}

// Status returns the stored record of taskID
func (s *Service) Status(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	return s.storage.GetTask(ctx, taskID)
}

// PurgeExpired deletes records past their TTL
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	return s.storage.PurgeExpired(ctx, s.now())
}

// Execute implements worker.Executor
func (s *Service) Execute(ctx context.Context, taskID string, payload []byte) error {
	var sub Submission
	if err := json.Unmarshal(payload, &sub); err != nil {
		return fmt.Errorf("invalid submission payload: %w", err)
	}

	message, err := s.analyzer.Analyze(ctx, sub, func(delta float64) {
		s.addProgress(ctx, taskID, delta)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages[taskID] = message
	s.mu.Unlock()
	return nil
}

// MarkRunning implements worker.StatusReporter
func (s *Service) MarkRunning(ctx context.Context, taskID string) error {
	return s.setState(ctx, taskID, models.TaskStateProcessing, MessageProcessing)
}

// MarkCompleted implements worker.StatusReporter
func (s *Service) MarkCompleted(ctx context.Context, taskID string) error {
	s.mu.Lock()
	message := s.messages[taskID]
	delete(s.messages, taskID)
	s.mu.Unlock()

	if message == "" {
		message = "Обработка завершена"
	}

	record, err := s.storage.GetTask(ctx, taskID)
	if err == nil && record.Progress < record.MaxValue {
		record.Progress = record.MaxValue
		if err := s.storage.SaveTask(ctx, record); err != nil {
			return err
		}
	}
	s.notifier.SendProgress(taskID, 100)

	return s.setState(ctx, taskID, models.TaskStateCompleted, message)
}

// MarkFailed implements worker.StatusReporter
func (s *Service) MarkFailed(ctx context.Context, taskID string, message string) error {
	return s.setState(ctx, taskID, models.TaskStateFailure, "Ошибка при обработке: "+message)
}

func (s *Service) addProgress(ctx context.Context, taskID string, delta float64) {
	record, err := s.storage.GetTask(ctx, taskID)
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("Failed to load task for progress")
		return
	}

	record.Progress += delta
	if record.Progress > record.MaxValue {
		record.Progress = record.MaxValue
	}
	if err := s.storage.SaveTask(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("Failed to save task progress")
		return
	}

	s.notifier.SendProgress(taskID, record.Percent())
}

// setState stores state and message, then publishes them. The write uses a
// background context so a final state survives pool cancellation.
func (s *Service) setState(ctx context.Context, taskID string, state models.TaskState, message string) error {
	writeCtx := context.WithoutCancel(ctx)

	record, err := s.storage.GetTask(writeCtx, taskID)
	if errors.Is(err, interfaces.ErrTaskNotFound) {
		record = &models.TaskRecord{ID: taskID, MaxValue: 100, ExpiresAt: s.now().Add(s.config.TaskTTL)}
	} else if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	record.State = state
	record.StatusMessage = message
	if err := s.storage.SaveTask(writeCtx, record); err != nil {
		return fmt.Errorf("failed to save task %s: %w", taskID, err)
	}

	s.notifier.SendStatus(taskID, state, message)

	s.logger.Debug().
		Str("task_id", taskID).
		Str("state", string(state)).
		Msg("Task state changed")
	return nil
}
