package hub

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/common"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
	badgerstore "github.com/ternarybob/highlight/internal/storage/badger"
)

type sentStatus struct {
	TaskID  string
	State   models.TaskState
	Message string
}

type recordingNotifier struct {
	mu       sync.Mutex
	progress []float64
	statuses []sentStatus
}

func (n *recordingNotifier) SendProgress(taskID string, progress float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, progress)
}

func (n *recordingNotifier) SendStatus(taskID string, state models.TaskState, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, sentStatus{TaskID: taskID, State: state, Message: message})
}

func (n *recordingNotifier) states() []models.TaskState {
	n.mu.Lock()
	defer n.mu.Unlock()
	states := make([]models.TaskState, 0, len(n.statuses))
	for _, s := range n.statuses {
		states = append(states, s.State)
	}
	return states
}

func (n *recordingNotifier) lastProgress() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.progress) == 0 {
		return -1
	}
	return n.progress[len(n.progress)-1]
}

func newTestStorage(t *testing.T) interfaces.TaskStorage {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "hub.db")})
	require.NoError(t, err)
	storage := badgerstore.NewTaskStorage(db, logger)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func newTestService(t *testing.T, analyzer Analyzer) (*Service, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	service := NewService(newTestStorage(t), notifier, analyzer, arbor.NewLogger(), Config{Workers: 1, TaskTTL: time.Hour})
	service.Start()
	t.Cleanup(service.Stop)
	return service, notifier
}

func waitForState(t *testing.T, service *Service, taskID string, state models.TaskState) *models.TaskRecord {
	t.Helper()
	var record *models.TaskRecord
	require.Eventually(t, func() bool {
		got, err := service.Status(context.Background(), taskID)
		if err != nil {
			return false
		}
		record = got
		return got.State == state
	}, 3*time.Second, 10*time.Millisecond)
	return record
}

func TestService_SubmitRunsToCompletion(t *testing.T) {
	service, notifier := newTestService(t, SimulatedAnalyzer{Steps: 4})

	taskID, err := service.Submit(context.Background(), Submission{
		Kind:       "highlight",
		SourceName: "report.docx",
		SourceSize: 2048,
		WordsText:  "alpha\n\nbeta\n",
	})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	record := waitForState(t, service, taskID, models.TaskStateCompleted)
	assert.Equal(t, 100.0, record.Percent())
	assert.Equal(t, "report.docx", record.SourceName)
	assert.Equal(t, "Обработка завершена. Источников слов: 2", record.StatusMessage)
	assert.False(t, models.HasErrorIndicator(record.StatusMessage))

	assert.Equal(t, []models.TaskState{
		models.TaskStatePending,
		models.TaskStateProcessing,
		models.TaskStateCompleted,
	}, notifier.states())
	assert.Equal(t, 100.0, notifier.lastProgress())
}

func TestService_AnalysisFailureIsStored(t *testing.T) {
	service, notifier := newTestService(t, SimulatedAnalyzer{Steps: 2})

	taskID, err := service.Submit(context.Background(), Submission{SourceName: "empty.docx", SourceSize: 0, WordsText: "x"})
	require.NoError(t, err)

	record := waitForState(t, service, taskID, models.TaskStateFailure)
	assert.Equal(t, "Ошибка при обработке: пустой исходный документ", record.StatusMessage)
	assert.Contains(t, notifier.states(), models.TaskStateFailure)
}

func TestService_PendingRecordHasTTL(t *testing.T) {
	storage := newTestStorage(t)
	notifier := &recordingNotifier{}
	service := NewService(storage, notifier, SimulatedAnalyzer{}, arbor.NewLogger(), Config{TaskTTL: 30 * time.Minute})
	// Not started: the record stays PENDING
	defer service.Stop()

	before := time.Now()
	taskID, err := service.Submit(context.Background(), Submission{WordsText: "alpha"})
	require.NoError(t, err)

	record, err := service.Status(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatePending, record.State)
	assert.Equal(t, MessagePending, record.StatusMessage)
	assert.Equal(t, "Списки для поиска", record.SourceName)
	assert.WithinDuration(t, before.Add(30*time.Minute), record.ExpiresAt, 5*time.Second)
}

func TestService_PurgeExpired(t *testing.T) {
	storage := newTestStorage(t)
	service := NewService(storage, &recordingNotifier{}, SimulatedAnalyzer{}, arbor.NewLogger(), Config{})
	defer service.Stop()

	ctx := context.Background()
	require.NoError(t, storage.SaveTask(ctx, &models.TaskRecord{ID: "stale", ExpiresAt: time.Now().Add(-time.Second)}))
	require.NoError(t, storage.SaveTask(ctx, &models.TaskRecord{ID: "live", ExpiresAt: time.Now().Add(time.Hour)}))

	purged := NewScheduler(service, arbor.NewLogger()).RunNow()
	assert.Equal(t, 1, purged)

	_, err := service.Status(ctx, "live")
	assert.NoError(t, err)
	_, err = service.Status(ctx, "stale")
	assert.ErrorIs(t, err, interfaces.ErrTaskNotFound)
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	scheduler := NewScheduler(&Service{}, arbor.NewLogger())
	assert.Error(t, scheduler.Start("not a schedule"))
}

func TestSimulatedAnalyzer(t *testing.T) {
	var total float64
	report := func(delta float64) { total += delta }

	message, err := SimulatedAnalyzer{Steps: 5}.Analyze(context.Background(), Submission{PredefinedLists: []string{"a"}}, report)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, total, 0.0001)
	assert.Equal(t, "Обработка завершена. Источников слов: 1", message)

	_, err = SimulatedAnalyzer{}.Analyze(context.Background(), Submission{}, report)
	assert.ErrorIs(t, err, errNoInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SimulatedAnalyzer{StepDelay: time.Second}.Analyze(ctx, Submission{WordsText: "a"}, report)
	assert.ErrorIs(t, err, context.Canceled)
}
