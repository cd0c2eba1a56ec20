package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/hub"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
	"github.com/ternarybob/highlight/internal/templates"
)

// MockTaskService is a mock implementation of TaskService
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) Submit(ctx context.Context, sub hub.Submission) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}

func (m *MockTaskService) Status(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	args := m.Called(ctx, taskID)
	if record := args.Get(0); record != nil {
		return record.(*models.TaskRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type uploadFile struct {
	field, name string
	content     []byte
}

func multipartRequest(t *testing.T, fields map[string][]string, files ...uploadFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, values := range fields {
		for _, value := range values {
			require.NoError(t, writer.WriteField(name, value))
		}
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.field, file.name)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/highlight/process_async", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func newTaskHandler(t *testing.T, service TaskService) *TaskHandler {
	t.Helper()
	lists, err := templates.LoadPredefinedLists("")
	require.NoError(t, err)
	return NewTaskHandler(service, lists, arbor.NewLogger())
}

func TestProcessAsync_Accepted(t *testing.T) {
	service := new(MockTaskService)
	service.On("Submit", mock.Anything, mock.MatchedBy(func(sub hub.Submission) bool {
		return sub.Kind == "highlight" &&
			sub.SourceName == "report.docx" &&
			sub.SourceSize == 11 &&
			sub.SourceType != "" &&
			sub.WordsText == "alpha\nbeta\ngamma" &&
			sub.UseOCR
	})).Return("abc123", nil)

	req := multipartRequest(t, map[string][]string{
		"input-method": {"text"},
		"words_text":   {"alpha, beta\ngamma"},
		"use_ocr":      {"on"},
	}, uploadFile{field: "source_file", name: "report.docx", content: []byte("hello world")})
	rec := httptest.NewRecorder()

	newTaskHandler(t, service).ProcessAsyncHandler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "abc123", body["task_id"])
	assert.Equal(t, "Файл принят в обработку.", body["message"])
	service.AssertExpectations(t)
}

func TestProcessAsync_WordsFromTextFileAndLists(t *testing.T) {
	service := new(MockTaskService)
	service.On("Submit", mock.Anything, mock.MatchedBy(func(sub hub.Submission) bool {
		return sub.WordsName == "words.txt" &&
			len(sub.PredefinedLists) == 1 &&
			sub.PredefinedLists[0] == "Запрещенные вещества" &&
			sub.Terms()[0] == "one" && len(sub.Terms()) == 5
	})).Return("t-1", nil)

	req := multipartRequest(t, map[string][]string{
		"input-method":         {"file"},
		"predefined_list_keys": {"narkot", "unknown"},
	},
		uploadFile{field: "source_file", name: "doc.pdf", content: []byte("%PDF-1.4 data")},
		uploadFile{field: "words_file", name: "words.txt", content: []byte("one\n\ntwo\n")},
	)
	rec := httptest.NewRecorder()

	newTaskHandler(t, service).ProcessAsyncHandler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	service.AssertExpectations(t)
}

func TestProcessAsync_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string][]string
		files   []uploadFile
		message string
	}{
		{
			name:    "no source and no lists",
			fields:  map[string][]string{"words_text": {"alpha"}},
			message: "Загрузите исходный документ (.docx, .pdf или .odt)",
		},
		{
			name:    "unknown list only",
			fields:  map[string][]string{"predefined_list_keys": {"nope"}},
			message: "Загрузите исходный документ (.docx, .pdf или .odt)",
		},
		{
			name:    "bad source extension",
			fields:  map[string][]string{"words_text": {"alpha"}},
			files:   []uploadFile{{field: "source_file", name: "notes.txt", content: []byte("x")}},
			message: "Недопустимый формат исходного файла. Загрузите .docx, .pdf или .odt",
		},
		{
			name:    "bad words extension",
			files:   []uploadFile{{field: "source_file", name: "a.docx", content: []byte("x")}, {field: "words_file", name: "w.csv", content: []byte("x")}},
			message: "Файл слов должен быть в формате .docx, .xlsx или .txt",
		},
		{
			name:    "no words source",
			files:   []uploadFile{{field: "source_file", name: "a.docx", content: []byte("x")}},
			message: "Укажите источник слов: файл, текстовое поле или выберите список.",
		},
		{
			name:    "blank words",
			fields:  map[string][]string{"words_text": {" , ,"}},
			files:   []uploadFile{{field: "source_file", name: "a.docx", content: []byte("x")}},
			message: "Предоставленные слова/фразы пусты или некорректны.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockTaskService)
			rec := httptest.NewRecorder()

			newTaskHandler(t, service).ProcessAsyncHandler(rec, multipartRequest(t, tt.fields, tt.files...))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["error"])
			service.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessAsync_ServiceFailure(t *testing.T) {
	service := new(MockTaskService)
	service.On("Submit", mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	req := multipartRequest(t, map[string][]string{"words_text": {"a"}},
		uploadFile{field: "source_file", name: "a.docx", content: []byte("x")})
	rec := httptest.NewRecorder()

	newTaskHandler(t, service).ProcessAsyncHandler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "Ошибка сервера")
}

func TestProcessAsync_RequiresPostAndMultipart(t *testing.T) {
	handler := newTaskHandler(t, new(MockTaskService))

	rec := httptest.NewRecorder()
	handler.ProcessAsyncHandler(rec, httptest.NewRequest(http.MethodGet, "/highlight/process_async", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/highlight/process_async", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	handler.ProcessAsyncHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskStatusHandler(t *testing.T) {
	service := new(MockTaskService)
	service.On("Status", mock.Anything, "abc123").Return(&models.TaskRecord{
		ID:            "abc123",
		State:         models.TaskStateProcessing,
		StatusMessage: "Задача выполняется...",
	}, nil)
	service.On("Status", mock.Anything, "gone").Return(nil, interfaces.ErrTaskNotFound)
	service.On("Status", mock.Anything, "broken").Return(nil, errors.New("io"))
	handler := newTaskHandler(t, service)

	rec := httptest.NewRecorder()
	handler.TaskStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/highlight/task_status/abc123", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"state": "PROCESSING", "status": "Задача выполняется..."}, decodeBody(t, rec))

	rec = httptest.NewRecorder()
	handler.TaskStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/highlight/task_status/gone", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, rec)["state"])
	assert.Equal(t, hub.MessageNotFound, decodeBody(t, rec)["status"])

	rec = httptest.NewRecorder()
	handler.TaskStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/highlight/task_status/broken", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
