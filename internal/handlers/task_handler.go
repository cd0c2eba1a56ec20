package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/hub"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/templates"
	"github.com/ternarybob/highlight/internal/upload"
)

// Response messages of the task endpoints
const (
	msgAccepted         = "Файл принят в обработку."
	msgBadRequest       = "Некорректный запрос."
	msgSourceRequired   = "Загрузите исходный документ (.docx, .pdf или .odt)"
	msgSourceFormat     = "Недопустимый формат исходного файла. Загрузите .docx, .pdf или .odt"
	msgWordsFormat      = "Файл слов должен быть в формате .docx, .xlsx или .txt"
	msgWordsRequired    = "Укажите источник слов: файл, текстовое поле или выберите список."
	msgWordsEmpty       = "Предоставленные слова/фразы пусты или некорректны."
	msgStateSaveFailed  = "Ошибка сервера: не удалось сохранить состояние задачи. Попробуйте позже."
	msgStatusLookupFail = "Ошибка сервера при получении статуса задачи."
)

const (
	maxUploadMemory = 32 << 20
	maxWordsFile    = 1 << 20
)

var (
	sourceExtensions = []string{".docx", ".pdf", ".odt"}
	wordsExtensions  = []string{".docx", ".xlsx", ".txt"}
)

// TaskHandler serves task submission and status
type TaskHandler struct {
	service TaskService
	lists   map[string]templates.PredefinedList
	logger  arbor.ILogger
}

func NewTaskHandler(service TaskService, lists map[string]templates.PredefinedList, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		service: service,
		lists:   lists,
		logger:  logger,
	}
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) error {
	return &requestError{status: http.StatusBadRequest, message: message}
}

// ProcessAsyncHandler accepts a multipart analysis submission and answers 202 with the task id
func (h *TaskHandler) ProcessAsyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.logger.Warn().Err(err).Msg("Invalid multipart submission")
		WriteError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	sub, err := h.parseSubmission(r)
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			WriteError(w, reqErr.status, reqErr.message)
			return
		}
		h.logger.Error().Err(err).Msg("Failed to read submission")
		WriteError(w, http.StatusInternalServerError, "Ошибка при обработке загруженных файлов.")
		return
	}

	taskID, err := h.service.Submit(r.Context(), sub)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to submit task")
		WriteError(w, http.StatusInternalServerError, msgStateSaveFailed)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"message": msgAccepted,
	})
}

func (h *TaskHandler) parseSubmission(r *http.Request) (hub.Submission, error) {
	sub := hub.Submission{
		Kind:        string(upload.KindFromAction(r.URL.Path)),
		InputMethod: r.FormValue(upload.FieldInputMethod),
		UseOCR:      isTruthy(r.FormValue(upload.FieldUseOCR)),
	}

	var terms []string

	source, err := formFile(r, upload.FieldSourceFile)
	if err != nil {
		return sub, err
	}
	if source != nil {
		if !hasExtension(source.Filename, sourceExtensions) {
			return sub, badRequest(msgSourceFormat)
		}
		sub.SourceName = source.Filename
		sub.SourceSize = source.Size
		if sub.SourceType, err = sniff(source); err != nil {
			return sub, err
		}
	}

	words, err := formFile(r, upload.FieldWordsFile)
	if err != nil {
		return sub, err
	}
	if words != nil {
		if !hasExtension(words.Filename, wordsExtensions) {
			return sub, badRequest(msgWordsFormat)
		}
		sub.WordsName = words.Filename
		if strings.EqualFold(filepath.Ext(words.Filename), ".txt") {
			lines, err := readTextLines(words)
			if err != nil {
				return sub, err
			}
			terms = append(terms, lines...)
		}
	}

	if text := r.FormValue(upload.FieldWordsText); strings.TrimSpace(text) != "" {
		terms = append(terms, splitTerms(strings.ReplaceAll(text, ",", "\n"))...)
	}

	for _, key := range r.MultipartForm.Value[upload.FieldPredefinedLists] {
		list, ok := h.lists[key]
		if !ok {
			h.logger.Warn().Str("key", key).Msg("Invalid or unknown predefined list key")
			continue
		}
		sub.PredefinedLists = append(sub.PredefinedLists, list.Name)
		terms = append(terms, list.Terms...)
	}

	if sub.SourceName == "" && len(sub.PredefinedLists) == 0 {
		return sub, badRequest(msgSourceRequired)
	}
	if words == nil && len(terms) == 0 && len(sub.PredefinedLists) == 0 {
		if strings.TrimSpace(r.FormValue(upload.FieldWordsText)) != "" {
			return sub, badRequest(msgWordsEmpty)
		}
		return sub, badRequest(msgWordsRequired)
	}

	sub.WordsText = strings.Join(terms, "\n")
	return sub, nil
}

// TaskStatusHandler returns {state, status} for /highlight/task_status/{id}
func (h *TaskHandler) TaskStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	taskID := PathParam(r, "/highlight/task_status/")
	if taskID == "" {
		WriteJSON(w, http.StatusNotFound, map[string]string{
			"state":  "NOT_FOUND",
			"status": hub.MessageNotFound,
		})
		return
	}

	record, err := h.service.Status(r.Context(), taskID)
	if errors.Is(err, interfaces.ErrTaskNotFound) {
		h.logger.Debug().Str("task_id", taskID).Msg("Task not found")
		WriteJSON(w, http.StatusNotFound, map[string]string{
			"state":  "NOT_FOUND",
			"status": hub.MessageNotFound,
		})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to load task status")
		WriteError(w, http.StatusInternalServerError, msgStatusLookupFail)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"state":  string(record.State),
		"status": record.StatusMessage,
	})
}

// formFile returns the uploaded file header of field, or nil when none was sent
func formFile(r *http.Request, field string) (*multipart.FileHeader, error) {
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 || headers[0].Filename == "" {
		return nil, nil
	}
	return headers[0], nil
}

// sniff detects the content type of an uploaded file from its bytes
func sniff(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	return mtype.String(), nil
}

func readTextLines(header *multipart.FileHeader) ([]string, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxWordsFile))
	if err != nil {
		return nil, err
	}
	if !mimetype.Detect(data).Is("text/plain") && len(data) > 0 {
		return nil, badRequest(msgWordsFormat)
	}
	return splitTerms(string(data)), nil
}

func splitTerms(text string) []string {
	var terms []string
	for _, line := range strings.Split(text, "\n") {
		if term := strings.TrimSpace(line); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func hasExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range allowed {
		if ext == candidate {
			return true
		}
	}
	return false
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}
