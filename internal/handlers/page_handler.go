package handlers

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/templates"
)

type PageHandler struct {
	service TaskService
	lists   map[string]templates.PredefinedList
	logger  arbor.ILogger
}

func NewPageHandler(service TaskService, lists map[string]templates.PredefinedList, logger arbor.ILogger) *PageHandler {
	return &PageHandler{
		service: service,
		lists:   lists,
		logger:  logger,
	}
}

// ResultsHandler renders the results page for ?task_id=
func (h *PageHandler) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	taskID := r.URL.Query().Get("task_id")
	data := map[string]interface{}{
		"TaskID": taskID,
		"Found":  false,
	}

	status := http.StatusNotFound
	if taskID != "" {
		record, err := h.service.Status(r.Context(), taskID)
		switch {
		case err == nil:
			status = http.StatusOK
			data["Found"] = true
			data["SourceName"] = record.SourceName
			data["State"] = string(record.State)
			data["Status"] = record.StatusMessage
			data["Progress"] = record.Percent()
		case !errors.Is(err, interfaces.ErrTaskNotFound):
			h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to load task for results")
		}
	}

	h.render(w, status, func(buf *bytes.Buffer) error {
		return templates.RenderPage(buf, "results", data)
	})
}

// ModalHandler serves the HTML fragment of /highlight/modal/{id}
func (h *PageHandler) ModalHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := PathParam(r, "/highlight/modal/")
	if !templates.HasModal(id) {
		http.NotFound(w, r)
		return
	}

	data := map[string]interface{}{
		"Lists": templates.SortedLists(h.lists),
	}
	h.render(w, http.StatusOK, func(buf *bytes.Buffer) error {
		return templates.RenderModal(buf, id, data)
	})
}

// render buffers the template so a failure can still produce a 500
func (h *PageHandler) render(w http.ResponseWriter, status int, fn func(buf *bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
