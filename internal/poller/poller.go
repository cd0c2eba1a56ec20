// Package poller tracks a task by polling its HTTP status route, for pages without the event channel.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
)

const (
	DefaultInterval   = 3 * time.Second
	DefaultStatusPath = "/highlight/task_status"

	msgChecking        = "Проверка статуса..."
	msgRedirecting     = "Обработка завершена! Перенаправление..."
	msgProcessingError = "Произошла ошибка при обработке файла."
	msgNotFound        = "Задача не найдена на сервере. Попробуйте снова."
	msgCheckFailed     = "Не удалось проверить статус задачи: "
)

// StatusResponse is the reply of the status route
type StatusResponse struct {
	State  models.TaskState `json:"state"`
	Status string           `json:"status"`
}

// Config configures a Poller
type Config struct {
	Interval    time.Duration
	StatusPath  string
	ResultsPath string
	Timeout     time.Duration
}

// Poller checks a task's status at a fixed interval until it reaches a terminal state
type Poller struct {
	httpClient  *http.Client
	resolve     func(path string) string
	interval    time.Duration
	statusPath  string
	resultsPath string
	page        interfaces.Page
	presenter   interfaces.ErrorPresenter
	logger      arbor.ILogger
}

// NewPoller creates a poller that reports through page and presenter
func NewPoller(resolve func(path string) string, cfg Config, page interfaces.Page, presenter interfaces.ErrorPresenter, logger arbor.ILogger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = DefaultStatusPath
	}
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = "/highlight/results"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if resolve == nil {
		resolve = func(path string) string { return path }
	}
	return &Poller{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		resolve:     resolve,
		interval:    cfg.Interval,
		statusPath:  strings.TrimRight(cfg.StatusPath, "/"),
		resultsPath: cfg.ResultsPath,
		page:        page,
		presenter:   presenter,
		logger:      logger,
	}
}

// Poll checks the task every interval and returns its terminal state.
// Success navigates to the results page; failure and not-found are shown in place.
// A failed check stops polling and is returned.
func (p *Poller) Poll(ctx context.Context, taskID string) (models.TaskState, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.TaskStateUnknown, ctx.Err()
		case <-ticker.C:
		}

		status, err := p.Check(ctx, taskID)
		if err != nil {
			p.logger.Error().Err(err).Str("task_id", taskID).Msg("Status check failed")
			p.presenter.ShowClientError(msgCheckFailed + err.Error())
			return models.TaskStateUnknown, err
		}

		text := status.Status
		if text == "" {
			text = msgChecking
		}
		p.page.SetStatusText(text)

		state := status.State.Normalize()
		p.logger.Debug().
			Str("task_id", taskID).
			Str("state", string(state)).
			Msg("Task status polled")

		switch state {
		case models.TaskStateSuccess, models.TaskStateCompleted:
			p.page.SetStatusText(msgRedirecting)
			p.page.Navigate(p.resultsPath + "?" + url.Values{"task_id": []string{taskID}}.Encode())
			return state, nil
		case models.TaskStateFailure, models.TaskStateFailed:
			message := status.Status
			if message == "" {
				message = msgProcessingError
			}
			p.page.SetProgressVisible(false)
			p.presenter.ShowClientError(message)
			return state, nil
		case models.TaskStateNotFound:
			p.page.SetProgressVisible(false)
			p.presenter.ShowClientError(msgNotFound)
			return state, nil
		}
	}
}

// Check performs a single status request
func (p *Poller) Check(ctx context.Context, taskID string) (*StatusResponse, error) {
	target := p.resolve(p.statusPath + "/" + url.PathEscape(taskID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("Ошибка сервера: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}
