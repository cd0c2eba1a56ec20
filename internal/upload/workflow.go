package upload

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/interfaces"
)

// Submitter sends a validated form and returns the task id
type Submitter interface {
	Submit(ctx context.Context, form *Form) (string, error)
}

// Handoff receives the task id of an accepted submission
type Handoff interface {
	Deliver(ctx context.Context, taskID string)
}

// Workflow is the submit path of the form: validate, send, hand the id off.
// Every error is shown through the presenter before being returned.
type Workflow struct {
	submitter Submitter
	presenter interfaces.ErrorPresenter
	handoff   Handoff
	logger    arbor.ILogger
}

// NewWorkflow wires the form submit path
func NewWorkflow(submitter Submitter, presenter interfaces.ErrorPresenter, handoff Handoff, logger arbor.ILogger) *Workflow {
	return &Workflow{
		submitter: submitter,
		presenter: presenter,
		handoff:   handoff,
		logger:    logger,
	}
}

// Submit validates form locally and, when valid, sends it. Validation failures never reach the network.
func (w *Workflow) Submit(ctx context.Context, form *Form) (string, error) {
	w.presenter.ClearClientError()

	if err := Validate(form); err != nil {
		w.logger.Warn().Err(err).Msg("Form validation failed")
		w.presenter.ShowClientError(err.Error())
		return "", err
	}

	taskID, err := w.submitter.Submit(ctx, form)
	if err != nil {
		w.logger.Error().Err(err).Msg("Form submission failed")
		w.presenter.ShowClientError(err.Error())
		return "", err
	}

	w.handoff.Deliver(ctx, taskID)
	return taskID, nil
}
