// Package progress drives the per-page tracking of one submitted task.
package progress

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/handoff"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
)

// Phase is the controller lifecycle state
type Phase string

const (
	PhaseIdle                 Phase = "IDLE"
	PhaseAwaitingSubscription Phase = "AWAITING_SUBSCRIPTION"
	PhaseTracking             Phase = "TRACKING"
	PhaseCompleted            Phase = "COMPLETED"
	PhaseFailed               Phase = "FAILED"
)

// Query parameters that carry the task id on page load
const (
	ParamTaskID       = "task_id"
	ParamLegacyTaskID = "check_task_id"
)

const DefaultResultsPath = "/highlight/results"

// Options configure a Controller
type Options struct {
	// ResultsPath is where a successful task navigates, with ?task_id=<id> appended
	ResultsPath string

	// PageKey is the directory key the controller registers itself under
	PageKey string

	// Directory is used for self-registration and progress display discovery. Optional.
	Directory *handoff.Directory
}

// Controller tracks the task of one page. It implements interfaces.HandoffTarget.
type Controller struct {
	page        interfaces.Page
	registry    interfaces.SubscriptionRegistry
	directory   *handoff.Directory
	logger      arbor.ILogger
	resultsPath string
	pageKey     string
	inert       bool

	mu         sync.Mutex
	state      models.JobProgressState
	phase      Phase
	display    interfaces.ProgressDisplay
	done       chan struct{}
	switched   chan struct{}
	generation uint64
	closed     bool
}

// NewController creates a controller for page. When the page has no tracker root the
// controller is inert and every method is a no-op.
func NewController(page interfaces.Page, registry interfaces.SubscriptionRegistry, logger arbor.ILogger, opts Options) *Controller {
	c := &Controller{
		page:        page,
		registry:    registry,
		directory:   opts.Directory,
		logger:      logger,
		resultsPath: opts.ResultsPath,
		pageKey:     opts.PageKey,
		phase:       PhaseIdle,
		done:        make(chan struct{}),
		switched:    make(chan struct{}),
		state:       models.JobProgressState{StatusKind: models.StatusUnknown},
	}

	if c.resultsPath == "" {
		c.resultsPath = DefaultResultsPath
	}

	if page == nil || !page.HasRoot() {
		c.inert = true
		logger.Debug().Msg("Progress tracker root not found - controller inert")
		return c
	}

	if c.directory != nil && c.pageKey != "" {
		c.directory.Register(c.pageKey, c)
	}

	return c
}

// Initialize discovers the progress display, resolves the task id from a prior
// SetTaskID or the page URL, and starts tracking when one is known.
func (c *Controller) Initialize(ctx context.Context) error {
	if c.inert {
		return nil
	}

	c.discoverDisplay()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.state.TaskID == "" {
		taskID := c.page.QueryParam(ParamTaskID)
		if taskID == "" {
			taskID = c.page.QueryParam(ParamLegacyTaskID)
		}
		if taskID != "" {
			c.resetLocked(taskID)
		}
	}
	taskID := c.state.TaskID
	subscribed := c.state.Subscribed
	c.mu.Unlock()

	c.updateView()

	if taskID == "" {
		c.page.SetProgressVisible(false)
		return nil
	}

	c.page.SetProgressVisible(true)
	if subscribed {
		return nil
	}
	return c.subscribe(ctx)
}

// SetTaskID switches tracking to taskID. Re-delivering the tracked, subscribed id is a no-op,
// as is any call after Close.
// A subscription failure is returned and leaves the controller awaiting subscription.
func (c *Controller) SetTaskID(ctx context.Context, taskID string) error {
	if c.inert || taskID == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed || (c.state.TaskID == taskID && c.state.Subscribed) {
		c.mu.Unlock()
		return nil
	}

	previous := c.state.TaskID
	changed := previous != taskID
	if changed {
		c.resetLocked(taskID)
	}
	c.mu.Unlock()

	if changed {
		if previous != "" {
			c.registry.Unsubscribe(previous)
		}
		c.page.SetProgressVisible(false)
		c.logger.Info().
			Str("task_id", taskID).
			Str("previous_task_id", previous).
			Msg("Tracking new task")
	}

	c.discoverDisplay()
	c.updateView()

	return c.subscribe(ctx)
}

// resetLocked starts a fresh tracking generation for taskID. Callers hold c.mu.
func (c *Controller) resetLocked(taskID string) {
	c.generation++
	c.state = models.JobProgressState{
		TaskID:     taskID,
		StatusKind: models.StatusUnknown,
	}
	c.phase = PhaseAwaitingSubscription
	c.done = make(chan struct{})
	close(c.switched)
	c.switched = make(chan struct{})
}

func (c *Controller) subscribe(ctx context.Context) error {
	c.mu.Lock()
	taskID := c.state.TaskID
	generation := c.generation
	c.mu.Unlock()

	err := c.registry.Subscribe(ctx, taskID, interfaces.SubscriptionCallbacks{
		OnProgress: c.handleProgress,
		OnJoined:   c.handleJoined,
		OnStatus:   c.handleStatus,
	})

	c.mu.Lock()
	if generation != c.generation {
		// A newer task id or Close took over while this subscribe was in flight.
		// The late entry is removed unless the same id is tracked again.
		stale := err == nil && (c.closed || taskID != c.state.TaskID)
		c.mu.Unlock()
		if stale {
			c.registry.Unsubscribe(taskID)
			c.logger.Debug().Str("task_id", taskID).Msg("Dropped superseded task subscription")
		}
		return nil
	}
	if err != nil {
		c.state.Subscribed = false
		c.phase = PhaseAwaitingSubscription
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to subscribe to task progress")
		return fmt.Errorf("track task %s: %w", taskID, err)
	}
	c.state.Subscribed = true
	if c.phase == PhaseAwaitingSubscription {
		c.phase = PhaseTracking
	}
	c.mu.Unlock()

	c.page.SetProgressVisible(true)
	return nil
}

func (c *Controller) handleProgress(event models.ProgressEvent) {
	c.mu.Lock()
	if event.TaskID != c.state.TaskID {
		c.mu.Unlock()
		return
	}
	c.state.Progress = math.Max(0, math.Min(100, event.Progress))
	c.mu.Unlock()

	c.updateView()
}

func (c *Controller) handleJoined(event models.JoinedEvent) {
	c.logger.Debug().Str("task_id", event.TaskID).Msg("Joined task progress room")
}

func (c *Controller) handleStatus(event models.TaskStatusEvent) {
	c.mu.Lock()
	if event.TaskID != c.state.TaskID {
		c.mu.Unlock()
		return
	}

	state := event.State.Normalize()
	if state == c.state.StatusState {
		c.mu.Unlock()
		return
	}

	c.state.StatusState = state
	c.state.StatusKind = state.Kind()
	c.state.StatusMessage = event.Status

	var navigateTo string
	var done chan struct{}
	switch c.state.StatusKind {
	case models.StatusCompleted:
		if models.HasErrorIndicator(event.Status) {
			c.state.StatusKind = models.StatusFailed
			c.phase = PhaseFailed
		} else {
			c.phase = PhaseCompleted
			navigateTo = c.resultsURL(event.TaskID)
		}
		done = c.done
	case models.StatusFailed:
		c.phase = PhaseFailed
		done = c.done
	}
	c.mu.Unlock()

	c.page.SetStatusText(statusText(state, event.Status))

	c.logger.Info().
		Str("task_id", event.TaskID).
		Str("state", string(state)).
		Str("status", event.Status).
		Msg("Task status changed")

	if navigateTo != "" {
		c.page.Navigate(navigateTo)
	}

	if done != nil {
		c.closeDone(done)
	}
}

// closeDone signals the end of a task once the page shows its outcome.
// Every generation gets its own channel, so done may already belong to a replaced task.
func (c *Controller) closeDone(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-done:
	default:
		close(done)
	}
}

func (c *Controller) resultsURL(taskID string) string {
	return c.resultsPath + "?" + url.Values{ParamTaskID: []string{taskID}}.Encode()
}

func statusText(state models.TaskState, message string) string {
	if message != "" {
		return message
	}
	return string(state)
}

// discoverDisplay resolves the progress display from the directory once
func (c *Controller) discoverDisplay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.display != nil || c.directory == nil {
		return
	}

	component, ok := c.directory.Lookup(handoff.KeyProgressDisplay)
	if !ok {
		return
	}
	if display, ok := component.(interfaces.ProgressDisplay); ok {
		c.display = display
	}
}

// updateView pushes the stored progress to the display, when one is resolved
func (c *Controller) updateView() {
	c.mu.Lock()
	display := c.display
	value := c.state.Progress
	c.mu.Unlock()

	if display != nil {
		display.SetValue(value)
	}
}

// State returns a snapshot of the tracked task
func (c *Controller) State() models.JobProgressState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Phase returns the lifecycle phase
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Done is closed when the current task reaches COMPLETED or FAILED, after the page
// shows the outcome. A new task id replaces the channel.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// TaskSwitched returns a channel that is closed the next time the tracked task id changes
func (c *Controller) TaskSwitched() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switched
}

// Inert reports whether the page had no tracker root
func (c *Controller) Inert() bool {
	return c.inert
}

// Close stops tracking and removes the controller from the directory.
// Later Initialize and SetTaskID calls are ignored.
func (c *Controller) Close() {
	if c.inert {
		return
	}

	c.mu.Lock()
	taskID := c.state.TaskID
	c.generation++
	c.closed = true
	c.state.Subscribed = false
	c.mu.Unlock()

	if taskID != "" {
		c.registry.Unsubscribe(taskID)
	}

	if c.directory != nil && c.pageKey != "" {
		if component, ok := c.directory.Lookup(c.pageKey); ok && component == c {
			c.directory.Unregister(c.pageKey)
		}
	}
}
