package interfaces

import "context"

// ProgressDisplay is the progress bar collaborator of a page
type ProgressDisplay interface {
	// SetValue sets the value, clamped to the display's own maximum
	SetValue(value float64)
	Value() float64
}

// Page abstracts the document the progress controller is attached to
type Page interface {
	// HasRoot reports whether the page renders the progress tracker root
	HasRoot() bool

	// QueryParam returns a query parameter of the page URL
	QueryParam(name string) string

	// SetProgressVisible shows or hides the progress region
	SetProgressVisible(visible bool)

	// SetStatusText replaces the visible status line
	SetStatusText(text string)

	// Navigate leaves the page for the given URL
	Navigate(url string)
}

// HandoffTarget accepts a task id delivered by the hand-off bridge
type HandoffTarget interface {
	SetTaskID(ctx context.Context, taskID string) error
}

// ErrorPresenter shows localized errors next to the upload form
type ErrorPresenter interface {
	ShowClientError(message string)
	ClearClientError()
}

// Modal displays an HTML fragment
type Modal interface {
	SetBody(html string)
	Show()
}
