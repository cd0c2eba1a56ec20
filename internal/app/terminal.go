package app

import (
	"fmt"
	"io"
	"net/url"
	"sync"
)

// TerminalPage renders a tracking page as lines on a writer. It implements
// interfaces.Page, interfaces.ErrorPresenter and interfaces.Modal.
type TerminalPage struct {
	out   io.Writer
	outMu sync.Mutex
	query url.Values

	mu        sync.Mutex
	visible   bool
	status    string
	clientErr string
	modalBody string
	location  string
	navigated chan struct{}
}

// NewTerminalPage creates a page whose URL carries query
func NewTerminalPage(out io.Writer, query url.Values) *TerminalPage {
	if query == nil {
		query = url.Values{}
	}
	return &TerminalPage{
		out:       out,
		query:     query,
		navigated: make(chan struct{}),
	}
}

func (p *TerminalPage) HasRoot() bool { return true }

func (p *TerminalPage) QueryParam(name string) string {
	return p.query.Get(name)
}

func (p *TerminalPage) SetProgressVisible(visible bool) {
	p.mu.Lock()
	p.visible = visible
	p.mu.Unlock()
}

func (p *TerminalPage) SetStatusText(text string) {
	p.mu.Lock()
	changed := p.status != text
	p.status = text
	p.mu.Unlock()

	if changed {
		p.printf("%s\n", text)
	}
}

// Navigate records the first location and closes Navigated
func (p *TerminalPage) Navigate(location string) {
	p.mu.Lock()
	if p.location != "" {
		p.mu.Unlock()
		return
	}
	p.location = location
	close(p.navigated)
	p.mu.Unlock()

	p.printf("-> %s\n", location)
}

func (p *TerminalPage) ShowClientError(message string) {
	p.mu.Lock()
	p.clientErr = message
	p.mu.Unlock()
	p.printf("%s\n", message)
}

func (p *TerminalPage) ClearClientError() {
	p.mu.Lock()
	p.clientErr = ""
	p.mu.Unlock()
}

func (p *TerminalPage) SetBody(html string) {
	p.mu.Lock()
	p.modalBody = html
	p.mu.Unlock()
}

func (p *TerminalPage) Show() {}

// ProgressLine prints one rendered progress bar line
func (p *TerminalPage) ProgressLine(line string) {
	p.mu.Lock()
	visible := p.visible
	p.mu.Unlock()
	if visible {
		p.printf("%s\n", line)
	}
}

// Navigated is closed once the page leaves for another location
func (p *TerminalPage) Navigated() <-chan struct{} {
	return p.navigated
}

// Location returns the navigation target, or "" when still on the page
func (p *TerminalPage) Location() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

// Status returns the visible status line
func (p *TerminalPage) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// ClientError returns the error shown next to the form
func (p *TerminalPage) ClientError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientErr
}

// ModalBody returns the last fragment set on the modal
func (p *TerminalPage) ModalBody() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modalBody
}

// ProgressVisible reports whether the progress region is shown
func (p *TerminalPage) ProgressVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *TerminalPage) printf(format string, args ...interface{}) {
	if p.out == nil {
		return
	}
	p.outMu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.outMu.Unlock()
}
