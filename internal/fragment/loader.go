// Package fragment loads HTML fragments for modal windows.
package fragment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/interfaces"
)

// ErrorFragment replaces the modal body when a fragment cannot be loaded
const ErrorFragment = `<p class="error">Ошибка загрузки данных. Попробуйте позже.</p>`

const maxFragmentBytes = 4 << 20

// Loader fetches modal fragments
type Loader struct {
	httpClient *http.Client
	resolve    func(path string) string
	logger     arbor.ILogger
}

// NewLoader creates a loader. resolve turns a fragment path into an absolute URL.
func NewLoader(resolve func(path string) string, timeout time.Duration, logger arbor.ILogger) *Loader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if resolve == nil {
		resolve = func(path string) string { return path }
	}
	return &Loader{
		httpClient: &http.Client{Timeout: timeout},
		resolve:    resolve,
		logger:     logger,
	}
}

// Load returns the fragment HTML, or ErrorFragment on any failure.
// When the server returns a full document only the body content is kept.
func (l *Loader) Load(ctx context.Context, path string) string {
	html, err := l.fetch(ctx, path)
	if err != nil {
		l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load modal fragment")
		return ErrorFragment
	}
	return html
}

// Open loads the fragment into modal and shows it
func (l *Loader) Open(ctx context.Context, modal interfaces.Modal, path string) {
	modal.SetBody(l.Load(ctx, path))
	modal.Show()
}

func (l *Loader) fetch(ctx context.Context, path string) (string, error) {
	target := l.resolve(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fragment request returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFragmentBytes))
	if err != nil {
		return "", err
	}

	return bodyContent(string(raw))
}

// bodyContent returns the inner HTML of <body> for full documents and the input unchanged otherwise
func bodyContent(html string) (string, error) {
	lower := strings.ToLower(html)
	if !strings.Contains(lower, "<html") && !strings.Contains(lower, "<body") {
		return html, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse fragment: %w", err)
	}
	return doc.Find("body").Html()
}

// Markdown renders fragment HTML as markdown for terminal display.
// Conversion failures fall back to the plain text of the fragment.
func (l *Loader) Markdown(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	converted, err := md.NewConverter("", true, nil).ConvertString(html)
	if err == nil && strings.TrimSpace(converted) != "" {
		return converted
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using plain text")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
