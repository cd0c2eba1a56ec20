package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
)

const (
	DefaultPreviewLimit = 200
	DefaultTimeout      = 60 * time.Second
)

// SubmitResponse is the JSON reply of the processing endpoint
type SubmitResponse struct {
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client posts forms to the processing endpoint
type Client struct {
	httpClient   *http.Client
	resolve      func(path string) string
	previewLimit int
	logger       arbor.ILogger
}

// NewClient creates a client. resolve turns a form action into an absolute URL.
func NewClient(resolve func(path string) string, timeout time.Duration, previewLimit int, logger arbor.ILogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if previewLimit <= 0 {
		previewLimit = DefaultPreviewLimit
	}
	if resolve == nil {
		resolve = func(path string) string { return path }
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		resolve:      resolve,
		previewLimit: previewLimit,
		logger:       logger,
	}
}

// Submit sends form as multipart data and returns the task id the server assigned.
// Errors are *ProtocolError, *ServerError or *TransportError.
func (c *Client) Submit(ctx context.Context, form *Form) (string, error) {
	body, contentType, err := encodeForm(form)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	target := c.resolve(form.Action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("url", target).
		Str("kind", string(form.Kind)).
		Msg("Submitting analysis form")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", &TransportError{Err: err}
		}
		return "", &ProtocolError{Status: resp.StatusCode, Preview: preview(string(raw), c.previewLimit)}
	}

	var payload SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok && payload.TaskID != "" {
		c.logger.Info().
			Str("task_id", payload.TaskID).
			Int("status", resp.StatusCode).
			Msg("Analysis task accepted")
		return payload.TaskID, nil
	}

	return "", &ServerError{Status: resp.StatusCode, Message: payload.Error}
}

func encodeForm(form *Form) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writeFile(writer, FieldSourceFile, form.SourceFile); err != nil {
		return nil, "", err
	}

	if form.Kind == KindHighlight {
		if err := writer.WriteField(FieldInputMethod, string(form.Method())); err != nil {
			return nil, "", err
		}
		if form.Method() == InputMethodFile {
			if err := writeFile(writer, FieldWordsFile, form.WordsFile); err != nil {
				return nil, "", err
			}
		} else if err := writer.WriteField(FieldWordsText, form.WordsText); err != nil {
			return nil, "", err
		}
		for _, key := range form.PredefinedLists {
			if err := writer.WriteField(FieldPredefinedLists, key); err != nil {
				return nil, "", err
			}
		}
	} else if err := writeFile(writer, FieldWordsFile, form.WordsFile); err != nil {
		return nil, "", err
	}

	if form.UseOCR {
		if err := writer.WriteField(FieldUseOCR, "on"); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// writeFile attaches path under field with a content type sniffed from the file itself
func writeFile(writer *multipart.Writer, field, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", field, err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(baseName(path))))
	header.Set("Content-Type", mimetype.Detect(data).String())

	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// preview truncates text to limit characters
func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
