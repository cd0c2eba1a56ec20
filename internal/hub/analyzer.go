package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Submission is the server-side view of one analysis request
type Submission struct {
	Kind            string   `json:"kind"`
	InputMethod     string   `json:"input_method"`
	SourceName      string   `json:"source_name,omitempty"`
	SourceSize      int64    `json:"source_size"`
	SourceType      string   `json:"source_type,omitempty"`
	WordsName       string   `json:"words_name,omitempty"`
	WordsText       string   `json:"words_text,omitempty"`
	PredefinedLists []string `json:"predefined_lists,omitempty"`
	UseOCR          bool     `json:"use_ocr"`
}

// DisplayName names the submission in stored task records
func (s Submission) DisplayName() string {
	if s.SourceName != "" {
		return s.SourceName
	}
	return "Списки для поиска"
}

// Terms returns the non-empty search lines of the inline word list
func (s Submission) Terms() []string {
	var terms []string
	for _, line := range strings.Split(s.WordsText, "\n") {
		if term := strings.TrimSpace(line); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

// Analyzer performs one analysis. report adds to the task's raw progress.
type Analyzer interface {
	Analyze(ctx context.Context, sub Submission, report func(delta float64)) (string, error)
}

var (
	errEmptySource = errors.New("пустой исходный документ")
	errNoInput     = errors.New("нет данных для анализа")
)

// SimulatedAnalyzer stands in for document processing: it advances progress in equal steps
type SimulatedAnalyzer struct {
	Steps     int
	StepDelay time.Duration
}

// Analyze walks Steps steps of 100/Steps each, pausing StepDelay between them
func (a SimulatedAnalyzer) Analyze(ctx context.Context, sub Submission, report func(delta float64)) (string, error) {
	if sub.SourceName != "" && sub.SourceSize == 0 {
		return "", errEmptySource
	}
	if sub.SourceName == "" && len(sub.PredefinedLists) == 0 && len(sub.Terms()) == 0 {
		return "", errNoInput
	}

	steps := a.Steps
	if steps <= 0 {
		steps = 10
	}
	delta := 100.0 / float64(steps)

	for i := 0; i < steps; i++ {
		if a.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(a.StepDelay):
			}
		} else if err := ctx.Err(); err != nil {
			return "", err
		}
		report(delta)
	}

	terms := len(sub.Terms()) + len(sub.PredefinedLists)
	return fmt.Sprintf("Обработка завершена. Источников слов: %d", terms), nil
}
