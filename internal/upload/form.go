// Package upload validates and submits the analysis form.
package upload

import (
	"path/filepath"
	"strings"
)

// Kind selects the validation rules of a form
type Kind string

const (
	KindHighlight Kind = "highlight"
	KindFootnotes Kind = "footnotes"
	KindGeneric   Kind = "generic"
)

// InputMethod is how the words source is provided
type InputMethod string

const (
	InputMethodFile InputMethod = "file"
	InputMethodText InputMethod = "text"
)

// Multipart field names expected by the processing endpoint
const (
	FieldSourceFile      = "source_file"
	FieldWordsFile       = "words_file"
	FieldWordsText       = "words_text"
	FieldInputMethod     = "input-method"
	FieldPredefinedLists = "predefined_list_keys"
	FieldUseOCR          = "use_ocr"
)

// Form is one analysis submission. File fields hold local paths.
type Form struct {
	Kind            Kind        `validate:"required,oneof=highlight footnotes generic"`
	Action          string      `validate:"required"`
	SourceFile      string      `validate:"omitempty"`
	WordsFile       string      `validate:"omitempty"`
	WordsText       string      `validate:"omitempty"`
	InputMethod     InputMethod `validate:"omitempty,oneof=file text"`
	PredefinedLists []string    `validate:"omitempty,dive,required"`
	UseOCR          bool
}

// KindFromAction infers the form kind from its action URL
func KindFromAction(action string) Kind {
	lower := strings.ToLower(action)
	switch {
	case strings.Contains(lower, "footnotes"):
		return KindFootnotes
	case strings.Contains(lower, "highlight"):
		return KindHighlight
	default:
		return KindGeneric
	}
}

// Method returns the selected input method, defaulting to file
func (f *Form) Method() InputMethod {
	if f.InputMethod == InputMethodText {
		return InputMethodText
	}
	return InputMethodFile
}

// HasSource reports whether a source document is attached
func (f *Form) HasSource() bool {
	return f.SourceFile != ""
}

// HasWordsSource reports whether the form names words to search for:
// a predefined list, or the source matching the selected input method.
func (f *Form) HasWordsSource() bool {
	if len(f.PredefinedLists) > 0 {
		return true
	}
	if f.Method() == InputMethodFile {
		return f.WordsFile != ""
	}
	return strings.TrimSpace(f.WordsText) != ""
}

func baseName(path string) string {
	return filepath.Base(path)
}
