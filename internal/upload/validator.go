package upload

import (
	"fmt"
	"strings"

	"github.com/ternarybob/highlight/internal/models"
)

const (
	msgPageConfig          = "Ошибка конфигурации страницы. Обновите."
	msgSourceRequired      = "Ошибка: Необходимо загрузить исходный документ."
	msgSourceRequiredDocx  = "Ошибка: Необходимо загрузить исходный документ (.docx)."
	msgSourceOrList        = "Ошибка: Необходимо загрузить исходный документ (.docx, .pdf или .odt) или выбрать готовый список для поиска."
	msgWordsSourceRequired = "Ошибка: Укажите источник слов - загрузите файл, введите текст или выберите готовый список."
	msgSourceFormat        = "Ошибка: Исходный документ должен быть в формате .docx, .pdf или .odt."
	msgSourceFormatDocx    = "Ошибка: Исходный документ должен быть в формате .docx."
	msgWordsFormat         = "Ошибка: Файл со словами должен быть в формате .docx, .xlsx или .txt."
	msgWordsFormatDocx     = "Ошибка: Файл со словами должен быть в формате .docx."
)

var (
	sourceExtensions          = []string{".docx", ".pdf", ".odt"}
	footnotesSourceExtensions = []string{".docx"}
	highlightWordsExtensions  = []string{".docx", ".xlsx", ".txt"}
	wordsExtensions           = []string{".docx"}
)

// Validate runs the structural, field and extension checks in that order
func Validate(form *Form) error {
	if form == nil {
		return &ValidationError{Field: "form", Message: msgPageConfig}
	}
	if err := models.Validator().Struct(form); err != nil {
		return &ValidationError{Field: "form", Message: msgPageConfig}
	}
	if err := ValidateFields(form); err != nil {
		return err
	}
	return ValidateFileExtensions(form)
}

// ValidateFields checks that a source document and, for highlight forms, a words source are present
func ValidateFields(form *Form) error {
	if form.Action == "" {
		return &ValidationError{Field: "form", Message: msgPageConfig}
	}

	if form.Kind != KindHighlight {
		if form.HasSource() {
			return nil
		}
		message := msgSourceRequired
		if form.Kind == KindFootnotes {
			message = msgSourceRequiredDocx
		}
		return &ValidationError{Field: FieldSourceFile, Message: message}
	}

	hasWords := form.HasWordsSource()

	if !form.HasSource() && !hasWords {
		return &ValidationError{Field: FieldSourceFile, Message: msgSourceOrList}
	}

	if form.HasSource() && !hasWords {
		field := FieldWordsFile
		if form.Method() == InputMethodText {
			field = FieldWordsText
		}
		return &ValidationError{Field: field, Message: msgWordsSourceRequired}
	}

	return nil
}

// ValidateFileExtensions checks attached file names against the kind's allowed formats
func ValidateFileExtensions(form *Form) error {
	if form.SourceFile != "" {
		allowed, message := sourceExtensions, msgSourceFormat
		if form.Kind == KindFootnotes {
			allowed, message = footnotesSourceExtensions, msgSourceFormatDocx
		}
		if !hasExtension(form.SourceFile, allowed) {
			return &ValidationError{
				Field:   FieldSourceFile,
				Message: fmt.Sprintf("%s Некорректный файл: %s", message, baseName(form.SourceFile)),
			}
		}
	}

	if form.WordsFile != "" {
		allowed, message := wordsExtensions, msgWordsFormatDocx
		if form.Kind == KindHighlight {
			allowed, message = highlightWordsExtensions, msgWordsFormat
		}
		if !hasExtension(form.WordsFile, allowed) {
			return &ValidationError{
				Field:   FieldWordsFile,
				Message: fmt.Sprintf("%s Некорректный файл: %s", message, baseName(form.WordsFile)),
			}
		}
	}

	return nil
}

func hasExtension(path string, allowed []string) bool {
	name := strings.ToLower(baseName(path))
	for _, ext := range allowed {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
