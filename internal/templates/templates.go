// Package templates provides the embedded pages, modal fragments and predefined
// word lists of the development hub. Word lists are loaded with resolution order:
// 1. User override: listsDir/predefined_lists.toml
// 2. Embedded default: internal/templates/predefined_lists.toml
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed *.html *.toml
var fs embed.FS

const listsFile = "predefined_lists.toml"

// modalPrefix names modal fragment templates: modal_<id>.html
const modalPrefix = "modal_"

var pages = template.Must(template.ParseFS(fs, "*.html"))

// PredefinedList is a named word list a submission can reference by key
type PredefinedList struct {
	Key   string   `toml:"key"`
	Name  string   `toml:"name"`
	Terms []string `toml:"terms"`
}

type listsDocument struct {
	Lists []PredefinedList `toml:"list"`
}

// LoadPredefinedLists loads the word lists keyed by list key
func LoadPredefinedLists(listsDir string) (map[string]PredefinedList, error) {
	var data []byte
	if listsDir != "" {
		if userData, err := os.ReadFile(filepath.Join(listsDir, listsFile)); err == nil {
			data = userData
		}
	}
	if data == nil {
		embedded, err := fs.ReadFile(listsFile)
		if err != nil {
			return nil, fmt.Errorf("predefined lists not found: %w", err)
		}
		data = embedded
	}

	var doc listsDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse predefined lists: %w", err)
	}

	lists := make(map[string]PredefinedList, len(doc.Lists))
	for _, list := range doc.Lists {
		if list.Key == "" {
			continue
		}
		lists[list.Key] = list
	}
	return lists, nil
}

// SortedLists returns lists ordered by key
func SortedLists(lists map[string]PredefinedList) []PredefinedList {
	sorted := make([]PredefinedList, 0, len(lists))
	for _, list := range lists {
		sorted = append(sorted, list)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	return sorted
}

// RenderPage writes the named page (e.g. "results") to w
func RenderPage(w io.Writer, name string, data interface{}) error {
	return pages.ExecuteTemplate(w, name+".html", data)
}

// HasModal reports whether a modal fragment with the given id exists
func HasModal(id string) bool {
	if id == "" || strings.ContainsAny(id, "/\\.") {
		return false
	}
	return pages.Lookup(modalPrefix+id+".html") != nil
}

// RenderModal writes the modal fragment id to w
func RenderModal(w io.Writer, id string, data interface{}) error {
	if !HasModal(id) {
		return fmt.Errorf("modal '%s' not found", id)
	}
	return pages.ExecuteTemplate(w, modalPrefix+id+".html", data)
}
