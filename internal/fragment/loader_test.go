package fragment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

type testModal struct {
	body  string
	shown bool
}

func (m *testModal) SetBody(html string) { m.body = html }
func (m *testModal) Show()               { m.shown = true }

func newTestLoader(server *httptest.Server) *Loader {
	return NewLoader(func(path string) string { return server.URL + path }, 5*time.Second, arbor.NewLogger())
}

func TestLoader_FragmentInjectedVerbatim(t *testing.T) {
	fragment := `<div class="org"><h3>Организация</h3><p>Решение суда</p></div>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/highlight/modal/42", r.URL.Path)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(fragment))
	}))
	defer server.Close()

	modal := &testModal{}
	newTestLoader(server).Open(context.Background(), modal, "/highlight/modal/42")

	assert.True(t, modal.shown)
	assert.Equal(t, fragment, modal.body)
}

func TestLoader_FullDocumentKeepsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<!DOCTYPE html><html><head><title>x</title></head><body><p>Только тело</p></body></html>`))
	}))
	defer server.Close()

	body := newTestLoader(server).Load(context.Background(), "/full")
	assert.Equal(t, "<p>Только тело</p>", body)
}

func TestLoader_ErrorsRenderFixedParagraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	loader := newTestLoader(server)

	assert.Equal(t, ErrorFragment, loader.Load(context.Background(), "/missing"))

	server.Close()
	modal := &testModal{}
	loader.Open(context.Background(), modal, "/offline")
	assert.Equal(t, ErrorFragment, modal.body)
	assert.True(t, modal.shown)
}

func TestLoader_Markdown(t *testing.T) {
	loader := NewLoader(nil, 0, arbor.NewLogger())

	out := loader.Markdown(`<h3>Организация</h3><p>Решение <strong>суда</strong></p>`)
	assert.Contains(t, out, "### Организация")
	assert.Contains(t, out, "**суда**")

	assert.Equal(t, "", loader.Markdown("   "))
	assert.True(t, strings.Contains(loader.Markdown(ErrorFragment), "Ошибка загрузки данных"))
}
