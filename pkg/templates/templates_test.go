package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lite-rag-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinLocales(t *testing.T) {
	r := MustLoadBuiltin()
	assert.Equal(t, []string{"ar", "en"}, r.Locales())

	for _, locale := range r.Locales() {
		tpl, err := r.Resolve(locale, NameRAG)
		require.NoError(t, err)
		require.Len(t, tpl.Fragments, 3)
		assert.Equal(t, "system", tpl.Fragments[0].Role)
		assert.Equal(t, "context", tpl.Fragments[1].Name)
		assert.Equal(t, "query", tpl.Fragments[2].Name)

		_, err = r.Resolve(locale, NameContextEntry)
		require.NoError(t, err)
	}
}

func TestResolveMissingLocaleDoesNotFallBack(t *testing.T) {
	r := MustLoadBuiltin()

	_, err := r.Resolve("fr", NameRAG)
	assert.True(t, errors.Is(err, errs.ErrTemplateNotFound))

	_, err = r.Resolve("en", "summary")
	assert.True(t, errors.Is(err, errs.ErrTemplateNotFound))
}

func TestRenderRAG(t *testing.T) {
	tpl, err := MustLoadBuiltin().Resolve("en", NameRAG)
	require.NoError(t, err)

	msgs, err := Render(tpl, map[string]string{
		"contexts": "## Context Document: 1\n### Content: The sky is blue.\n",
		"query":    "What color is the sky?",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "The sky is blue.")
	assert.Contains(t, msgs[2].Content, "What color is the sky?")
	assert.NotContains(t, msgs[2].Content, "{query}")
}

func TestRenderIsSinglePass(t *testing.T) {
	tpl := Template{Locale: "en", Name: "t", Fragments: []Fragment{
		{Name: "q", Role: "user", Content: "Q: {query}"},
	}}

	msgs, err := Render(tpl, map[string]string{"query": "what does {contexts} mean?"})
	require.NoError(t, err)
	assert.Equal(t, "Q: what does {contexts} mean?", msgs[0].Content)
}

func TestRenderUnresolvedPlaceholder(t *testing.T) {
	tpl, err := MustLoadBuiltin().Resolve("en", NameRAG)
	require.NoError(t, err)

	_, err = Render(tpl, map[string]string{"query": "only the query"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTemplateNotFound))
	assert.Contains(t, err.Error(), "{contexts}")
}

func TestRenderText(t *testing.T) {
	tpl, err := MustLoadBuiltin().Resolve("en", NameContextEntry)
	require.NoError(t, err)

	out, err := RenderText(tpl, map[string]string{"index": "2", "content": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "## Context Document: 2\n### Content: hello\n", out)
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := `
fr:
  rag:
    - name: system
      role: system
      content: "Vous êtes un assistant."
    - name: query
      role: user
      content: "{query}"
en:
  rag_context_entry:
    - name: entry
      role: user
      content: "[{index}] {content}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ar", "en", "fr"}, r.Locales())

	entry, err := r.Resolve("en", NameContextEntry)
	require.NoError(t, err)
	out, err := RenderText(entry, map[string]string{"index": "1", "content": "x"})
	require.NoError(t, err)
	assert.Equal(t, "[1] x", out)

	// 未覆盖的模板保持内置版本
	_, err = r.Resolve("en", NameRAG)
	assert.NoError(t, err)
}

func TestLoadRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("en:\n  rag:\n    - name: x\n      role: tool\n      content: hi\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
