// internal/resolver/chunker_test.go
package resolver

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarkbyte/domscout/api/schemas"
)

func TestFilterAndChunk(t *testing.T) {
	t.Run("empty input yields no chunks", func(t *testing.T) {
		assert.Nil(t, FilterAndChunk("", schemas.ElementAuto, 100))
		assert.Nil(t, FilterAndChunk("   \n\t", schemas.ElementButton, 100))
	})

	t.Run("button constraint keeps only button blocks", func(t *testing.T) {
		html := `<html><body>
			<nav><a href="/home">Home</a></nav>
			<button id="save">Save</button>
			<p>Some copy.</p>
			<button id="cancel">Cancel</button>
		</body></html>`

		chunks := FilterAndChunk(html, schemas.ElementButton, 0)
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0], `id="save"`)
		assert.Contains(t, chunks[0], `id="cancel"`)
		assert.NotContains(t, chunks[0], "<nav>")
		assert.NotContains(t, chunks[0], "Some copy.")
	})

	t.Run("input constraint includes textareas", func(t *testing.T) {
		html := `<html><body><input name="email"/><textarea name="bio"></textarea><div>x</div></body></html>`

		chunks := FilterAndChunk(html, schemas.ElementInput, 0)
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0], `name="email"`)
		assert.Contains(t, chunks[0], `name="bio"`)
		assert.NotContains(t, chunks[0], "<div>")
	})

	t.Run("filter miss falls back to the full input", func(t *testing.T) {
		html := `<html><body><p>No checkboxes anywhere.</p></body></html>`

		chunks := FilterAndChunk(html, schemas.ElementCheckbox, 0)
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0], "No checkboxes anywhere.")
	})

	t.Run("generic types keep the whole document", func(t *testing.T) {
		html := `<html><body><div id="app">content</div></body></html>`

		for _, typ := range []schemas.ElementType{schemas.ElementAuto, schemas.ElementAny, schemas.ElementDiv} {
			chunks := FilterAndChunk(html, typ, 0)
			require.Len(t, chunks, 1, "type %s", typ)
			assert.Equal(t, html, chunks[0], "type %s", typ)
		}
	})

	t.Run("chunks are fixed size non overlapping and ordered", func(t *testing.T) {
		chunks := FilterAndChunk("abcdefghij", schemas.ElementAny, 4)
		assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
		assert.Equal(t, "abcdefghij", strings.Join(chunks, ""))
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		html := `<html><body>` + strings.Repeat(`<button class="row">Go</button>`, 40) + `</body></html>`

		first := FilterAndChunk(html, schemas.ElementButton, 128)
		second := FilterAndChunk(html, schemas.ElementButton, 128)
		require.Empty(t, cmp.Diff(first, second))
		assert.Greater(t, len(first), 1)
	})

	t.Run("zero max length uses the default", func(t *testing.T) {
		chunks := FilterAndChunk("<p>short</p>", schemas.ElementAny, 0)
		require.Len(t, chunks, 1)
	})
}
