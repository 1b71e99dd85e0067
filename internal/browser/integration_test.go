// internal/browser/integration_test.go
package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quarkbyte/domscout/api/schemas"
)

// requireChrome skips the test when no Chrome binary is available. chromedp
// does its own executable discovery; this check only mirrors it closely
// enough to gate the test.
func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("Chrome not found in PATH, skipping browser integration test.")
}

var longParagraph = strings.Repeat("lorem ipsum dolor sit amet ", 6)

const loginPageTemplate = `<!DOCTYPE html>
<html>
<head><title>Login</title></head>
<body>
  <h1>Sign in</h1>
  <form action="/session" method="post">
    <input type="email" id="email" name="email" placeholder="Email address">
    <input type="password" id="password" name="password" placeholder="Password">
    <label><input type="checkbox" name="remember"> Remember me</label>
    <button type="submit" id="submit-btn" aria-label="Sign in">Sign in</button>
  </form>
  <a href="/pricing" class="pricing-link" title="Pricing">See pricing</a>
  <div id="hidden-note" style="display:none">you cannot see this</div>
  <p id="long-text">__LONG_TEXT__</p>
</body>
</html>`

func newLoginServer() *httptest.Server {
	page := strings.Replace(loginPageTemplate, "__LONG_TEXT__", longParagraph, 1)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
}

func TestBrowserIntegration(t *testing.T) {
	requireChrome(t)

	server := newLoginServer()
	defer server.Close()

	m := NewManager(testBrowserConfig(), zaptest.NewLogger(t))
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutCancel()
		require.NoError(t, m.Shutdown(shutCtx))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	page, err := m.NewPage(ctx, server.URL)
	require.NoError(t, err)
	require.NotNil(t, page)

	defer func() {
		require.NoError(t, page.Close(context.Background()))
	}()

	assert.Equal(t, server.URL, page.URL())

	t.Run("Content returns the serialized document", func(t *testing.T) {
		content, err := page.Content(ctx)
		require.NoError(t, err)
		assert.Contains(t, content, "<form")
		assert.Contains(t, content, "submit-btn")
	})

	t.Run("QueryAll captures element attributes in document order", func(t *testing.T) {
		candidates, err := page.QueryAll(ctx, "input")
		require.NoError(t, err)
		require.Len(t, candidates, 3)

		email := candidates[0]
		assert.Equal(t, 0, email.Index)
		assert.Equal(t, "input", email.TagName)
		assert.Equal(t, "email", email.ID)
		assert.Equal(t, "email", email.Name)
		assert.Equal(t, "Email address", email.Placeholder)
		assert.Equal(t, "email", email.Type)
		assert.True(t, email.IsVisible)
		assert.Greater(t, email.BoundingBox.Width, 0.0)

		assert.Equal(t, "checkbox", candidates[2].Type)
	})

	t.Run("QueryAll reports aria labels and text", func(t *testing.T) {
		candidates, err := page.QueryAll(ctx, "#submit-btn")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, "button", candidates[0].TagName)
		assert.Equal(t, "Sign in", candidates[0].AriaLabel)
		assert.Equal(t, "Sign in", candidates[0].Text)
	})

	t.Run("Hidden elements are flagged invisible", func(t *testing.T) {
		candidates, err := page.QueryAll(ctx, "#hidden-note")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.False(t, candidates[0].IsVisible)
	})

	t.Run("Element text is truncated to 100 characters", func(t *testing.T) {
		candidates, err := page.QueryAll(ctx, "#long-text")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Len(t, candidates[0].Text, 100)
	})

	t.Run("Count and Exists agree with the document", func(t *testing.T) {
		count, err := page.Count(ctx, "input")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		exists, err := page.Exists(ctx, ".pricing-link")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = page.Exists(ctx, "#no-such-element")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Malformed selectors count as zero matches", func(t *testing.T) {
		count, err := page.Count(ctx, "???")
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		candidates, err := page.QueryAll(ctx, "[unclosed")
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("Contains selectors are translated to XPath", func(t *testing.T) {
		candidates, err := page.QueryAll(ctx, `button:contains("Sign in")`)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, "button", candidates[0].TagName)

		count, err := page.Count(ctx, `a:contains('See pricing')`)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("OuterHTML returns the first match only", func(t *testing.T) {
		markup, err := page.OuterHTML(ctx, "#submit-btn")
		require.NoError(t, err)
		assert.Contains(t, markup, `id="submit-btn"`)

		markup, err = page.OuterHTML(ctx, "#no-such-element")
		require.NoError(t, err)
		assert.Empty(t, markup)
	})

	t.Run("Evaluate runs arbitrary expressions", func(t *testing.T) {
		var title string
		require.NoError(t, page.Evaluate(ctx, "document.title", &title))
		assert.Equal(t, "Login", title)
	})
}

func TestBrowserIntegration_UnreachablePage(t *testing.T) {
	requireChrome(t)

	cfg := testBrowserConfig()
	cfg.NavigationTimeout = 10 * time.Second

	m := NewManager(cfg, zaptest.NewLogger(t))
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutCancel()
		require.NoError(t, m.Shutdown(shutCtx))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := m.NewPage(ctx, "http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	assert.Nil(t, page)
	assert.True(t, errors.Is(err, schemas.ErrPageUnreachable))
}
