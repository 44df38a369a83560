package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interactiveHTML = `<html><head><title>Live</title></head><body>
<h1>  Live page  </h1>
<input id="q">
<button id="go" onclick="document.getElementById('out').textContent = document.getElementById('q').value">Go</button>
<div id="out"></div>
<script>setTimeout(() => { const d = document.createElement('div'); d.id = 'late'; document.body.appendChild(d); }, 200)</script>
</body></html>`

// requireBrowserEngine skips unless real browser tests are requested.
func requireBrowserEngine(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("CONVOY_BROWSER_TESTS") == "" {
		t.Skip("Set CONVOY_BROWSER_TESTS=1 to run against a real browser")
	}
}

func TestEngines_Conformance(t *testing.T) {
	requireBrowserEngine(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, interactiveHTML)
	}))
	defer srv.Close()

	for _, engine := range []Engine{EnginePlaywright, EngineChromedp} {
		t.Run(string(engine), func(t *testing.T) {
			provider, err := NewProvider(Options{Engine: engine, Headless: true, Timeout: 10 * time.Second})
			require.NoError(t, err)
			defer provider.Shutdown()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			d, err := provider.OpenContext(ctx)
			require.NoError(t, err)
			defer provider.CloseContext(d)

			require.NoError(t, d.Navigate(ctx, srv.URL))

			text, found, err := d.(TextExtractor).TextContent(ctx, "h1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "Live page", text)

			require.NoError(t, d.Fill(ctx, "#q", "hello"))
			require.NoError(t, d.Click(ctx, "#go"))

			out, err := d.Evaluate(ctx, TextProbe("#out"))
			require.NoError(t, err)
			assert.Equal(t, "hello", out)

			obj, err := d.Evaluate(ctx, `({n: 2, s: "x"})`)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"n": float64(2), "s": "x"}, obj)

			_, err = d.Evaluate(ctx, `(() => { throw new Error("boom") })()`)
			assert.ErrorIs(t, err, ErrScript)

			assert.NoError(t, d.WaitForSelector(ctx, "#late", 5*time.Second))
			assert.ErrorIs(t, d.WaitForSelector(ctx, "#never", 300*time.Millisecond), ErrTimeout)
			assert.ErrorIs(t, d.Click(ctx, "#absent"), ErrElementNotFound)

			png, err := d.Screenshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, "image/png", http.DetectContentType(png))

			require.NoError(t, provider.CloseContext(d))
			assert.ErrorIs(t, d.Click(ctx, "#go"), ErrClosed)
		})
	}
}
