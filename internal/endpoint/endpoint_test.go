package endpoint

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoreload-go/internal/config"
	"autoreload-go/internal/host"
	"autoreload-go/internal/logger"
)

type fakeCaps struct {
	authenticated bool
	admin         bool
}

func (f fakeCaps) IsAuthenticated(*http.Request) bool { return f.authenticated }
func (f fakeCaps) IsAdmin(*http.Request) bool         { return f.admin }

func writeFile(t *testing.T, root, rel string, mtime int64) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	ts := time.Unix(mtime, 0)
	require.NoError(t, os.Chtimes(p, ts, ts))
}

func newHandler(caps host.Capabilities, root string) *Handler {
	return New(Options{
		Capabilities: caps,
		Resolver:     host.ResolverFunc(func() string { return root }),
		Defaults:     config.DefaultWatch(),
		Logger:       logger.Discard(),
	})
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/latest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeTimestamp(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	var ts int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ts))
	return ts
}

func sampleTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, root, "a.txt", 100)
	writeFile(t, root, "images/b.png", 200)
	return root
}

func TestHandler_DefaultExclusions(t *testing.T) {
	h := newHandler(fakeCaps{true, true}, sampleTree(t))

	assert.Equal(t, int64(100), decodeTimestamp(t, post(t, h, "")))
}

func TestHandler_OverrideClearsDirectoryRule(t *testing.T) {
	root := sampleTree(t)
	h := newHandler(fakeCaps{true, true}, root)

	// b.png is still excluded by its extension.
	assert.Equal(t, int64(100), decodeTimestamp(t, post(t, h, `{"excludedDirectories": []}`)))

	writeFile(t, root, "images/c.txt", 300)
	assert.Equal(t, int64(300), decodeTimestamp(t, post(t, h, `{"excludedDirectories": []}`)))

	// The default rule is back for a request without overrides.
	assert.Equal(t, int64(100), decodeTimestamp(t, post(t, h, "")))
}

func TestHandler_OverrideExtensions(t *testing.T) {
	h := newHandler(fakeCaps{true, true}, sampleTree(t))

	ts := decodeTimestamp(t, post(t, h, `{"excludedDirectories": [], "excludedExtensions": []}`))
	assert.Equal(t, int64(200), ts)
}

func TestHandler_Unauthorized(t *testing.T) {
	root := sampleTree(t)

	mux := http.NewServeMux()
	for _, caps := range []fakeCaps{{false, false}, {true, false}, {false, true}} {
		h := newHandler(caps, root)
		rec := post(t, h, "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var ts int64
		assert.Error(t, json.Unmarshal(rec.Body.Bytes(), &ts), "body must not be a JSON integer")

		// Same answer as a route that was never registered.
		absent := httptest.NewRecorder()
		mux.ServeHTTP(absent, httptest.NewRequest(http.MethodPost, "/latest", nil))
		assert.Equal(t, absent.Code, rec.Code)
		assert.Equal(t, absent.Body.String(), rec.Body.String())
	}
}

func TestHandler_NilCapabilitiesDenies(t *testing.T) {
	h := newHandler(nil, sampleTree(t))
	assert.Equal(t, http.StatusNotFound, post(t, h, "").Code)
}

func TestHandler_MalformedBody(t *testing.T) {
	h := newHandler(fakeCaps{true, true}, sampleTree(t))

	for _, body := range []string{"{", "null", "[]", `"x"`, `{"excludedDirectories": 7}`} {
		assert.Equal(t, int64(100), decodeTimestamp(t, post(t, h, body)), "body %q", body)
	}
}

func TestHandler_InvalidRootOverrideKeepsDefault(t *testing.T) {
	h := newHandler(fakeCaps{true, true}, sampleTree(t))

	ts := decodeTimestamp(t, post(t, h, `{"root": "/nonexistent/directory"}`))
	assert.Equal(t, int64(100), ts)
}

func TestHandler_RootOverride(t *testing.T) {
	other := t.TempDir()
	writeFile(t, other, "x.css", 4242)

	h := newHandler(fakeCaps{true, true}, sampleTree(t))
	body, err := json.Marshal(map[string]string{"root": other})
	require.NoError(t, err)

	assert.Equal(t, int64(4242), decodeTimestamp(t, post(t, h, string(body))))
}

func TestHandler_MissingRootDegradesToZero(t *testing.T) {
	h := newHandler(fakeCaps{true, true}, filepath.Join(t.TempDir(), "gone"))
	assert.Equal(t, int64(0), decodeTimestamp(t, post(t, h, "")))
}

func TestHandler_GetWithoutBody(t *testing.T) {
	h := newHandler(fakeCaps{true, true}, sampleTree(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/latest", nil))
	assert.Equal(t, int64(100), decodeTimestamp(t, rec))
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newHandler(fakeCaps{true, true}, sampleTree(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/latest", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_ConcurrentRequestsAreIsolated(t *testing.T) {
	root := sampleTree(t)
	writeFile(t, root, "images/c.txt", 300)
	h := newHandler(fakeCaps{true, true}, root)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, want := "", int64(100)
			if i%2 == 0 {
				body, want = `{"excludedDirectories": []}`, 300
			}
			req := httptest.NewRequest(http.MethodPost, "/latest", strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			data, _ := io.ReadAll(rec.Body)
			assert.Equal(t, want, mustInt(t, data))
		}(i)
	}
	wg.Wait()
}

func mustInt(t *testing.T, data []byte) int64 {
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		t.Errorf("not an integer: %q", data)
	}
	return v
}

func TestConfigHandler(t *testing.T) {
	h := newHandler(fakeCaps{true, true}, sampleTree(t))
	mux := http.NewServeMux()
	h.Register(mux, "/latest", func() string { return "default" })

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/latest/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cc ClientConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cc))
	assert.Equal(t, []string{"/images"}, cc.ExcludedDirectories)
	assert.Equal(t, []string{"jpeg", "jpg", "png", "svg", "gif"}, cc.ExcludedExtensions)
	assert.Equal(t, 5, cc.Interval)
	assert.Equal(t, "default", cc.Template)
}

func TestConfigHandler_Unauthorized(t *testing.T) {
	h := newHandler(fakeCaps{true, false}, sampleTree(t))
	mux := http.NewServeMux()
	h.Register(mux, "/latest", nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/latest/config", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
