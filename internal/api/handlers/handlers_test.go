package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/fileshare/internal/service"
)

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", "report.pdf", `attachment; filename=report.pdf`},
		{"space", "my report.pdf", `attachment; filename="my report.pdf"`},
		{"quotes", `a"b\c.txt`, `attachment; filename="a\"b\\c.txt"`},
		{"unicode", "отчёт.txt", `attachment; filename*=utf-8''%D0%BE%D1%82%D1%87%D1%91%D1%82.txt`},
		{"unicode with separators", "отчёт;v=1,(2)'*.txt",
			`attachment; filename*=utf-8''%D0%BE%D1%82%D1%87%D1%91%D1%82%3Bv%3D1%2C%282%29%27%2A.txt`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contentDisposition(tt.in)
			assert.Equal(t, tt.want, got)

			// заголовок разбирается обратно в исходное имя
			disposition, params, err := mime.ParseMediaType(got)
			require.NoError(t, err)
			assert.Equal(t, "attachment", disposition)
			assert.Equal(t, tt.in, params["filename"])
		})
	}
}

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Page not found", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestPagesHandler(t *testing.T) {
	pages := fstest.MapFS{
		"index.html": {Data: []byte("<h1>index</h1>")},
		"share.html": {Data: []byte("<h1>share</h1>")},
	}
	assets := fstest.MapFS{
		"app.js": {Data: []byte("console.log(1)")},
	}
	h := NewPagesHandler(pages, assets)

	rec := httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>index</h1>", rec.Body.String())

	rec = httptest.NewRecorder()
	h.SharePage(rec, httptest.NewRequest(http.MethodGet, "/share/abc", nil))
	assert.Equal(t, "<h1>share</h1>", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Static(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	// страница отсутствует во встроенной ФС
	rec = httptest.NewRecorder()
	NewPagesHandler(fstest.MapFS{}, assets).Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeReaper struct {
	calls int
}

func (f *fakeReaper) RunOnce() *service.ReapResult {
	f.calls++
	return &service.ReapResult{Checked: 3, Removed: 2}
}

func TestMaintenanceHandler_Reap(t *testing.T) {
	reaper := &fakeReaper{}
	h := NewMaintenanceHandler(reaper)

	rec := httptest.NewRecorder()
	h.Reap(rec, httptest.NewRequest(http.MethodPost, "/api/maintenance/reap", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reaper.calls)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["checked"])
	assert.EqualValues(t, 2, body["removed"])
	assert.EqualValues(t, 0, body["errors"])
}

func TestHealthHandler(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler("").HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"service":"fileshare"`)
	})

	t.Run("ready", func(t *testing.T) {
		dir := t.TempDir()
		rec := httptest.NewRecorder()
		NewHealthHandler(dir).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoFileExists(t, filepath.Join(dir, ".health_check"))
	})

	t.Run("not ready", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "missing")
		rec := httptest.NewRecorder()
		NewHealthHandler(missing).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"fail"`)
	})
}
