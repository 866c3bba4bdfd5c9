// pages.go — встроенные страницы веб-интерфейса и обработчик 404.
package handlers

import (
	"io/fs"
	"net/http"
)

// PagesHandler — обработчик HTML-страниц и статических ресурсов.
type PagesHandler struct {
	pages  fs.FS
	assets http.Handler
}

// NewPagesHandler создаёт обработчик страниц.
// pages — ФС с index.html и share.html, assets — ФС ресурсов под /static/.
func NewPagesHandler(pages, assets fs.FS) *PagesHandler {
	return &PagesHandler{
		pages:  pages,
		assets: http.StripPrefix("/static/", http.FileServer(http.FS(assets))),
	}
}

// Index обрабатывает GET / — страница загрузки.
func (h *PagesHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "index.html")
}

// SharePage обрабатывает GET /share/{shareId}.
// Страница сама запрашивает /api/file/{shareId}, поэтому отдаётся для любого id.
func (h *PagesHandler) SharePage(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "share.html")
}

// Static обрабатывает GET /static/*.
func (h *PagesHandler) Static(w http.ResponseWriter, r *http.Request) {
	h.assets.ServeHTTP(w, r)
}

// NotFound — ответ для неизвестных маршрутов.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Page not found"))
}

func (h *PagesHandler) servePage(w http.ResponseWriter, r *http.Request, name string) {
	data, err := fs.ReadFile(h.pages, name)
	if err != nil {
		NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
