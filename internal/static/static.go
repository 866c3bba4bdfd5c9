// Пакет static — встроенные в бинарник страницы и ресурсы веб-интерфейса.
package static

import (
	"embed"
	"io/fs"
)

//go:embed index.html share.html assets
var files embed.FS

// Pages — корень встроенной файловой системы (index.html, share.html).
func Pages() fs.FS {
	return files
}

// Assets — файловая система ресурсов (css, js), отдаётся под /static/.
func Assets() fs.FS {
	sub, err := fs.Sub(files, "assets")
	if err != nil {
		// путь фиксирован директивой go:embed
		panic(err)
	}
	return sub
}
