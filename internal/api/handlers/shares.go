// shares.go — HTTP handlers раздачи файлов: загрузка, информация, скачивание.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/fileshare/internal/api/errors"
	"github.com/bigkaa/goartstore/fileshare/internal/service"
)

// multipartOverhead — запас на заголовки частей и текстовые поля формы.
const multipartOverhead = 1 << 20

// SharesHandler — обработчик endpoints раздачи файлов.
type SharesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	// publicURL — внешний адрес сервиса; пустой — строится из запроса
	publicURL string
	// maxBodyBytes — предельный размер тела запроса загрузки
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewSharesHandler создаёт обработчик endpoints раздачи.
func NewSharesHandler(
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	publicURL string,
	maxFiles int,
	maxFileSize int64,
	logger *slog.Logger,
) *SharesHandler {
	return &SharesHandler{
		uploadSvc:    uploadSvc,
		downloadSvc:  downloadSvc,
		publicURL:    strings.TrimRight(publicURL, "/"),
		maxBodyBytes: int64(maxFiles)*maxFileSize + multipartOverhead,
		logger:       logger.With(slog.String("component", "shares_handler")),
	}
}

// uploadResponse — тело ответа POST /upload.
type uploadResponse struct {
	Success bool                   `json:"success"`
	Files   []service.UploadedFile `json:"files"`
}

// fileInfoResponse — тело ответа GET /api/file/{shareId}.
type fileInfoResponse struct {
	OriginalName  string     `json:"originalName"`
	Size          int64      `json:"size"`
	UploadDate    time.Time  `json:"uploadDate"`
	DownloadCount int        `json:"downloadCount"`
	MaxDownloads  *int       `json:"maxDownloads"`
	ExpiryDate    *time.Time `json:"expiryDate"`
}

// Upload обрабатывает POST /upload.
// Multipart form: files (1..MaxFiles), expiryHours и maxDownloads (опционально).
func (h *SharesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Expected multipart/form-data request")
		return
	}

	result, svcErr := h.uploadSvc.Upload(r.Context(), mr, service.UploadOptions{
		BaseURL: h.baseURL(r),
	})
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		Files:   result.Files,
	})
}

// GetFileInfo обрабатывает GET /api/file/{shareId}.
// Не увеличивает счётчик скачиваний.
func (h *SharesHandler) GetFileInfo(w http.ResponseWriter, r *http.Request) {
	rec, svcErr := h.downloadSvc.Info(chi.URLParam(r, "shareId"))
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}

	writeJSON(w, http.StatusOK, fileInfoResponse{
		OriginalName:  rec.OriginalName,
		Size:          rec.Size,
		UploadDate:    rec.CreatedAt,
		DownloadCount: rec.DownloadCount,
		MaxDownloads:  rec.MaxDownloads,
		ExpiryDate:    rec.ExpiryAt,
	})
}

// Download обрабатывает GET /download/{shareId}.
// Скачивание учитывается до начала передачи: оборванная передача тоже расходует лимит.
func (h *SharesHandler) Download(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareId")

	dl, svcErr := h.downloadSvc.Open(shareID)
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}
	defer dl.File.Close()

	w.Header().Set("Content-Type", dl.Record.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(dl.Record.OriginalName))
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Record.Size, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, dl.File)
	if err != nil {
		// заголовки уже отправлены, остаётся только залогировать
		h.logger.Warn("Передача файла прервана",
			slog.String("share_id", shareID),
			slog.Int64("written", written),
			slog.String("error", err.Error()),
		)
	}
}

// ListFiles обрабатывает GET /api/files (административный просмотр).
func (h *SharesHandler) ListFiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.downloadSvc.List())
}

// baseURL возвращает внешний адрес сервиса для ссылок раздачи.
func (h *SharesHandler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// contentDisposition формирует заголовок attachment с исходным именем файла.
// Имя с символами вне ASCII кодируется как filename* (RFC 2231).
func contentDisposition(name string) string {
	if value := mime.FormatMediaType("attachment", map[string]string{"filename": name}); value != "" {
		return value
	}
	return "attachment"
}

// writeServiceError записывает ошибку сервисного слоя.
func writeServiceError(w http.ResponseWriter, err *service.Error) {
	apierrors.WriteError(w, err.StatusCode, err.Code, err.Message)
}

// writeJSON записывает JSON-ответ.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
