// upload.go — сервис загрузки файлов пакетом с атомарным откатом.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/fileshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/fileshare/internal/config"
	"github.com/bigkaa/goartstore/fileshare/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/fileshare/internal/storage/registry"
)

// Имена полей multipart-формы.
const (
	FieldFiles        = "files"
	FieldExpiryHours  = "expiryHours"
	FieldMaxDownloads = "maxDownloads"
)

const (
	// maxFieldSize — предельный размер значения текстового поля формы.
	maxFieldSize = 64
	// maxExpiryHours — верхняя граница срока жизни ссылки (10 лет).
	maxExpiryHours = 24 * 365 * 10

	defaultContentType = "application/octet-stream"
)

// UploadOptions — параметры запроса, не относящиеся к содержимому формы.
type UploadOptions struct {
	// BaseURL — внешний адрес сервиса для построения shareUrl (без завершающего /)
	BaseURL string
}

// UploadedFile — дескриптор созданной раздачи.
type UploadedFile struct {
	ShareID      string `json:"shareId"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	ShareURL     string `json:"shareUrl"`
}

// UploadResult — результат загрузки пакета файлов.
type UploadResult struct {
	Files []UploadedFile
}

// pendingFile — сохранённый blob, для которого ещё не создана запись.
type pendingFile struct {
	blob         *blobstore.BlobInfo
	originalName string
	contentType  string
}

// sharePolicy — политика раздачи из полей формы.
type sharePolicy struct {
	expiryHours  *int
	maxDownloads *int
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	cfg     *config.Config
	blobs   *blobstore.Store
	reg     *registry.Registry
	blocked map[string]bool
	now     func() time.Time
	logger  *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	cfg *config.Config,
	blobs *blobstore.Store,
	reg *registry.Registry,
	logger *slog.Logger,
) *UploadService {
	blocked := make(map[string]bool, len(cfg.BlockedExtensions))
	for _, ext := range cfg.BlockedExtensions {
		blocked[ext] = true
	}
	return &UploadService{
		cfg:     cfg,
		blobs:   blobs,
		reg:     reg,
		blocked: blocked,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "upload_service")),
	}
}

// Upload читает multipart-поток и создаёт по записи раздачи на каждый файл.
//
// Поток:
//  1. Части формы читаются по порядку; файлы пишутся в blob store потоково
//     с ограничением размера
//  2. Проверки количества, размера, расширения и полей политики
//  3. После сохранения всех blob'ов создаются записи в реестре
//
// Пакет атомарен: при любой ошибке удаляются все blob'ы этого запроса
// и ни одна запись не остаётся в реестре.
func (s *UploadService) Upload(ctx context.Context, mr *multipart.Reader, opts UploadOptions) (*UploadResult, *Error) {
	var (
		pending []pendingFile
		policy  sharePolicy
	)

	rollback := func() {
		if len(pending) == 0 {
			return
		}
		refs := make([]string, 0, len(pending))
		for _, p := range pending {
			refs = append(refs, p.blob.Ref)
		}
		if err := s.blobs.RemoveAll(refs); err != nil {
			s.logger.Error("Ошибка отката загруженных blob",
				slog.Int("count", len(refs)),
				slog.String("error", err.Error()),
			)
		}
	}

	reject := func(e *Error) (*UploadResult, *Error) {
		rollback()
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		s.logger.Info("Загрузка отклонена",
			slog.String("reason", e.Message),
			slog.Int("stored_before_reject", len(pending)),
		)
		return nil, e
	}

	fail := func(msg string, err error) (*UploadResult, *Error) {
		rollback()
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		s.logger.Error(msg, slog.String("error", err.Error()))
		return nil, internalError("Upload failed")
	}

	for {
		if err := ctx.Err(); err != nil {
			rollback()
			return nil, validationError("Upload aborted")
		}

		part, err := mr.NextPart()
		if err == io.EOF { //nolint:errorlint // обёрнутый EOF — обрыв тела до финальной границы
			break
		}
		if err != nil {
			if isBodyTooLarge(err) {
				return reject(fileTooLargeError("Request body too large"))
			}
			return reject(validationError("Malformed multipart request"))
		}

		switch part.FormName() {
		case FieldFiles:
			name := part.FileName()
			if name == "" {
				// пустой input type=file браузер присылает без имени
				_, _ = io.Copy(io.Discard, part)
				_ = part.Close()
				continue
			}
			if len(pending) >= s.cfg.MaxFiles {
				_ = part.Close()
				return reject(validationError(fmt.Sprintf("Too many files (max %d)", s.cfg.MaxFiles)))
			}
			if s.isBlocked(name) {
				_ = part.Close()
				return reject(validationError(fmt.Sprintf("File type not allowed: %s", name)))
			}

			blob, err := s.blobs.Put(part, s.cfg.MaxFileSize)
			_ = part.Close()
			if errors.Is(err, blobstore.ErrTooLarge) {
				return reject(fileTooLargeError(fmt.Sprintf("File too large (max %s)", formatSize(s.cfg.MaxFileSize))))
			}
			if isBodyTooLarge(err) {
				return reject(fileTooLargeError("Request body too large"))
			}
			if err != nil {
				if ctx.Err() != nil {
					rollback()
					return nil, validationError("Upload aborted")
				}
				return fail("Ошибка сохранения файла", err)
			}

			pending = append(pending, pendingFile{
				blob:         blob,
				originalName: name,
				contentType:  detectContentType(part.Header.Get("Content-Type")),
			})

		case FieldExpiryHours:
			v, perr := readIntField(part)
			_ = part.Close()
			if perr != nil || (v != nil && (*v < 0 || *v > maxExpiryHours)) {
				return reject(validationError(fmt.Sprintf("Invalid %s: must be an integer between 0 and %d", FieldExpiryHours, maxExpiryHours)))
			}
			policy.expiryHours = v

		case FieldMaxDownloads:
			v, perr := readIntField(part)
			_ = part.Close()
			if perr != nil || (v != nil && *v < 0) {
				return reject(validationError(fmt.Sprintf("Invalid %s: must be a non-negative integer", FieldMaxDownloads)))
			}
			// 0 — без ограничения
			if v != nil && *v == 0 {
				v = nil
			}
			policy.maxDownloads = v

		default:
			_, _ = io.Copy(io.Discard, part)
			_ = part.Close()
		}
	}

	if len(pending) == 0 {
		return reject(validationError("No files uploaded"))
	}

	return s.commit(pending, policy, opts)
}

// commit создаёт записи для всех сохранённых blob'ов.
// При ошибке удаляет уже созданные записи и оставшиеся blob'ы.
func (s *UploadService) commit(pending []pendingFile, policy sharePolicy, opts UploadOptions) (*UploadResult, *Error) {
	var expiryAt *time.Time
	if policy.expiryHours != nil {
		exp := s.now().Add(time.Duration(*policy.expiryHours) * time.Hour)
		expiryAt = &exp
	}

	result := &UploadResult{Files: make([]UploadedFile, 0, len(pending))}
	for i, p := range pending {
		rec, err := s.reg.Create(registry.NewShare{
			BlobRef:      p.blob.Ref,
			OriginalName: p.originalName,
			Size:         p.blob.Size,
			ContentType:  p.contentType,
			ExpiryAt:     expiryAt,
			MaxDownloads: policy.maxDownloads,
		})
		if err != nil {
			for _, created := range result.Files {
				if delErr := s.reg.Delete(created.ShareID); delErr != nil {
					s.logger.Error("Ошибка отката записи",
						slog.String("share_id", created.ShareID),
						slog.String("error", delErr.Error()),
					)
				}
			}
			refs := make([]string, 0, len(pending)-i)
			for _, rest := range pending[i:] {
				refs = append(refs, rest.blob.Ref)
			}
			if rmErr := s.blobs.RemoveAll(refs); rmErr != nil {
				s.logger.Error("Ошибка отката загруженных blob", slog.String("error", rmErr.Error()))
			}
			middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
			s.logger.Error("Ошибка создания записи раздачи", slog.String("error", err.Error()))
			return nil, internalError("Upload failed")
		}

		result.Files = append(result.Files, UploadedFile{
			ShareID:      rec.ShareID,
			OriginalName: rec.OriginalName,
			Size:         rec.Size,
			ShareURL:     opts.BaseURL + "/share/" + rec.ShareID,
		})
	}

	for _, f := range result.Files {
		middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
		middleware.UploadedBytesTotal.Add(float64(f.Size))
		s.logger.Info("Файл загружен",
			slog.String("share_id", f.ShareID),
			slog.String("filename", f.OriginalName),
			slog.Int64("size", f.Size),
		)
	}

	return result, nil
}

// isBlocked проверяет расширение файла по списку запрещённых (без учёта регистра).
func (s *UploadService) isBlocked(name string) bool {
	return s.blocked[strings.ToLower(filepath.Ext(name))]
}

// isBodyTooLarge — тело запроса превысило лимит http.MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// readIntField читает целочисленное поле формы. Пустое значение — nil.
func readIntField(r io.Reader) (*int, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxFieldSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxFieldSize {
		return nil, fmt.Errorf("значение поля длиннее %d байт", maxFieldSize)
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// detectContentType определяет Content-Type из заголовка multipart part.
// Если не указан — используется application/octet-stream.
func detectContentType(contentType string) string {
	if contentType == "" {
		return defaultContentType
	}
	// Убираем параметры (charset и т.д.)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return contentType
}

// formatSize форматирует лимит размера для сообщений клиенту: 100MB, 512KB, 1000 bytes.
func formatSize(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%dMB", n/mb)
	case n >= kb && n%kb == 0:
		return fmt.Sprintf("%dKB", n/kb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
