// download.go — сервис скачивания файлов и получения информации о раздаче.
package service

import (
	"errors"
	"log/slog"
	"os"

	"github.com/bigkaa/goartstore/fileshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/fileshare/internal/domain/model"
	"github.com/bigkaa/goartstore/fileshare/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/fileshare/internal/storage/registry"
)

// Сообщения для клиента.
const (
	msgFileNotFound         = "File not found"
	msgFileNotFoundOnServer = "File not found on server"
	msgFileExpired          = "File has expired"
	msgLimitExceeded        = "Download limit exceeded"
	msgDownloadFailed       = "Error downloading file"
)

// Download — открытый для отдачи файл и запись после учёта скачивания.
// Вызывающий код обязан закрыть File.
type Download struct {
	Record model.ShareRecord
	File   *os.File
}

// DownloadService — сервис скачивания файлов.
type DownloadService struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания файлов.
func NewDownloadService(
	reg *registry.Registry,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		reg:    reg,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Info возвращает метаданные раздачи без учёта скачивания.
func (s *DownloadService) Info(shareID string) (model.ShareRecord, *Error) {
	rec, err := s.reg.Get(shareID)
	if err != nil {
		return model.ShareRecord{}, s.mapRegistryError("info", shareID, err)
	}
	return rec, nil
}

// Open атомарно учитывает скачивание и открывает blob для отдачи.
// Blob открывается реестром под тем же mutex, что и учёт, поэтому
// параллельный Get или reaper не может удалить его между этими шагами.
// Если blob пропал с диска, счётчик не меняется, а запись удаляется:
// восстановить её уже нельзя.
func (s *DownloadService) Open(shareID string) (*Download, *Error) {
	rec, file, err := s.reg.ConsumeDownload(shareID)
	if errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Error("Blob записи отсутствует на диске, запись удалена",
			slog.String("share_id", shareID),
		)
		// запись жива (лимит не израсходован), поэтому Delete не оставит
		// причину 410 и повторный запрос получит 404
		if delErr := s.reg.Delete(shareID); delErr != nil {
			s.logger.Warn("Ошибка удаления записи без blob",
				slog.String("share_id", shareID),
				slog.String("error", delErr.Error()),
			)
		}
		middleware.OperationsTotal.WithLabelValues("download", "missing_blob").Inc()
		return nil, notFoundError(msgFileNotFoundOnServer)
	}
	if err != nil {
		return nil, s.mapRegistryError("download", shareID, err)
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	s.logger.Info("Скачивание учтено",
		slog.String("share_id", shareID),
		slog.String("filename", rec.OriginalName),
		slog.Int("download_count", rec.DownloadCount),
	)

	return &Download{Record: rec, File: file}, nil
}

// List возвращает снимок всех записей (административный просмотр).
func (s *DownloadService) List() []model.ShareRecord {
	return s.reg.List()
}

// mapRegistryError преобразует ошибку реестра в ошибку API.
func (s *DownloadService) mapRegistryError(operation, shareID string, err error) *Error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		middleware.OperationsTotal.WithLabelValues(operation, "not_found").Inc()
		return notFoundError(msgFileNotFound)
	case errors.Is(err, registry.ErrExpired):
		middleware.OperationsTotal.WithLabelValues(operation, "expired").Inc()
		return goneError(msgFileExpired)
	case errors.Is(err, registry.ErrLimitExceeded):
		middleware.OperationsTotal.WithLabelValues(operation, "limit_exceeded").Inc()
		return goneError(msgLimitExceeded)
	default:
		s.logger.Error("Ошибка реестра",
			slog.String("share_id", shareID),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues(operation, "error").Inc()
		return internalError(msgDownloadFailed)
	}
}
