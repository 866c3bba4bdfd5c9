// Пакет blobstore — хранение содержимого загруженных файлов на диске.
// Каждый blob записывается под сгенерированным непрозрачным именем,
// не зависящим от имени, переданного клиентом.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

const (
	// blobExt — расширение файлов blob на диске.
	blobExt = ".blob"
	// tmpExt — расширение временных файлов во время записи.
	tmpExt = ".tmp"
)

var (
	// ErrNotFound — blob отсутствует на диске (например, уже удалён reaper'ом).
	ErrNotFound = errors.New("blob не найден")
	// ErrTooLarge — поток превысил допустимый размер.
	ErrTooLarge = errors.New("превышен максимальный размер файла")
	// ErrInvalidRef — некорректная ссылка на blob.
	ErrInvalidRef = errors.New("некорректная ссылка на blob")
)

// Store — управление blob-файлами в директории данных.
type Store struct {
	// dataDir — корневая директория хранения blob'ов
	dataDir string
}

// BlobInfo — результат сохранения blob'а.
type BlobInfo struct {
	// Ref — внутренняя ссылка на blob (имя файла в dataDir)
	Ref string
	// Size — количество записанных байт
	Size int64
}

// New создаёт Store. Создаёт директорию, если она не существует.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Put записывает поток на диск под новым именем.
// Из reader читается не больше sizeLimit+1 байт: если лимит превышен,
// запись прерывается и возвращается ErrTooLarge. sizeLimit <= 0 — без лимита.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) Put(reader io.Reader, sizeLimit int64) (*BlobInfo, error) {
	ref := uuid.New().String() + blobExt
	fullPath := filepath.Join(s.dataDir, ref)
	tmpPath := fullPath + tmpExt

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	src := reader
	if sizeLimit > 0 {
		src = io.LimitReader(reader, sizeLimit+1)
	}

	size, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if sizeLimit > 0 && size > sizeLimit {
		f.Close()
		os.Remove(tmpPath)
		return nil, ErrTooLarge
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &BlobInfo{Ref: ref, Size: size}, nil
}

// Open открывает blob для последовательного чтения.
// Вызывающий код обязан закрыть файл.
func (s *Store) Open(ref string) (*os.File, error) {
	if !ValidRef(ref) {
		return nil, ErrInvalidRef
	}

	f, err := os.Open(filepath.Join(s.dataDir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("ошибка открытия blob %s: %w", ref, err)
	}
	return f, nil
}

// Remove удаляет blob. Возвращает nil, если blob уже не существует.
func (s *Store) Remove(ref string) error {
	if !ValidRef(ref) {
		return ErrInvalidRef
	}

	err := os.Remove(filepath.Join(s.dataDir, ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления blob %s: %w", ref, err)
	}
	return nil
}

// RemoveAll удаляет набор blob'ов (откат частично загруженного пакета).
// Пытается удалить все, ошибки собираются в одну.
func (s *Store) RemoveAll(refs []string) error {
	var result *multierror.Error
	for _, ref := range refs {
		if err := s.Remove(ref); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Sweep удаляет все blob'ы и незавершённые temp файлы в директории данных.
// Вызывается при старте: метаданные не переживают рестарт, поэтому
// любой blob, оставшийся от прошлого запуска, недостижим.
// Возвращает количество удалённых файлов.
func (s *Store) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения директории %s: %w", s.dataDir, err)
	}

	var result *multierror.Error
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, blobExt) && !strings.HasSuffix(name, tmpExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dataDir, name)); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}

	return removed, result.ErrorOrNil()
}

// DataDir возвращает путь к директории данных.
func (s *Store) DataDir() string {
	return s.dataDir
}

// ValidRef проверяет, что ссылка — простое имя файла внутри dataDir.
func ValidRef(ref string) bool {
	if ref == "" || ref == "." || ref == ".." {
		return false
	}
	return !strings.ContainsAny(ref, `/\`)
}
