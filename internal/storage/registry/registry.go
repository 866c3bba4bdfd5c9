// Пакет registry — потокобезопасный in-memory реестр записей раздачи.
//
// Реестр единолично владеет изменением записей: создание, учёт скачиваний
// и удаление проходят через один mutex, поэтому операции над одним
// share_id линеаризуемы. Blob удаляется уже после освобождения mutex.
// Blob для скачивания открывается под mutex: после учёта последнего
// скачивания запись становится «мёртвой», и открытый дескриптор должен
// существовать раньше, чем её сможет вытеснить Get или reaper.
//
// Не персистентный: при рестарте все записи теряются.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/fileshare/internal/domain/model"
)

var (
	// ErrNotFound — идентификатор неизвестен.
	ErrNotFound = errors.New("запись не найдена")
	// ErrExpired — срок действия ссылки истёк.
	ErrExpired = errors.New("срок действия ссылки истёк")
	// ErrLimitExceeded — лимит скачиваний исчерпан.
	ErrLimitExceeded = errors.New("лимит скачиваний исчерпан")
	// ErrInvalidPolicy — некорректные параметры политики раздачи.
	ErrInvalidPolicy = errors.New("некорректная политика раздачи")
)

const (
	// idBytes — энтропия share_id в байтах (128 бит).
	idBytes = 16
	// maxIDAttempts — количество попыток сгенерировать свободный идентификатор.
	maxIDAttempts = 8

	defaultTombstoneSize = 10000
	defaultTombstoneTTL  = 24 * time.Hour
)

// BlobStore — доступ реестра к blob'ам.
type BlobStore interface {
	// Open открывает blob для чтения.
	Open(ref string) (*os.File, error)
	// Remove удаляет blob. Должно быть идемпотентным.
	Remove(ref string) error
}

// NewShare — параметры создания записи.
type NewShare struct {
	BlobRef      string
	OriginalName string
	Size         int64
	ContentType  string
	// ExpiryAt — момент истечения (nil — бессрочно)
	ExpiryAt *time.Time
	// MaxDownloads — лимит скачиваний (nil — без лимита), должен быть > 0
	MaxDownloads *int
}

// Registry — реестр записей раздачи.
type Registry struct {
	mu     sync.Mutex
	shares map[string]*model.ShareRecord // share_id → запись

	// tombstones — недавно удалённые «мёртвые» записи (share_id → причина),
	// чтобы повторный запрос получал 410, а не 404
	tombstones *expirable.LRU[string, error]

	blobs  BlobStore
	now    func() time.Time
	newID  func() (string, error)
	logger *slog.Logger
}

// Option — функциональная опция Registry.
type Option func(*Registry)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator подменяет генератор share_id (для тестов).
func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.newID = gen }
}

// WithTombstones задаёт размер и время жизни списка удалённых записей.
func WithTombstones(size int, ttl time.Duration) Option {
	return func(r *Registry) {
		r.tombstones = expirable.NewLRU[string, error](size, nil, ttl)
	}
}

// New создаёт пустой реестр.
func New(blobs BlobStore, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		shares: make(map[string]*model.ShareRecord),
		blobs:  blobs,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  GenerateID,
		logger: logger.With(slog.String("component", "registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tombstones == nil {
		r.tombstones = expirable.NewLRU[string, error](defaultTombstoneSize, nil, defaultTombstoneTTL)
	}
	return r
}

// GenerateID возвращает 128-битный криптографически случайный идентификатор в hex.
func GenerateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ошибка генерации идентификатора: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create сохраняет новую запись с DownloadCount = 0 и возвращает её копию.
// При совпадении идентификатора с существующим генерирует новый.
func (r *Registry) Create(params NewShare) (model.ShareRecord, error) {
	if params.MaxDownloads != nil && *params.MaxDownloads <= 0 {
		return model.ShareRecord{}, fmt.Errorf("%w: maxDownloads должен быть положительным", ErrInvalidPolicy)
	}

	rec := &model.ShareRecord{
		BlobRef:      params.BlobRef,
		OriginalName: params.OriginalName,
		Size:         params.Size,
		ContentType:  params.ContentType,
		CreatedAt:    r.now(),
	}
	if params.ExpiryAt != nil {
		exp := params.ExpiryAt.UTC()
		rec.ExpiryAt = &exp
	}
	if params.MaxDownloads != nil {
		limit := *params.MaxDownloads
		rec.MaxDownloads = &limit
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := r.newID()
		if err != nil {
			return model.ShareRecord{}, err
		}
		if _, taken := r.shares[id]; taken || r.tombstones.Contains(id) {
			r.logger.Warn("Коллизия share_id, генерируем заново", slog.Int("attempt", attempt+1))
			continue
		}

		rec.ShareID = id
		r.shares[id] = rec
		return rec.Clone(), nil
	}

	return model.ShareRecord{}, fmt.Errorf("не удалось сгенерировать уникальный share_id за %d попыток", maxIDAttempts)
}

// Get возвращает копию записи без изменения счётчика.
// Если запись «мертва» (истекла или исчерпан лимит), удаляет её вместе
// с blob'ом и возвращает ErrExpired или ErrLimitExceeded.
func (r *Registry) Get(shareID string) (model.ShareRecord, error) {
	r.mu.Lock()
	rec, err := r.lookupLocked(shareID)
	if err != nil {
		r.mu.Unlock()
		return model.ShareRecord{}, err
	}

	if deadErr := r.evictIfDeadLocked(rec); deadErr != nil {
		r.mu.Unlock()
		r.removeBlob(rec)
		return model.ShareRecord{}, deadErr
	}

	out := rec.Clone()
	r.mu.Unlock()
	return out, nil
}

// ConsumeDownload атомарно проверяет запись, открывает её blob и учитывает
// одно скачивание: поиск → проверка срока → проверка лимита → открытие blob'а
// → инкремент счётчика. Возвращает копию записи после инкремента и открытый
// файл, который обязан закрыть вызывающий код.
// Если blob открыть не удалось, счётчик не меняется, а ошибка Open
// возвращается обёрнутой. Две параллельные попытки не могут обе пройти
// проверку лимита, если осталось одно скачивание.
func (r *Registry) ConsumeDownload(shareID string) (model.ShareRecord, *os.File, error) {
	r.mu.Lock()
	rec, err := r.lookupLocked(shareID)
	if err != nil {
		r.mu.Unlock()
		return model.ShareRecord{}, nil, err
	}

	if deadErr := r.evictIfDeadLocked(rec); deadErr != nil {
		r.mu.Unlock()
		r.removeBlob(rec)
		return model.ShareRecord{}, nil, deadErr
	}

	file, err := r.blobs.Open(rec.BlobRef)
	if err != nil {
		r.mu.Unlock()
		return model.ShareRecord{}, nil, fmt.Errorf("ошибка открытия blob записи %s: %w", shareID, err)
	}

	rec.DownloadCount++
	out := rec.Clone()
	r.mu.Unlock()
	return out, file, nil
}

// Delete удаляет запись и её blob. Отсутствующий share_id — не ошибка.
// Возвращает ошибку удаления blob'а, если она произошла: запись при этом
// уже удалена.
func (r *Registry) Delete(shareID string) error {
	r.mu.Lock()
	rec, ok := r.shares[shareID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.shares, shareID)
	switch rec.State(r.now()) {
	case model.StateExpired:
		r.tombstones.Add(shareID, ErrExpired)
	case model.StateLimitExceeded:
		r.tombstones.Add(shareID, ErrLimitExceeded)
	}
	r.mu.Unlock()

	if err := r.blobs.Remove(rec.BlobRef); err != nil {
		return fmt.Errorf("ошибка удаления blob записи %s: %w", shareID, err)
	}
	return nil
}

// List возвращает снимок всех записей на момент вызова.
// Записи отсортированы по времени загрузки (новые первые).
func (r *Registry) List() []model.ShareRecord {
	r.mu.Lock()
	out := make([]model.ShareRecord, 0, len(r.shares))
	for _, rec := range r.shares {
		out = append(out, rec.Clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Dead возвращает снимок «мёртвых» записей на момент now:
// с истёкшим сроком или исчерпанным лимитом скачиваний.
func (r *Registry) Dead(now time.Time) []model.ShareRecord {
	var out []model.ShareRecord
	for _, rec := range r.List() {
		if rec.State(now) != model.StateActive {
			out = append(out, rec)
		}
	}
	return out
}

// Len возвращает количество записей в реестре.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shares)
}

// lookupLocked ищет запись. Для недавно удалённых «мёртвых» записей
// возвращает сохранённую причину. Вызывается под mu.
func (r *Registry) lookupLocked(shareID string) (*model.ShareRecord, error) {
	rec, ok := r.shares[shareID]
	if ok {
		return rec, nil
	}
	if reason, dead := r.tombstones.Get(shareID); dead {
		return nil, reason
	}
	return nil, ErrNotFound
}

// evictIfDeadLocked удаляет запись из реестра, если она «мертва»,
// и возвращает причину. Blob удаляет вызывающий код после Unlock.
func (r *Registry) evictIfDeadLocked(rec *model.ShareRecord) error {
	var reason error
	switch rec.State(r.now()) {
	case model.StateExpired:
		reason = ErrExpired
	case model.StateLimitExceeded:
		reason = ErrLimitExceeded
	default:
		return nil
	}

	delete(r.shares, rec.ShareID)
	r.tombstones.Add(rec.ShareID, reason)
	return reason
}

// removeBlob удаляет blob вытесненной записи, ошибка только логируется.
func (r *Registry) removeBlob(rec *model.ShareRecord) {
	if err := r.blobs.Remove(rec.BlobRef); err != nil {
		r.logger.Error("Ошибка удаления blob",
			slog.String("share_id", rec.ShareID),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Info("Запись удалена при обращении",
		slog.String("share_id", rec.ShareID),
		slog.String("filename", rec.OriginalName),
	)
}
