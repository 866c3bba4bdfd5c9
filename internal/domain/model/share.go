// Пакет model — доменные модели файлообменника.
// ShareRecord — запись о загруженном файле и политике его раздачи.
package model

import (
	"time"
)

// ShareState — логическое состояние записи.
type ShareState string

const (
	// StateActive — файл доступен для скачивания
	StateActive ShareState = "active"
	// StateExpired — срок действия ссылки истёк
	StateExpired ShareState = "expired"
	// StateLimitExceeded — исчерпан лимит скачиваний
	StateLimitExceeded ShareState = "limit_exceeded"
)

// ShareRecord — метаданные одного загруженного файла.
// Поле BlobRef не входит в JSON: это внутренняя ссылка на хранилище.
type ShareRecord struct {
	// ShareID — публичный непрозрачный идентификатор (128 бит, hex)
	ShareID string `json:"id"`

	// BlobRef — имя blob'а в хранилище, наружу не отдаётся
	BlobRef string `json:"-"`

	// OriginalName — имя файла при загрузке
	OriginalName string `json:"originalName"`

	// Size — размер файла в байтах
	Size int64 `json:"size"`

	// ContentType — MIME-тип файла
	ContentType string `json:"mimetype"`

	// CreatedAt — время загрузки (UTC)
	CreatedAt time.Time `json:"uploadDate"`

	// DownloadCount — количество успешных скачиваний
	DownloadCount int `json:"downloadCount"`

	// MaxDownloads — лимит скачиваний, nil — без лимита
	MaxDownloads *int `json:"maxDownloads"`

	// ExpiryAt — момент истечения ссылки, nil — бессрочно
	ExpiryAt *time.Time `json:"expiryDate"`
}

// IsExpired проверяет, наступил ли момент истечения.
func (r *ShareRecord) IsExpired(now time.Time) bool {
	if r.ExpiryAt == nil {
		return false
	}
	return !now.Before(*r.ExpiryAt)
}

// LimitReached проверяет, исчерпан ли лимит скачиваний.
func (r *ShareRecord) LimitReached() bool {
	if r.MaxDownloads == nil {
		return false
	}
	return r.DownloadCount >= *r.MaxDownloads
}

// State вычисляет состояние записи. Истечение срока проверяется
// раньше лимита скачиваний.
func (r *ShareRecord) State(now time.Time) ShareState {
	switch {
	case r.IsExpired(now):
		return StateExpired
	case r.LimitReached():
		return StateLimitExceeded
	default:
		return StateActive
	}
}

// Clone возвращает глубокую копию записи.
func (r *ShareRecord) Clone() ShareRecord {
	c := *r
	if r.MaxDownloads != nil {
		v := *r.MaxDownloads
		c.MaxDownloads = &v
	}
	if r.ExpiryAt != nil {
		v := *r.ExpiryAt
		c.ExpiryAt = &v
	}
	return c
}
