// Пакет service — бизнес-логика файлообменника: загрузка, скачивание
// и фоновая очистка записей раздачи.
package service

import (
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/fileshare/internal/api/errors"
)

// Error — ошибка сервисного слоя с HTTP-кодом.
// Message уходит клиенту как есть, поэтому не содержит путей и деталей хранилища.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationError(message string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: apierrors.CodeValidationError, Message: message}
}

// fileTooLargeError — 400 с отдельным кодом: клиент отличает превышение размера
// от прочих ошибок валидации.
func fileTooLargeError(message string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: apierrors.CodeFileTooLarge, Message: message}
}

func notFoundError(message string) *Error {
	return &Error{StatusCode: http.StatusNotFound, Code: apierrors.CodeNotFound, Message: message}
}

func goneError(message string) *Error {
	return &Error{StatusCode: http.StatusGone, Code: apierrors.CodeGone, Message: message}
}

func internalError(message string) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: apierrors.CodeInternalError, Message: message}
}
