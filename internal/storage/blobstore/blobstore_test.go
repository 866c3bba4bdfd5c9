package blobstore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore создаёт Store во временной директории.
// blobExists проверяет наличие blob'а на диске.
func blobExists(s *Store, ref string) bool {
	_, err := os.Stat(filepath.Join(s.DataDir(), ref))
	return err == nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err, "ошибка создания Store")
	return s
}

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	s, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.DataDir())

	info, err := os.Stat(dir)
	require.NoError(t, err, "директория не создана")
	assert.True(t, info.IsDir())
}

// TestPut_RoundTrip проверяет запись и побайтное чтение blob'а.
func TestPut_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	content := []byte("Hello, World! Тестовые данные для проверки.")

	info, err := s.Put(bytes.NewReader(content), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.True(t, strings.HasSuffix(info.Ref, blobExt), "ссылка должна иметь расширение .blob: %s", info.Ref)
	assert.True(t, blobExists(s, info.Ref))

	f, err := s.Open(info.Ref)
	require.NoError(t, err)
	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// temp файл не остаётся
	_, err = os.Stat(filepath.Join(s.DataDir(), info.Ref+tmpExt))
	assert.True(t, os.IsNotExist(err), "temp файл должен быть переименован")
}

// TestPut_UniqueRefs проверяет, что ссылки не повторяются.
func TestPut_UniqueRefs(t *testing.T) {
	s := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		info, err := s.Put(strings.NewReader("x"), 0)
		require.NoError(t, err)
		assert.False(t, seen[info.Ref], "повторная ссылка %s", info.Ref)
		seen[info.Ref] = true
	}
}

// TestPut_SizeLimit проверяет граничные значения лимита размера.
func TestPut_SizeLimit(t *testing.T) {
	const limit = 64

	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{name: "меньше лимита", size: limit - 1},
		{name: "ровно лимит", size: limit},
		{name: "лимит плюс один байт", size: limit + 1, wantErr: ErrTooLarge},
		{name: "намного больше лимита", size: limit * 10, wantErr: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)

			info, err := s.Put(bytes.NewReader(bytes.Repeat([]byte("a"), tt.size)), limit)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, info)

				entries, readErr := os.ReadDir(s.DataDir())
				require.NoError(t, readErr)
				assert.Empty(t, entries, "после отказа на диске не должно остаться файлов")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(tt.size), info.Size)
		})
	}
}

// failingReader возвращает ошибку после первой порции данных.
type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("соединение разорвано")
}

// TestPut_ReaderError проверяет очистку temp файла при ошибке чтения.
func TestPut_ReaderError(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put(&failingReader{}, 1024)
	require.Error(t, err)

	entries, err := os.ReadDir(s.DataDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestOpen_NotFound проверяет ошибку для отсутствующего blob'а.
func TestOpen_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Open("missing.blob")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestOpen_InvalidRef проверяет защиту от path traversal.
func TestOpen_InvalidRef(t *testing.T) {
	s := newTestStore(t)

	for _, ref := range []string{"", "..", "../etc/passwd", "a/b.blob", `a\b.blob`} {
		_, err := s.Open(ref)
		assert.ErrorIs(t, err, ErrInvalidRef, "ref=%q", ref)
	}
}

// TestRemove_Idempotent проверяет повторное удаление.
func TestRemove_Idempotent(t *testing.T) {
	s := newTestStore(t)

	info, err := s.Put(strings.NewReader("data"), 0)
	require.NoError(t, err)

	require.NoError(t, s.Remove(info.Ref))
	assert.False(t, blobExists(s, info.Ref))
	require.NoError(t, s.Remove(info.Ref), "повторное удаление не должно возвращать ошибку")
}

// TestRemoveAll проверяет откат набора blob'ов.
func TestRemoveAll(t *testing.T) {
	s := newTestStore(t)

	var refs []string
	for i := 0; i < 3; i++ {
		info, err := s.Put(strings.NewReader("data"), 0)
		require.NoError(t, err)
		refs = append(refs, info.Ref)
	}
	refs = append(refs, "already-gone.blob")

	require.NoError(t, s.RemoveAll(refs))
	for _, ref := range refs {
		assert.False(t, blobExists(s, ref))
	}

	err := s.RemoveAll([]string{"../escape.blob"})
	assert.ErrorIs(t, err, ErrInvalidRef)
}

// TestSweep проверяет очистку остатков прошлого запуска.
func TestSweep(t *testing.T) {
	s := newTestStore(t)
	dir := s.DataDir()

	_, err := s.Put(strings.NewReader("old"), 0)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "half.blob.tmp"), []byte("x"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("keep"), 0o640))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o750))

	removed, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"README", "nested"}, names)
}
