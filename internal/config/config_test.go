package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults проверяет значения по умолчанию.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "./uploads", cfg.DataDir)
	assert.Equal(t, "", cfg.PublicURL)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.Equal(t, DefaultBlockedExtensions, cfg.BlockedExtensions)
	assert.Equal(t, time.Hour, cfg.ReapInterval)
	assert.Equal(t, 10, cfg.UploadRateLimit)
	assert.Equal(t, 15*time.Minute, cfg.UploadRateWindow)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.HTTPReadHeaderTimeout)
	assert.Equal(t, time.Hour, cfg.HTTPReadTimeout, "тело загрузки читается дольше заголовков")
	assert.Equal(t, 10*time.Minute, cfg.HTTPWriteTimeout)
	assert.Equal(t, "", cfg.AdminJWKSURL)
	assert.Equal(t, "files:admin", cfg.AdminScope)
}

// TestLoad_FromEnv проверяет чтение переменных окружения FS_*.
func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("FS_PORT", "8080")
	t.Setenv("FS_DATA_DIR", "/var/lib/fileshare")
	t.Setenv("FS_PUBLIC_URL", "https://share.example.com/")
	t.Setenv("FS_MAX_FILE_SIZE", "1024")
	t.Setenv("FS_MAX_FILES", "2")
	t.Setenv("FS_BLOCKED_EXTENSIONS", "EXE, sh,.ps1")
	t.Setenv("FS_REAP_INTERVAL", "5m")
	t.Setenv("FS_LOG_LEVEL", "debug")
	t.Setenv("FS_LOG_FORMAT", "text")
	t.Setenv("FS_HTTP_WRITE_TIMEOUT", "0s")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/var/lib/fileshare", cfg.DataDir)
	assert.Equal(t, "https://share.example.com", cfg.PublicURL, "завершающий слэш отбрасывается")
	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	assert.Equal(t, 2, cfg.MaxFiles)
	assert.Equal(t, []string{".exe", ".sh", ".ps1"}, cfg.BlockedExtensions)
	assert.Equal(t, 5*time.Minute, cfg.ReapInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, time.Duration(0), cfg.HTTPWriteTimeout)
}

// TestLoad_ConfigFile проверяет чтение YAML-файла и приоритет окружения над ним.
func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fileshare.yaml")
	content := []byte("port: 9000\nmax_files: 3\nreap_interval: 10m\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("FS_MAX_FILES", "4")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 4, cfg.MaxFiles)
	assert.Equal(t, 10*time.Minute, cfg.ReapInterval)
}

// TestLoad_MissingConfigFile проверяет ошибку для отсутствующего файла.
func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// TestLoad_Invalid проверяет валидацию некорректных значений.
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "порт вне диапазона", env: map[string]string{"FS_PORT": "70000"}},
		{name: "пустая директория", env: map[string]string{"FS_DATA_DIR": " "}},
		{name: "некорректный public url", env: map[string]string{"FS_PUBLIC_URL": "share.example.com"}},
		{name: "нулевой размер файла", env: map[string]string{"FS_MAX_FILE_SIZE": "0"}},
		{name: "нулевое количество файлов", env: map[string]string{"FS_MAX_FILES": "0"}},
		{name: "некорректный интервал", env: map[string]string{"FS_REAP_INTERVAL": "hourly"}},
		{name: "нулевой интервал", env: map[string]string{"FS_REAP_INTERVAL": "0s"}},
		{name: "отрицательный лимит загрузок", env: map[string]string{"FS_UPLOAD_RATE_LIMIT": "-1"}},
		{name: "нулевой таймаут заголовков", env: map[string]string{"FS_HTTP_READ_HEADER_TIMEOUT": "0s"}},
		{name: "неизвестный уровень логов", env: map[string]string{"FS_LOG_LEVEL": "trace"}},
		{name: "неизвестный формат логов", env: map[string]string{"FS_LOG_FORMAT": "xml"}},
		{name: "сертификат без ключа", env: map[string]string{"FS_TLS_CERT": "/tls/cert.pem"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(viper.New(), "")
			assert.Error(t, err)
		})
	}
}

// TestNormalizeExtensions проверяет нормализацию списка расширений.
func TestNormalizeExtensions(t *testing.T) {
	got := normalizeExtensions([]string{".EXE", "bat", " .js ", "", ".exe", "vbs,cmd"})
	assert.Equal(t, []string{".exe", ".bat", ".js", ".vbs", ".cmd"}, got)
}

// TestParseLogLevel проверяет преобразование уровней логирования.
func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := parseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
