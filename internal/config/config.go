// Пакет config — загрузка и валидация конфигурации файлообменника.
// Источники в порядке приоритета: флаги командной строки, переменные
// окружения с префиксом FS_, конфигурационный файл, значения по умолчанию.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "FS"

// Ключи конфигурации.
const (
	KeyPort                  = "port"
	KeyDataDir               = "data_dir"
	KeyPublicURL             = "public_url"
	KeyMaxFileSize           = "max_file_size"
	KeyMaxFiles              = "max_files"
	KeyBlockedExtensions     = "blocked_extensions"
	KeyReapInterval          = "reap_interval"
	KeyUploadRateLimit       = "upload_rate_limit"
	KeyUploadRateWindow      = "upload_rate_window"
	KeyRateLimitCacheSize    = "rate_limit_cache_size"
	KeyTombstoneTTL          = "tombstone_ttl"
	KeyTombstoneSize         = "tombstone_size"
	KeyLogLevel              = "log_level"
	KeyLogFormat             = "log_format"
	KeyHTTPReadTimeout       = "http_read_timeout"
	KeyHTTPReadHeaderTimeout = "http_read_header_timeout"
	KeyHTTPWriteTimeout      = "http_write_timeout"
	KeyHTTPIdleTimeout       = "http_idle_timeout"
	KeyShutdownTimeout       = "shutdown_timeout"
	KeyTLSCert               = "tls_cert"
	KeyTLSKey                = "tls_key"
	KeyAdminJWKSURL          = "admin_jwks_url"
	KeyAdminScope            = "admin_scope"
	KeyJWTLeeway             = "jwt_leeway"
)

// DefaultBlockedExtensions — расширения исполняемых файлов, запрещённые к загрузке.
var DefaultBlockedExtensions = []string{".exe", ".scr", ".bat", ".cmd", ".com", ".pif", ".vbs", ".js"}

// Config содержит все параметры конфигурации.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Директория хранения blob'ов
	DataDir string
	// Базовый URL для ссылок раздачи (пусто — из запроса)
	PublicURL string
	// Максимальный размер одного файла в байтах
	MaxFileSize int64
	// Максимальное количество файлов в одном запросе
	MaxFiles int
	// Запрещённые расширения (в нижнем регистре, с точкой)
	BlockedExtensions []string
	// Интервал запуска reaper
	ReapInterval time.Duration
	// Лимит загрузок на клиента за окно
	UploadRateLimit int
	// Окно лимита загрузок
	UploadRateWindow time.Duration
	// Максимальное количество отслеживаемых клиентов
	RateLimitCacheSize int
	// Сколько помнить удалённые «мёртвые» ссылки (для ответа 410)
	TombstoneTTL time.Duration
	// Максимальное количество запоминаемых удалённых ссылок
	TombstoneSize int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут чтения заголовков запроса
	HTTPReadHeaderTimeout time.Duration
	// Таймаут чтения всего запроса вместе с телом (загрузка до MaxFiles*MaxFileSize)
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string

	// URL JWKS для защиты административных endpoints.
	// Пусто — административные endpoints открыты.
	AdminJWKSURL string
	// Scope, требуемый для административных endpoints
	AdminScope string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
}

// SetDefaults регистрирует значения по умолчанию и привязку к окружению.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, 3000)
	v.SetDefault(KeyDataDir, "./uploads")
	v.SetDefault(KeyPublicURL, "")
	v.SetDefault(KeyMaxFileSize, int64(100*1024*1024))
	v.SetDefault(KeyMaxFiles, 5)
	v.SetDefault(KeyBlockedExtensions, DefaultBlockedExtensions)
	v.SetDefault(KeyReapInterval, "1h")
	v.SetDefault(KeyUploadRateLimit, 10)
	v.SetDefault(KeyUploadRateWindow, "15m")
	v.SetDefault(KeyRateLimitCacheSize, 10000)
	v.SetDefault(KeyTombstoneTTL, "24h")
	v.SetDefault(KeyTombstoneSize, 10000)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyHTTPReadHeaderTimeout, "10s")
	v.SetDefault(KeyHTTPReadTimeout, "1h")
	v.SetDefault(KeyHTTPWriteTimeout, "10m")
	v.SetDefault(KeyHTTPIdleTimeout, "120s")
	v.SetDefault(KeyShutdownTimeout, "10s")
	v.SetDefault(KeyTLSCert, "")
	v.SetDefault(KeyTLSKey, "")
	v.SetDefault(KeyAdminJWKSURL, "")
	v.SetDefault(KeyAdminScope, "files:admin")
	v.SetDefault(KeyJWTLeeway, "30s")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load читает конфигурацию из viper, валидирует и возвращает Config.
// Если задан configFile, он читается перед валидацией.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("чтение конфигурационного файла %s: %w", configFile, err)
		}
	}

	cfg := &Config{}

	cfg.Port = v.GetInt(KeyPort)
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%s: значение %d вне допустимого диапазона 1-65535", KeyPort, cfg.Port)
	}

	cfg.DataDir = strings.TrimSpace(v.GetString(KeyDataDir))
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("%s: значение не может быть пустым", KeyDataDir)
	}

	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(v.GetString(KeyPublicURL)), "/")
	if cfg.PublicURL != "" {
		u, err := url.Parse(cfg.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%s: некорректный URL %q", KeyPublicURL, cfg.PublicURL)
		}
	}

	cfg.MaxFileSize = v.GetInt64(KeyMaxFileSize)
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("%s: значение должно быть положительным", KeyMaxFileSize)
	}

	cfg.MaxFiles = v.GetInt(KeyMaxFiles)
	if cfg.MaxFiles <= 0 {
		return nil, fmt.Errorf("%s: значение должно быть положительным", KeyMaxFiles)
	}

	cfg.BlockedExtensions = normalizeExtensions(v.GetStringSlice(KeyBlockedExtensions))

	var err error
	if cfg.ReapInterval, err = positiveDuration(v, KeyReapInterval); err != nil {
		return nil, err
	}

	cfg.UploadRateLimit = v.GetInt(KeyUploadRateLimit)
	if cfg.UploadRateLimit < 0 {
		return nil, fmt.Errorf("%s: значение не может быть отрицательным (0 — без ограничения)", KeyUploadRateLimit)
	}
	if cfg.UploadRateWindow, err = positiveDuration(v, KeyUploadRateWindow); err != nil {
		return nil, err
	}
	cfg.RateLimitCacheSize = v.GetInt(KeyRateLimitCacheSize)
	if cfg.RateLimitCacheSize <= 0 {
		return nil, fmt.Errorf("%s: значение должно быть положительным", KeyRateLimitCacheSize)
	}

	if cfg.TombstoneTTL, err = positiveDuration(v, KeyTombstoneTTL); err != nil {
		return nil, err
	}
	cfg.TombstoneSize = v.GetInt(KeyTombstoneSize)
	if cfg.TombstoneSize <= 0 {
		return nil, fmt.Errorf("%s: значение должно быть положительным", KeyTombstoneSize)
	}

	cfg.LogLevel, err = parseLogLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}

	cfg.LogFormat = v.GetString(KeyLogFormat)
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("%s: недопустимое значение %q, допустимые: json, text", KeyLogFormat, cfg.LogFormat)
	}

	if cfg.HTTPReadHeaderTimeout, err = positiveDuration(v, KeyHTTPReadHeaderTimeout); err != nil {
		return nil, err
	}
	// 0 — без ограничения на чтение тела
	if cfg.HTTPReadTimeout, err = nonNegativeDuration(v, KeyHTTPReadTimeout); err != nil {
		return nil, err
	}
	// 0 — без таймаута записи (большие файлы на медленных каналах)
	if cfg.HTTPWriteTimeout, err = nonNegativeDuration(v, KeyHTTPWriteTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTPIdleTimeout, err = nonNegativeDuration(v, KeyHTTPIdleTimeout); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = positiveDuration(v, KeyShutdownTimeout); err != nil {
		return nil, err
	}

	cfg.TLSCert = v.GetString(KeyTLSCert)
	cfg.TLSKey = v.GetString(KeyTLSKey)
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("%s и %s задаются только вместе", KeyTLSCert, KeyTLSKey)
	}

	cfg.AdminJWKSURL = v.GetString(KeyAdminJWKSURL)
	cfg.AdminScope = v.GetString(KeyAdminScope)
	if cfg.AdminJWKSURL != "" && cfg.AdminScope == "" {
		return nil, fmt.Errorf("%s: обязателен при заданном %s", KeyAdminScope, KeyAdminJWKSURL)
	}
	if cfg.JWTLeeway, err = nonNegativeDuration(v, KeyJWTLeeway); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// positiveDuration читает длительность и проверяет, что она > 0.
func positiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := nonNegativeDuration(v, key)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным", key)
	}
	return d, nil
}

// nonNegativeDuration читает длительность (формат Go: 30s, 1h) и проверяет, что она >= 0.
func nonNegativeDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", key, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: значение не может быть отрицательным", key)
	}
	return d, nil
}

// normalizeExtensions приводит расширения к виду ".ext" в нижнем регистре.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]bool, len(exts))
	for _, ext := range exts {
		// FS_BLOCKED_EXTENSIONS может прийти одной строкой через запятую
		for _, part := range strings.Split(ext, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if !strings.HasPrefix(part, ".") {
				part = "." + part
			}
			if !seen[part] {
				seen[part] = true
				out = append(out, part)
			}
		}
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
