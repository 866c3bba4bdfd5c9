// Точка входа файлообменника: загрузка файлов и раздача по одноразовым
// или ограниченным по времени ссылкам.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bigkaa/goartstore/fileshare/internal/api/handlers"
	"github.com/bigkaa/goartstore/fileshare/internal/api/middleware"
	"github.com/bigkaa/goartstore/fileshare/internal/config"
	"github.com/bigkaa/goartstore/fileshare/internal/server"
	"github.com/bigkaa/goartstore/fileshare/internal/service"
	"github.com/bigkaa/goartstore/fileshare/internal/static"
	"github.com/bigkaa/goartstore/fileshare/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/fileshare/internal/storage/registry"
)

// Параметры JWKS-клиента административной аутентификации.
const (
	jwksClientTimeout   = 10 * time.Second
	jwksRefreshInterval = 15 * time.Minute
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd создаёт корневую команду. Флаги привязываются к ключам viper.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "fileshare",
		Short:         "Файлообменник с ограничением срока и количества скачиваний",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return fmt.Errorf("ошибка конфигурации: %w", err)
			}
			return run(cfg)
		},
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Путь к конфигурационному файлу (YAML)")
	rootCmd.Flags().IntP("port", "p", 3000, "Порт HTTP-сервера")
	rootCmd.Flags().String("data-dir", "./uploads", "Директория хранения файлов")

	// Ошибка BindPFlag возможна только для nil-флага
	_ = v.BindPFlag(config.KeyPort, rootCmd.Flags().Lookup("port"))
	_ = v.BindPFlag(config.KeyDataDir, rootCmd.Flags().Lookup("data-dir"))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(config.Version)
		},
	})

	return rootCmd
}

// run поднимает все компоненты и блокируется до сигнала завершения.
func run(cfg *config.Config) error {
	logger := config.SetupLogger(cfg)
	logger.Info("Файлообменник запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	// --- Инициализация компонентов ---

	// 1. Blob store. Метаданные не переживают рестарт, поэтому
	// оставшиеся с прошлого запуска файлы недостижимы и удаляются.
	blobs, err := blobstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("инициализация blob store: %w", err)
	}
	swept, err := blobs.Sweep()
	if err != nil {
		logger.Warn("Ошибка очистки директории данных при старте",
			slog.String("error", err.Error()),
		)
	}
	if swept > 0 {
		logger.Info("Удалены файлы прошлого запуска", slog.Int("count", swept))
	}

	// 2. Реестр записей раздачи
	reg := registry.New(blobs, logger, registry.WithTombstones(cfg.TombstoneSize, cfg.TombstoneTTL))
	middleware.RegisterSharesGauge(reg.Len)

	// 3. Сервисы
	uploadSvc := service.NewUploadService(cfg, blobs, reg, logger)
	downloadSvc := service.NewDownloadService(reg, logger)

	// 4. Фоновая очистка
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaperSvc := service.NewReaperService(reg, cfg.ReapInterval, logger)
	reaperSvc.Start(ctx)

	// 5. Handlers
	h := server.Handlers{
		Shares:      handlers.NewSharesHandler(uploadSvc, downloadSvc, cfg.PublicURL, cfg.MaxFiles, cfg.MaxFileSize, logger),
		Pages:       handlers.NewPagesHandler(static.Pages(), static.Assets()),
		Health:      handlers.NewHealthHandler(blobs.DataDir()),
		Maintenance: handlers.NewMaintenanceHandler(reaperSvc),
	}
	uploadLimiter := middleware.NewRateLimiter(
		cfg.UploadRateLimit,
		cfg.UploadRateWindow,
		cfg.RateLimitCacheSize,
		middleware.MsgTooManyUploads,
	)

	// 6. JWT для административных endpoints (опционально)
	var jwtAuth *middleware.JWTAuth
	if cfg.AdminJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.AdminJWKSURL,
			ClientTimeout:   jwksClientTimeout,
			RefreshInterval: jwksRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			reaperSvc.Stop()
			return fmt.Errorf("инициализация JWT: %w", err)
		}
		logger.Info("JWT аутентификация административных endpoints настроена",
			slog.String("jwks_url", cfg.AdminJWKSURL),
			slog.String("scope", cfg.AdminScope),
		)
	} else {
		logger.Warn("FS_ADMIN_JWKS_URL не задан, административные endpoints без аутентификации")
	}

	// 7. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, uploadLimiter, jwtAuth)
	runErr := srv.Run()

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	reaperSvc.Stop()

	if runErr != nil {
		return runErr
	}
	logger.Info("Файлообменник остановлен")
	return nil
}
