// reaper.go — фоновая очистка «мёртвых» записей раздачи.
//
// Каждый цикл берёт снимок реестра и удаляет через Registry.Delete записи
// с истёкшим сроком или исчерпанным лимитом скачиваний. Ошибка удаления
// одной записи не прерывает цикл.
//
// Расписание — robfig/cron с фиксированным интервалом (FS_REAP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/bigkaa/goartstore/fileshare/internal/storage/registry"
)

// Prometheus метрики reaper
var (
	// reaperRunsTotal — количество циклов очистки.
	reaperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_reaper_runs_total",
		Help: "Общее количество циклов очистки",
	})

	// reaperRemovedTotal — удалённые записи по причине.
	reaperRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_reaper_removed_total",
		Help: "Общее количество записей, удалённых при очистке",
	}, []string{"reason"})

	// reaperErrorsTotal — ошибки удаления.
	reaperErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_reaper_errors_total",
		Help: "Общее количество ошибок удаления при очистке",
	})

	// reaperDurationSeconds — длительность цикла.
	reaperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fs_reaper_duration_seconds",
		Help:    "Длительность цикла очистки в секундах",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// ReapResult — результат одного цикла очистки.
type ReapResult struct {
	// Checked — количество записей в снимке
	Checked int `json:"checked"`
	// Removed — количество удалённых записей
	Removed int `json:"removed"`
	// Errors — количество ошибок удаления
	Errors int `json:"errors"`
	// Duration — длительность цикла
	Duration time.Duration `json:"-"`
	// DurationMs — длительность в миллисекундах (для JSON-ответа)
	DurationMs int64 `json:"durationMs"`
}

// ReaperService — сервис фоновой очистки записей.
type ReaperService struct {
	reg      *registry.Registry
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска RunOnce
	lifecycle sync.Mutex
	scheduler *cron.Cron
	cancel    context.CancelFunc
}

// NewReaperService создаёт сервис очистки.
func NewReaperService(
	reg *registry.Registry,
	interval time.Duration,
	logger *slog.Logger,
) *ReaperService {
	return &ReaperService{
		reg:      reg,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "reaper")),
	}
}

// Start запускает периодическую очистку. Повторный вызов игнорируется.
// Отмена ctx останавливает планировщик так же, как Stop.
func (r *ReaperService) Start(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.scheduler != nil {
		return
	}

	cronLogger := slogCronLogger{logger: r.logger}
	r.scheduler = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	r.scheduler.Schedule(cron.Every(r.interval), cron.FuncJob(func() { r.RunOnce() }))
	r.scheduler.Start()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go func() {
		<-runCtx.Done()
		r.Stop()
	}()

	r.logger.Info("Reaper запущен",
		slog.String("interval", r.interval.String()),
	)
}

// Stop останавливает планировщик и дожидается завершения текущего цикла.
func (r *ReaperService) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.scheduler == nil {
		return
	}
	<-r.scheduler.Stop().Done()
	r.scheduler = nil
	r.cancel()
	r.logger.Info("Reaper остановлен")
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: параллельные вызовы выполняются последовательно.
// Реестр блокируется только на время удаления одной записи.
func (r *ReaperService) RunOnce() *ReapResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	now := r.now()
	result := &ReapResult{Checked: r.reg.Len()}

	for _, rec := range r.reg.Dead(now) {
		reason := string(rec.State(now))
		if err := r.reg.Delete(rec.ShareID); err != nil {
			// запись уже удалена, не удалось удалить только blob
			r.logger.Error("Reaper: ошибка удаления",
				slog.String("share_id", rec.ShareID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			reaperErrorsTotal.Inc()
			continue
		}
		result.Removed++
		reaperRemovedTotal.WithLabelValues(reason).Inc()

		r.logger.Debug("Reaper: запись удалена",
			slog.String("share_id", rec.ShareID),
			slog.String("filename", rec.OriginalName),
			slog.String("reason", reason),
		)
	}

	result.Duration = time.Since(start)
	result.DurationMs = result.Duration.Milliseconds()

	reaperRunsTotal.Inc()
	reaperDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelDebug
	if result.Removed > 0 || result.Errors > 0 {
		level = slog.LevelInfo
	}
	r.logger.Log(context.Background(), level, "Reaper: цикл завершён",
		slog.Int("checked", result.Checked),
		slog.Int("removed", result.Removed),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// slogCronLogger — адаптер slog для cron.Logger.
// Info планировщика (каждое срабатывание) пишется на уровне Debug.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}

var _ cron.Logger = slogCronLogger{}
