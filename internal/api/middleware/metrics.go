// metrics.go — Prometheus HTTP метрики файлообменника.
// Регистрирует метрики: fs_http_requests_total, fs_http_request_duration_seconds.
// Бизнес-метрики (fs_operations_total, fs_uploaded_bytes_total, fs_shares_active)
// обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_http_requests_total",
			Help: "Общее количество HTTP-запросов к файлообменнику",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// OperationsTotal — количество операций над раздачами по результату.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_operations_total",
			Help: "Общее количество операций над раздачами",
		},
		[]string{"operation", "result"},
	)

	// UploadedBytesTotal — объём принятых файлов.
	UploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fs_uploaded_bytes_total",
			Help: "Общий объём загруженных файлов в байтах",
		},
	)
)

// RegisterSharesGauge регистрирует gauge с текущим количеством записей.
// Значение вычисляется при каждом scrape. Вызывается один раз при старте.
func RegisterSharesGauge(count func() int) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fs_shares_active",
			Help: "Текущее количество записей раздачи в реестре",
		},
		func() float64 { return float64(count()) },
	)
}

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// share_id в пути заменяется на {id}, иначе кардинальность неограничена
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// idRoutes — префиксы маршрутов с share_id в последнем сегменте.
var idRoutes = []string{"/api/file/", "/download/", "/share/"}

// knownPaths — маршруты без параметров.
var knownPaths = map[string]bool{
	"/":                     true,
	"/upload":               true,
	"/api/files":            true,
	"/api/maintenance/reap": true,
	"/health/live":          true,
	"/health/ready":         true,
	"/metrics":              true,
}

// normalizePath приводит путь к шаблону маршрута:
// /download/9f86d081884c7d659a2feaa0c55ad015 → /download/{id}.
// Неизвестные пути сворачиваются в "other".
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	for _, prefix := range idRoutes {
		if id, ok := strings.CutPrefix(path, prefix); ok && id != "" && !strings.Contains(id, "/") {
			return prefix + "{id}"
		}
	}
	return "other"
}
