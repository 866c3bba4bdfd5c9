// ratelimit.go — ограничение частоты запросов по IP клиента.
// Фиксированное окно: не более limit запросов за window на один адрес.
// Счётчики хранятся в expirable LRU ограниченного размера; запись живёт
// не дольше одного окна.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goartstore/fileshare/internal/api/errors"
)

// rateLimitedTotal — количество отклонённых по лимиту запросов.
var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fs_rate_limited_total",
	Help: "Общее количество запросов, отклонённых ограничителем частоты",
})

// MsgTooManyUploads — сообщение клиенту при превышении лимита загрузок.
const MsgTooManyUploads = "Too many uploads, please try again later."

// clientWindow — состояние окна одного клиента.
type clientWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter — ограничитель частоты запросов по IP.
type RateLimiter struct {
	limit   int
	window  time.Duration
	message string
	now     func() time.Time

	mu      sync.Mutex
	clients *expirable.LRU[string, *clientWindow]
}

// NewRateLimiter создаёт ограничитель. limit <= 0 отключает ограничение.
// cacheSize — максимальное количество отслеживаемых адресов.
func NewRateLimiter(limit int, window time.Duration, cacheSize int, message string) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		message: message,
		now:     time.Now,
		clients: expirable.NewLRU[string, *clientWindow](cacheSize, nil, window),
	}
}

// Allow учитывает запрос клиента и возвращает, укладывается ли он в лимит,
// сколько запросов осталось и когда окно сбросится.
func (rl *RateLimiter) Allow(client string) (allowed bool, remaining int, resetAt time.Time) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.clients.Get(client)
	if !ok || !now.Before(w.resetAt) {
		w = &clientWindow{resetAt: now.Add(rl.window)}
		rl.clients.Add(client, w)
	}

	if w.count >= rl.limit {
		return false, 0, w.resetAt
	}
	w.count++
	return true, rl.limit - w.count, w.resetAt
}

// Middleware возвращает HTTP middleware с ответом 429 при превышении лимита.
// Заголовки RateLimit-* повторяют поведение express-rate-limit.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetAt := rl.Allow(clientIP(r))

			resetSeconds := int(resetAt.Sub(rl.now()).Round(time.Second).Seconds())
			if resetSeconds < 0 {
				resetSeconds = 0
			}
			w.Header().Set("RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(resetSeconds))

			if !allowed {
				rateLimitedTotal.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(resetSeconds))
				apierrors.TooManyRequests(w, rl.message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP извлекает адрес клиента из RemoteAddr.
// За прокси RemoteAddr заранее переписывает chi middleware.RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
