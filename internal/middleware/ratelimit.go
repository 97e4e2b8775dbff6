package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/gardenvisit/internal/metrics"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/security"
)

// RateLimitConfig は固定ウィンドウ方式のレート制限設定を保持する。
// 呼び出し箇所ごとに別のインスタンスを生成する。
type RateLimitConfig struct {
	Name          string        // メトリクス・ログ上のリミッター名
	MaxRequests   int           // ウィンドウ内で許可するリクエスト数
	Window        time.Duration // ウィンドウ長
	SweepInterval time.Duration // 終了済みウィンドウの掃除間隔。0ならWindowと同じ
}

// GeneralRateLimitConfig はAPI全般のレート制限設定を返す。
// 要件: 100 req / 15 min / IP
func GeneralRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:        "general",
		MaxRequests: 100,
		Window:      15 * time.Minute,
	}
}

// ValidationRateLimitConfig は入力検証エンドポイントのレート制限設定を返す。
// 要件: 10 req / 1 min / IP
func ValidationRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:        "validation",
		MaxRequests: 10,
		Window:      time.Minute,
	}
}

// RateLimitResult は1回の判定結果。
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // Allowed=falseの場合のみ設定
}

// window は識別子ごとのカウンター。
type window struct {
	count     int
	resetTime time.Time
}

// RateLimiter は識別子ごとの固定ウィンドウカウンターを管理する。
// 状態はプロセス内に閉じており、複数インスタンス間では共有されない。
type RateLimiter struct {
	config  RateLimitConfig
	metrics metrics.MetricsCollector
	audit   security.AuditRecorder
	logger  *slog.Logger

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで終了済みウィンドウの掃除を開始する。collectorとauditはnilでもよい。
func NewRateLimiter(config RateLimitConfig, collector metrics.MetricsCollector, audit security.AuditRecorder) *RateLimiter {
	if config.SweepInterval <= 0 {
		config.SweepInterval = config.Window
	}
	rl := &RateLimiter{
		config:  config,
		metrics: collector,
		audit:   audit,
		logger:  slog.Default().With(slog.String("limiter", config.Name)),
		windows: make(map[string]*window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go rl.sweepLoop()

	return rl
}

// Stop は掃除のバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Config は設定を返す。
func (rl *RateLimiter) Config() RateLimitConfig {
	return rl.config
}

// Check は識別子のリクエストを1件数え、許可するかどうかを返す。
// count > MaxRequests で拒否する（N件目は許可、N+1件目は拒否）。
func (rl *RateLimiter) Check(identifier string) RateLimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[identifier]
	if !ok || !now.Before(w.resetTime) {
		w = &window{count: 1, resetTime: now.Add(rl.config.Window)}
		rl.windows[identifier] = w
		return rl.result(w, true, now)
	}

	w.count++
	if w.count > rl.config.MaxRequests {
		return rl.result(w, false, now)
	}
	return rl.result(w, true, now)
}

func (rl *RateLimiter) result(w *window, allowed bool, now time.Time) RateLimitResult {
	remaining := rl.config.MaxRequests - w.count
	if remaining < 0 {
		remaining = 0
	}
	res := RateLimitResult{
		Allowed:   allowed,
		Limit:     rl.config.MaxRequests,
		Remaining: remaining,
		ResetAt:   w.resetTime,
	}
	if !allowed {
		res.RetryAfter = w.resetTime.Sub(now)
	}
	return res
}

// Len は現在保持しているウィンドウ数を返す。テストおよび診断用。
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Middleware はクライアントIPごとにレート制限を行うミドルウェアを返す。
// 判定結果をX-RateLimit-*ヘッダーに書き、拒否時は429とRetry-Afterを返す。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := ClientIdentifier(r)
			res := rl.Check(identifier)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				rl.reject(w, r, identifier, res)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, identifier string, res RateLimitResult) {
	rl.logger.Warn("rate limit exceeded",
		slog.String("identifier", identifier),
		slog.String("path", r.URL.Path),
	)
	if rl.metrics != nil {
		rl.metrics.RecordRateLimited(rl.config.Name)
	}
	if rl.audit != nil {
		event := model.SecurityEvent{
			Type:      model.SecurityEventRateLimitExceeded,
			IPAddress: identifier,
			Path:      r.URL.Path,
			Detail:    rl.config.Name,
		}
		if u, ok := UserFromContext(r.Context()); ok {
			event.UserID = u.ID()
		}
		rl.audit.Record(event)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(res.RetryAfter)))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitError())
}

// retryAfterSeconds はRetry-Afterヘッダー用に秒単位へ切り上げる。最小1秒。
func retryAfterSeconds(d time.Duration) int {
	sec := int(math.Ceil(d.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// ClientIdentifier はレート制限のキーとなるクライアント識別子を返す。
// X-Forwarded-Forの先頭、X-Real-IP、"unknown"の順に採用する。
func ClientIdentifier(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}

// RemoteIP はセッション記録用のクライアントIPを返す。
// プロキシヘッダーがなければ接続元アドレスを使う。
func RemoteIP(r *http.Request) string {
	if id := ClientIdentifier(r); id != "unknown" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sweepLoop はバックグラウンドで終了済みウィンドウを定期的に削除する。
func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stopCh:
			return
		}
	}
}

// sweep はresetTimeを過ぎたウィンドウを削除する。
func (rl *RateLimiter) sweep() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, w := range rl.windows {
		if !now.Before(w.resetTime) {
			delete(rl.windows, id)
		}
	}
}
