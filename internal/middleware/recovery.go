package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/gardenvisit/internal/metrics"
)

// NewRecoveryMiddleware はpanicを500レスポンスに変換するミドルウェアを生成する。
// panicしたリクエストはLoggingを経由しないため、ステータスの記録もここで行う。
// loggerとcollectorはnilでもよい。
func NewRecoveryMiddleware(logger *slog.Logger, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("client_ip", RemoteIP(r)),
					slog.String("stack", string(debug.Stack())),
				)
				if collector != nil {
					collector.RecordHTTPStatus(http.StatusInternalServerError)
				}
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
