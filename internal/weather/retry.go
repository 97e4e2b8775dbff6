package weather

import (
	"context"
	"net/http"
	"time"
)

// statusClass は上流APIのHTTPステータスの分類。
type statusClass int

const (
	statusOK statusClass = iota
	// statusOutOfRange は日付・座標が予報の提供範囲外（400）。
	statusOutOfRange
	// statusRetry は時間をおけば回復しうる（429/5xx）。
	statusRetry
	// statusFail はリトライしても回復しない。
	statusFail
)

const maxRetryBackoff = 10 * time.Second

func classifyStatus(code int) statusClass {
	switch {
	case code == http.StatusOK:
		return statusOK
	case code == http.StatusBadRequest:
		return statusOutOfRange
	case code == http.StatusTooManyRequests, code >= 500:
		return statusRetry
	default:
		return statusFail
	}
}

// retryBackoff はattempt回目（0始まり）のリトライ前の待ち時間を返す。
// baseから2倍ずつ増加し、maxRetryBackoffで頭打ちになる。
func retryBackoff(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return min(delay, maxRetryBackoff)
}

// sleepContext はdだけ待つ。ctxが先に終わった場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
