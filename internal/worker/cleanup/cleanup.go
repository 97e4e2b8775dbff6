// Package cleanup は期限切れセッションとキャッシュエントリの定期削除ジョブを提供する。
// ログイン時の削除とは別に、ログインが途絶えた期間も期限切れデータが残らないようにする。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionCleaner は期限切れセッションを削除する。session.Storeが実装する。
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CacheCleaner は期限切れ・破損エントリを削除する。cache.Registryが実装する。
type CacheCleaner interface {
	Cleanup(ctx context.Context) int
}

// CleanupJob は期限切れデータの削除ジョブ。冪等で、何度実行してもよい。
type CleanupJob struct {
	sessions SessionCleaner
	caches   CacheCleaner
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。cachesはnilでもよい。
func NewCleanupJob(sessions SessionCleaner, caches CacheCleaner, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions: sessions,
		caches:   caches,
		logger:   logger,
	}
}

// Run は期限切れセッションとキャッシュエントリを1回削除する。
// キャッシュの削除はセッション削除の失敗に関わらず実行する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expired, err := j.sessions.CleanupExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	evicted := 0
	if j.caches != nil {
		evicted = j.caches.Cleanup(ctx)
	}

	if err != nil {
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", expired),
		slog.Int("evicted_cache_items", evicted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以降intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.logger.Info("cleanup job starting", slog.Duration("interval", interval))

	// エラーはRun内でログ出力済み
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup job stopping")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
