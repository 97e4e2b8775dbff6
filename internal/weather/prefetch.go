package weather

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/gardenvisit/internal/model"
)

// UpcomingEventLister は開始前のイベントを列挙する。
type UpcomingEventLister interface {
	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*model.Event, error)
}

// PrefetchConfig は予報の先読みジョブの設定。
type PrefetchConfig struct {
	// Interval はジョブの実行間隔。CacheTTLより短くするとキャッシュが切れない。
	Interval time.Duration
	// MaxEventsPerCycle は1サイクルで予報を取得するイベント数の上限。
	MaxEventsPerCycle int
}

// DefaultPrefetchConfig はデフォルトの先読み設定を返す。
func DefaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{
		Interval:          20 * time.Minute,
		MaxEventsPerCycle: 100,
	}
}

// PrefetchJob は予報範囲内の開始前イベントについて予報を先読みし、
// weatherキャッシュを温める。上流APIの連続エラー時はバックオフする。
type PrefetchJob struct {
	events            UpcomingEventLister
	service           *Service
	logger            *slog.Logger
	config            PrefetchConfig
	consecutiveErrors int
	backoffUntil      time.Time
	now               func() time.Time
}

// NewPrefetchJob はPrefetchJobを生成する。
func NewPrefetchJob(events UpcomingEventLister, service *Service, logger *slog.Logger, config PrefetchConfig) *PrefetchJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrefetchJob{
		events:  events,
		service: service,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// Start はジョブをティッカーで定期実行する。ctxがキャンセルされるまで継続する。
func (j *PrefetchJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info("weather prefetch job started",
		slog.Duration("interval", j.config.Interval),
		slog.Int("max_events_per_cycle", j.config.MaxEventsPerCycle),
	)

	j.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("weather prefetch job stopped")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *PrefetchJob) runAndLog(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("weather prefetch cycle failed", slog.String("error", err.Error()))
	}
}

// RunOnce は1サイクルを実行し、予報を取得できたイベント数を返す。
func (j *PrefetchJob) RunOnce(ctx context.Context) (int, error) {
	now := j.now()
	if !j.backoffUntil.IsZero() && now.Before(j.backoffUntil) {
		j.logger.Info("weather prefetch skipped during backoff", slog.Time("backoff_until", j.backoffUntil))
		return 0, nil
	}

	events, err := j.events.ListUpcoming(ctx, now, j.config.MaxEventsPerCycle)
	if err != nil {
		return 0, err
	}

	horizon := now.Add(ForecastHorizon)
	warmed := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			return warmed, ctx.Err()
		}
		if !ev.HasCoordinates() || ev.StartsAt.After(horizon) {
			continue
		}

		_, err := j.service.ForEvent(ctx, ev)
		if err == nil {
			warmed++
			j.consecutiveErrors = 0
			continue
		}

		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			// 範囲外などの予報なしは上流障害として扱わない
			continue
		}

		j.consecutiveErrors++
		j.logger.Warn("weather prefetch failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		if backoff := errorBackoff(j.consecutiveErrors); backoff > 0 {
			j.backoffUntil = now.Add(backoff)
			j.logger.Warn("weather prefetch backing off",
				slog.Int("consecutive_errors", j.consecutiveErrors),
				slog.Duration("backoff", backoff),
			)
			break
		}
	}

	if j.consecutiveErrors == 0 {
		j.backoffUntil = time.Time{}
	}

	j.logger.Info("weather prefetch cycle completed",
		slog.Int("target_events", len(events)),
		slog.Int("warmed", warmed),
	)
	return warmed, nil
}

// errorBackoff は連続エラー回数に応じたバックオフ時間を返す。
// 3回: 10分、5回: 30分、10回: 2時間。
func errorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 2 * time.Hour
	case consecutiveErrors >= 5:
		return 30 * time.Minute
	case consecutiveErrors >= 3:
		return 10 * time.Minute
	default:
		return 0
	}
}
