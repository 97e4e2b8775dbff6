package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gardenvisit/internal/cache"
	"github.com/hitoshi/gardenvisit/internal/model"
)

const (
	// CacheTTL は予報をキャッシュする期間。
	CacheTTL = 30 * time.Minute
	// ForecastHorizon は予報を提供する最長の先日付。
	ForecastHorizon = 16 * 24 * time.Hour
)

// Forecaster は日次予報の取得元。Clientが実装する。
type Forecaster interface {
	GetDailyForecast(ctx context.Context, lat, lon float64, date time.Time) (*Forecast, error)
}

// Service はイベントの天気予報をキャッシュ経由で提供する。
type Service struct {
	forecaster Forecaster
	cache      *cache.Cache
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。weatherCacheはnilでもよい。
func NewService(forecaster Forecaster, weatherCache *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		forecaster: forecaster,
		cache:      weatherCache,
		logger:     logger,
		now:        time.Now,
	}
}

// cacheKey は座標を約100m単位に丸めて日付と組み合わせる。
func cacheKey(lat, lon float64, date time.Time) string {
	return fmt.Sprintf("%.3f:%.3f:%s", lat, lon, date.Format(dateLayout))
}

// ForEvent はイベント開始日の予報を返す。
// 座標がない、開始日時が過去、または予報範囲より先の場合は
// FORECAST_UNAVAILABLEのAPIErrorを返す。
func (s *Service) ForEvent(ctx context.Context, ev *model.Event) (*Forecast, error) {
	if !ev.HasCoordinates() {
		return nil, model.NewForecastUnavailableError("開催場所の座標が設定されていません")
	}

	now := s.now()
	if ev.StartsAt.Before(now.Truncate(24 * time.Hour)) {
		return nil, model.NewForecastUnavailableError("イベントは終了しています")
	}
	if ev.StartsAt.After(now.Add(ForecastHorizon)) {
		return nil, model.NewForecastUnavailableError("予報の提供範囲より先の日付です")
	}

	lat, lon := *ev.Latitude, *ev.Longitude
	load := func(ctx context.Context) (*Forecast, error) {
		return s.forecaster.GetDailyForecast(ctx, lat, lon, ev.StartsAt)
	}

	var (
		f   *Forecast
		err error
	)
	if s.cache == nil {
		f, err = load(ctx)
	} else {
		f, err = cache.Fetch(ctx, s.cache, cacheKey(lat, lon, ev.StartsAt), CacheTTL, load)
	}
	if errors.Is(err, ErrOutOfRange) {
		return nil, model.NewForecastUnavailableError("予報データがありません")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast: %w", err)
	}
	return f, nil
}
