// Package weather はイベント開催地の天気予報取得を提供する。
// Open-Meteoの日次予報APIを呼び出し、結果を名前空間weatherのキャッシュに保持する。
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint はOpen-Meteoの予報APIのエンドポイント。
	DefaultEndpoint = "https://api.open-meteo.com/v1/forecast"

	dailyFields = "temperature_2m_max,temperature_2m_min,precipitation_probability_max,weather_code"
	dateLayout  = "2006-01-02"
	maxBodySize = 1 << 20
)

// ErrOutOfRange は予報の提供範囲外の日付や座標が指定されたことを表す。
var ErrOutOfRange = errors.New("forecast out of range")

// Forecast は1日分の予報。
type Forecast struct {
	Date                     string  `json:"date"`
	TempMax                  float64 `json:"temp_max"`
	TempMin                  float64 `json:"temp_min"`
	PrecipitationProbability int     `json:"precipitation_probability"`
	WeatherCode              int     `json:"weather_code"`
	Summary                  string  `json:"summary"`
}

// ClientConfig はClientの設定。
type ClientConfig struct {
	Endpoint string
	// Interval は上流API呼び出しの最小間隔。0以下なら制限しない。
	Interval time.Duration
	Burst    int
	// MaxRetries は429/5xxや通信エラー時の再試行回数。0なら再試行しない。
	MaxRetries int
	// RetryBackoff は初回再試行までの待ち時間。以降2倍ずつ増える。
	RetryBackoff time.Duration
}

// Client はOpen-Meteo APIのクライアント。
// 呼び出しはトークンバケットで間引き、上流への過剰なリクエストを防ぐ。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg ClientConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   cfg.Endpoint,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		maxRetries: max(cfg.MaxRetries, 0),
		backoff:    cfg.RetryBackoff,
	}
}

type dailyResponse struct {
	Daily struct {
		Time          []string   `json:"time"`
		TempMax       []*float64 `json:"temperature_2m_max"`
		TempMin       []*float64 `json:"temperature_2m_min"`
		Precipitation []*int     `json:"precipitation_probability_max"`
		WeatherCode   []*int     `json:"weather_code"`
	} `json:"daily"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// GetDailyForecast は指定座標・日付の日次予報を取得する。
// 日付は開催地のタイムゾーンで解釈される。429/5xxと通信エラーはMaxRetries回まで再試行する。
func (c *Client) GetDailyForecast(ctx context.Context, lat, lon float64, date time.Time) (*Forecast, error) {
	reqURL, err := c.buildURL(lat, lon, date)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		f, retryable, err := c.fetch(ctx, reqURL, date.Format(dateLayout))
		if err == nil || !retryable || attempt >= c.maxRetries {
			return f, err
		}

		delay := retryBackoff(c.backoff, attempt)
		c.logger.Warn("weather API request will be retried",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if werr := sleepContext(ctx, delay); werr != nil {
			return nil, err
		}
	}
}

func (c *Client) buildURL(lat, lon float64, date time.Time) (string, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse weather endpoint: %w", err)
	}
	day := date.Format(dateLayout)
	q := reqURL.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("daily", dailyFields)
	q.Set("timezone", "auto")
	q.Set("start_date", day)
	q.Set("end_date", day)
	reqURL.RawQuery = q.Encode()
	return reqURL.String(), nil
}

// fetch は上流APIを1回呼び出す。retryableは再試行で回復しうるエラーかどうか。
func (c *Client) fetch(ctx context.Context, reqURL, day string) (_ *Forecast, retryable bool, _ error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, fmt.Errorf("weather rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("weather API request failed", slog.String("error", err.Error()))
		return nil, ctx.Err() == nil, fmt.Errorf("weather API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read weather response: %w", err)
	}

	switch classifyStatus(resp.StatusCode) {
	case statusOutOfRange:
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.Reason != "" {
			return nil, false, fmt.Errorf("%w: %s", ErrOutOfRange, er.Reason)
		}
		return nil, false, ErrOutOfRange
	case statusRetry:
		c.logger.Error("weather API returned error status", slog.Int("http_status", resp.StatusCode))
		return nil, true, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	case statusFail:
		c.logger.Error("weather API returned error status", slog.Int("http_status", resp.StatusCode))
		return nil, false, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var dr dailyResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, false, fmt.Errorf("failed to decode weather response: %w", err)
	}

	d := dr.Daily
	if len(d.Time) == 0 || len(d.TempMax) == 0 || len(d.TempMin) == 0 ||
		d.TempMax[0] == nil || d.TempMin[0] == nil {
		return nil, false, fmt.Errorf("%w: no data for %s", ErrOutOfRange, day)
	}

	f := &Forecast{
		Date:    d.Time[0],
		TempMax: *d.TempMax[0],
		TempMin: *d.TempMin[0],
	}
	if len(d.Precipitation) > 0 && d.Precipitation[0] != nil {
		f.PrecipitationProbability = *d.Precipitation[0]
	}
	if len(d.WeatherCode) > 0 && d.WeatherCode[0] != nil {
		f.WeatherCode = *d.WeatherCode[0]
	}
	f.Summary = Describe(f.WeatherCode)
	return f, false, nil
}

// Describe はWMO天気コードを短い説明に変換する。
func Describe(code int) string {
	switch {
	case code == 0:
		return "晴れ"
	case code <= 3:
		return "曇りがち"
	case code == 45 || code == 48:
		return "霧"
	case code >= 51 && code <= 57:
		return "霧雨"
	case code >= 61 && code <= 67:
		return "雨"
	case code >= 71 && code <= 77:
		return "雪"
	case code >= 80 && code <= 82:
		return "にわか雨"
	case code == 85 || code == 86:
		return "にわか雪"
	case code >= 95:
		return "雷雨"
	default:
		return "不明"
	}
}
