// Package cache はキー単位のTTLを持つ名前空間付きキャッシュを提供する。
//
// キャッシュは性能のための補助であり、整合性の仕組みではない。
// 呼び出し側はヒットを古い可能性のある値として扱い、
// サーバー側のレコードを変更した後は該当キーを明示的に無効化する。
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/gardenvisit/internal/metrics"
)

// entry はストレージに保存するJSON表現。timestampとttlはミリ秒。
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl"`
}

func (e *entry) expired(nowMs int64) bool {
	return nowMs-e.Timestamp > e.TTL
}

// Options はCacheの設定。
type Options struct {
	// Prefix は名前空間。保存キーは "prefix_key" になる。
	Prefix     string
	MaxItems   int
	DefaultTTL time.Duration
}

// Stats は診断用の統計。
type Stats struct {
	Prefix       string `json:"prefix"`
	TotalItems   int    `json:"totalItems"`
	TotalSize    int    `json:"totalSize"`
	ExpiredItems int    `json:"expiredItems"`
}

// Cache はStorage上の名前空間付きTTLキャッシュ。
// ストレージ障害は呼び出し側に伝播せず、ミスまたは未保存として扱う。
type Cache struct {
	storage    Storage
	prefix     string
	maxItems   int
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

const (
	defaultMaxItems = 100
	defaultTTL      = 5 * time.Minute
)

// New はCacheを生成する。loggerとcollectorはnilでもよい。
func New(storage Storage, opts Options, logger *slog.Logger, collector metrics.MetricsCollector) *Cache {
	if opts.MaxItems <= 0 {
		opts.MaxItems = defaultMaxItems
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		storage:    storage,
		prefix:     opts.Prefix,
		maxItems:   opts.MaxItems,
		defaultTTL: opts.DefaultTTL,
		logger:     logger.With(slog.String("cache", opts.Prefix)),
		metrics:    collector,
		now:        time.Now,
	}
}

// Prefix は名前空間を返す。
func (c *Cache) Prefix() string {
	return c.prefix
}

func (c *Cache) storageKey(key string) string {
	return c.prefix + "_" + key
}

func (c *Cache) keyPrefix() string {
	return c.prefix + "_"
}

// Set はdataをJSONで保存する。ttlが0以下ならDefaultTTLを使う。
// 保存に失敗した場合はfalseを返す。成否に関わらずCleanupを実行する。
func (c *Cache) Set(ctx context.Context, key string, data any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("failed to encode cache data",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	value, err := json.Marshal(entry{
		Data:      raw,
		Timestamp: c.now().UnixMilli(),
		TTL:       ttl.Milliseconds(),
	})
	if err != nil {
		return false
	}

	ok := true
	if err := c.storage.SetItem(ctx, c.storageKey(key), string(value)); err != nil {
		c.logger.Warn("failed to store cache item",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		ok = false
	}

	c.Cleanup(ctx)
	return ok
}

// Get はキーの値をdestにデコードする。
// 存在しない、期限切れ、または破損している場合はfalseを返し、
// 期限切れと破損エントリは削除する。
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	hit := c.get(ctx, key, dest)
	if c.metrics != nil {
		if hit {
			c.metrics.RecordCacheHit(c.prefix)
		} else {
			c.metrics.RecordCacheMiss(c.prefix)
		}
	}
	return hit
}

func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	sk := c.storageKey(key)

	raw, found, err := c.storage.GetItem(ctx, sk)
	if err != nil {
		c.logger.Warn("failed to read cache item",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !found {
		return false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.remove(ctx, sk)
		return false
	}
	if e.expired(c.now().UnixMilli()) {
		c.remove(ctx, sk)
		return false
	}
	if err := json.Unmarshal(e.Data, dest); err != nil {
		c.remove(ctx, sk)
		return false
	}
	return true
}

// Delete はキーを削除する。
func (c *Cache) Delete(ctx context.Context, key string) {
	c.remove(ctx, c.storageKey(key))
}

// Clear はこの名前空間の全エントリを削除する。
func (c *Cache) Clear(ctx context.Context) {
	keys, err := c.storage.Keys(ctx, c.keyPrefix())
	if err != nil {
		c.logger.Warn("failed to list cache keys", slog.String("error", err.Error()))
		return
	}
	for _, k := range keys {
		c.remove(ctx, k)
	}
}

type liveEntry struct {
	key       string
	timestamp int64
}

// Cleanup は期限切れと破損エントリを削除し、残りがMaxItemsを超える場合は
// 書き込み時刻の古い順に削除する。削除件数を返す。
func (c *Cache) Cleanup(ctx context.Context) int {
	keys, err := c.storage.Keys(ctx, c.keyPrefix())
	if err != nil {
		c.logger.Warn("failed to list cache keys", slog.String("error", err.Error()))
		return 0
	}

	nowMs := c.now().UnixMilli()
	removed := 0
	live := make([]liveEntry, 0, len(keys))

	for _, k := range keys {
		raw, found, err := c.storage.GetItem(ctx, k)
		if err != nil || !found {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil || e.expired(nowMs) {
			c.remove(ctx, k)
			removed++
			continue
		}
		live = append(live, liveEntry{key: k, timestamp: e.Timestamp})
	}

	if excess := len(live) - c.maxItems; excess > 0 {
		sort.SliceStable(live, func(i, j int) bool { return live[i].timestamp < live[j].timestamp })
		for _, le := range live[:excess] {
			c.remove(ctx, le.key)
			removed++
		}
	}

	return removed
}

// Stats は現在保存されているエントリの統計を返す。
// TotalItemsは論理的に期限切れでも未削除のエントリを含む。
func (c *Cache) Stats(ctx context.Context) Stats {
	stats := Stats{Prefix: c.prefix}

	keys, err := c.storage.Keys(ctx, c.keyPrefix())
	if err != nil {
		c.logger.Warn("failed to list cache keys", slog.String("error", err.Error()))
		return stats
	}

	nowMs := c.now().UnixMilli()
	for _, k := range keys {
		raw, found, err := c.storage.GetItem(ctx, k)
		if err != nil || !found {
			continue
		}
		stats.TotalItems++
		stats.TotalSize += len(raw)

		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err == nil && e.expired(nowMs) {
			stats.ExpiredItems++
		}
	}
	return stats
}

func (c *Cache) remove(ctx context.Context, storageKey string) {
	if err := c.storage.RemoveItem(ctx, storageKey); err != nil {
		c.logger.Warn("failed to remove cache item",
			slog.String("key", storageKey),
			slog.String("error", err.Error()),
		)
	}
}

// Fetch はキャッシュにあればそれを返し、なければloadで取得して保存する。
// loadのエラーはそのまま返し、キャッシュには保存しない。
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	if c.Get(ctx, key, &v) {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(ctx, key, v, ttl)
	return v, nil
}
