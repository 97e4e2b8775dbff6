package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/hitoshi/gardenvisit/internal/metrics"
)

// 名前空間として使うプレフィックス。
const (
	PrefixWeather = "weather"
	PrefixEvents  = "events"
	PrefixUser    = "user"
)

// Registry は同一ストレージ上の複数の名前空間キャッシュをまとめる。
type Registry struct {
	storage Storage
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	mu     sync.Mutex
	caches map[string]*Cache
}

// NewRegistry はRegistryを生成する。
func NewRegistry(storage Storage, logger *slog.Logger, collector metrics.MetricsCollector) *Registry {
	return &Registry{
		storage: storage,
		logger:  logger,
		metrics: collector,
		caches:  make(map[string]*Cache),
	}
}

// Namespace はopts.Prefixの名前空間キャッシュを返す。初回呼び出し時に生成する。
func (r *Registry) Namespace(opts Options) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[opts.Prefix]; ok {
		return c
	}
	c := New(r.storage, opts, r.logger, r.metrics)
	r.caches[opts.Prefix] = c
	return c
}

func (r *Registry) snapshot() []*Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Cache, 0, len(r.caches))
	for _, c := range r.caches {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].prefix < out[j].prefix })
	return out
}

// Stats は全名前空間の統計をプレフィックス順に返す。
func (r *Registry) Stats(ctx context.Context) []Stats {
	caches := r.snapshot()
	out := make([]Stats, 0, len(caches))
	for _, c := range caches {
		out = append(out, c.Stats(ctx))
	}
	return out
}

// Cleanup は全名前空間でCleanupを実行し、削除件数の合計を返す。
func (r *Registry) Cleanup(ctx context.Context) int {
	total := 0
	for _, c := range r.snapshot() {
		total += c.Cleanup(ctx)
	}
	return total
}
