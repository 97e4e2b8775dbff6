package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrQuotaExceeded はストレージの容量上限を超えた書き込みで返る。
var ErrQuotaExceeded = errors.New("cache storage quota exceeded")

// Storage はキャッシュエントリを保持する文字列キー・文字列値のストア。
// 実装はゴルーチン安全であること。
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	// Keys はprefixで始まる全キーを返す。
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Backend はストレージ実装の種類。
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendBolt   Backend = "bolt"
	BackendRedis  Backend = "redis"
)

// StorageConfig はOpenStorageの設定。
type StorageConfig struct {
	Backend     Backend
	MemoryQuota int
	BoltPath    string
	RedisURL    string
}

// OpenStorage は設定に応じたストレージを開く。戻り値のcloseは必ず呼ぶこと。
func OpenStorage(cfg StorageConfig) (Storage, func() error, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStorage(cfg.MemoryQuota), func() error { return nil }, nil
	case BackendBolt:
		s, err := OpenBoltStorage(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendRedis:
		s, err := OpenRedisStorage(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}

// MemoryStorage はプロセス内のマップに保持するストレージ。
// quotaが正の場合、キーと値のバイト長の合計がquotaを超える書き込みを拒否する。
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
	quota int
	used  int
}

// NewMemoryStorage はMemoryStorageを生成する。quotaが0以下なら無制限。
func NewMemoryStorage(quota int) *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string), quota: quota}
}

func (s *MemoryStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + len(key) + len(value)
	if old, ok := s.items[key]; ok {
		used -= len(key) + len(old)
	}
	if s.quota > 0 && used > s.quota {
		return ErrQuotaExceeded
	}
	s.items[key] = value
	s.used = used
	return nil
}

func (s *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.items[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var _ Storage = (*MemoryStorage)(nil)
