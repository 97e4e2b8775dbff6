package cache

import (
	"bytes"
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketCache = []byte("cache")

// BoltStorage はbboltファイルに永続化するストレージ。
// プロセス再起動後もエントリが残る。
type BoltStorage struct {
	db *bbolt.DB
}

// OpenBoltStorage はbboltファイルを開き、キャッシュ用bucketを用意する。
func OpenBoltStorage(path string) (*BoltStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt cache path is required")
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCache)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &BoltStorage{db: db}, nil
}

// Close はデータベースファイルを閉じる。
func (s *BoltStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCache).Get([]byte(key))
		if v != nil {
			// トランザクション外で使うためコピーする
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache item: %w", err)
	}
	return value, found, nil
}

func (s *BoltStorage) SetItem(_ context.Context, key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to write cache item: %w", err)
	}
	return nil
}

func (s *BoltStorage) RemoveItem(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to remove cache item: %w", err)
	}
	return nil
}

func (s *BoltStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCache).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	return keys, nil
}

var _ Storage = (*BoltStorage)(nil)
