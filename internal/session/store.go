// Package session はサーバー側セッションの発行・検証・失効を提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gardenvisit/internal/metrics"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/repository"
)

const (
	// DefaultMaxAge はセッションの既定有効期間。
	DefaultMaxAge = 24 * time.Hour
	// DefaultMaxSessions はユーザーあたりの同時有効セッション数の既定上限。
	DefaultMaxSessions = 5
)

// StoreConfig はセッションストアの設定。
type StoreConfig struct {
	MaxAge      time.Duration
	MaxSessions int
}

// Store はセッションの永続化と同時セッション上限を管理する。
type Store struct {
	repo    repository.SessionRepository
	config  StoreConfig
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewStore はStoreを生成する。collectorはnilでもよい。
func NewStore(repo repository.SessionRepository, cfg StoreConfig, logger *slog.Logger, collector metrics.MetricsCollector) *Store {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:    repo,
		config:  cfg,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// MaxAge はセッションの有効期間を返す。Cookieの Max-Age と揃えるために使う。
func (s *Store) MaxAge() time.Duration {
	return s.config.MaxAge
}

// Create は新しいセッションを発行し、そのIDを返す。
// ユーザーの有効セッションが上限に達している場合は、last_accessedが古いものから
// 削除して新規分の枠を空けてから保存する。
func (s *Store) Create(ctx context.Context, userID, provider, userAgent, ipAddress string) (string, error) {
	now := s.now()

	evicted, err := s.enforceLimit(ctx, userID, now)
	if err != nil {
		return "", err
	}

	id, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:           id,
		UserID:       userID,
		Provider:     provider,
		UserAgent:    userAgent,
		IPAddress:    ipAddress,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(s.config.MaxAge),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionCreated()
		if evicted > 0 {
			s.metrics.RecordSessionsEvicted(evicted)
		}
	}

	return id, nil
}

// enforceLimit は新規発行後の有効セッション数がMaxSessionsを超えないよう古いセッションを削除する。
func (s *Store) enforceLimit(ctx context.Context, userID string, now time.Time) (int, error) {
	active, err := s.repo.ListActiveByUserID(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list user sessions: %w", err)
	}

	excess := len(active) - (s.config.MaxSessions - 1)
	if excess <= 0 {
		return 0, nil
	}

	// activeはlast_accessedの昇順
	for _, old := range active[:excess] {
		if err := s.repo.DeleteByID(ctx, old.ID); err != nil {
			return 0, fmt.Errorf("failed to evict session: %w", err)
		}
		s.logger.Info("session evicted",
			slog.String("user_id", userID),
			slog.String("session_id", truncateID(old.ID)),
			slog.Time("last_accessed", old.LastAccessed),
		)
	}
	return excess, nil
}

// Get は有効なセッションを返す。存在しない、または期限切れの場合はnilを返す。
func (s *Store) Get(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, nil
	}
	session, err := s.repo.FindActiveByID(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// Touch はlast_accessedを現在時刻に更新する。
// 失敗してもリクエスト処理は継続するため、エラーはログに記録するのみ。
func (s *Store) Touch(ctx context.Context, id string) {
	if err := s.repo.UpdateLastAccessed(ctx, id, s.now()); err != nil {
		s.logger.Warn("failed to update session last_accessed",
			slog.String("session_id", truncateID(id)),
			slog.String("error", err.Error()),
		)
	}
}

// Delete はセッションを削除する。
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser はユーザーの全セッションを削除する。
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// CleanupExpired は expires_at <= now のセッションを一括削除し、削除件数を返す。
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired sessions: %w", err)
	}
	if s.metrics != nil && n > 0 {
		s.metrics.RecordSessionsExpired(n)
	}
	return n, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// truncateID はログ出力用にセッションIDの先頭のみを返す。
func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
