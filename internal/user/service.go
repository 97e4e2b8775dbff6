// Package user はホスト申請と管理者による審査のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gardenvisit/internal/cache"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/repository"
	"github.com/hitoshi/gardenvisit/internal/security"
)

// Service はホスト状態の遷移を扱うサービス層。
// 状態を変更したユーザーはユーザーキャッシュから無効化する。
type Service struct {
	userRepo  repository.UserRepository
	userCache *cache.Cache
	sanitizer security.InputSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。userCacheはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	userCache *cache.Cache,
	sanitizer security.InputSanitizer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:  userRepo,
		userCache: userCache,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyForHost はホスト申請を行い、状態をpendingにする。
// 未申請または却下済みのユーザーのみ申請できる。
func (s *Service) ApplyForHost(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch u.HostStatus {
	case model.HostStatusNone, model.HostStatusRejected:
	default:
		return nil, model.NewInvalidHostStatusError(u.HostStatus)
	}

	if err := s.userRepo.UpdateHostStatus(ctx, userID, model.HostStatusPending, u.AdminNotes, nil); err != nil {
		return nil, fmt.Errorf("failed to apply for host: %w", err)
	}
	s.invalidate(ctx, userID)

	s.logger.Info("host application submitted", slog.String("user_id", userID))

	u.HostStatus = model.HostStatusPending
	return u, nil
}

// Approve は審査待ちの申請を承認する。confirmed_atを現在時刻にする。
func (s *Service) Approve(ctx context.Context, userID, notes string) (*model.User, error) {
	now := s.now()
	return s.review(ctx, userID, model.HostStatusApproved, notes, &now)
}

// Reject は審査待ちの申請を却下する。
func (s *Service) Reject(ctx context.Context, userID, notes string) (*model.User, error) {
	return s.review(ctx, userID, model.HostStatusRejected, notes, nil)
}

func (s *Service) review(ctx context.Context, userID string, to model.HostStatus, notes string, confirmedAt *time.Time) (*model.User, error) {
	u, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.HostStatus != model.HostStatusPending {
		return nil, model.NewInvalidHostStatusError(u.HostStatus)
	}

	if s.sanitizer != nil {
		notes = s.sanitizer.SanitizeInput(notes)
	}

	if err := s.userRepo.UpdateHostStatus(ctx, userID, to, notes, confirmedAt); err != nil {
		return nil, fmt.Errorf("failed to update host status: %w", err)
	}
	s.invalidate(ctx, userID)

	s.logger.Info("host application reviewed",
		slog.String("user_id", userID),
		slog.String("status", string(to)),
	)

	u.HostStatus = to
	u.AdminNotes = notes
	if confirmedAt != nil {
		u.ConfirmedAt = confirmedAt
	}
	return u, nil
}

// ListPending は審査待ちのユーザーを登録の古い順に返す。
func (s *Service) ListPending(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.ListByHostStatus(ctx, model.HostStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending hosts: %w", err)
	}
	return users, nil
}

func (s *Service) find(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.userCache != nil {
		s.userCache.Delete(ctx, userID)
	}
}
