package event

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/permission"
)

// AddPotluckItem はユーザーが持ち寄る品目を登録する。
func (s *Service) AddPotluckItem(ctx context.Context, eventID, userID string, in *PotluckInput) (*model.PotluckItem, error) {
	if err := toAPIError(s.validator.Struct(in)); err != nil {
		return nil, err
	}
	if _, err := s.find(ctx, eventID); err != nil {
		return nil, err
	}

	item := &model.PotluckItem{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    userID,
		Name:      s.sanitizer.SanitizeInput(in.Name),
		Category:  in.Category,
		Quantity:  in.Quantity,
		CreatedAt: s.now(),
	}
	if err := s.potluck.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create potluck item: %w", err)
	}
	s.invalidate(ctx, eventID)
	return item, nil
}

// RemovePotluckItem は品目を削除する。
// 登録したユーザー本人か、イベントの参加者を管理できるユーザーのみ削除できる。
func (s *Service) RemovePotluckItem(ctx context.Context, eventID, itemID string, u *model.AuthenticatedUser) error {
	if u == nil {
		return model.NewUnauthorizedError()
	}
	ev, err := s.find(ctx, eventID)
	if err != nil {
		return err
	}

	item, err := s.potluck.FindByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to find potluck item: %w", err)
	}
	if item == nil || item.EventID != eventID {
		return model.NewPotluckItemNotFoundError(itemID)
	}

	if item.UserID != u.ID() && !s.authz.CanAccessLoadedEvent(u, ev, permission.ActionManageAttendees) {
		return model.NewForbiddenError()
	}

	if err := s.potluck.Delete(ctx, itemID); err != nil {
		return fmt.Errorf("failed to delete potluck item: %w", err)
	}
	s.invalidate(ctx, eventID)
	return nil
}
