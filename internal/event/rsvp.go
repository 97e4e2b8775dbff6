package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/repository"
)

// RSVP はユーザーの出欠回答を保存する。同じユーザーの再回答は上書きする。
// 定員のあるイベントで参加人数が定員を超える場合はEVENT_FULLを返す。
func (s *Service) RSVP(ctx context.Context, eventID, userID string, in *RSVPInput) (*model.RSVP, error) {
	if err := toAPIError(s.validator.Struct(in)); err != nil {
		return nil, err
	}

	ev, err := s.find(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rsvp := &model.RSVP{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    userID,
		Response:  model.RSVPResponse(in.Response),
		PlusOne:   in.PlusOne && in.Response == string(model.RSVPYes),
		Note:      s.sanitizer.SanitizeInput(in.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := s.rsvps.FindByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find rsvp: %w", err)
	}
	if existing != nil {
		rsvp.ID = existing.ID
		rsvp.CreatedAt = existing.CreatedAt
	}

	// 定員の判定は保存と同じトランザクションで行う
	err = s.rsvps.Upsert(ctx, rsvp, ev.MaxAttendees)
	if errors.Is(err, repository.ErrCapacityExceeded) {
		return nil, model.NewEventFullError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save rsvp: %w", err)
	}
	s.invalidate(ctx, eventID)

	s.logger.Info("rsvp saved",
		slog.String("event_id", eventID),
		slog.String("user_id", userID),
		slog.String("response", in.Response),
	)
	return rsvp, nil
}

// CancelRSVP はユーザーの出欠回答を削除する。
func (s *Service) CancelRSVP(ctx context.Context, eventID, userID string) error {
	if _, err := s.find(ctx, eventID); err != nil {
		return err
	}
	if err := s.rsvps.Delete(ctx, eventID, userID); err != nil {
		return fmt.Errorf("failed to delete rsvp: %w", err)
	}
	s.invalidate(ctx, eventID)
	return nil
}

// MyRSVP はユーザー自身の回答を返す。未回答の場合はnilを返す。
func (s *Service) MyRSVP(ctx context.Context, eventID, userID string) (*model.RSVP, error) {
	rsvp, err := s.rsvps.FindByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find rsvp: %w", err)
	}
	return rsvp, nil
}

// Attendees はイベントの回答一覧を返す。
func (s *Service) Attendees(ctx context.Context, eventID string) ([]model.Attendee, error) {
	if _, err := s.find(ctx, eventID); err != nil {
		return nil, err
	}
	attendees, err := s.rsvps.ListAttendees(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}
	return attendees, nil
}
