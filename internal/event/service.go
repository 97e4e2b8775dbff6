// Package event はイベント、出欠回答、持ち寄り品目のドメインロジックを提供する。
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/gardenvisit/internal/cache"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/permission"
	"github.com/hitoshi/gardenvisit/internal/repository"
	"github.com/hitoshi/gardenvisit/internal/security"
	"github.com/hitoshi/gardenvisit/internal/validation"
)

const (
	upcomingCacheKey = "upcoming"
	upcomingLimit    = 100
	listCacheTTL     = 2 * time.Minute
	detailCacheTTL   = 5 * time.Minute
)

// EventAuthorizer は取得済みイベントに対するイベント単位の判定を行う。
type EventAuthorizer interface {
	CanAccessLoadedEvent(u *model.AuthenticatedUser, event *model.Event, action permission.EventAction) bool
}

// Detail はイベント詳細画面に必要な情報の組。
type Detail struct {
	Event     model.Event          `json:"event"`
	Headcount int                  `json:"headcount"`
	Potluck   []*model.PotluckItem `json:"potluck"`
}

// Service はイベント関連のサービス層。
// 書き込み操作の後は該当するeventsキャッシュを無効化する。
type Service struct {
	events    repository.EventRepository
	rsvps     repository.RSVPRepository
	potluck   repository.PotluckRepository
	authz     EventAuthorizer
	validator *validation.Validator
	sanitizer security.InputSanitizer
	cache     *cache.Cache
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。eventCacheはnilでもよい。
func NewService(
	events repository.EventRepository,
	rsvps repository.RSVPRepository,
	potluck repository.PotluckRepository,
	authz EventAuthorizer,
	validator *validation.Validator,
	sanitizer security.InputSanitizer,
	eventCache *cache.Cache,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		events:    events,
		rsvps:     rsvps,
		potluck:   potluck,
		authz:     authz,
		validator: validator,
		sanitizer: sanitizer,
		cache:     eventCache,
		logger:    logger,
		now:       time.Now,
	}
}

func detailKey(eventID string) string {
	return "detail:" + eventID
}

// ListUpcoming は開始前のイベントを開始日時の昇順で返す。
func (s *Service) ListUpcoming(ctx context.Context) ([]*model.Event, error) {
	load := func(ctx context.Context) ([]*model.Event, error) {
		events, err := s.events.ListUpcoming(ctx, s.now(), upcomingLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list upcoming events: %w", err)
		}
		if events == nil {
			events = []*model.Event{}
		}
		return events, nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return cache.Fetch(ctx, s.cache, upcomingCacheKey, listCacheTTL, load)
}

// Get はイベント詳細を返す。存在しない場合はEVENT_NOT_FOUNDのAPIErrorを返す。
func (s *Service) Get(ctx context.Context, eventID string) (*Detail, error) {
	load := func(ctx context.Context) (*Detail, error) {
		return s.loadDetail(ctx, eventID)
	}
	if s.cache == nil {
		return load(ctx)
	}
	return cache.Fetch(ctx, s.cache, detailKey(eventID), detailCacheTTL, load)
}

func (s *Service) loadDetail(ctx context.Context, eventID string) (*Detail, error) {
	ev, err := s.find(ctx, eventID)
	if err != nil {
		return nil, err
	}
	headcount, err := s.rsvps.CountHeadcount(ctx, eventID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to count headcount: %w", err)
	}
	items, err := s.potluck.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list potluck items: %w", err)
	}
	if items == nil {
		items = []*model.PotluckItem{}
	}
	return &Detail{Event: *ev, Headcount: headcount, Potluck: items}, nil
}

// Find はキャッシュを経由せずにイベントを取得する。
func (s *Service) Find(ctx context.Context, eventID string) (*model.Event, error) {
	return s.find(ctx, eventID)
}

func (s *Service) find(ctx context.Context, eventID string) (*model.Event, error) {
	ev, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	if ev == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}
	return ev, nil
}

// Validate はイベント入力を検証し、違反を*validation.Errorで返す。
func (s *Service) Validate(in *EventInput) error {
	return ValidateEvent(s.validator, in)
}

// Create はイベントを作成する。hostIDがイベントのホストになる。
func (s *Service) Create(ctx context.Context, hostID string, in *EventInput) (*model.Event, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	now := s.now()
	ev := &model.Event{
		ID:        uuid.New().String(),
		HostID:    hostID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.apply(ev, in)

	if err := s.events.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	s.invalidate(ctx, "")

	s.logger.Info("event created",
		slog.String("event_id", ev.ID),
		slog.String("host_id", hostID),
	)
	return ev, nil
}

// Update はイベントを更新する。ホストは変更しない。
func (s *Service) Update(ctx context.Context, eventID string, in *EventInput) (*model.Event, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	ev, err := s.find(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.apply(ev, in)
	ev.UpdatedAt = s.now()

	if err := s.events.Update(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	s.invalidate(ctx, eventID)
	return ev, nil
}

// Delete はイベントを削除する。出欠回答と持ち寄り品目も削除される。
func (s *Service) Delete(ctx context.Context, eventID string) error {
	if _, err := s.find(ctx, eventID); err != nil {
		return err
	}
	if err := s.events.Delete(ctx, eventID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	s.invalidate(ctx, eventID)

	s.logger.Info("event deleted", slog.String("event_id", eventID))
	return nil
}

func (s *Service) validate(in *EventInput) error {
	return toAPIError(s.Validate(in))
}

// toAPIError は検証エラーをVALIDATION_FAILEDのAPIErrorに変換する。
func toAPIError(err error) error {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return model.NewValidationError(verr.Error())
	}
	return err
}

// apply は入力を無害化してイベントに反映する。説明文のみ許可リストのHTMLを残す。
func (s *Service) apply(ev *model.Event, in *EventInput) {
	ev.Title = s.sanitizer.SanitizeInput(in.Title)
	ev.Description = s.sanitizer.SanitizeRichText(in.Description)
	ev.Location = s.sanitizer.SanitizeInput(in.Location)
	ev.Latitude = in.Latitude
	ev.Longitude = in.Longitude
	ev.StartsAt = in.StartsAt
	ev.EndsAt = in.EndsAt
	ev.MaxAttendees = in.MaxAttendees
}

// invalidate は一覧と、eventIDが空でなければそのイベントの詳細を無効化する。
func (s *Service) invalidate(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, upcomingCacheKey)
	if eventID != "" {
		s.cache.Delete(ctx, detailKey(eventID))
	}
}
