// Package permission はユーザーのホスト状態とセッションから粗い権限を判定する。
package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/gardenvisit/internal/model"
)

// Permission はルート単位で要求される権限。
type Permission string

const (
	Admin        Permission = "admin"
	Host         Permission = "host"
	ApprovedHost Permission = "approved_host"
	PendingHost  Permission = "pending_host"
	User         Permission = "user"
)

// All は定義済みの全権限を返す。
func All() []Permission {
	return []Permission{Admin, Host, ApprovedHost, PendingHost, User}
}

// EventAction はイベント単位で要求される操作。
type EventAction string

const (
	ActionView            EventAction = "view"
	ActionEdit            EventAction = "edit"
	ActionDelete          EventAction = "delete"
	ActionManageAttendees EventAction = "manage_attendees"
)

// ErrEventNotFound はイベント単位の判定対象が存在しない場合のエラー。
var ErrEventNotFound = errors.New("event not found")

// EventFinder はイベント単位の判定に必要なイベント取得を行う。
type EventFinder interface {
	FindByID(ctx context.Context, id string) (*model.Event, error)
}

// Evaluator は権限判定を行う。状態は管理者メールの許可リストのみ。
type Evaluator struct {
	adminEmails map[string]struct{}
	events      EventFinder
}

// NewEvaluator はEvaluatorを生成する。adminEmailsは大文字小文字を区別しない。
func NewEvaluator(adminEmails []string, events EventFinder) *Evaluator {
	set := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return &Evaluator{adminEmails: set, events: events}
}

// Has はユーザーが権限pを持つかを返す。未認証(nil)は常にfalse。
func (e *Evaluator) Has(u *model.AuthenticatedUser, p Permission) bool {
	if u == nil {
		return false
	}

	status := u.User.HostStatus
	switch p {
	case Admin:
		return e.isAdmin(u)
	case Host:
		return status == model.HostStatusApproved ||
			status == model.HostStatusPending ||
			status == model.HostStatusAdmin
	case ApprovedHost:
		return status == model.HostStatusApproved || e.isAdmin(u)
	case PendingHost:
		// 審査キュー判定のため管理者からは継承しない
		return status == model.HostStatusPending
	case User:
		return true
	default:
		return false
	}
}

// IsAdmin はHas(u, Admin)の短縮形。
func (e *Evaluator) IsAdmin(u *model.AuthenticatedUser) bool {
	return e.Has(u, Admin)
}

func (e *Evaluator) isAdmin(u *model.AuthenticatedUser) bool {
	if u.User.HostStatus == model.HostStatusAdmin {
		return true
	}
	email := strings.ToLower(u.User.Email)
	if _, ok := e.adminEmails[email]; ok {
		return true
	}
	return strings.Contains(email, "admin@")
}

// CanAccessEvent はイベント単位の操作可否を判定する。
// viewは認証済みであれば許可し、それ以外はイベントのホストか管理者のみ許可する。
// イベントが存在しない場合はErrEventNotFoundを返す。
func (e *Evaluator) CanAccessEvent(ctx context.Context, u *model.AuthenticatedUser, eventID string, action EventAction) (bool, error) {
	if u == nil {
		return false, nil
	}

	event, err := e.events.FindByID(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to load event: %w", err)
	}
	if event == nil {
		return false, ErrEventNotFound
	}

	return e.CanAccessLoadedEvent(u, event, action), nil
}

// CanAccessLoadedEvent は取得済みのイベントに対して判定する。
func (e *Evaluator) CanAccessLoadedEvent(u *model.AuthenticatedUser, event *model.Event, action EventAction) bool {
	if u == nil || event == nil {
		return false
	}

	switch action {
	case ActionView:
		return true
	case ActionEdit, ActionDelete, ActionManageAttendees:
		return event.HostID == u.ID() || e.isAdmin(u)
	default:
		return false
	}
}
