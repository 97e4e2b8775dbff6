// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/gardenvisit/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はidentityを伴わないユーザーを作成する（モックログイン、管理者シード用）。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateHostStatus はホスト状態と審査メモを更新する。
	// confirmedAtがnilでない場合はconfirmed_atも更新する。
	UpdateHostStatus(ctx context.Context, id string, status model.HostStatus, adminNotes string, confirmedAt *time.Time) error

	// ListByHostStatus は指定ホスト状態のユーザーを作成日時の昇順で返す。
	ListByHostStatus(ctx context.Context, status model.HostStatus) ([]*model.User, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// 現在時刻は呼び出し側から渡し、期限判定の基準を呼び出し側に揃える。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindActiveByID は指定IDのセッションを取得する。expires_at <= now の場合はnilを返す。
	FindActiveByID(ctx context.Context, id string, now time.Time) (*model.Session, error)
	// ListActiveByUserID は指定ユーザーの有効なセッションをlast_accessedの昇順で返す。
	ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]*model.Session, error)
	// UpdateLastAccessed はセッションのlast_accessedを更新する。
	UpdateLastAccessed(ctx context.Context, id string, at time.Time) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は expires_at <= now のセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EventRepository はイベントデータの永続化インターフェース。
type EventRepository interface {
	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)
	// ListUpcoming は starts_at >= from のイベントを開始日時の昇順で返す。
	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*model.Event, error)
	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.Event) error
	// Update はイベント情報を更新する。
	Update(ctx context.Context, event *model.Event) error
	// Delete は指定IDのイベントを削除する。rsvps、potluck_itemsはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// RSVPRepository は出欠回答の永続化インターフェース。
type RSVPRepository interface {
	// FindByEventAndUser はイベントとユーザーで回答を取得する。見つからない場合はnilを返す。
	FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.RSVP, error)
	// Upsert は (event_id, user_id) で冪等に回答を保存する。
	// capacityが正の場合、定員の判定と保存を不可分に行い、超過時はErrCapacityExceededを返す。
	Upsert(ctx context.Context, rsvp *model.RSVP, capacity int) error
	// Delete はイベントとユーザーの回答を削除する。
	Delete(ctx context.Context, eventID, userID string) error
	// ListAttendees はイベントの回答一覧を回答者情報付きで返す。
	ListAttendees(ctx context.Context, eventID string) ([]model.Attendee, error)
	// CountHeadcount は参加（yes）の人数を同伴者込みで返す。excludeUserIDの回答は除外する。
	CountHeadcount(ctx context.Context, eventID, excludeUserID string) (int, error)
}

// PotluckRepository は持ち寄り品目の永続化インターフェース。
type PotluckRepository interface {
	// FindByID は指定IDの品目を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PotluckItem, error)
	// ListByEvent はイベントの品目一覧を作成順に返す。
	ListByEvent(ctx context.Context, eventID string) ([]*model.PotluckItem, error)
	// Create は品目を作成する。
	Create(ctx context.Context, item *model.PotluckItem) error
	// Delete は指定IDの品目を削除する。
	Delete(ctx context.Context, id string) error
}
