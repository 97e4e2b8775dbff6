// Package model はドメインモデルを定義する。
package model

import "time"

// HostStatus はユーザーのホスト申請状態を表す。
// 未申請のユーザーは空文字列（DB上はNULL）。
type HostStatus string

const (
	// HostStatusNone はホスト申請をしていない状態。
	HostStatusNone HostStatus = ""
	// HostStatusPending は管理者の審査待ち状態。
	HostStatusPending HostStatus = "pending"
	// HostStatusApproved はイベント作成が許可された状態。
	HostStatusApproved HostStatus = "approved"
	// HostStatusRejected は申請が却下された状態。
	HostStatusRejected HostStatus = "rejected"
	// HostStatusAdmin は管理者として登録された状態。
	HostStatusAdmin HostStatus = "admin"
)

// IsValid は定義済みのHostStatusかどうかを判定する。
func (s HostStatus) IsValid() bool {
	switch s {
	case HostStatusNone, HostStatusPending, HostStatusApproved, HostStatusRejected, HostStatusAdmin:
		return true
	default:
		return false
	}
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID          string
	Email       string
	Name        string
	HostStatus  HostStatus
	AdminNotes  string
	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID           string
	UserID       string
	Provider     string
	UserAgent    string
	IPAddress    string
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    time.Time
}

// IsExpired はセッションが指定時刻の時点で期限切れかどうかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// AuthenticatedUser はリクエスト単位で解決される認証済みユーザー。
// DBのユーザー行と、そのリクエストを認証したセッションの組。
type AuthenticatedUser struct {
	User    User
	Session Session
}

// ID は認証済みユーザーのユーザーIDを返す。
func (u *AuthenticatedUser) ID() string {
	return u.User.ID
}
