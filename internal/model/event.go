// Package model はドメインモデルを定義する。
package model

import "time"

// Event はホストが公開する庭訪問イベントを表す。
type Event struct {
	ID           string
	HostID       string
	Title        string
	Description  string // サニタイズ済みHTML
	Location     string
	Latitude     *float64
	Longitude    *float64
	StartsAt     time.Time
	EndsAt       *time.Time
	MaxAttendees int // 0は無制限
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCoordinates は天気予報の取得に必要な座標を持つかどうかを返す。
func (e *Event) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// RSVPResponse は出欠の回答を表す。
type RSVPResponse string

const (
	// RSVPYes は参加を表す。
	RSVPYes RSVPResponse = "yes"
	// RSVPNo は不参加を表す。
	RSVPNo RSVPResponse = "no"
)

// RSVP はイベントに対するユーザーの出欠回答を表す。
// (event_id, user_id) の組で一意。
type RSVP struct {
	ID        string
	EventID   string
	UserID    string
	Response  RSVPResponse
	PlusOne   bool
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Headcount はこの回答が占める参加人数を返す。
func (r *RSVP) Headcount() int {
	if r.Response != RSVPYes {
		return 0
	}
	if r.PlusOne {
		return 2
	}
	return 1
}

// Attendee は出欠回答に回答者の表示名を結合したモデル。
type Attendee struct {
	RSVP
	UserName  string
	UserEmail string
}

// PotluckItem は参加者が持ち寄りを申し出た料理・飲み物を表す。
type PotluckItem struct {
	ID        string
	EventID   string
	UserID    string
	Name      string
	Category  string
	Quantity  int
	CreatedAt time.Time
}
