package event

import (
	"errors"
	"time"

	"github.com/hitoshi/gardenvisit/internal/validation"
)

// EventInput はイベント作成・更新の入力。
type EventInput struct {
	Title        string     `json:"title" validate:"notblank,max=200"`
	Description  string     `json:"description" validate:"max=5000"`
	Location     string     `json:"location" validate:"max=255"`
	Latitude     *float64   `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64   `json:"longitude" validate:"omitempty,longitude"`
	StartsAt     time.Time  `json:"starts_at" validate:"required"`
	EndsAt       *time.Time `json:"ends_at"`
	MaxAttendees int        `json:"max_attendees" validate:"gte=0,lte=1000"`
}

// RSVPInput は出欠回答の入力。
type RSVPInput struct {
	Response string `json:"response" validate:"oneof=yes no"`
	PlusOne  bool   `json:"plus_one"`
	Note     string `json:"note" validate:"max=500"`
}

// PotluckInput は持ち寄り品目の入力。
type PotluckInput struct {
	Name     string `json:"name" validate:"notblank,max=100"`
	Category string `json:"category" validate:"oneof=main side dessert drink other"`
	Quantity int    `json:"quantity" validate:"gte=1,lte=50"`
}

// ValidateEvent はイベント入力を検証する。違反があれば*validation.Errorを返す。
// タグで表せない座標の組と終了日時の前後関係もここで検証する。
func ValidateEvent(v *validation.Validator, in *EventInput) error {
	err := v.Struct(in)

	var extra []validation.FieldError
	if (in.Latitude == nil) != (in.Longitude == nil) {
		extra = append(extra, validation.FieldError{
			Field:   "longitude",
			Message: "latitudeとlongitudeは両方指定してください",
		})
	}
	if in.EndsAt != nil && !in.StartsAt.IsZero() && !in.EndsAt.After(in.StartsAt) {
		extra = append(extra, validation.FieldError{
			Field:   "ends_at",
			Message: "ends_atはstarts_atより後にしてください",
		})
	}
	if len(extra) == 0 {
		return err
	}

	var verr *validation.Error
	if err == nil {
		verr = &validation.Error{}
	} else if !errors.As(err, &verr) {
		return err
	}
	for _, fe := range extra {
		verr.Add(fe.Field, fe.Message)
	}
	return verr
}
