package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gardenvisit/internal/event"
	"github.com/hitoshi/gardenvisit/internal/middleware"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/validation"
	"github.com/hitoshi/gardenvisit/internal/weather"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	ListUpcoming(ctx context.Context) ([]*model.Event, error)
	Get(ctx context.Context, eventID string) (*event.Detail, error)
	Find(ctx context.Context, eventID string) (*model.Event, error)
	Validate(in *event.EventInput) error
	Create(ctx context.Context, hostID string, in *event.EventInput) (*model.Event, error)
	Update(ctx context.Context, eventID string, in *event.EventInput) (*model.Event, error)
	Delete(ctx context.Context, eventID string) error

	RSVP(ctx context.Context, eventID, userID string, in *event.RSVPInput) (*model.RSVP, error)
	CancelRSVP(ctx context.Context, eventID, userID string) error
	MyRSVP(ctx context.Context, eventID, userID string) (*model.RSVP, error)
	Attendees(ctx context.Context, eventID string) ([]model.Attendee, error)

	AddPotluckItem(ctx context.Context, eventID, userID string, in *event.PotluckInput) (*model.PotluckItem, error)
	RemovePotluckItem(ctx context.Context, eventID, itemID string, u *model.AuthenticatedUser) error
}

// ForecastProvider はイベント当日の天気予報を返す。
type ForecastProvider interface {
	ForEvent(ctx context.Context, ev *model.Event) (*weather.Forecast, error)
}

// EventHandler はイベント関連のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
	weather ForecastProvider
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface, forecasts ForecastProvider) *EventHandler {
	return &EventHandler{
		service: service,
		weather: forecasts,
	}
}

// EventIDParam はURLパラメータからイベントIDを取り出す。権限ミドルウェアでも使う。
func EventIDParam(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// --- レスポンス型 ---

type eventResponse struct {
	ID           string     `json:"id"`
	HostID       string     `json:"host_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Location     string     `json:"location"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	MaxAttendees int        `json:"max_attendees"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type rsvpResponse struct {
	Response  string    `json:"response"`
	PlusOne   bool      `json:"plus_one"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type attendeeResponse struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Response string `json:"response"`
	PlusOne  bool   `json:"plus_one"`
	Note     string `json:"note,omitempty"`
}

type potluckResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

type eventDetailResponse struct {
	eventResponse
	Headcount int               `json:"headcount"`
	Potluck   []potluckResponse `json:"potluck"`
	MyRSVP    *rsvpResponse     `json:"my_rsvp"`
}

type validateResponse struct {
	Valid  bool                    `json:"valid"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func toEventResponse(ev *model.Event) eventResponse {
	return eventResponse{
		ID:           ev.ID,
		HostID:       ev.HostID,
		Title:        ev.Title,
		Description:  ev.Description,
		Location:     ev.Location,
		Latitude:     ev.Latitude,
		Longitude:    ev.Longitude,
		StartsAt:     ev.StartsAt,
		EndsAt:       ev.EndsAt,
		MaxAttendees: ev.MaxAttendees,
		CreatedAt:    ev.CreatedAt,
		UpdatedAt:    ev.UpdatedAt,
	}
}

func toRSVPResponse(r *model.RSVP) *rsvpResponse {
	if r == nil {
		return nil
	}
	return &rsvpResponse{
		Response:  string(r.Response),
		PlusOne:   r.PlusOne,
		Note:      r.Note,
		UpdatedAt: r.UpdatedAt,
	}
}

func toPotluckResponse(item *model.PotluckItem) potluckResponse {
	return potluckResponse{
		ID:       item.ID,
		UserID:   item.UserID,
		Name:     item.Name,
		Category: item.Category,
		Quantity: item.Quantity,
	}
}

// --- ハンドラー ---

// ListEvents は開催予定のイベント一覧を返す。
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListUpcoming(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toEventResponse(ev))
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// GetEvent はイベント詳細と自分の出欠回答を返す。
// GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	eventID := EventIDParam(r)

	detail, err := h.service.Get(r.Context(), eventID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	mine, err := h.service.MyRSVP(r.Context(), eventID, u.ID())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := eventDetailResponse{
		eventResponse: toEventResponse(&detail.Event),
		Headcount:     detail.Headcount,
		Potluck:       make([]potluckResponse, 0, len(detail.Potluck)),
		MyRSVP:        toRSVPResponse(mine),
	}
	for _, item := range detail.Potluck {
		resp.Potluck = append(resp.Potluck, toPotluckResponse(item))
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// CreateEvent はイベントを作成する。承認済みホストのみ。
// POST /api/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in event.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ev, err := h.service.Create(r.Context(), u.ID(), &in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toEventResponse(ev))
}

// UpdateEvent はイベントを更新する。
// PUT /api/events/{id}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var in event.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ev, err := h.service.Update(r.Context(), EventIDParam(r), &in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toEventResponse(ev))
}

// DeleteEvent はイベントを削除する。
// DELETE /api/events/{id}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), EventIDParam(r)); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateEvent は保存せずにイベント入力を検証する。
// POST /api/validate/event
func (h *EventHandler) ValidateEvent(w http.ResponseWriter, r *http.Request) {
	var in event.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}

	err := h.service.Validate(&in)
	if err == nil {
		middleware.WriteJSON(w, http.StatusOK, validateResponse{Valid: true})
		return
	}
	var verr *validation.Error
	if !errors.As(err, &verr) {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusUnprocessableEntity, validateResponse{Fields: verr.Fields})
}

// PutRSVP は出欠回答を登録または更新する。
// PUT /api/events/{id}/rsvp
func (h *EventHandler) PutRSVP(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in event.RSVPInput
	if !decodeJSON(w, r, &in) {
		return
	}

	rsvp, err := h.service.RSVP(r.Context(), EventIDParam(r), u.ID(), &in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toRSVPResponse(rsvp))
}

// DeleteRSVP は出欠回答を取り消す。
// DELETE /api/events/{id}/rsvp
func (h *EventHandler) DeleteRSVP(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelRSVP(r.Context(), EventIDParam(r), u.ID()); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAttendees は出欠回答者の一覧を返す。参加者を管理できるユーザーのみ。
// GET /api/events/{id}/attendees
func (h *EventHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	attendees, err := h.service.Attendees(r.Context(), EventIDParam(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]attendeeResponse, 0, len(attendees))
	for _, a := range attendees {
		resp = append(resp, attendeeResponse{
			UserID:   a.UserID,
			Name:     a.UserName,
			Email:    a.UserEmail,
			Response: string(a.Response),
			PlusOne:  a.PlusOne,
			Note:     a.Note,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// AddPotluckItem は持ち寄り品目を登録する。
// POST /api/events/{id}/potluck
func (h *EventHandler) AddPotluckItem(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in event.PotluckInput
	if !decodeJSON(w, r, &in) {
		return
	}

	item, err := h.service.AddPotluckItem(r.Context(), EventIDParam(r), u.ID(), &in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toPotluckResponse(item))
}

// RemovePotluckItem は持ち寄り品目を削除する。
// DELETE /api/events/{id}/potluck/{itemID}
func (h *EventHandler) RemovePotluckItem(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	err := h.service.RemovePotluckItem(r.Context(), EventIDParam(r), chi.URLParam(r, "itemID"), u)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWeather はイベント当日の天気予報を返す。
// GET /api/events/{id}/weather
func (h *EventHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	ev, err := h.service.Find(r.Context(), EventIDParam(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	forecast, err := h.weather.ForEvent(r.Context(), ev)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, forecast)
}
