package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gardenvisit/internal/middleware"
	"github.com/hitoshi/gardenvisit/internal/model"
)

// HostServiceInterface はホスト申請ハンドラーが必要とするサービスインターフェース。
type HostServiceInterface interface {
	ApplyForHost(ctx context.Context, userID string) (*model.User, error)
	Approve(ctx context.Context, userID, notes string) (*model.User, error)
	Reject(ctx context.Context, userID, notes string) (*model.User, error)
	ListPending(ctx context.Context) ([]*model.User, error)
}

// HostHandler はホスト申請と審査のHTTPハンドラー。
type HostHandler struct {
	service HostServiceInterface
}

// NewHostHandler はHostHandlerを生成する。
func NewHostHandler(service HostServiceInterface) *HostHandler {
	return &HostHandler{service: service}
}

type hostStatusResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	HostStatus  string     `json:"host_status"`
	AdminNotes  string     `json:"admin_notes,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

func toHostStatusResponse(u *model.User) hostStatusResponse {
	return hostStatusResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		HostStatus:  string(u.HostStatus),
		AdminNotes:  u.AdminNotes,
		ConfirmedAt: u.ConfirmedAt,
	}
}

// Apply はログインユーザーのホスト申請を受け付ける。
// POST /api/host/apply
func (h *HostHandler) Apply(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	updated, err := h.service.ApplyForHost(r.Context(), u.ID())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toHostStatusResponse(updated))
}

// ListPending は審査待ちの申請者一覧を返す。
// GET /api/admin/hosts/pending
func (h *HostHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListPending(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]hostStatusResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toHostStatusResponse(u))
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Approve は申請を承認する。
// POST /api/admin/hosts/{id}/approve
func (h *HostHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Approve)
}

// Reject は申請を却下する。
// POST /api/admin/hosts/{id}/reject
func (h *HostHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Reject)
}

func (h *HostHandler) review(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, userID, notes string) (*model.User, error)) {
	var req reviewRequest
	// ボディは省略可能
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	updated, err := decide(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toHostStatusResponse(updated))
}
