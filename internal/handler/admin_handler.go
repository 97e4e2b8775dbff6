package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/gardenvisit/internal/cache"
	"github.com/hitoshi/gardenvisit/internal/middleware"
	"github.com/hitoshi/gardenvisit/internal/model"
)

const (
	defaultSecurityEventLimit = 50
	maxSecurityEventLimit     = 500
)

// SecurityEventSource は直近のセキュリティイベントを返す。
type SecurityEventSource interface {
	Recent(limit int, eventType model.SecurityEventType) []model.SecurityEvent
}

// CacheStatsSource はキャッシュ名前空間ごとの統計を返す。
type CacheStatsSource interface {
	Stats(ctx context.Context) []cache.Stats
}

// AdminHandler は管理者向けの診断ハンドラー。
type AdminHandler struct {
	audit  SecurityEventSource
	caches CacheStatsSource
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(audit SecurityEventSource, caches CacheStatsSource) *AdminHandler {
	return &AdminHandler{audit: audit, caches: caches}
}

// SecurityEvents は直近のセキュリティイベントを新しい順に返す。
// GET /api/admin/security-events?type=auth_failure&limit=50
func (h *AdminHandler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultSecurityEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limitは正の整数で指定してください"))
			return
		}
		limit = min(n, maxSecurityEventLimit)
	}

	events := h.audit.Recent(limit, model.SecurityEventType(r.URL.Query().Get("type")))
	if events == nil {
		events = []model.SecurityEvent{}
	}
	middleware.WriteJSON(w, http.StatusOK, events)
}

// CacheStats はキャッシュ名前空間ごとの統計を返す。
// GET /api/admin/cache/stats
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.caches.Stats(r.Context()))
}
