package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/gardenvisit/internal/metrics"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/permission"
	"github.com/hitoshi/gardenvisit/internal/security"
)

// PermissionChecker は権限判定のインターフェース。permission.Evaluatorが実装する。
type PermissionChecker interface {
	Has(u *model.AuthenticatedUser, p permission.Permission) bool
	CanAccessEvent(ctx context.Context, u *model.AuthenticatedUser, eventID string, action permission.EventAction) (bool, error)
}

// LoginPath は未認証のページリクエストのリダイレクト先。
const LoginPath = "/auth/login"

// Guard はルート単位の権限チェックミドルウェアを生成する。
type Guard struct {
	checker PermissionChecker
	metrics metrics.MetricsCollector
	audit   security.AuditRecorder
}

// NewGuard はGuardを生成する。collectorとauditはnilでもよい。
func NewGuard(checker PermissionChecker, collector metrics.MetricsCollector, audit security.AuditRecorder) *Guard {
	return &Guard{checker: checker, metrics: collector, audit: audit}
}

// Require は指定権限を要求するミドルウェアを返す。
// /api/ 配下はJSONの401/403、それ以外はログイン画面またはトップへリダイレクトする。
func (g *Guard) Require(p permission.Permission) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := UserFromContext(r.Context())
			if user == nil {
				g.denyUnauthenticated(w, r)
				return
			}
			if !g.checker.Has(user, p) {
				g.denyForbidden(w, r, user, string(p))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireEvent はイベント単位の操作権限を要求するミドルウェアを返す。
// eventIDはリクエストから取り出す関数で渡す（ルーターのURLパラメーターなど）。
func (g *Guard) RequireEvent(action permission.EventAction, eventID func(*http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := UserFromContext(r.Context())
			if user == nil {
				g.denyUnauthenticated(w, r)
				return
			}

			id := eventID(r)
			ok, err := g.checker.CanAccessEvent(r.Context(), user, id, action)
			if errors.Is(err, permission.ErrEventNotFound) {
				WriteErrorResponse(w, http.StatusNotFound, model.NewEventNotFoundError(id))
				return
			}
			if err != nil {
				slog.Error("failed to check event permission",
					slog.String("event_id", id),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if !ok {
				g.denyForbidden(w, r, user, "event:"+string(action))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if g.metrics != nil {
		g.metrics.RecordAuthFailure("authentication_required")
	}
	if g.audit != nil {
		g.audit.Record(model.SecurityEvent{
			Type:      model.SecurityEventAuthFailure,
			IPAddress: ClientIdentifier(r),
			Path:      r.URL.Path,
			Detail:    "authentication required",
		})
	}

	if IsAPIRequest(r) {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	target := LoginPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

func (g *Guard) denyForbidden(w http.ResponseWriter, r *http.Request, user *model.AuthenticatedUser, required string) {
	slog.Warn("permission denied",
		slog.String("user_id", user.ID()),
		slog.String("permission", required),
		slog.String("path", r.URL.Path),
	)
	if g.metrics != nil {
		g.metrics.RecordPermissionDenied(required)
	}
	if g.audit != nil {
		g.audit.Record(model.SecurityEvent{
			Type:      model.SecurityEventPermissionDenied,
			UserID:    user.ID(),
			IPAddress: ClientIdentifier(r),
			Path:      r.URL.Path,
			Detail:    required,
		})
	}

	if IsAPIRequest(r) {
		WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// IsAPIRequest はJSONでエラーを返すべきAPIリクエストかどうかを判定する。
func IsAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}
