// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/gardenvisit/internal/metrics"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/security"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("authenticated_user")

// UserResolver はセッションIDから認証済みユーザーを組み立てる。
// セッションが無効な場合は (nil, nil) を返す。
type UserResolver interface {
	Resolve(ctx context.Context, sessionID string) (*model.AuthenticatedUser, error)
}

// SessionCookieConfig はセッションCookieの属性。
type SessionCookieConfig struct {
	Secure bool
	Domain string
	MaxAge time.Duration
}

// SetSessionCookie はセッションCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, cfg SessionCookieConfig, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, cfg SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// NewAuthMiddleware はCookieからセッションを読み取り、認証済みユーザーを
// リクエストコンテキストに注入するミドルウェアを返す。
// セッションがない、または無効な場合は匿名のまま次へ渡す。拒否は権限ミドルウェアが行う。
func NewAuthMiddleware(resolver UserResolver, collector metrics.MetricsCollector, audit security.AuditRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.Resolve(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if user == nil {
				if collector != nil {
					collector.RecordAuthFailure("invalid_session")
				}
				if audit != nil {
					audit.Record(model.SecurityEvent{
						Type:      model.SecurityEventAuthFailure,
						IPAddress: ClientIdentifier(r),
						Path:      r.URL.Path,
						Detail:    "invalid or expired session",
					})
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.AuthenticatedUser, bool) {
	user, ok := ctx.Value(userContextKey).(*model.AuthenticatedUser)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, ok := UserFromContext(ctx)
	if !ok || user.ID() == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return user.ID(), nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.AuthenticatedUser) context.Context {
	if slot, ok := ctx.Value(userIDSlotKey).(*userIDSlot); ok && user != nil {
		slot.id = user.ID()
	}
	return context.WithValue(ctx, userContextKey, user)
}

func contextWithUserIDSlot(ctx context.Context, slot *userIDSlot) context.Context {
	return context.WithValue(ctx, userIDSlotKey, slot)
}
