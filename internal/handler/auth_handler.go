// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gardenvisit/internal/auth"
	"github.com/hitoshi/gardenvisit/internal/middleware"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/permission"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthRedirectCookie = "oauth_redirect"
	oauthCookieMaxAge   = 10 * time.Minute
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Providers() []string
	GetLoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string, client auth.ClientInfo) (*auth.LoginResult, error)
	MockLogin(ctx context.Context, email, name string, client auth.ClientInfo) (*auth.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, userID string) error
}

// PermissionLister はユーザーが持つ権限を判定する。
type PermissionLister interface {
	Has(u *model.AuthenticatedUser, p permission.Permission) bool
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL string
	Cookie  middleware.SessionCookieConfig
	// MockLoginEnabled は開発環境でのみtrueにする。
	MockLoginEnabled bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service     AuthServiceInterface
	permissions PermissionLister
	config      AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, permissions PermissionLister, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:     service,
		permissions: permissions,
		config:      config,
	}
}

type providerResponse struct {
	Name     string `json:"name"`
	LoginURL string `json:"login_url"`
}

type loginOptionsResponse struct {
	Providers []providerResponse `json:"providers"`
	MockLogin bool               `json:"mock_login"`
	Redirect  string             `json:"redirect,omitempty"`
}

// userResponse はログインユーザー情報のAPIレスポンス。
type userResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	HostStatus  string   `json:"host_status,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type mockLoginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LoginOptions は利用可能なログイン方法を返す。
// GET /auth/login?redirect=/path
func (h *AuthHandler) LoginOptions(w http.ResponseWriter, r *http.Request) {
	redirect := safeRedirect(r.URL.Query().Get("redirect"))
	resp := loginOptionsResponse{
		Providers: []providerResponse{},
		MockLogin: h.config.MockLoginEnabled,
		Redirect:  redirect,
	}
	for _, name := range h.service.Providers() {
		loginURL := "/auth/" + name + "/login"
		if redirect != "" {
			loginURL += "?redirect=" + url.QueryEscape(redirect)
		}
		resp.Providers = append(resp.Providers, providerResponse{Name: name, LoginURL: loginURL})
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Login はOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(provider, state)
	if errors.Is(err, auth.ErrUnknownProvider) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownProviderError(provider))
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setShortCookie(w, oauthStateCookie, state)
	if redirect := safeRedirect(r.URL.Query().Get("redirect")); redirect != "" {
		h.setShortCookie(w, oauthRedirectCookie, redirect)
	}

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("provider", provider))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewCSRFError())
		return
	}
	h.clearCookie(w, oauthStateCookie)

	redirect := h.config.BaseURL
	if c, err := r.Cookie(oauthRedirectCookie); err == nil {
		if safe := safeRedirect(c.Value); safe != "" {
			redirect = strings.TrimRight(h.config.BaseURL, "/") + safe
		}
		h.clearCookie(w, oauthRedirectCookie)
	}

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("認可コードがありません"))
		return
	}

	// 3. 認証処理
	result, err := h.service.HandleCallback(r.Context(), provider, code, clientInfo(r))
	if errors.Is(err, auth.ErrUnknownProvider) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownProviderError(provider))
		return
	}
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// 4. セッションCookieを設定してフロントエンドにリダイレクト
	middleware.SetSessionCookie(w, h.config.Cookie, result.SessionID)
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// MockLogin はOAuthを経由せずにログインする。開発環境専用。
// POST /auth/mock/login
func (h *AuthHandler) MockLogin(w http.ResponseWriter, r *http.Request) {
	if !h.config.MockLoginEnabled {
		http.NotFound(w, r)
		return
	}

	var req mockLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError("emailは必須です"))
		return
	}

	result, err := h.service.MockLogin(r.Context(), req.Email, req.Name, clientInfo(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.SetSessionCookie(w, h.config.Cookie, result.SessionID)
	middleware.WriteJSON(w, http.StatusOK, toUserResponse(result.User, nil))
}

// Logout は現在のセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.config.Cookie)
	http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
}

// LogoutAll はログインユーザーの全セッションを破棄する。
// POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.service.LogoutAll(r.Context(), u.ID()); err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.ClearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報と権限を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var perms []string
	for _, p := range permission.All() {
		if h.permissions != nil && h.permissions.Has(u, p) {
			perms = append(perms, string(p))
		}
	}
	middleware.WriteJSON(w, http.StatusOK, toUserResponse(&u.User, perms))
}

func toUserResponse(u *model.User, perms []string) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		HostStatus:  string(u.HostStatus),
		Permissions: perms,
	}
}

func (h *AuthHandler) setShortCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(oauthCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.RemoteIP(r),
	}
}

// safeRedirect はオープンリダイレクトを防ぐため、同一オリジンの絶対パスのみ返す。
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return ""
	}
	return target
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
