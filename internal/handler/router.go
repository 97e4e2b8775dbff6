package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gardenvisit/internal/metrics"
	"github.com/hitoshi/gardenvisit/internal/middleware"
	"github.com/hitoshi/gardenvisit/internal/permission"
	"github.com/hitoshi/gardenvisit/internal/security"
	"github.com/prometheus/client_golang/prometheus"
)

// healthTimeout は/healthでのDB疎通確認のタイムアウト。
const healthTimeout = 2 * time.Second

// HealthChecker はヘルスチェックでの依存先の疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Production        bool
	CORSAllowedOrigin string
	UserResolver      middleware.UserResolver
	Permissions       middleware.PermissionChecker
	GeneralLimiter    *middleware.RateLimiter
	ValidationLimiter *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	Audit             *security.AuditLog
	Metrics           metrics.MetricsCollector
	MetricsGatherer   prometheus.Gatherer
	HealthChecker     HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// イベント
	EventService EventServiceInterface
	Forecasts    ForecastProvider

	// ホスト申請
	HostService HostServiceInterface

	// 管理
	CacheStats CacheStatsSource
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアの実行順序:
//
//	Recovery → Logging → HTTPS → SecurityHeaders → CORS → Auth → Permission → RateLimit → handler
//
// PermissionとRateLimitはルート単位で付与する。/api配下の状態変更リクエストはCSRF検証を通す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewHTTPSRedirectMiddleware(deps.Production, "/health", "/metrics"))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityProfileFor(deps.Production)))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewAuthMiddleware(deps.UserResolver, deps.Metrics, auditRecorder(deps.Audit)))

	guard := middleware.NewGuard(deps.Permissions, deps.Metrics, auditRecorder(deps.Audit))
	limit := deps.GeneralLimiter.Middleware()

	authHandler := NewAuthHandler(deps.AuthService, deps.Permissions, deps.AuthConfig)
	eventHandler := NewEventHandler(deps.EventService, deps.Forecasts)
	hostHandler := NewHostHandler(deps.HostService)
	adminHandler := NewAdminHandler(deps.Audit, deps.CacheStats)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(limit)

		r.Get("/login", authHandler.LoginOptions)
		r.Get("/{provider}/login", authHandler.Login)
		r.Get("/{provider}/callback", authHandler.Callback)
		r.Post("/mock/login", authHandler.MockLogin)

		r.Post("/logout", authHandler.Logout)
		r.Post("/logout-all", authHandler.LogoutAll)
		r.Get("/me", authHandler.Me)
	})

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// イベント
		r.Route("/events", func(r chi.Router) {
			r.With(guard.Require(permission.User), limit).Get("/", eventHandler.ListEvents)
			r.With(guard.Require(permission.ApprovedHost), limit).Post("/", eventHandler.CreateEvent)

			r.Route("/{id}", func(r chi.Router) {
				view := r.With(guard.RequireEvent(permission.ActionView, EventIDParam), limit)
				view.Get("/", eventHandler.GetEvent)
				view.Put("/rsvp", eventHandler.PutRSVP)
				view.Delete("/rsvp", eventHandler.DeleteRSVP)
				view.Post("/potluck", eventHandler.AddPotluckItem)
				view.Delete("/potluck/{itemID}", eventHandler.RemovePotluckItem)
				view.Get("/weather", eventHandler.GetWeather)

				r.With(guard.RequireEvent(permission.ActionEdit, EventIDParam), limit).Put("/", eventHandler.UpdateEvent)
				r.With(guard.RequireEvent(permission.ActionDelete, EventIDParam), limit).Delete("/", eventHandler.DeleteEvent)
				r.With(guard.RequireEvent(permission.ActionManageAttendees, EventIDParam), limit).Get("/attendees", eventHandler.ListAttendees)
			})
		})

		// 入力検証（検証専用のレート制限）
		r.With(guard.Require(permission.User), deps.ValidationLimiter.Middleware()).
			Post("/validate/event", eventHandler.ValidateEvent)

		// ホスト申請
		r.With(guard.Require(permission.User), limit).Post("/host/apply", hostHandler.Apply)

		// 管理
		r.Route("/admin", func(r chi.Router) {
			r.Use(guard.Require(permission.Admin), limit)

			r.Get("/hosts/pending", hostHandler.ListPending)
			r.Post("/hosts/{id}/approve", hostHandler.Approve)
			r.Post("/hosts/{id}/reject", hostHandler.Reject)
			r.Get("/security-events", adminHandler.SecurityEvents)
			r.Get("/cache/stats", adminHandler.CacheStats)
		})
	})

	return r
}

// healthHandler はプロセスとDBの疎通を返す。checkerがnilならプロセスの生存のみ返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// auditRecorder はnilの*AuditLogをnilインターフェースとして渡す。
func auditRecorder(l *security.AuditLog) security.AuditRecorder {
	if l == nil {
		return nil
	}
	return l
}
