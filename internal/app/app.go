package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/gardenvisit/internal/auth"
	"github.com/hitoshi/gardenvisit/internal/cache"
	"github.com/hitoshi/gardenvisit/internal/config"
	"github.com/hitoshi/gardenvisit/internal/database"
	"github.com/hitoshi/gardenvisit/internal/event"
	"github.com/hitoshi/gardenvisit/internal/handler"
	"github.com/hitoshi/gardenvisit/internal/logger"
	"github.com/hitoshi/gardenvisit/internal/metrics"
	"github.com/hitoshi/gardenvisit/internal/middleware"
	"github.com/hitoshi/gardenvisit/internal/permission"
	"github.com/hitoshi/gardenvisit/internal/repository"
	"github.com/hitoshi/gardenvisit/internal/security"
	"github.com/hitoshi/gardenvisit/internal/session"
	"github.com/hitoshi/gardenvisit/internal/user"
	"github.com/hitoshi/gardenvisit/internal/validation"
	"github.com/hitoshi/gardenvisit/internal/weather"
	"github.com/hitoshi/gardenvisit/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、環境変数からConfigを読み込んでJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envは開発用。存在しなければ何もしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevelForEnv(cfg.AppEnv)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// migrateの引数は設定読み込み前に検証する
	var migrateArgs MigrateArgs
	if cmd == CommandMigrate {
		var err error
		migrateArgs, err = ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, migrateArgs)
	case CommandCleanup:
		return runCleanup(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// components はserve・worker・cleanupで共有する依存関係の組。
type components struct {
	db        *sql.DB
	registry  *prometheus.Registry
	collector *metrics.Collector
	caches    *cache.Registry
	sessions  *session.Store
	audit     *security.AuditLog
	evaluator *permission.Evaluator
	events    *repository.PostgresEventRepo
	auth      *auth.Service
	eventSvc  *event.Service
	userSvc   *user.Service
	weather   *weather.Service

	closers []func() error
}

// Close は開いたリソースを逆順に閉じる。
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// buildComponents はDB接続を開き、全依存関係をワイヤリングする。
// 戻り値のcomponentsは呼び出し側でCloseすること。
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c.db = db
	c.closers = append(c.closers, db.Close)

	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. メトリクス
	c.registry = prometheus.NewRegistry()
	c.collector = metrics.NewCollector(c.registry)

	// 3. キャッシュ
	storage, closeStorage, err := cache.OpenStorage(cache.StorageConfig{
		Backend:     cache.Backend(cfg.CacheBackend),
		MemoryQuota: cfg.CacheQuota,
		BoltPath:    cfg.CacheBoltPath,
		RedisURL:    cfg.CacheRedisURL,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open cache storage: %w", err)
	}
	c.closers = append(c.closers, closeStorage)
	c.caches = cache.NewRegistry(storage, log, c.collector)

	weatherCache := c.caches.Namespace(cache.Options{Prefix: cache.PrefixWeather, MaxItems: cfg.CacheMaxItems, DefaultTTL: weather.CacheTTL})
	eventCache := c.caches.Namespace(cache.Options{Prefix: cache.PrefixEvents, MaxItems: cfg.CacheMaxItems})
	userCache := c.caches.Namespace(cache.Options{Prefix: cache.PrefixUser, MaxItems: cfg.CacheMaxItems})

	// 4. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	c.events = repository.NewPostgresEventRepo(db)
	rsvpRepo := repository.NewPostgresRSVPRepo(db)
	potluckRepo := repository.NewPostgresPotluckRepo(db)

	// 5. セキュリティ
	c.audit = security.NewAuditLog(cfg.AuditLogCapacity)
	sanitizer := security.NewSanitizer()
	c.evaluator = permission.NewEvaluator(cfg.AdminEmails, c.events)
	c.sessions = session.NewStore(sessionRepo, session.StoreConfig{
		MaxAge:      cfg.SessionMaxAge,
		MaxSessions: cfg.MaxSessionsPerUser,
	}, log, c.collector)

	// 6. 認証
	c.auth = auth.NewService(oauthProviders(cfg), userRepo, identRepo, c.sessions, userCache, c.audit, log)
	if err := c.auth.SeedAdmins(ctx, cfg.AdminEmails); err != nil {
		// 起動は続行する。次回ログイン時に管理者として扱われる
		slog.Warn("failed to seed admin users", slog.String("error", err.Error()))
	}

	// 7. ドメインサービス
	c.eventSvc = event.NewService(
		c.events, rsvpRepo, potluckRepo,
		c.evaluator, validation.New(), sanitizer,
		eventCache, log,
	)
	c.userSvc = user.NewService(userRepo, userCache, sanitizer, log)

	forecaster := weather.NewClient(&http.Client{Timeout: 10 * time.Second}, log, weather.ClientConfig{
		Endpoint:   cfg.WeatherEndpoint,
		Interval:   cfg.WeatherAPIInterval,
		Burst:      1,
		MaxRetries: 2,
	})
	c.weather = weather.NewService(forecaster, weatherCache, log)

	return c, nil
}

// oauthProviders は資格情報が設定されたプロバイダーだけを返す。
func oauthProviders(cfg *config.Config) []auth.OAuthProvider {
	var providers []auth.OAuthProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.ProviderConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubOAuthProvider(auth.ProviderConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		}))
	}
	return providers
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングしてHTTPサーバーを起動し、クリーンアップジョブをバックグラウンドで実行する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	generalLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Name:        "general",
		MaxRequests: cfg.RateLimitGeneral,
		Window:      cfg.RateLimitGeneralWindow,
	}, c.collector, c.audit)
	defer generalLimiter.Stop()

	validationLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Name:        "validation",
		MaxRequests: cfg.RateLimitValidation,
		Window:      cfg.RateLimitValidationWindow,
	}, c.collector, c.audit)
	defer validationLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Production:        cfg.IsProduction(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		UserResolver:      c.auth,
		Permissions:       c.evaluator,
		GeneralLimiter:    generalLimiter,
		ValidationLimiter: validationLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Audit:           c.audit,
		Metrics:         c.collector,
		MetricsGatherer: c.registry,
		HealthChecker:   c.db,

		AuthService: c.auth,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL: cfg.BaseURL,
			Cookie: middleware.SessionCookieConfig{
				Secure: cfg.CookieSecure,
				Domain: cfg.CookieDomain,
				MaxAge: cfg.SessionMaxAge,
			},
			MockLoginEnabled: cfg.MockLoginEnabled(),
		},

		EventService: c.eventSvc,
		Forecasts:    c.weather,
		HostService:  c.userSvc,
		CacheStats:   c.caches,
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupJob := cleanup.NewCleanupJob(c.sessions, c.caches, slog.Default())
	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 天気予報の先読みジョブとクリーンアップジョブを実行し、ctxがキャンセルされると終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	prefetch := weather.NewPrefetchJob(c.events, c.weather, slog.Default(), weather.PrefetchConfig{
		Interval:          cfg.WeatherPrefetchInterval,
		MaxEventsPerCycle: cfg.WeatherPrefetchMaxEvents,
	})
	cleanupJob := cleanup.NewCleanupJob(c.sessions, c.caches, slog.Default())

	slog.Info("worker starting",
		slog.Duration("prefetch_interval", cfg.WeatherPrefetchInterval),
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	// 先読みジョブをメインgoroutineで実行（ブロッキング）
	prefetch.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args MigrateArgs) error {
	slog.Info("running database migrations",
		slog.String("action", string(args.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch args.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", args.Steps))
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runCleanup はクリーンアップジョブを1回だけ実行する。cronからの起動用。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return cleanup.NewCleanupJob(c.sessions, c.caches, slog.Default()).Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
