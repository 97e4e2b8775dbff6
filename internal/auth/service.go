// Package auth はOAuth認証フロー、ログイン・ログアウト、
// リクエストごとの認証済みユーザー解決を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/gardenvisit/internal/cache"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/repository"
	"github.com/hitoshi/gardenvisit/internal/security"
)

// MockProvider はモックログインで発行したセッションのprovider値。
const MockProvider = "mock"

// userCacheTTL はユーザー行をキャッシュする期間。
const userCacheTTL = 5 * time.Minute

// ErrUnknownProvider は未登録のOAuthプロバイダーが指定されたことを表す。
var ErrUnknownProvider = errors.New("unknown oauth provider")

// SessionStore は認証サービスが利用するセッションストア。session.Storeが実装する。
type SessionStore interface {
	Create(ctx context.Context, userID, provider, userAgent, ipAddress string) (string, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	Touch(ctx context.Context, id string)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// ClientInfo はセッションに記録するクライアント情報。
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	SessionID string
	User      *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers  map[string]OAuthProvider
	users      repository.UserRepository
	identities repository.IdentityRepository
	sessions   SessionStore
	userCache  *cache.Cache
	audit      security.AuditRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。userCacheとauditはnilでもよい。
func NewService(
	providers []OAuthProvider,
	users repository.UserRepository,
	identities repository.IdentityRepository,
	sessions SessionStore,
	userCache *cache.Cache,
	audit security.AuditRecorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Service{
		providers:  m,
		users:      users,
		identities: identities,
		sessions:   sessions,
		userCache:  userCache,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// Providers は登録済みプロバイダー名を昇順で返す。
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// identityが未登録の場合、同じメールアドレスのユーザー（管理者シードや別プロバイダー）が
// いればidentityを紐付け、いなければusersとidentitiesを同時に作成する。
func (s *Service) HandleCallback(ctx context.Context, provider, code string, client ClientInfo) (*LoginResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	info, err := p.ExchangeCode(ctx, code)
	if err != nil {
		s.recordAuthFailure(client, "oauth exchange failed: "+provider)
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.findOrCreateUser(ctx, info)
	if err != nil {
		return nil, err
	}

	return s.login(ctx, user, info.Provider, client)
}

func (s *Service) findOrCreateUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	identity, err := s.identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		user, err := s.users.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user for identity not found: %s", identity.UserID)
		}
		return user, nil
	}

	now := s.now()
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	existing, err := s.users.FindByEmail(ctx, info.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		newIdentity.UserID = existing.ID
		err := s.identities.Create(ctx, newIdentity)
		if errors.Is(err, repository.ErrIdentityExists) {
			// 同じアカウントの並行ログインが先に紐付けた
			return existing, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to link identity: %w", err)
		}
		s.logger.Info("identity linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
		)
		return existing, nil
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity.UserID = user.ID
	if err := s.users.CreateWithIdentity(ctx, user, newIdentity); err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}
	s.logger.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user, nil
}

// MockLogin はOAuthを経由せずにメールアドレスでログインする。開発環境専用。
// ユーザーが存在しなければ作成する。
func (s *Service) MockLogin(ctx context.Context, email, name string, client ClientInfo) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		if name == "" {
			name, _, _ = strings.Cut(email, "@")
		}
		now := s.now()
		user = &model.User{
			ID:        uuid.New().String(),
			Email:     email,
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create mock user: %w", err)
		}
	}

	return s.login(ctx, user, MockProvider, client)
}

// login は期限切れセッションを掃除してから新しいセッションを発行する。
func (s *Service) login(ctx context.Context, user *model.User, provider string, client ClientInfo) (*LoginResult, error) {
	if n, err := s.sessions.CleanupExpired(ctx); err != nil {
		s.logger.Warn("failed to cleanup expired sessions at login",
			slog.String("error", err.Error()),
		)
	} else if n > 0 {
		s.logger.Info("expired sessions cleaned up at login", slog.Int64("deleted", n))
	}

	sessionID, err := s.sessions.Create(ctx, user.ID, provider, client.UserAgent, client.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.record(model.SecurityEvent{
		Type:      model.SecurityEventLogin,
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		Detail:    provider,
	})
	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", provider),
	)

	return &LoginResult{SessionID: sessionID, User: user}, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if sess != nil {
		s.record(model.SecurityEvent{
			Type:      model.SecurityEventLogout,
			UserID:    sess.UserID,
			IPAddress: sess.IPAddress,
		})
	}
	return nil
}

// LogoutAll はユーザーの全セッションを破棄する。
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	s.record(model.SecurityEvent{
		Type:   model.SecurityEventLogout,
		UserID: userID,
		Detail: "all sessions",
	})
	return nil
}

// Resolve はセッションIDから認証済みユーザーを組み立てる。
// セッションが存在しない、期限切れ、またはユーザーが削除済みの場合は (nil, nil) を返す。
// 成功時はセッションのlast_accessedを更新する。
func (s *Service) Resolve(ctx context.Context, sessionID string) (*model.AuthenticatedUser, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}

	user, err := s.loadUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	s.sessions.Touch(ctx, sess.ID)

	return &model.AuthenticatedUser{User: *user, Session: *sess}, nil
}

// loadUser はユーザーキャッシュを経由してユーザー行を取得する。
func (s *Service) loadUser(ctx context.Context, userID string) (*model.User, error) {
	if s.userCache != nil {
		var cached model.User
		if s.userCache.Get(ctx, userID, &cached) {
			return &cached, nil
		}
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user != nil && s.userCache != nil {
		s.userCache.Set(ctx, userID, user, userCacheTTL)
	}
	return user, nil
}

// SeedAdmins はメールアドレスの許可リストから管理者ユーザーを用意する。
// 存在しないユーザーは作成し、既存ユーザーはhost_statusをadminに更新する。
func (s *Service) SeedAdmins(ctx context.Context, emails []string) error {
	for _, email := range emails {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}

		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("failed to find admin %s: %w", email, err)
		}

		now := s.now()
		if user == nil {
			name, _, _ := strings.Cut(email, "@")
			err := s.users.Create(ctx, &model.User{
				ID:          uuid.New().String(),
				Email:       email,
				Name:        name,
				HostStatus:  model.HostStatusAdmin,
				ConfirmedAt: &now,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("failed to seed admin %s: %w", email, err)
			}
			s.logger.Info("admin user seeded", slog.String("email", email))
			continue
		}

		if user.HostStatus != model.HostStatusAdmin {
			if err := s.users.UpdateHostStatus(ctx, user.ID, model.HostStatusAdmin, user.AdminNotes, &now); err != nil {
				return fmt.Errorf("failed to promote admin %s: %w", email, err)
			}
			if s.userCache != nil {
				s.userCache.Delete(ctx, user.ID)
			}
			s.logger.Info("user promoted to admin", slog.String("user_id", user.ID))
		}
	}
	return nil
}

func (s *Service) recordAuthFailure(client ClientInfo, detail string) {
	s.record(model.SecurityEvent{
		Type:      model.SecurityEventAuthFailure,
		IPAddress: client.IPAddress,
		Detail:    detail,
	})
}

func (s *Service) record(ev model.SecurityEvent) {
	if s.audit != nil {
		s.audit.Record(ev)
	}
}
