package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/permission"
)

// --- モック定義 ---

type mockResolver struct {
	resolveFn func(ctx context.Context, sessionID string) (*model.AuthenticatedUser, error)
}

func (m *mockResolver) Resolve(ctx context.Context, sessionID string) (*model.AuthenticatedUser, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, sessionID)
	}
	return nil, nil
}

type mockChecker struct {
	hasFn            func(u *model.AuthenticatedUser, p permission.Permission) bool
	canAccessEventFn func(ctx context.Context, u *model.AuthenticatedUser, eventID string, action permission.EventAction) (bool, error)
}

func (m *mockChecker) Has(u *model.AuthenticatedUser, p permission.Permission) bool {
	if m.hasFn != nil {
		return m.hasFn(u, p)
	}
	return false
}

func (m *mockChecker) CanAccessEvent(ctx context.Context, u *model.AuthenticatedUser, eventID string, action permission.EventAction) (bool, error) {
	if m.canAccessEventFn != nil {
		return m.canAccessEventFn(ctx, u, eventID, action)
	}
	return false, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []model.SecurityEvent
}

func (a *recordingAudit) Record(ev model.SecurityEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAudit) recorded() []model.SecurityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.SecurityEvent(nil), a.events...)
}

type recordingMetrics struct {
	mu               sync.Mutex
	statuses         []int
	rateLimited      []string
	authFailures     []string
	permissionDenied []string
}

func (m *recordingMetrics) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

func (m *recordingMetrics) RecordRateLimited(limiter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited = append(m.rateLimited, limiter)
}

func (m *recordingMetrics) RecordAuthFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures = append(m.authFailures, reason)
}

func (m *recordingMetrics) RecordPermissionDenied(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissionDenied = append(m.permissionDenied, p)
}

func (m *recordingMetrics) RecordRequestLatency(time.Duration) {}
func (m *recordingMetrics) RecordSessionCreated()              {}
func (m *recordingMetrics) RecordSessionsEvicted(int)          {}
func (m *recordingMetrics) RecordSessionsExpired(int64)        {}
func (m *recordingMetrics) RecordCacheHit(string)              {}
func (m *recordingMetrics) RecordCacheMiss(string)             {}

func testUser(id string, status model.HostStatus) *model.AuthenticatedUser {
	return &model.AuthenticatedUser{
		User: model.User{
			ID:         id,
			Email:      id + "@example.com",
			Name:       "Test " + id,
			HostStatus: status,
		},
		Session: model.Session{
			ID:        "sess-" + id,
			UserID:    id,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
}
