package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type mockSessionCleaner struct {
	calls   atomic.Int32
	removed int64
	err     error
}

func (m *mockSessionCleaner) CleanupExpired(context.Context) (int64, error) {
	m.calls.Add(1)
	return m.removed, m.err
}

type mockCacheCleaner struct {
	calls   atomic.Int32
	removed int
}

func (m *mockCacheCleaner) Cleanup(context.Context) int {
	m.calls.Add(1)
	return m.removed
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogEntry はmsgが一致する最初のログ行を返す。
func findLogEntry(t *testing.T, buf *bytes.Buffer, msg string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["msg"] == msg {
			return entry
		}
	}
	t.Fatalf("ログに %q が記録されていない。ログ出力: %s", msg, buf.String())
	return nil
}

func TestCleanupJob_Run_CleansSessionsAndCaches(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionCleaner{removed: 7}
	caches := &mockCacheCleaner{removed: 3}
	job := NewCleanupJob(sessions, caches, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if sessions.calls.Load() != 1 || caches.calls.Load() != 1 {
		t.Errorf("calls = sessions:%d caches:%d, want 1 each", sessions.calls.Load(), caches.calls.Load())
	}

	entry := findLogEntry(t, &buf, "クリーンアップジョブが完了しました")
	if entry["expired_sessions"] != float64(7) {
		t.Errorf("expired_sessions = %v, want 7", entry["expired_sessions"])
	}
	if entry["evicted_cache_items"] != float64(3) {
		t.Errorf("evicted_cache_items = %v, want 3", entry["evicted_cache_items"])
	}
}

func TestCleanupJob_Run_WithoutCache(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockSessionCleaner{}, nil, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
}

func TestCleanupJob_Run_ReturnsErrorOnSessionFailure(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionCleaner{err: sql.ErrConnDone}
	caches := &mockCacheCleaner{}
	job := NewCleanupJob(sessions, caches, newTestLogger(&buf))

	err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("err = %v, want wrapping sql.ErrConnDone", err)
	}

	// キャッシュの削除は続行する
	if caches.calls.Load() != 1 {
		t.Errorf("cache cleanup calls = %d, want 1", caches.calls.Load())
	}

	entry := findLogEntry(t, &buf, "セッションクリーンアップに失敗しました")
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndOnTicker(t *testing.T) {
	sessions := &mockSessionCleaner{}
	job := NewCleanupJob(sessions, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sessions.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want >= 3", sessions.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
