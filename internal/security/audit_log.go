package security

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/gardenvisit/internal/model"
)

// DefaultAuditCapacity は監査ログが保持する最大件数。
const DefaultAuditCapacity = 1000

// AuditRecorder はセキュリティイベントの記録先。
type AuditRecorder interface {
	Record(event model.SecurityEvent)
}

// AuditLog はプロセス内に直近のセキュリティイベントを保持するリングバッファ。
// 上限を超えると古いものから捨てる。インスタンス間では共有されない。
type AuditLog struct {
	mu       sync.Mutex
	entries  []model.SecurityEvent
	next     int
	full     bool
	capacity int
	now      func() time.Time
}

// NewAuditLog はAuditLogを生成する。capacityが0以下ならDefaultAuditCapacity。
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{
		entries:  make([]model.SecurityEvent, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Record はイベントを追加する。IDと発生時刻が空なら補完する。
func (l *AuditLog) Record(event model.SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.now()
	}
	l.entries[l.next] = event
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
}

// Len は保持している件数を返す。
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return l.capacity
	}
	return l.next
}

// Recent は新しい順に最大limit件を返す。eventTypeが空でなければその種別のみ返す。
func (l *AuditLog) Recent(limit int, eventType model.SecurityEventType) []model.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = l.capacity
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]model.SecurityEvent, 0, limit)
	for i := 0; i < n && len(out) < limit; i++ {
		idx := (l.next - 1 - i + l.capacity) % l.capacity
		ev := l.entries[idx]
		if eventType != "" && ev.Type != eventType {
			continue
		}
		out = append(out, ev)
	}
	return out
}

var _ AuditRecorder = (*AuditLog)(nil)
