package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/permission"
	"github.com/hitoshi/gardenvisit/internal/repository"
)

// memoryEvents はイベントリポジトリのインメモリ実装。
type memoryEvents struct {
	mu        sync.Mutex
	events    map[string]*model.Event
	findCalls int
	listCalls int
	err       error
}

func newMemoryEvents(events ...*model.Event) *memoryEvents {
	m := &memoryEvents{events: make(map[string]*model.Event)}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return m
}

func (m *memoryEvents) FindByID(ctx context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memoryEvents) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []*model.Event
	for _, e := range m.events {
		if !e.StartsAt.Before(from) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryEvents) Create(ctx context.Context, event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.events[event.ID] = &cp
	return nil
}

func (m *memoryEvents) Update(ctx context.Context, event *model.Event) error {
	return m.Create(ctx, event)
}

func (m *memoryEvents) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

// memoryRSVPs は出欠回答リポジトリのインメモリ実装。
// Upsertは定員の判定と保存をロック内で行う。
type memoryRSVPs struct {
	mu    sync.Mutex
	rsvps map[string]*model.RSVP // key: eventID/userID
}

func newMemoryRSVPs() *memoryRSVPs {
	return &memoryRSVPs{rsvps: make(map[string]*model.RSVP)}
}

func (m *memoryRSVPs) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.RSVP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rsvps[eventID+"/"+userID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRSVPs) Upsert(ctx context.Context, rsvp *model.RSVP, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if capacity > 0 && rsvp.Headcount() > 0 {
		if m.headcount(rsvp.EventID, rsvp.UserID)+rsvp.Headcount() > capacity {
			return repository.ErrCapacityExceeded
		}
	}
	cp := *rsvp
	m.rsvps[rsvp.EventID+"/"+rsvp.UserID] = &cp
	return nil
}

func (m *memoryRSVPs) Delete(ctx context.Context, eventID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rsvps, eventID+"/"+userID)
	return nil
}

func (m *memoryRSVPs) ListAttendees(ctx context.Context, eventID string) ([]model.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Attendee
	for _, r := range m.rsvps {
		if r.EventID == eventID {
			out = append(out, model.Attendee{RSVP: *r, UserName: "name-" + r.UserID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memoryRSVPs) CountHeadcount(ctx context.Context, eventID, excludeUserID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headcount(eventID, excludeUserID), nil
}

func (m *memoryRSVPs) headcount(eventID, excludeUserID string) int {
	total := 0
	for _, r := range m.rsvps {
		if r.EventID == eventID && r.UserID != excludeUserID {
			total += r.Headcount()
		}
	}
	return total
}

// memoryPotluck は持ち寄り品目リポジトリのインメモリ実装。
type memoryPotluck struct {
	items map[string]*model.PotluckItem
}

func newMemoryPotluck(items ...*model.PotluckItem) *memoryPotluck {
	m := &memoryPotluck{items: make(map[string]*model.PotluckItem)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *memoryPotluck) FindByID(ctx context.Context, id string) (*model.PotluckItem, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *memoryPotluck) ListByEvent(ctx context.Context, eventID string) ([]*model.PotluckItem, error) {
	var out []*model.PotluckItem
	for _, it := range m.items {
		if it.EventID == eventID {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryPotluck) Create(ctx context.Context, item *model.PotluckItem) error {
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memoryPotluck) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}

var (
	_ repository.EventRepository   = (*memoryEvents)(nil)
	_ repository.RSVPRepository    = (*memoryRSVPs)(nil)
	_ repository.PotluckRepository = (*memoryPotluck)(nil)
	_ EventAuthorizer              = (*permission.Evaluator)(nil)
)
