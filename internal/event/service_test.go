package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/gardenvisit/internal/cache"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/permission"
	"github.com/hitoshi/gardenvisit/internal/security"
	"github.com/hitoshi/gardenvisit/internal/validation"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	events  *memoryEvents
	rsvps   *memoryRSVPs
	potluck *memoryPotluck
	cache   *cache.Cache
	svc     *Service
}

func newFixture(t *testing.T, events ...*model.Event) *fixture {
	t.Helper()
	f := &fixture{
		events:  newMemoryEvents(events...),
		rsvps:   newMemoryRSVPs(),
		potluck: newMemoryPotluck(),
		cache:   cache.New(cache.NewMemoryStorage(0), cache.Options{Prefix: cache.PrefixEvents}, nil, nil),
	}
	f.svc = NewService(
		f.events, f.rsvps, f.potluck,
		permission.NewEvaluator(nil, f.events),
		validation.New(),
		security.NewSanitizer(),
		f.cache,
		nil,
	)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func gardenEvent(id, hostID string, maxAttendees int) *model.Event {
	return &model.Event{
		ID:           id,
		HostID:       hostID,
		Title:        "バラ園の見学",
		StartsAt:     testNow.Add(48 * time.Hour),
		MaxAttendees: maxAttendees,
	}
}

func authUser(id string, status model.HostStatus) *model.AuthenticatedUser {
	return &model.AuthenticatedUser{
		User:    model.User{ID: id, Email: id + "@example.com", HostStatus: status},
		Session: model.Session{ID: "s-" + id, UserID: id},
	}
}

func wantAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError(%s), got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("code = %q, want %q", apiErr.Code, code)
	}
}

func validInput() *EventInput {
	lat, lon := 35.68, 139.76
	return &EventInput{
		Title:        "  <b>紫陽花</b>の庭  ",
		Description:  `<p>午後から</p><script>alert(1)</script>`,
		Location:     "世田谷区",
		Latitude:     &lat,
		Longitude:    &lon,
		StartsAt:     testNow.Add(72 * time.Hour),
		MaxAttendees: 10,
	}
}

func TestService_Create_SanitizesAndInvalidatesList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.svc.ListUpcoming(ctx)
	if err != nil || len(before) != 0 {
		t.Fatalf("ListUpcoming() = %v, %v", before, err)
	}

	ev, err := f.svc.Create(ctx, "host-1", validInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ev.Title != "紫陽花の庭" {
		t.Errorf("title = %q", ev.Title)
	}
	if strings.Contains(ev.Description, "script") || !strings.Contains(ev.Description, "<p>午後から</p>") {
		t.Errorf("description = %q", ev.Description)
	}
	if ev.HostID != "host-1" || ev.ID == "" || !ev.CreatedAt.Equal(testNow) {
		t.Errorf("event = %+v", ev)
	}

	after, err := f.svc.ListUpcoming(ctx)
	if err != nil {
		t.Fatalf("ListUpcoming() error = %v", err)
	}
	if len(after) != 1 || after[0].ID != ev.ID {
		t.Errorf("list after create = %+v", after)
	}
}

func TestService_Create_ValidationError(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Title = "   "
	in.Longitude = nil

	_, err := f.svc.Create(context.Background(), "host-1", in)
	wantAPIError(t, err, model.ErrCodeValidationFailed)
	if len(f.events.events) != 0 {
		t.Error("invalid event should not be stored")
	}
}

func TestValidateEvent(t *testing.T) {
	v := validation.New()
	ends := testNow

	tests := []struct {
		name       string
		mutate     func(in *EventInput)
		wantFields []string
	}{
		{"正常", func(in *EventInput) {}, nil},
		{"終了が開始より前", func(in *EventInput) { in.EndsAt = &ends }, []string{"ends_at"}},
		{"経度のみ欠落", func(in *EventInput) { in.Longitude = nil }, []string{"longitude"}},
		{"定員が負", func(in *EventInput) { in.MaxAttendees = -1 }, []string{"max_attendees"}},
		{"開始日時なし", func(in *EventInput) { in.StartsAt = time.Time{} }, []string{"starts_at"}},
		{
			"複数の違反はフィールド名順",
			func(in *EventInput) {
				in.Title = ""
				in.EndsAt = &ends
			},
			[]string{"ends_at", "title"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(in)
			err := ValidateEvent(v, in)

			if tt.wantFields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *validation.Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *validation.Error, got %v", err)
			}
			var got []string
			for _, fe := range verr.Fields {
				got = append(got, fe.Field)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("fields = %v, want %v", got, tt.wantFields)
			}
		})
	}
}

func TestService_Get_CachesDetailUntilMutation(t *testing.T) {
	f := newFixture(t, gardenEvent("e1", "host-1", 0))
	ctx := context.Background()

	d, err := f.svc.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Event.ID != "e1" || d.Headcount != 0 || len(d.Potluck) != 0 {
		t.Errorf("detail = %+v", d)
	}

	if _, err := f.svc.Get(ctx, "e1"); err != nil {
		t.Fatal(err)
	}
	if f.events.findCalls != 1 {
		t.Errorf("repository calls = %d, want 1 (second read cached)", f.events.findCalls)
	}

	if _, err := f.svc.RSVP(ctx, "e1", "guest-1", &RSVPInput{Response: "yes", PlusOne: true}); err != nil {
		t.Fatalf("RSVP() error = %v", err)
	}

	d, err = f.svc.Get(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Headcount != 2 {
		t.Errorf("headcount = %d, want 2 after rsvp", d.Headcount)
	}
}

func TestService_Get_NotFoundIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "missing")
	wantAPIError(t, err, model.ErrCodeEventNotFound)

	f.events.events["missing"] = gardenEvent("missing", "h", 0)
	if _, err := f.svc.Get(ctx, "missing"); err != nil {
		t.Errorf("event created later should be found: %v", err)
	}
}

func TestService_Update(t *testing.T) {
	f := newFixture(t, gardenEvent("e1", "host-1", 0))
	ctx := context.Background()
	f.svc.Get(ctx, "e1")

	in := validInput()
	in.Title = "秋の庭"
	ev, err := f.svc.Update(ctx, "e1", in)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if ev.HostID != "host-1" || ev.Title != "秋の庭" || !ev.UpdatedAt.Equal(testNow) {
		t.Errorf("updated = %+v", ev)
	}

	d, _ := f.svc.Get(ctx, "e1")
	if d.Event.Title != "秋の庭" {
		t.Errorf("cached detail title = %q, want fresh value", d.Event.Title)
	}

	_, err = f.svc.Update(ctx, "nope", validInput())
	wantAPIError(t, err, model.ErrCodeEventNotFound)
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t, gardenEvent("e1", "host-1", 0))
	ctx := context.Background()

	if err := f.svc.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, err := f.svc.Get(ctx, "e1")
	wantAPIError(t, err, model.ErrCodeEventNotFound)

	wantAPIError(t, f.svc.Delete(ctx, "e1"), model.ErrCodeEventNotFound)
}

func TestService_RSVP_Capacity(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		input   RSVPInput
		wantErr bool
	}{
		{"定員内", 3, RSVPInput{Response: "yes"}, false},
		{"同伴者込みでちょうど定員", 3, RSVPInput{Response: "yes", PlusOne: true}, false},
		{"同伴者込みで定員超過", 2, RSVPInput{Response: "yes", PlusOne: true}, true},
		{"不参加は定員に関係しない", 1, RSVPInput{Response: "no", PlusOne: true}, false},
		{"定員なし", 0, RSVPInput{Response: "yes", PlusOne: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, gardenEvent("e1", "host-1", tt.max))
			ctx := context.Background()
			if tt.max > 0 {
				// 既存の参加者1名
				f.rsvps.Upsert(ctx, &model.RSVP{EventID: "e1", UserID: "other", Response: model.RSVPYes}, 0)
			}

			in := tt.input
			got, err := f.svc.RSVP(ctx, "e1", "guest", &in)
			if tt.wantErr {
				wantAPIError(t, err, model.ErrCodeEventFull)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if in.Response == "no" && got.PlusOne {
				t.Error("plus_one should be cleared when not attending")
			}
		})
	}
}

func TestService_RSVP_ConcurrentAnswersNeverExceedCapacity(t *testing.T) {
	const capacity = 3
	f := newFixture(t, gardenEvent("e1", "host-1", capacity))
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		full int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.RSVP(ctx, "e1", fmt.Sprintf("guest-%d", i), &RSVPInput{Response: "yes"})
			mu.Lock()
			defer mu.Unlock()
			var apiErr *model.APIError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeEventFull:
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != capacity {
		t.Errorf("accepted = %d, want %d", ok, capacity)
	}
	if full != 20-capacity {
		t.Errorf("rejected = %d, want %d", full, 20-capacity)
	}
	if got, _ := f.rsvps.CountHeadcount(ctx, "e1", ""); got != capacity {
		t.Errorf("headcount = %d, want %d", got, capacity)
	}
}

func TestService_RSVP_ReanswerKeepsIdentityAndExcludesSelf(t *testing.T) {
	f := newFixture(t, gardenEvent("e1", "host-1", 2))
	ctx := context.Background()

	first, err := f.svc.RSVP(ctx, "e1", "guest", &RSVPInput{Response: "yes", PlusOne: true})
	if err != nil {
		t.Fatalf("first RSVP() error = %v", err)
	}

	// 自分の既存回答は定員計算から除外される
	second, err := f.svc.RSVP(ctx, "e1", "guest", &RSVPInput{Response: "yes", PlusOne: true, Note: "<i>遅れます</i>"})
	if err != nil {
		t.Fatalf("second RSVP() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id changed: %q -> %q", first.ID, second.ID)
	}
	if second.Note != "遅れます" {
		t.Errorf("note = %q", second.Note)
	}
}

func TestService_RSVP_InvalidResponse(t *testing.T) {
	f := newFixture(t, gardenEvent("e1", "host-1", 0))
	_, err := f.svc.RSVP(context.Background(), "e1", "guest", &RSVPInput{Response: "maybe"})
	wantAPIError(t, err, model.ErrCodeValidationFailed)
}

func TestService_CancelRSVPAndAttendees(t *testing.T) {
	f := newFixture(t, gardenEvent("e1", "host-1", 0))
	ctx := context.Background()
	f.svc.RSVP(ctx, "e1", "a", &RSVPInput{Response: "yes"})
	f.svc.RSVP(ctx, "e1", "b", &RSVPInput{Response: "no"})

	if err := f.svc.CancelRSVP(ctx, "e1", "a"); err != nil {
		t.Fatalf("CancelRSVP() error = %v", err)
	}

	attendees, err := f.svc.Attendees(ctx, "e1")
	if err != nil {
		t.Fatalf("Attendees() error = %v", err)
	}
	if len(attendees) != 1 || attendees[0].UserID != "b" {
		t.Errorf("attendees = %+v", attendees)
	}

	mine, err := f.svc.MyRSVP(ctx, "e1", "a")
	if err != nil || mine != nil {
		t.Errorf("MyRSVP() = %+v, %v; want nil", mine, err)
	}
}

func TestService_Potluck(t *testing.T) {
	f := newFixture(t, gardenEvent("e1", "host-1", 0))
	ctx := context.Background()

	item, err := f.svc.AddPotluckItem(ctx, "e1", "guest", &PotluckInput{Name: "おにぎり", Category: "main", Quantity: 12})
	if err != nil {
		t.Fatalf("AddPotluckItem() error = %v", err)
	}

	d, _ := f.svc.Get(ctx, "e1")
	if len(d.Potluck) != 1 || d.Potluck[0].Name != "おにぎり" {
		t.Errorf("potluck = %+v", d.Potluck)
	}

	t.Run("他人の品目は削除できない", func(t *testing.T) {
		err := f.svc.RemovePotluckItem(ctx, "e1", item.ID, authUser("stranger", model.HostStatusNone))
		wantAPIError(t, err, model.ErrCodeForbidden)
	})

	t.Run("別イベントの品目IDは見つからない", func(t *testing.T) {
		f.events.events["e2"] = gardenEvent("e2", "host-1", 0)
		err := f.svc.RemovePotluckItem(ctx, "e2", item.ID, authUser("guest", model.HostStatusNone))
		wantAPIError(t, err, model.ErrCodePotluckNotFound)
	})

	t.Run("ホストは参加者の品目を削除できる", func(t *testing.T) {
		if err := f.svc.RemovePotluckItem(ctx, "e1", item.ID, authUser("host-1", model.HostStatusApproved)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		d, _ := f.svc.Get(ctx, "e1")
		if len(d.Potluck) != 0 {
			t.Errorf("potluck after delete = %+v", d.Potluck)
		}
	})

	t.Run("本人は削除できる", func(t *testing.T) {
		own, _ := f.svc.AddPotluckItem(ctx, "e1", "guest", &PotluckInput{Name: "麦茶", Category: "drink", Quantity: 1})
		if err := f.svc.RemovePotluckItem(ctx, "e1", own.ID, authUser("guest", model.HostStatusNone)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("不正な分類", func(t *testing.T) {
		_, err := f.svc.AddPotluckItem(ctx, "e1", "guest", &PotluckInput{Name: "花", Category: "flower", Quantity: 1})
		wantAPIError(t, err, model.ErrCodeValidationFailed)
	})
}
