package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/gardenvisit/internal/model"
)

// fakeRow はrowScannerのテスト用実装。valuesを順にdestへ代入する。
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: got %d destinations, have %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		v := r.values[i]
		switch p := d.(type) {
		case *string:
			*p = v.(string)
		case *int:
			*p = v.(int)
		case *time.Time:
			*p = v.(time.Time)
		case *sql.NullString:
			if v == nil {
				*p = sql.NullString{}
			} else {
				*p = sql.NullString{String: v.(string), Valid: true}
			}
		case *sql.NullFloat64:
			if v == nil {
				*p = sql.NullFloat64{}
			} else {
				*p = sql.NullFloat64{Float64: v.(float64), Valid: true}
			}
		case *sql.NullTime:
			if v == nil {
				*p = sql.NullTime{}
			} else {
				*p = sql.NullTime{Time: v.(time.Time), Valid: true}
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

var (
	created = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	updated = time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
)

func TestRepositories_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = NewPostgresUserRepo(nil)
	var _ IdentityRepository = NewPostgresIdentityRepo(nil)
	var _ SessionRepository = NewPostgresSessionRepo(nil)
	var _ EventRepository = NewPostgresEventRepo(nil)
	var _ RSVPRepository = NewPostgresRSVPRepo(nil)
	var _ PotluckRepository = NewPostgresPotluckRepo(nil)
}

func TestScanUser(t *testing.T) {
	t.Run("未申請ユーザーはNULL列を空値として読む", func(t *testing.T) {
		u, err := scanUser(fakeRow{values: []any{
			"u1", "alice@example.com", "Alice", nil, nil, nil, created, updated,
		}})
		if err != nil {
			t.Fatalf("scanUser() error = %v", err)
		}
		if u.HostStatus != model.HostStatusNone {
			t.Errorf("HostStatus = %q, want empty", u.HostStatus)
		}
		if u.AdminNotes != "" || u.ConfirmedAt != nil {
			t.Errorf("AdminNotes = %q, ConfirmedAt = %v, want zero values", u.AdminNotes, u.ConfirmedAt)
		}
	})

	t.Run("承認済みホスト", func(t *testing.T) {
		confirmed := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)
		u, err := scanUser(fakeRow{values: []any{
			"u2", "bob@example.com", "Bob", "approved", "welcome", confirmed, created, updated,
		}})
		if err != nil {
			t.Fatalf("scanUser() error = %v", err)
		}
		if u.HostStatus != model.HostStatusApproved {
			t.Errorf("HostStatus = %q, want approved", u.HostStatus)
		}
		if u.AdminNotes != "welcome" {
			t.Errorf("AdminNotes = %q", u.AdminNotes)
		}
		if u.ConfirmedAt == nil || !u.ConfirmedAt.Equal(confirmed) {
			t.Errorf("ConfirmedAt = %v, want %v", u.ConfirmedAt, confirmed)
		}
	})

	t.Run("Scanのエラーを返す", func(t *testing.T) {
		if _, err := scanUser(fakeRow{err: sql.ErrNoRows}); !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("err = %v, want sql.ErrNoRows", err)
		}
	})
}

func TestScanEvent(t *testing.T) {
	t.Run("座標と終了時刻あり", func(t *testing.T) {
		ends := created.Add(2 * time.Hour)
		ev, err := scanEvent(fakeRow{values: []any{
			"e1", "u-host", "Spring walk", "<p>hi</p>", "Plot 4",
			35.68, 139.76, created, ends, 12, created, updated,
		}})
		if err != nil {
			t.Fatalf("scanEvent() error = %v", err)
		}
		if !ev.HasCoordinates() || *ev.Latitude != 35.68 || *ev.Longitude != 139.76 {
			t.Errorf("coordinates = %v,%v", ev.Latitude, ev.Longitude)
		}
		if ev.EndsAt == nil || !ev.EndsAt.Equal(ends) {
			t.Errorf("EndsAt = %v, want %v", ev.EndsAt, ends)
		}
		if ev.MaxAttendees != 12 {
			t.Errorf("MaxAttendees = %d, want 12", ev.MaxAttendees)
		}
	})

	t.Run("NULL列はnilになる", func(t *testing.T) {
		ev, err := scanEvent(fakeRow{values: []any{
			"e2", "u-host", "Compost day", "", "Plot 1",
			nil, nil, created, nil, 0, created, updated,
		}})
		if err != nil {
			t.Fatalf("scanEvent() error = %v", err)
		}
		if ev.HasCoordinates() {
			t.Error("event without coordinates should report HasCoordinates() = false")
		}
		if ev.EndsAt != nil {
			t.Errorf("EndsAt = %v, want nil", ev.EndsAt)
		}
	})
}

func TestScanSession(t *testing.T) {
	expires := created.Add(24 * time.Hour)
	s, err := scanSession(fakeRow{values: []any{
		"s1", "u1", "google", nil, "203.0.113.7", created, updated, expires,
	}})
	if err != nil {
		t.Fatalf("scanSession() error = %v", err)
	}
	if s.UserAgent != "" {
		t.Errorf("UserAgent = %q, want empty", s.UserAgent)
	}
	if s.IPAddress != "203.0.113.7" {
		t.Errorf("IPAddress = %q", s.IPAddress)
	}
	if s.IsExpired(created) {
		t.Error("session should not be expired at creation time")
	}
	if !s.IsExpired(expires.Add(time.Second)) {
		t.Error("session should be expired after ExpiresAt")
	}
}

func TestNullString(t *testing.T) {
	if got := nullString(""); got.Valid {
		t.Errorf("nullString(\"\") = %+v, want invalid", got)
	}
	if got := nullString("x"); !got.Valid || got.String != "x" {
		t.Errorf("nullString(\"x\") = %+v", got)
	}
	if got := nullHostStatus(model.HostStatusNone); got.Valid {
		t.Errorf("nullHostStatus(none) = %+v, want invalid", got)
	}
	if got := nullHostStatus(model.HostStatusPending); !got.Valid || got.String != "pending" {
		t.Errorf("nullHostStatus(pending) = %+v", got)
	}
}
