package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/gardenvisit/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const eventColumns = `id, host_id, title, description, location, latitude, longitude,
	starts_at, ends_at, max_attendees, created_at, updated_at`

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return event, nil
}

// ListUpcoming は starts_at >= from のイベントを開始日時の昇順で返す。
func (r *PostgresEventRepo) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE starts_at >= $1
		 ORDER BY starts_at ASC
		 LIMIT $2`,
		from, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.HostID, event.Title, event.Description, event.Location,
		event.Latitude, event.Longitude, event.StartsAt, event.EndsAt,
		event.MaxAttendees, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// Update はイベント情報を更新する。host_idとcreated_atは変更しない。
func (r *PostgresEventRepo) Update(ctx context.Context, event *model.Event) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events
		 SET title = $2, description = $3, location = $4, latitude = $5, longitude = $6,
		     starts_at = $7, ends_at = $8, max_attendees = $9, updated_at = $10
		 WHERE id = $1`,
		event.ID, event.Title, event.Description, event.Location,
		event.Latitude, event.Longitude, event.StartsAt, event.EndsAt,
		event.MaxAttendees, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("event not found: %s", event.ID)
	}
	return nil
}

// Delete は指定IDのイベントを削除する。
func (r *PostgresEventRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func scanEvent(s rowScanner) (*model.Event, error) {
	event := &model.Event{}
	var lat, lng sql.NullFloat64
	var endsAt sql.NullTime
	err := s.Scan(
		&event.ID, &event.HostID, &event.Title, &event.Description, &event.Location,
		&lat, &lng, &event.StartsAt, &endsAt, &event.MaxAttendees,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		v := lat.Float64
		event.Latitude = &v
	}
	if lng.Valid {
		v := lng.Float64
		event.Longitude = &v
	}
	if endsAt.Valid {
		t := endsAt.Time
		event.EndsAt = &t
	}
	return event, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
