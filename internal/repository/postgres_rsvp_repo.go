package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/gardenvisit/internal/model"
)

// PostgresRSVPRepo はPostgreSQLを使用した出欠回答リポジトリ。
type PostgresRSVPRepo struct {
	db *sql.DB
}

// NewPostgresRSVPRepo はPostgresRSVPRepoを生成する。
func NewPostgresRSVPRepo(db *sql.DB) *PostgresRSVPRepo {
	return &PostgresRSVPRepo{db: db}
}

// FindByEventAndUser はイベントとユーザーで回答を取得する。見つからない場合はnilを返す。
func (r *PostgresRSVPRepo) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.RSVP, error) {
	rsvp := &model.RSVP{}
	var note sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, response, plus_one, note, created_at, updated_at
		 FROM rsvps
		 WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&rsvp.ID, &rsvp.EventID, &rsvp.UserID, &rsvp.Response, &rsvp.PlusOne,
		&note, &rsvp.CreatedAt, &rsvp.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rsvp: %w", err)
	}
	rsvp.Note = note.String
	return rsvp, nil
}

// ErrCapacityExceeded は回答を保存すると参加人数が定員を超えることを表す。
var ErrCapacityExceeded = errors.New("event capacity exceeded")

// Upsert は (event_id, user_id) で冪等に回答を保存する。
// 既存回答がある場合はIDとcreated_atを維持して上書きする。
// capacityが正の場合はイベント行をロックしてから人数を数え、
// 本人以外の参加人数と合わせて超えるならErrCapacityExceededを返す。
func (r *PostgresRSVPRepo) Upsert(ctx context.Context, rsvp *model.RSVP, capacity int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if capacity > 0 && rsvp.Headcount() > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM events WHERE id = $1 FOR UPDATE`, rsvp.EventID); err != nil {
			return fmt.Errorf("failed to lock event: %w", err)
		}
		var others int
		err := tx.QueryRowContext(ctx, headcountQuery, rsvp.EventID, rsvp.UserID).Scan(&others)
		if err != nil {
			return fmt.Errorf("failed to count headcount: %w", err)
		}
		if others+rsvp.Headcount() > capacity {
			return ErrCapacityExceeded
		}
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO rsvps (id, event_id, user_id, response, plus_one, note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id, user_id) DO UPDATE
		 SET response = EXCLUDED.response,
		     plus_one = EXCLUDED.plus_one,
		     note = EXCLUDED.note,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		rsvp.ID, rsvp.EventID, rsvp.UserID, string(rsvp.Response), rsvp.PlusOne,
		nullString(rsvp.Note), rsvp.CreatedAt, rsvp.UpdatedAt,
	).Scan(&rsvp.ID, &rsvp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rsvp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete はイベントとユーザーの回答を削除する。
func (r *PostgresRSVPRepo) Delete(ctx context.Context, eventID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM rsvps WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete rsvp: %w", err)
	}
	return nil
}

// ListAttendees はイベントの回答一覧を回答者情報付きで返す。
func (r *PostgresRSVPRepo) ListAttendees(ctx context.Context, eventID string) ([]model.Attendee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.event_id, r.user_id, r.response, r.plus_one, r.note,
		        r.created_at, r.updated_at, u.name, u.email
		 FROM rsvps r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.event_id = $1
		 ORDER BY r.created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		var a model.Attendee
		var note sql.NullString
		if err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &a.Response, &a.PlusOne, &note,
			&a.CreatedAt, &a.UpdatedAt, &a.UserName, &a.UserEmail); err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		a.Note = note.String
		attendees = append(attendees, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendees: %w", err)
	}
	return attendees, nil
}

const headcountQuery = `SELECT COALESCE(SUM(CASE WHEN plus_one THEN 2 ELSE 1 END), 0)
	 FROM rsvps
	 WHERE event_id = $1 AND response = 'yes' AND user_id <> $2`

// CountHeadcount は参加（yes）の人数を同伴者込みで返す。
func (r *PostgresRSVPRepo) CountHeadcount(ctx context.Context, eventID, excludeUserID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, headcountQuery, eventID, excludeUserID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count headcount: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ RSVPRepository = (*PostgresRSVPRepo)(nil)
