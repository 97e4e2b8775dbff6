package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/gardenvisit/internal/model"
)

// PostgresPotluckRepo はPostgreSQLを使用した持ち寄り品目リポジトリ。
type PostgresPotluckRepo struct {
	db *sql.DB
}

// NewPostgresPotluckRepo はPostgresPotluckRepoを生成する。
func NewPostgresPotluckRepo(db *sql.DB) *PostgresPotluckRepo {
	return &PostgresPotluckRepo{db: db}
}

// FindByID は指定IDの品目を取得する。見つからない場合はnilを返す。
func (r *PostgresPotluckRepo) FindByID(ctx context.Context, id string) (*model.PotluckItem, error) {
	item := &model.PotluckItem{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, name, category, quantity, created_at
		 FROM potluck_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.EventID, &item.UserID, &item.Name, &item.Category, &item.Quantity, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find potluck item: %w", err)
	}
	return item, nil
}

// ListByEvent はイベントの品目一覧を作成順に返す。
func (r *PostgresPotluckRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.PotluckItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, user_id, name, category, quantity, created_at
		 FROM potluck_items
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list potluck items: %w", err)
	}
	defer rows.Close()

	var items []*model.PotluckItem
	for rows.Next() {
		item := &model.PotluckItem{}
		if err := rows.Scan(&item.ID, &item.EventID, &item.UserID, &item.Name,
			&item.Category, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan potluck item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate potluck items: %w", err)
	}
	return items, nil
}

// Create は品目を作成する。
func (r *PostgresPotluckRepo) Create(ctx context.Context, item *model.PotluckItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO potluck_items (id, event_id, user_id, name, category, quantity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.EventID, item.UserID, item.Name, item.Category, item.Quantity, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create potluck item: %w", err)
	}
	return nil
}

// Delete は指定IDの品目を削除する。
func (r *PostgresPotluckRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM potluck_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete potluck item: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PotluckRepository = (*PostgresPotluckRepo)(nil)
