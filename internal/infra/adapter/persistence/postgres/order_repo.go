package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/repository"
)

type OrderRepo struct{ db DBTX }

func NewOrderRepo(db DBTX) repository.OrderRepository {
	return &OrderRepo{db: db}
}

func (repo *OrderRepo) Upsert(ctx context.Context, order *entity.Order) error {
	const query = `
INSERT INTO orders (id, status, snapshot, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    snapshot = EXCLUDED.snapshot,
    updated_at = now()`
	snapshot, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("Upsert: marshal: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, query, order.ID, order.Status, string(snapshot)); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *OrderRepo) Get(ctx context.Context, id int64) (*entity.Order, error) {
	const query = `
SELECT snapshot
FROM orders
WHERE id = $1`
	var snapshot []byte
	err := repo.db.QueryRowContext(ctx, query, id).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	var order entity.Order
	if err := json.Unmarshal(snapshot, &order); err != nil {
		return nil, fmt.Errorf("Get: unmarshal: %w", err)
	}
	return &order, nil
}
