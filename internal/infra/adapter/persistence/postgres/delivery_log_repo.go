package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/repository"
)

const (
	defaultListLimit         = 20
	defaultRecentErrorsLimit = 10
	defaultScheduledLimit    = 100

	// uniqueViolation is the SQLSTATE raised by ux_delivery_logs_success.
	uniqueViolation = "23505"
)

// logColumns is the select list shared by every row query.
const logColumns = `id, order_id, phone_number, template_name, status, response_data, api_response, error_message, retry_count, created_at, updated_at`

// allowedOrderBy whitelists sortable columns.
var allowedOrderBy = map[string]bool{
	"id":         true,
	"order_id":   true,
	"status":     true,
	"created_at": true,
}

type DeliveryLogRepo struct{ db DBTX }

func NewDeliveryLogRepo(db DBTX) repository.DeliveryLogRepository {
	return &DeliveryLogRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s rowScanner) (*entity.DeliveryAttempt, error) {
	var a entity.DeliveryAttempt
	var responseData, apiResponse []byte
	if err := s.Scan(
		&a.ID, &a.OrderID, &a.PhoneNumber, &a.TemplateName, &a.Status,
		&responseData, &apiResponse, &a.ErrorMessage, &a.RetryCount,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(responseData) > 0 {
		a.ResponseData = append([]byte(nil), responseData...)
	}
	if len(apiResponse) > 0 {
		a.APIResponse = append([]byte(nil), apiResponse...)
	}
	return &a, nil
}

func scanAttempts(rows *sql.Rows, capacity int) ([]*entity.DeliveryAttempt, error) {
	out := make([]*entity.DeliveryAttempt, 0, capacity)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// jsonArg converts an optional JSON document into a driver argument. Empty
// documents are stored as SQL NULL.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (repo *DeliveryLogRepo) Record(ctx context.Context, a *entity.DeliveryAttempt) (int64, error) {
	const query = `
INSERT INTO delivery_logs
       (order_id, phone_number, template_name, status, response_data, api_response, error_message, retry_count, schedule_entry)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	var id int64
	err := repo.db.QueryRowContext(ctx, query,
		a.OrderID, a.PhoneNumber, a.TemplateName, a.Status,
		jsonArg(a.ResponseData), jsonArg(a.APIResponse), a.ErrorMessage, a.RetryCount, a.ScheduleEntry,
	).Scan(&id)
	if err != nil {
		return 0, &entity.StorageError{Op: "record", Err: err}
	}
	a.ID = id
	return id, nil
}

func (repo *DeliveryLogRepo) UpdateStatus(ctx context.Context, id int64, upd entity.StatusUpdate) error {
	sets := []string{"status = $1", "updated_at = now()"}
	args := []any{upd.Status}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if len(upd.ResponseData) > 0 {
		add("response_data", string(upd.ResponseData))
	}
	if len(upd.APIResponse) > 0 {
		add("api_response", string(upd.APIResponse))
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.RetryCount != nil {
		add("retry_count", *upd.RetryCount)
	}
	args = append(args, id)
	query := "UPDATE delivery_logs SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))

	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return entity.ErrAlreadySent
		}
		return &entity.StorageError{Op: "update", Err: err}
	}
	return nil
}

func (repo *DeliveryLogRepo) WasSuccessfullySent(ctx context.Context, orderID int64, templateName string) (bool, error) {
	const query = `
SELECT EXISTS (
    SELECT 1 FROM delivery_logs
    WHERE order_id = $1 AND template_name = $2 AND status = 'success' AND NOT schedule_entry
)`
	var sent bool
	if err := repo.db.QueryRowContext(ctx, query, orderID, templateName).Scan(&sent); err != nil {
		return false, fmt.Errorf("WasSuccessfullySent: %w", err)
	}
	return sent, nil
}

func (repo *DeliveryLogRepo) Get(ctx context.Context, id int64) (*entity.DeliveryAttempt, error) {
	query := `
SELECT ` + logColumns + `
FROM delivery_logs
WHERE id = $1`
	a, err := scanAttempt(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

func (repo *DeliveryLogRepo) List(ctx context.Context, f entity.LogFilter) ([]*entity.DeliveryAttempt, int64, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.OrderID > 0 {
		args = append(args, f.OrderID)
		where = append(where, "order_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int64
	if err := repo.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM delivery_logs WHERE "+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	orderBy := f.OrderBy
	if !allowedOrderBy[orderBy] {
		orderBy = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(f.Order, "ASC") {
		direction = "ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := "SELECT " + logColumns + " FROM delivery_logs WHERE " + whereClause +
		" ORDER BY " + orderBy + " " + direction +
		" LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	logs, err := scanAttempts(rows, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return logs, total, nil
}

func (repo *DeliveryLogRepo) Stats(ctx context.Context, days int) (entity.LogStats, error) {
	const query = `
SELECT status, COUNT(*)
FROM delivery_logs
WHERE created_at >= now() - make_interval(days => $1)
GROUP BY status`
	var stats entity.LogStats
	rows, err := repo.db.QueryContext(ctx, query, days)
	if err != nil {
		return stats, fmt.Errorf("Stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("Stats: %w", err)
		}
		switch status {
		case entity.StatusSuccess:
			stats.Success = count
		case entity.StatusError:
			stats.Error = count
		case entity.StatusPending:
			stats.Pending = count
		case entity.StatusRetry:
			stats.Retry = count
		case entity.StatusScheduled:
			stats.Scheduled = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func (repo *DeliveryLogRepo) RecentErrors(ctx context.Context, limit int) ([]*entity.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = defaultRecentErrorsLimit
	}
	logs, _, err := repo.List(ctx, entity.LogFilter{
		Status:  entity.StatusError,
		Limit:   limit,
		OrderBy: "created_at",
		Order:   "DESC",
	})
	if err != nil {
		return nil, fmt.Errorf("RecentErrors: %w", err)
	}
	return logs, nil
}

func (repo *DeliveryLogRepo) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	const query = `
DELETE FROM delivery_logs
WHERE created_at < now() - make_interval(days => $1)`
	res, err := repo.db.ExecContext(ctx, query, days)
	if err != nil {
		return 0, fmt.Errorf("CleanupOlderThan: %w", err)
	}
	return res.RowsAffected()
}

func (repo *DeliveryLogRepo) FindScheduled(ctx context.Context, orderID int64, notificationType string) (*entity.DeliveryAttempt, error) {
	query := `
SELECT ` + logColumns + `
FROM delivery_logs
WHERE order_id = $1 AND template_name = $2 AND status = 'scheduled'
ORDER BY created_at DESC
LIMIT 1`
	a, err := scanAttempt(repo.db.QueryRowContext(ctx, query, orderID, notificationType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindScheduled: %w", err)
	}
	return a, nil
}

func (repo *DeliveryLogRepo) ListScheduled(ctx context.Context, limit int) ([]*entity.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = defaultScheduledLimit
	}
	logs, _, err := repo.List(ctx, entity.LogFilter{
		Status:  entity.StatusScheduled,
		Limit:   limit,
		OrderBy: "created_at",
		Order:   "ASC",
	})
	if err != nil {
		return nil, fmt.Errorf("ListScheduled: %w", err)
	}
	return logs, nil
}
